package secret

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// TokenKey is the keyring entry holding the release feed token.
const TokenKey = "github-token"

// tokenEnvVars are consulted, in order, when no explicit reference is configured.
var tokenEnvVars = []string{"DESKHOST_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"}

// Resolver dispatches references to their provider.
type Resolver struct {
	providers map[string]Provider
	logger    *zap.Logger
}

// NewResolver registers the env and keyring providers.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		providers: map[string]Provider{
			TypeEnv:     EnvProvider{},
			TypeKeyring: NewKeyringProvider(ServiceName),
		},
		logger: logger.Named("secret"),
	}
}

// RegisterProvider adds or replaces the provider for secretType.
func (r *Resolver) RegisterProvider(secretType string, p Provider) {
	r.providers[secretType] = p
}

func (r *Resolver) provider(ref Ref) (Provider, error) {
	p, ok := r.providers[ref.Type]
	if !ok {
		return nil, fmt.Errorf("no provider for secret type %q", ref.Type)
	}
	return p, nil
}

func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	p, err := r.provider(ref)
	if err != nil {
		return "", err
	}
	return p.Resolve(ctx, ref)
}

func (r *Resolver) Store(ctx context.Context, ref Ref, value string) error {
	p, err := r.provider(ref)
	if err != nil {
		return err
	}
	return p.Store(ctx, ref, value)
}

func (r *Resolver) Delete(ctx context.Context, ref Ref) error {
	p, err := r.provider(ref)
	if err != nil {
		return err
	}
	return p.Delete(ctx, ref)
}

// Expand returns value unchanged unless it is a reference, in which case the
// referenced secret is returned.
func (r *Resolver) Expand(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	ref, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx, ref)
}

// Token resolves the release feed token. A configured value wins; otherwise
// the well-known environment variables and then the keyring are tried. An
// absent token is not an error: anonymous requests are allowed. The second
// return value names where the token came from.
func (r *Resolver) Token(ctx context.Context, configured string) (string, string, error) {
	if configured != "" {
		value, err := r.Expand(ctx, configured)
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve updater token: %w", err)
		}
		return value, "config", nil
	}

	for _, name := range tokenEnvVars {
		if value, err := r.Resolve(ctx, Ref{Type: TypeEnv, Name: name}); err == nil {
			return value, TypeEnv + ":" + name, nil
		}
	}

	value, err := r.Resolve(ctx, Ref{Type: TypeKeyring, Name: TokenKey})
	switch {
	case err == nil:
		return value, TypeKeyring + ":" + TokenKey, nil
	case errors.Is(err, ErrNotFound):
		return "", "", nil
	default:
		// A locked or missing keyring must not stop the updater.
		r.logger.Debug("Keyring unavailable, continuing without token", zap.Error(err))
		return "", "", nil
	}
}

// StoreToken saves the release feed token in the keyring.
func (r *Resolver) StoreToken(ctx context.Context, value string) error {
	if value == "" {
		return errors.New("token must not be empty")
	}
	return r.Store(ctx, Ref{Type: TypeKeyring, Name: TokenKey}, value)
}

// DeleteToken removes the release feed token from the keyring.
func (r *Resolver) DeleteToken(ctx context.Context) error {
	return r.Delete(ctx, Ref{Type: TypeKeyring, Name: TokenKey})
}

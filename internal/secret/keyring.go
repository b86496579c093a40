package secret

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName groups every deskhost entry in the OS keyring.
	ServiceName = "deskhost"
	TypeKeyring = "keyring"
)

// KeyringProvider stores secrets in the OS keyring (Keychain, Secret
// Service, Windows Credential Manager).
type KeyringProvider struct {
	service string
}

func NewKeyringProvider(service string) *KeyringProvider {
	if service == "" {
		service = ServiceName
	}
	return &KeyringProvider{service: service}
}

func (p *KeyringProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	value, err := keyring.Get(p.service, ref.Name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring entry %s: %w", ref.Name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keyring: %w", ref.Name, err)
	}
	return value, nil
}

func (p *KeyringProvider) Store(_ context.Context, ref Ref, value string) error {
	if err := keyring.Set(p.service, ref.Name, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", ref.Name, err)
	}
	return nil
}

func (p *KeyringProvider) Delete(_ context.Context, ref Ref) error {
	err := keyring.Delete(p.service, ref.Name)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring entry %s: %w", ref.Name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s from keyring: %w", ref.Name, err)
	}
	return nil
}

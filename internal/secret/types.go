// Package secret resolves credentials referenced from configuration, such
// as the release feed token, from the environment or the OS keyring.
package secret

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a reference names a secret that does not exist.
var ErrNotFound = errors.New("secret not found")

// Ref is a parsed ${type:name} reference.
type Ref struct {
	Type     string // env or keyring
	Name     string
	Original string
}

// Provider resolves one reference type.
type Provider interface {
	Resolve(ctx context.Context, ref Ref) (string, error)
	Store(ctx context.Context, ref Ref, value string) error
	Delete(ctx context.Context, ref Ref) error
}

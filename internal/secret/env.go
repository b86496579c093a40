package secret

import (
	"context"
	"fmt"
	"os"
)

const TypeEnv = "env"

// EnvProvider reads secrets from environment variables. It is read-only.
type EnvProvider struct{}

func (EnvProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	value := os.Getenv(ref.Name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s: %w", ref.Name, ErrNotFound)
	}
	return value, nil
}

func (EnvProvider) Store(context.Context, Ref, string) error {
	return fmt.Errorf("env provider does not support storing secrets")
}

func (EnvProvider) Delete(context.Context, Ref) error {
	return fmt.Errorf("env provider does not support deleting secrets")
}

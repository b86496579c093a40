// Package platform holds the small pieces of OS integration shared by every
// host implementation.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUnsupported is returned when the OS has no runtime protocol registration.
var ErrUnsupported = errors.New("not supported on this platform")

// Executable resolves the running binary, following symlinks so registrations
// survive package-manager shims.
func Executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

//go:build !windows

package platform

// SetAppUserModelID is a Windows concept; elsewhere it is a no-op.
func SetAppUserModelID(string) error {
	return nil
}

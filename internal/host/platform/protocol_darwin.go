//go:build darwin

package platform

// RegisterProtocolClient is a no-op on macOS: URL schemes are declared in the
// bundle's Info.plist (CFBundleURLTypes) and registered by LaunchServices.
func RegisterProtocolClient(string, string, string) error {
	return nil
}

//go:build windows

package platform

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// RegisterProtocolClient registers scheme:// under HKCU\Software\Classes so
// the shell launches exe with the URL as its first argument.
func RegisterProtocolClient(scheme, appName, exe string) error {
	base := `Software\Classes\` + scheme

	key, _, err := registry.CreateKey(registry.CURRENT_USER, base, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("failed to create registry key %s: %w", base, err)
	}
	defer key.Close()

	if err := key.SetStringValue("", "URL:"+appName); err != nil {
		return fmt.Errorf("failed to set protocol description: %w", err)
	}
	if err := key.SetStringValue("URL Protocol", ""); err != nil {
		return fmt.Errorf("failed to mark %s as URL protocol: %w", scheme, err)
	}

	cmdKey, _, err := registry.CreateKey(registry.CURRENT_USER, base+`\shell\open\command`, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("failed to create open command key: %w", err)
	}
	defer cmdKey.Close()

	if err := cmdKey.SetStringValue("", fmt.Sprintf(`"%s" "%%1"`, exe)); err != nil {
		return fmt.Errorf("failed to set open command: %w", err)
	}
	return nil
}

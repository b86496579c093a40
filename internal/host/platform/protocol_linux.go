//go:build linux

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const desktopEntryTemplate = `[Desktop Entry]
Type=Application
Name=%s
Exec="%s" %%u
NoDisplay=true
Terminal=false
MimeType=x-scheme-handler/%s;
`

// RegisterProtocolClient installs a .desktop entry handling scheme:// URLs and
// makes it the default handler through xdg-mime.
func RegisterProtocolClient(scheme, appName, exe string) error {
	dir, err := applicationsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	entry := strings.ToLower(appName) + "-url-handler.desktop"
	path := filepath.Join(dir, entry)
	content := fmt.Sprintf(desktopEntryTemplate, appName, exe, scheme)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write desktop entry %s: %w", path, err)
	}

	xdgMime, err := exec.LookPath("xdg-mime")
	if err != nil {
		return fmt.Errorf("desktop entry written to %s but xdg-mime is unavailable: %w", path, err)
	}
	out, err := exec.Command(xdgMime, "default", entry, "x-scheme-handler/"+scheme).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xdg-mime default failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func applicationsDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "applications"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "applications"), nil
}

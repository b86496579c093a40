package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "deskhost"

const osLinux = "linux"

// GetLogDir returns the per-user log directory for the running OS:
// ~/Library/Logs/deskhost on darwin, %LOCALAPPDATA%\deskhost\logs on windows
// and $XDG_STATE_HOME/deskhost/logs on linux. Other systems, and any lookup
// that fails, fall back to ~/.deskhost/logs.
func GetLogDir() (string, error) {
	home, homeErr := os.UserHomeDir()

	switch runtime.GOOS {
	case "darwin":
		if homeErr == nil {
			return filepath.Join(home, "Library", "Logs", appDirName), nil
		}
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" && os.Getenv("USERPROFILE") != "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		if base != "" {
			return filepath.Join(base, appDirName, "logs"), nil
		}
	case osLinux:
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" && homeErr == nil {
			state = filepath.Join(home, ".local", "state")
		}
		if state != "" {
			return filepath.Join(state, appDirName, "logs"), nil
		}
	}

	if homeErr != nil {
		return filepath.Join(os.TempDir(), appDirName, "logs"), nil
	}
	return filepath.Join(home, "."+appDirName, "logs"), nil
}

// GetLogFilePathWithDir joins filename onto logDir, creating the directory.
// An empty logDir means GetLogDir; a leading ~/ is expanded.
func GetLogFilePathWithDir(logDir, filename string) (string, error) {
	if logDir == "" {
		dir, err := GetLogDir()
		if err != nil {
			return "", err
		}
		logDir = dir
	}

	if rest, ok := strings.CutPrefix(logDir, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(home, rest)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(logDir, filename), nil
}

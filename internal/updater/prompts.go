package updater

import (
	"fmt"
	"math"
	"strconv"

	"github.com/deskhost/deskhost/internal/host"
)

// Button indexes of the update dialogs.
const (
	availableUpdateNow   = 0
	availableViewRelease = 1
	availableLater       = 2

	restartNow   = 0
	restartLater = 1
)

func availableDialog(appName, current string, release *Release, releaseURL string) host.MessageBoxOptions {
	version := release.Version()
	label := version
	if IsPrerelease(version) {
		label += " (pre-release)"
	}
	return host.MessageBoxOptions{
		Type:    host.MessageInfo,
		Title:   "Update available",
		Message: fmt.Sprintf("A new version of %s is available: %s", appName, label),
		Detail: fmt.Sprintf("Current version: %s\nNew version: %s\n\nRelease notes: %s\n\nDownload and install it now?",
			ensureVPrefix(current), version, releaseURL),
		Buttons:   []string{"Update now", "View release", "Later"},
		DefaultID: availableUpdateNow,
		CancelID:  availableLater,
	}
}

func restartDialog(release *Release) host.MessageBoxOptions {
	return host.MessageBoxOptions{
		Type:      host.MessageInfo,
		Title:     "Update ready",
		Message:   fmt.Sprintf("Version %s has been downloaded. Restart to install it.", release.Version()),
		Buttons:   []string{"Restart now", "Later"},
		DefaultID: restartNow,
		CancelID:  restartLater,
	}
}

// formatBytes renders n with binary units and at most two decimals.
func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const k = 1024
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(k)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(n) / math.Pow(k, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizes[i]
}

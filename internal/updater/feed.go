package updater

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	URL         string `json:"browser_download_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Release is an update candidate.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Notes       string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Version returns the release tag in canonical "vX.Y.Z" form.
func (r *Release) Version() string {
	return ensureVPrefix(r.TagName)
}

// Progress reports a running download.
type Progress struct {
	Transferred int64
	Total       int64
	Percent     float64
}

// CheckRequest describes the running build to a Feed.
type CheckRequest struct {
	CurrentVersion  string
	AllowPrerelease bool
}

// Feed is a source of releases.
type Feed interface {
	// Check returns a release newer than req.CurrentVersion, or nil when there is none.
	Check(ctx context.Context, req CheckRequest) (*Release, error)
	// Download streams asset into dst, reporting progress as it goes.
	Download(ctx context.Context, asset Asset, dst io.Writer, progress func(Progress)) error
	// Endpoint is the API location, for logs.
	Endpoint() string
	// ReleasesURL is the human-facing releases page.
	ReleasesURL() string
	HasCredential() bool
}

// IsNewer reports whether candidate is a valid semantic version strictly
// greater than current.
func IsNewer(candidate, current string) bool {
	c, cur := ensureVPrefix(candidate), ensureVPrefix(current)
	if !semver.IsValid(c) || !semver.IsValid(cur) {
		return false
	}
	return semver.Compare(c, cur) > 0
}

// IsPrerelease reports whether version carries a prerelease tag.
func IsPrerelease(version string) bool {
	return semver.Prerelease(ensureVPrefix(version)) != ""
}

func ensureVPrefix(version string) string {
	if len(version) > 0 && version[0] != 'v' {
		return "v" + version
	}
	return version
}

// SelectAsset picks the artifact for goos/goarch. A macOS universal build wins
// on darwin; otherwise the name must mention both the OS and the architecture.
func SelectAsset(release *Release, goos, goarch string) (Asset, error) {
	archNames := []string{goarch}
	switch goarch {
	case "amd64":
		archNames = append(archNames, "x86_64", "x64")
	case "arm64":
		archNames = append(archNames, "aarch64")
	}
	osNames := []string{goos}
	if goos == "darwin" {
		osNames = append(osNames, "macos", "mac")
		for _, asset := range release.Assets {
			name := strings.ToLower(asset.Name)
			if containsAny(name, osNames) && strings.Contains(name, "universal") {
				return asset, nil
			}
		}
	}
	if goos == "windows" {
		osNames = append(osNames, "win")
	}

	for _, asset := range release.Assets {
		name := strings.ToLower(asset.Name)
		if strings.HasSuffix(name, ".sha256") || strings.HasSuffix(name, ".sig") {
			continue
		}
		if containsAny(name, osNames) && containsAny(name, archNames) {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %s/%s", ErrNoAsset, goos, goarch)
}

// selectCurrentAsset picks the artifact for the running platform.
func selectCurrentAsset(release *Release) (Asset, error) {
	return SelectAsset(release, runtime.GOOS, runtime.GOARCH)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

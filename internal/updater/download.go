package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is a downloaded release file waiting to be installed.
type Artifact struct {
	Path    string
	Release *Release
	Asset   Asset
}

// download fetches asset into a temporary file under dir.
func download(ctx context.Context, feed Feed, dir string, release *Release, asset Asset, progress func(Progress)) (*Artifact, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	ext := archiveExt(asset.Name)
	f, err := os.CreateTemp(dir, "deskhost-update-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create download file: %w", err)
	}

	if err := feed.Download(ctx, asset, f, progress); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to finish download: %w", err)
	}

	return &Artifact{Path: f.Name(), Release: release, Asset: asset}, nil
}

func archiveExt(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"):
		return ".tar.gz"
	case strings.HasSuffix(lower, ".tgz"):
		return ".tgz"
	default:
		return filepath.Ext(lower)
	}
}

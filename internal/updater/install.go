package updater

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strings"

	"github.com/inconshreveable/go-update"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host/platform"
)

// Installer applies a downloaded artifact and restarts the application.
type Installer interface {
	Install(ctx context.Context, artifact *Artifact) error
	Relaunch() error
}

// SelfInstaller replaces the running executable in place.
type SelfInstaller struct {
	// TargetPath is the executable to replace; empty means the running one.
	TargetPath string
	// BinaryName identifies the executable inside zip and tar archives.
	BinaryName string
	// Args are passed to the relaunched process.
	Args   []string
	Logger *zap.Logger
}

var _ Installer = (*SelfInstaller)(nil)

func (s *SelfInstaller) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *SelfInstaller) target() (string, error) {
	if s.TargetPath != "" {
		return s.TargetPath, nil
	}
	return platform.Executable()
}

// Install extracts the binary from the artifact when it is an archive and
// swaps it in, rolling back on failure.
func (s *SelfInstaller) Install(ctx context.Context, artifact *Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.target()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("failed to open update artifact: %w", err)
	}
	defer f.Close()

	var binary io.Reader
	switch ext := archiveExt(artifact.Path); ext {
	case ".zip":
		rc, err := s.extractZip(artifact.Path)
		if err != nil {
			return err
		}
		defer rc.Close()
		binary = rc
	case ".tar.gz", ".tgz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip archive: %w", err)
		}
		defer gz.Close()
		if binary, err = s.extractTar(gz); err != nil {
			return err
		}
	default:
		binary = f
	}

	if err := update.Apply(binary, update.Options{TargetPath: target}); err != nil {
		if rollbackErr := update.RollbackError(err); rollbackErr != nil {
			return fmt.Errorf("update failed and rollback failed: %v (rollback: %w)", err, rollbackErr)
		}
		return fmt.Errorf("failed to apply update: %w", err)
	}

	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		s.logger().Debug("Failed to remove update artifact", zap.String("path", artifact.Path), zap.Error(err))
	}
	s.logger().Info("Update installed", zap.String("target", target), zap.String("version", artifact.Release.TagName))
	return nil
}

func (s *SelfInstaller) matches(name string) bool {
	base := path.Base(name)
	if s.BinaryName == "" {
		return !strings.HasSuffix(name, "/")
	}
	return base == s.BinaryName || base == s.BinaryName+".exe"
}

func (s *SelfInstaller) extractZip(archive string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}
	for _, file := range zr.File {
		if file.FileInfo().IsDir() || !s.matches(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("failed to read %s from archive: %w", file.Name, err)
		}
		return &zipEntry{ReadCloser: rc, archive: zr}, nil
	}
	zr.Close()
	return nil, fmt.Errorf("binary %q not found in zip archive", s.BinaryName)
}

type zipEntry struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipEntry) Close() error {
	return errors.Join(z.ReadCloser.Close(), z.archive.Close())
}

func (s *SelfInstaller) extractTar(r io.Reader) (io.Reader, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("binary %q not found in tar archive", s.BinaryName)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar archive: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg && s.matches(hdr.Name) {
			return tr, nil
		}
	}
}

// Relaunch starts a detached copy of the (updated) executable.
func (s *SelfInstaller) Relaunch() error {
	target, err := s.target()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	cmd := exec.Command(target, s.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to relaunch %s: %w", target, err)
	}
	s.logger().Info("Relaunched application", zap.String("path", target), zap.Int("pid", cmd.Process.Pid))
	return cmd.Process.Release()
}

package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Restore extracts a backup archive to the target directory and returns
// its manifest. It refuses to overwrite existing files unless force is
// true. The server must not be running against the target database.
func Restore(ctx context.Context, archivePath, targetDir string, force bool) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing archive: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	// Ensure target directory exists.
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating target directory: %w", err)
	}

	var manifest *Manifest
	foundDB := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive entry: %w", err)
		}

		// Security: reject entries that escape the target directory.
		if err := validateTarEntry(hdr.Name, targetDir); err != nil {
			return nil, err
		}

		if hdr.Name == ManifestName {
			manifest = &Manifest{}
			if err := json.NewDecoder(io.LimitReader(tr, 1<<20)).Decode(manifest); err != nil {
				return nil, fmt.Errorf("reading manifest: %w", err)
			}
			continue
		}
		if manifest != nil && hdr.Name == manifest.Database {
			foundDB = true
		}

		destPath := filepath.Join(targetDir, filepath.Clean(hdr.Name)) //nolint:gosec // G305: path traversal checked by validateTarEntry above

		// Check for existing files when force is disabled.
		if !force {
			if _, err := os.Stat(destPath); err == nil {
				return nil, fmt.Errorf("file already exists (use --force to overwrite): %s", destPath)
			}
		}

		if err := extractFile(tr, destPath, hdr); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", hdr.Name, err)
		}
		if manifest != nil && hdr.Name == manifest.Database {
			// WAL sidecars from the replaced database would be replayed over it.
			for _, suffix := range []string{"-wal", "-shm"} {
				if err := os.Remove(destPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
					return nil, fmt.Errorf("removing stale %s: %w", suffix, err)
				}
			}
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("invalid backup: archive has no %s", ManifestName)
	}
	if !foundDB {
		return nil, fmt.Errorf("invalid backup: archive does not contain %s", manifest.Database)
	}

	return manifest, nil
}

// validateTarEntry checks that a tar entry name does not escape the target
// directory via path traversal.
func validateTarEntry(name, targetDir string) error {
	// Reject absolute paths.
	if filepath.IsAbs(name) {
		return fmt.Errorf("path traversal detected: absolute path %q", name)
	}

	// Clean the path and check for directory escape.
	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("path traversal detected: %q", name)
	}

	// Double-check: resolved path must be within target.
	dest := filepath.Join(targetDir, cleaned)
	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving target directory: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	if !strings.HasPrefix(absDest, absTarget+string(filepath.Separator)) && absDest != absTarget {
		return fmt.Errorf("path traversal detected: %q resolves outside target", name)
	}

	return nil
}

// extractFile writes a single tar entry to disk.
func extractFile(tr *tar.Reader, destPath string, hdr *tar.Header) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(destPath, os.FileMode(hdr.Mode&0o777)) //nolint:gosec // G115: mode bits safely within uint32 range
	case tar.TypeReg:
		// Ensure parent directory exists.
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777)) //nolint:gosec // G115: mode bits safely within uint32 range
		if err != nil {
			return err
		}
		defer out.Close()

		// A diary is small; anything bigger is not one of ours.
		const maxFileSize = 1 << 30
		_, err = io.Copy(out, io.LimitReader(tr, maxFileSize))
		return err
	default:
		// Skip unsupported entry types (symlinks, etc.).
		return nil
	}
}

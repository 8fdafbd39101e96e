// Package backup archives the diary database as a gzipped tarball and
// restores it.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the archive entry describing the backup.
const ManifestName = "manifest.json"

// Manifest records what an archive holds.
type Manifest struct {
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
	Database  string    `json:"database"`
	Config    string    `json:"config,omitempty"`
}

// Backup writes a consistent copy of the live database (VACUUM INTO, so
// WAL contents are included) and, when configPath is set, the config file
// to a .tar.gz at archivePath. The database entry is named dbName.
func Backup(ctx context.Context, db *sql.DB, dbName, configPath, archivePath, version string) error {
	tmpDir, err := os.MkdirTemp("", "sleepcast-backup-")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, dbName)
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	m := Manifest{
		CreatedAt: time.Now().UTC(),
		Version:   version,
		Database:  dbName,
	}
	if configPath != "" {
		m.Config = filepath.Base(configPath)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	out, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	if err := writeArchive(out, m, snapshot, configPath); err != nil {
		out.Close()
		os.Remove(archivePath)
		return err
	}
	return out.Close()
}

func writeArchive(w io.Writer, m Manifest, dbFile, configPath string) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(manifest)),
		ModTime: m.CreatedAt,
	}); err != nil {
		return err
	}
	if _, err := tw.Write(manifest); err != nil {
		return err
	}

	if err := addFile(tw, dbFile, m.Database); err != nil {
		return fmt.Errorf("adding database: %w", err)
	}
	if configPath != "" {
		if err := addFile(tw, configPath, m.Config); err != nil {
			return fmt.Errorf("adding config: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

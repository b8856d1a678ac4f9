package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// sidecars are the files SQLite keeps next to a WAL-mode database.
var sidecars = []string{"-wal", "-shm", "-journal"}

// ResetDatabase removes a database file and its WAL sidecars.
// Missing files are not an error.
func ResetDatabase(path string) error {
	for _, p := range append([]string{path}, sidecarPaths(path)...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func sidecarPaths(path string) []string {
	paths := make([]string, len(sidecars))
	for i, s := range sidecars {
		paths[i] = path + s
	}
	return paths
}

// BackupPath returns the name a backup of path taken at t is written to.
func BackupPath(path string, t time.Time) string {
	return fmt.Sprintf("%s.%s.bak", path, t.UTC().Format("20060102T150405Z"))
}

// BackupDatabase copies a database file to dst. The WAL sidecar is
// copied too when present so the backup opens with the same content.
func BackupDatabase(src, dst string) error {
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("backup %s: %w", src, err)
	}
	if _, err := os.Stat(src + "-wal"); err == nil {
		if err := copyFile(src+"-wal", dst+"-wal"); err != nil {
			_ = os.Remove(dst)
			return fmt.Errorf("backup %s-wal: %w", src, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		dest.Close()
		if !success {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(dest, source); err != nil {
		return err
	}

	// Flush before the original is deleted.
	if err := dest.Sync(); err != nil {
		return err
	}

	success = true
	return nil
}

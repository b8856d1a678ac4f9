package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Entry is a store found on disk.
type Entry struct {
	ID     string
	DBPath string
}

// ListStores scans root for store directories holding a database file.
// A missing root yields an empty list. Entries are sorted by ID.
func ListStores(root string) ([]Entry, error) {
	dirs, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stores directory: %w", err)
	}

	entries := []Entry{}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dbPath := filepath.Join(root, d.Name(), DBFileName)
		if _, err := os.Stat(dbPath); err != nil {
			continue
		}
		entries = append(entries, Entry{ID: DecodeStorePath(d.Name()), DBPath: dbPath})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

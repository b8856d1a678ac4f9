package store_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/spanstore/internal/store"
)

func TestEncodeDecodeStorePath(t *testing.T) {
	tests := []struct {
		name    string
		storeID string
		encoded string
	}{
		{"simple", "harness", "harness"},
		{"with slash", "ios/realm-memory", "ios__realm-memory"},
		{"deep path", "a/b/c/d", "a__b__c__d"},
		{"digits", "run42", "run42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.EncodeStorePath(tt.storeID); got != tt.encoded {
				t.Errorf("EncodeStorePath(%q) = %q, want %q", tt.storeID, got, tt.encoded)
			}
			if got := store.DecodeStorePath(tt.encoded); got != tt.storeID {
				t.Errorf("DecodeStorePath(%q) = %q, want %q", tt.encoded, got, tt.storeID)
			}
		})
	}
}

func TestDefaultStoreRoot_HomeOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("SPANSTORE_HOME", tmp)

	if got, want := store.DefaultStoreRoot(), filepath.Join(tmp, "stores"); got != want {
		t.Errorf("DefaultStoreRoot() = %q, want %q", got, want)
	}
}

func TestDefaultStoreRoot_UsesHomeDir(t *testing.T) {
	t.Setenv("SPANSTORE_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("cannot determine home directory: %v", err)
	}

	root := store.DefaultStoreRoot()
	if want := filepath.Join(home, ".spanstore", "stores"); root != want {
		t.Errorf("DefaultStoreRoot() = %q, want %q", root, want)
	}
	if !filepath.IsAbs(root) {
		t.Errorf("DefaultStoreRoot() = %q, should be absolute path", root)
	}
}

func TestStoreDBPath(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("SPANSTORE_HOME", tmp)

	tests := []struct {
		storeID string
		want    string
	}{
		{"default", filepath.Join(tmp, "stores", "default", "records.db")},
		{"ios/realm-memory", filepath.Join(tmp, "stores", "ios__realm-memory", "records.db")},
	}
	for _, tt := range tests {
		t.Run(tt.storeID, func(t *testing.T) {
			got := store.StoreDBPath(tt.storeID)
			if got != tt.want {
				t.Errorf("StoreDBPath(%q) = %q, want %q", tt.storeID, got, tt.want)
			}
			if !strings.HasSuffix(got, store.DBFileName) {
				t.Errorf("StoreDBPath(%q) = %q, should end with %s", tt.storeID, got, store.DBFileName)
			}
		})
	}
}

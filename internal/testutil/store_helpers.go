package testutil

import (
	"path/filepath"
	"testing"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/store"
)

// NewTestStore creates a temporary database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewTestFolder creates a folder in st that supports junk.
func NewTestFolder(t *testing.T, st *store.Store, name string) *store.Folder {
	t.Helper()
	f, err := st.EnsureFolder(name, folder.Capabilities{SupportsJunk: true})
	MustNoErr(t, err, "EnsureFolder "+name)
	return f
}

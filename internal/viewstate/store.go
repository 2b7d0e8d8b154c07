package viewstate

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"howett.net/plist"
)

const stateVersion = 2

type stateFile struct {
	Version int          `plist:"version"`
	Folder  string       `plist:"folder"`
	Expand  *ExpandState `plist:"expand"`
}

// Store persists expand state, one XML property list per folder under a
// directory. File names are the SHA-256 of the folder key.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Path returns the file backing folderKey.
func (s *Store) Path(folderKey string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%x.plist", sha256.Sum256([]byte(folderKey))))
}

// Load returns the saved state for folderKey, or nil when none exists.
func (s *Store) Load(folderKey string) (*ExpandState, error) {
	data, err := os.ReadFile(s.Path(folderKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read expand state: %w", err)
	}
	var f stateFile
	if _, err := plist.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode expand state: %w", err)
	}
	if f.Version != stateVersion {
		s.logger.Debug("ignoring expand state with unknown version", "folder", folderKey, "version", f.Version)
		return nil, nil
	}
	return f.Expand, nil
}

// Save writes state for folderKey, replacing any previous file.
func (s *Store) Save(folderKey string, state *ExpandState) error {
	if state == nil {
		return s.Remove(folderKey)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	var buf bytes.Buffer
	enc := plist.NewEncoderForFormat(&buf, plist.XMLFormat)
	enc.Indent("\t")
	if err := enc.Encode(stateFile{Version: stateVersion, Folder: folderKey, Expand: state}); err != nil {
		return fmt.Errorf("encode expand state: %w", err)
	}

	path := s.Path(folderKey)
	tmp, err := os.CreateTemp(s.dir, ".expand-*")
	if err != nil {
		return fmt.Errorf("save expand state: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save expand state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save expand state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save expand state: %w", err)
	}
	return nil
}

// Remove deletes the saved state for folderKey. A missing file is not an
// error.
func (s *Store) Remove(folderKey string) error {
	err := os.Remove(s.Path(folderKey))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove expand state: %w", err)
	}
	return nil
}

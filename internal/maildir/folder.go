// Package maildir exposes a Maildir directory as a folder.Folder. The
// directory is scanned into memory; Rescan diffs the directory against the
// loaded records and reports removals in one change event, then additions
// and flag changes in a second.
package maildir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/emersion/go-maildir"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/mime"
)

// Folder is a Maildir-backed folder. Message keys are the UIDs.
type Folder struct {
	dir    maildir.Dir
	mem    *folder.Memory
	logger *slog.Logger

	scanMu sync.Mutex // serializes Rescan and on-disk mutations
}

// Option configures a Folder.
type Option func(*Folder)

// WithLogger sets the logger used for skipped messages and watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(f *Folder) {
		if l != nil {
			f.logger = l
		}
	}
}

// Open opens the maildir at path, creating it when missing, and loads its
// messages. Maildir folders carry no junk flag, so caps.SupportsJunk is
// ignored.
func Open(ctx context.Context, path, name string, caps folder.Capabilities, opts ...Option) (*Folder, error) {
	dir := maildir.Dir(path)
	if _, err := os.Stat(filepath.Join(path, "cur")); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("create maildir: %w", err)
		}
		if err := dir.Init(); err != nil {
			return nil, fmt.Errorf("init maildir: %w", err)
		}
	}

	caps.SupportsJunk = false
	f := &Folder{
		dir:    dir,
		mem:    folder.NewMemory(name, caps),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	if _, err := f.Rescan(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the maildir directory.
func (f *Folder) Path() string { return string(f.dir) }

// Rescan moves new messages into cur, then compares the directory with the
// loaded records: unknown keys are parsed and added, keys whose flags
// differ are replaced and vanished keys are removed. Subscribers see the
// removals first, then the additions and changes.
func (f *Folder) Rescan(ctx context.Context) (folder.ChangeInfo, error) {
	f.scanMu.Lock()
	defer f.scanMu.Unlock()

	var ci folder.ChangeInfo
	if _, err := os.Stat(filepath.Join(string(f.dir), "cur")); err != nil {
		return ci, fmt.Errorf("rescan %s: %w", f.Name(), folder.ErrUnavailable)
	}
	if _, err := f.dir.Unseen(); err != nil {
		return ci, fmt.Errorf("move new messages: %w", err)
	}
	msgs, err := f.dir.Messages()
	if err != nil {
		return ci, fmt.Errorf("list messages: %w", err)
	}

	present := make(map[string]bool, len(msgs))
	var updates []*message.Record
	for i, m := range msgs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return folder.ChangeInfo{}, err
			}
		}
		key := m.Key()
		present[key] = true
		flags := fromMaildir(m.Flags())

		prev, err := f.mem.MessageInfo(ctx, key)
		if err == nil {
			if prev.Flags != flags {
				updates = append(updates, prev.WithFlags(flags))
				ci.Changed = append(ci.Changed, key)
			}
			continue
		}
		rec, err := loadRecord(m, flags)
		if err != nil {
			f.logger.Warn("skipping unreadable message", "folder", f.Name(), "key", key, "error", err)
			continue
		}
		updates = append(updates, rec)
		ci.Added = append(ci.Added, key)
	}

	known, err := f.mem.UIDs(ctx)
	if err != nil {
		return folder.ChangeInfo{}, err
	}
	for _, uid := range known {
		if !present[uid] {
			ci.Removed = append(ci.Removed, uid)
		}
	}

	f.mem.Remove(ci.Removed...)
	f.mem.Add(updates...)
	if !ci.IsEmpty() {
		f.logger.Debug("maildir rescanned", "folder", f.Name(),
			"added", len(ci.Added), "removed", len(ci.Removed), "changed", len(ci.Changed))
	}
	return ci, nil
}

// loadRecord parses the message file. The file modification time is the
// delivery time.
func loadRecord(m *maildir.Message, flags message.Flags) (*message.Record, error) {
	fi, err := os.Stat(m.Filename())
	if err != nil {
		return nil, err
	}
	rc, err := m.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return mime.ParseRecord(m.Key(), raw, flags, fi.ModTime().UTC())
}

// Deliver writes raw into the maildir and rescans.
func (f *Folder) Deliver(ctx context.Context, raw []byte) error {
	d, err := maildir.NewDelivery(string(f.dir))
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	if _, err := d.Write(raw); err != nil {
		_ = d.Abort()
		return fmt.Errorf("deliver: %w", err)
	}
	if err := d.Close(); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	_, err = f.Rescan(ctx)
	return err
}

// SetFlags rewrites the flags of uid on disk and in memory.
func (f *Folder) SetFlags(uid string, set, clear message.Flags) error {
	f.scanMu.Lock()
	defer f.scanMu.Unlock()

	r, err := f.mem.MessageInfo(context.Background(), uid)
	if err != nil {
		return fmt.Errorf("set flags: %w", err)
	}
	m, err := f.dir.MessageByKey(uid)
	if err != nil {
		return fmt.Errorf("set flags %s: %w", uid, folder.ErrNotFound)
	}
	flags := (r.Flags &^ clear) | set
	if err := m.SetFlags(toMaildir(flags)); err != nil {
		return fmt.Errorf("set flags %s: %w", uid, err)
	}
	return f.mem.SetFlags(uid, set, clear)
}

// Remove deletes messages from disk. Unknown keys are ignored.
func (f *Folder) Remove(uids ...string) error {
	f.scanMu.Lock()
	defer f.scanMu.Unlock()

	var removed []string
	for _, uid := range uids {
		m, err := f.dir.MessageByKey(uid)
		if err != nil {
			continue
		}
		if err := m.Remove(); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.mem.Remove(removed...)
			return fmt.Errorf("remove %s: %w", uid, err)
		}
		removed = append(removed, uid)
	}
	f.mem.Remove(removed...)
	return nil
}

// Close makes later reads fail with folder.ErrUnavailable.
func (f *Folder) Close() { f.mem.Close() }

func (f *Folder) Name() string                      { return f.mem.Name() }
func (f *Folder) Capabilities() folder.Capabilities { return f.mem.Capabilities() }
func (f *Folder) SortUIDs(uids []string)            { f.mem.SortUIDs(uids) }

func (f *Folder) UIDs(ctx context.Context) ([]string, error) {
	return f.mem.UIDs(ctx)
}

func (f *Folder) MessageInfo(ctx context.Context, uid string) (*message.Record, error) {
	return f.mem.MessageInfo(ctx, uid)
}

func (f *Folder) Search(ctx context.Context, expr string) ([]string, error) {
	return f.mem.Search(ctx, expr)
}

func (f *Folder) Subscribe(fn func(folder.ChangeInfo)) func() {
	return f.mem.Subscribe(fn)
}

var _ folder.Folder = (*Folder)(nil)

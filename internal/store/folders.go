package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/search"
)

// FolderInfo describes one stored folder.
type FolderInfo struct {
	ID           int64
	Name         string
	Capabilities folder.Capabilities
	MessageCount int64
}

// EnsureFolder gets or creates the named folder. Capabilities of an
// existing folder are updated to caps.
func (s *Store) EnsureFolder(name string, caps folder.Capabilities) (*Folder, error) {
	_, err := s.db.Exec(`
		INSERT INTO folders (name, is_trash, is_junk, supports_junk)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			is_trash = excluded.is_trash,
			is_junk = excluded.is_junk,
			supports_junk = excluded.supports_junk
	`, name, caps.IsTrash, caps.IsJunk, caps.SupportsJunk)
	if err != nil {
		return nil, s.wrapErr("ensure folder "+name, err)
	}
	return s.Folder(name)
}

// Folder opens an existing folder.
func (s *Store) Folder(name string) (*Folder, error) {
	f := &Folder{store: s, name: name}
	err := s.db.QueryRow(`
		SELECT id, is_trash, is_junk, supports_junk FROM folders WHERE name = ?
	`, name).Scan(&f.id, &f.caps.IsTrash, &f.caps.IsJunk, &f.caps.SupportsJunk)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrFolderNotFound)
	}
	if err != nil {
		return nil, s.wrapErr("open folder "+name, err)
	}
	return f, nil
}

// ListFolders returns every folder with its message count, by name.
func (s *Store) ListFolders() ([]FolderInfo, error) {
	rows, err := s.db.Query(`
		SELECT f.id, f.name, f.is_trash, f.is_junk, f.supports_junk, COUNT(m.id)
		FROM folders f
		LEFT JOIN messages m ON m.folder_id = f.id
		GROUP BY f.id
		ORDER BY f.name
	`)
	if err != nil {
		return nil, s.wrapErr("list folders", err)
	}
	defer rows.Close()

	var out []FolderInfo
	for rows.Next() {
		var fi FolderInfo
		if err := rows.Scan(&fi.ID, &fi.Name, &fi.Capabilities.IsTrash, &fi.Capabilities.IsJunk,
			&fi.Capabilities.SupportsJunk, &fi.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

// Folder is one stored folder. It implements folder.Folder; mutations made
// through it are reported to its subscribers.
type Folder struct {
	store *Store
	id    int64
	name  string
	caps  folder.Capabilities
}

var _ folder.Folder = (*Folder)(nil)

func (f *Folder) Name() string                      { return f.name }
func (f *Folder) Capabilities() folder.Capabilities { return f.caps }

// UIDs returns every UID in order of arrival.
func (f *Folder) UIDs(ctx context.Context) ([]string, error) {
	return f.queryUIDs(ctx, `SELECT uid FROM messages WHERE folder_id = ? ORDER BY id`, f.id)
}

// MessageInfo loads the record for uid.
func (f *Folder) MessageInfo(ctx context.Context, uid string) (*message.Record, error) {
	recs, err := f.store.loadRecords(ctx, f.id, []string{uid})
	if err != nil {
		return nil, f.store.wrapErr("message info "+uid, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", uid, folder.ErrNotFound)
	}
	return recs[0], nil
}

// Records loads the records for uids in one pass. Unknown UIDs are
// skipped.
func (f *Folder) Records(ctx context.Context, uids []string) ([]*message.Record, error) {
	recs, err := f.store.loadRecords(ctx, f.id, uids)
	return recs, f.store.wrapErr("load records", err)
}

// Search runs a search expression as SQL. Criteria SQLite cannot fold
// case for are checked against the loaded records instead.
func (f *Folder) Search(ctx context.Context, expr string) ([]string, error) {
	q, err := search.Parse(expr)
	if err != nil {
		return nil, err
	}
	where, args, recheck := buildSearchWhere(q)
	query := `SELECT m.uid FROM messages m WHERE m.folder_id = ?`
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY m.id"
	uids, err := f.queryUIDs(ctx, query, append([]any{f.id}, args...)...)
	if err != nil || !recheck {
		return uids, err
	}

	recs, err := f.Records(ctx, uids)
	if err != nil {
		return nil, err
	}
	match := make(map[string]bool, len(recs))
	for _, r := range recs {
		match[r.UID] = q.Matches(r)
	}
	uids = slices.DeleteFunc(uids, func(uid string) bool { return !match[uid] })
	if len(uids) == 0 {
		return nil, nil
	}
	return uids, nil
}

// SortUIDs orders by date received, then by UID. UIDs the store does not
// know sort last.
func (f *Folder) SortUIDs(uids []string) {
	received := make(map[string]int64, len(uids))
	err := queryInChunks(f.store.db, uids, []any{f.id},
		`SELECT uid, received_at FROM messages WHERE folder_id = ? AND uid IN (%s)`,
		func(rows *sql.Rows) error {
			var uid string
			var at int64
			if err := rows.Scan(&uid, &at); err != nil {
				return err
			}
			received[uid] = at
			return nil
		})
	if err != nil {
		f.store.logger.Warn("sorting uids", "folder", f.name, "error", err)
	}
	slices.SortStableFunc(uids, func(a, b string) int {
		ra, okA := received[a]
		rb, okB := received[b]
		switch {
		case !okA && !okB:
			return folder.CompareUIDs(a, b)
		case !okA:
			return 1
		case !okB:
			return -1
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return folder.CompareUIDs(a, b)
	})
}

// Subscribe registers fn for changes made through this store.
func (f *Folder) Subscribe(fn func(folder.ChangeInfo)) func() {
	return f.store.subscribe(f.name, fn)
}

func (f *Folder) queryUIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := f.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, f.store.wrapErr("list "+f.name, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
)

// DefaultPollInterval is how often Watch checks the database for commits
// made by other connections.
const DefaultPollInterval = 2 * time.Second

// rowState is the part of a stored message that Rescan compares.
type rowState struct {
	flags    message.Flags
	sent     int64
	received int64
	subject  string
	from     string
	size     int64
}

func stateOf(r *message.Record) rowState {
	return rowState{
		flags:    r.Flags,
		sent:     toNanos(r.DateSent),
		received: toNanos(r.DateReceived),
		subject:  r.Subject,
		from:     r.From,
		size:     r.Size,
	}
}

// Rescan compares the folder's rows with those seen by the previous Rescan
// and reports the difference to subscribers as one change event. Changes
// committed by other processes reach the list this way. The first call
// only records the current rows.
func (f *Folder) Rescan(ctx context.Context) (folder.ChangeInfo, error) {
	rows, err := f.loadStates(ctx)
	if err != nil {
		return folder.ChangeInfo{}, err
	}

	s := f.store
	s.mu.Lock()
	prev, scanned := s.snapshots[f.id]
	s.snapshots[f.id] = rows
	s.mu.Unlock()

	var ci folder.ChangeInfo
	if !scanned {
		return ci, nil
	}
	for uid, st := range rows {
		old, ok := prev[uid]
		switch {
		case !ok:
			ci.Added = append(ci.Added, uid)
		case old != st:
			ci.Changed = append(ci.Changed, uid)
		}
	}
	for uid := range prev {
		if _, ok := rows[uid]; !ok {
			ci.Removed = append(ci.Removed, uid)
		}
	}
	slices.SortFunc(ci.Added, folder.CompareUIDs)
	slices.SortFunc(ci.Removed, folder.CompareUIDs)
	slices.SortFunc(ci.Changed, folder.CompareUIDs)

	if !ci.IsEmpty() {
		s.logger.Debug("sqlite folder rescanned", "folder", f.name,
			"added", len(ci.Added), "removed", len(ci.Removed), "changed", len(ci.Changed))
	}
	s.emit(f.name, ci)
	return ci, nil
}

// Watch polls the database's data_version every interval and rescans the
// folder when another connection has committed. It blocks until ctx is
// done and then returns nil.
func (f *Folder) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	// data_version is per connection, so one connection is held for the
	// whole watch.
	conn, err := f.store.db.Conn(ctx)
	if err != nil {
		return f.store.wrapErr("watch "+f.name, err)
	}
	defer conn.Close()

	version, err := dataVersion(ctx, conn)
	if err != nil {
		return f.store.wrapErr("watch "+f.name, err)
	}
	if _, err := f.Rescan(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v, err := dataVersion(ctx, conn)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				f.store.logger.Warn("sqlite poll failed", "folder", f.name, "error", err)
				continue
			}
			if v == version {
				continue
			}
			version = v
			if _, err := f.Rescan(ctx); err != nil && ctx.Err() == nil {
				f.store.logger.Warn("sqlite rescan failed", "folder", f.name, "error", err)
			}
		}
	}
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

func (f *Folder) loadStates(ctx context.Context) (map[string]rowState, error) {
	rows, err := f.store.db.QueryContext(ctx, `
		SELECT uid, flags, sent_at, received_at, subject, from_addr, size
		FROM messages WHERE folder_id = ?
	`, f.id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, f.store.wrapErr("rescan "+f.name, err)
	}
	defer rows.Close()

	out := make(map[string]rowState)
	for rows.Next() {
		var uid string
		var st rowState
		if err := rows.Scan(&uid, &st.flags, &st.sent, &st.received, &st.subject, &st.from, &st.size); err != nil {
			return nil, err
		}
		out[uid] = st
	}
	return out, rows.Err()
}

// noteRows applies fn to the folder's rescan baseline, if it has one, so
// changes this store already reported are not reported again.
func (s *Store) noteRows(folderID int64, fn func(map[string]rowState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.snapshots[folderID]; ok {
		fn(m)
	}
}

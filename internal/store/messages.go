package store

import (
	"bytes"
	"compress/zlib"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
)

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// loadRecords reads the records for uids of one folder, in the order of
// uids. Unknown UIDs are skipped.
func (s *Store) loadRecords(ctx context.Context, folderID int64, uids []string) ([]*message.Record, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	byUID := make(map[string]*message.Record, len(uids))
	byID := make(map[int64]*message.Record, len(uids))
	var ids []int64

	err := queryInChunks(s.db, uids, []any{folderID}, `
		SELECT id, uid, flags, sent_at, received_at, subject, from_addr, size, message_id, in_reply_to
		FROM messages WHERE folder_id = ? AND uid IN (%s)`,
		func(rows *sql.Rows) error {
			var (
				id             int64
				r              message.Record
				sent, received int64
			)
			if err := rows.Scan(&id, &r.UID, &r.Flags, &sent, &received, &r.Subject, &r.From,
				&r.Size, &r.MessageID, &r.InReplyTo); err != nil {
				return err
			}
			r.DateSent = fromNanos(sent)
			r.DateReceived = fromNanos(received)
			byUID[r.UID] = &r
			byID[id] = &r
			ids = append(ids, id)
			return nil
		})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = queryInChunks(s.db, ids, nil,
		`SELECT message_id, addr FROM message_recipients WHERE message_id IN (%s) ORDER BY message_id, position`,
		func(rows *sql.Rows) error {
			var id int64
			var addr string
			if err := rows.Scan(&id, &addr); err != nil {
				return err
			}
			byID[id].To = append(byID[id].To, addr)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	err = queryInChunks(s.db, ids, nil,
		`SELECT message_id, ref FROM message_references WHERE message_id IN (%s) ORDER BY message_id, position`,
		func(rows *sql.Rows) error {
			var id int64
			var ref string
			if err := rows.Scan(&id, &ref); err != nil {
				return err
			}
			byID[id].References = append(byID[id].References, ref)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("load references: %w", err)
	}

	err = queryInChunks(s.db, ids, nil,
		`SELECT message_id, name, value FROM message_tags WHERE message_id IN (%s)`,
		func(rows *sql.Rows) error {
			var id int64
			var name, value string
			if err := rows.Scan(&id, &name, &value); err != nil {
				return err
			}
			r := byID[id]
			if r.Tags == nil {
				r.Tags = make(map[string]string)
			}
			r.Tags[name] = value
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	out := make([]*message.Record, 0, len(byUID))
	for _, uid := range uids {
		if r, ok := byUID[uid]; ok {
			out = append(out, r)
			delete(byUID, uid)
		}
	}
	return out, nil
}

// Upsert inserts or replaces records and reports one change event.
func (f *Folder) Upsert(recs ...*message.Record) error {
	var ci folder.ChangeInfo
	err := f.store.withTx(func(tx *sql.Tx) error {
		for _, r := range recs {
			existed, err := upsertRecord(tx, f.id, r)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", r.UID, err)
			}
			if existed {
				ci.Changed = append(ci.Changed, r.UID)
			} else {
				ci.Added = append(ci.Added, r.UID)
			}
		}
		return nil
	})
	if err != nil {
		return f.store.wrapErr("upsert", err)
	}
	f.store.noteRows(f.id, func(m map[string]rowState) {
		for _, r := range recs {
			m[r.UID] = stateOf(r)
		}
	})
	f.store.emit(f.name, ci)
	return nil
}

func upsertRecord(tx *sql.Tx, folderID int64, r *message.Record) (existed bool, err error) {
	var id int64
	err = tx.QueryRow(`SELECT id FROM messages WHERE folder_id = ? AND uid = ?`, folderID, r.UID).Scan(&id)
	switch {
	case err == nil:
		existed = true
		_, err = tx.Exec(`
			UPDATE messages SET flags = ?, sent_at = ?, received_at = ?, subject = ?,
				from_addr = ?, size = ?, message_id = ?, in_reply_to = ?
			WHERE id = ?
		`, r.Flags, toNanos(r.DateSent), toNanos(r.DateReceived), r.Subject, r.From, r.Size,
			r.MessageID, r.InReplyTo, id)
	case errors.Is(err, sql.ErrNoRows):
		var res sql.Result
		res, err = tx.Exec(`
			INSERT INTO messages (folder_id, uid, flags, sent_at, received_at, subject,
				from_addr, size, message_id, in_reply_to)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, folderID, r.UID, r.Flags, toNanos(r.DateSent), toNanos(r.DateReceived), r.Subject,
			r.From, r.Size, r.MessageID, r.InReplyTo)
		if err == nil {
			id, err = res.LastInsertId()
		}
	}
	if err != nil {
		return false, err
	}

	for _, table := range []string{"message_recipients", "message_references", "message_tags"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE message_id = ?`, id); err != nil {
			return false, err
		}
	}
	for i, addr := range r.To {
		if _, err := tx.Exec(`INSERT INTO message_recipients (message_id, position, addr) VALUES (?, ?, ?)`,
			id, i, addr); err != nil {
			return false, err
		}
	}
	for i, ref := range r.References {
		if _, err := tx.Exec(`INSERT INTO message_references (message_id, position, ref) VALUES (?, ?, ?)`,
			id, i, ref); err != nil {
			return false, err
		}
	}
	for name, value := range r.Tags {
		if _, err := tx.Exec(`INSERT INTO message_tags (message_id, name, value) VALUES (?, ?, ?)`,
			id, name, value); err != nil {
			return false, err
		}
	}
	return existed, nil
}

// Remove deletes messages by UID and reports one change event.
func (f *Folder) Remove(uids ...string) error {
	var ci folder.ChangeInfo
	err := f.store.withTx(func(tx *sql.Tx) error {
		for _, uid := range uids {
			res, err := tx.Exec(`DELETE FROM messages WHERE folder_id = ? AND uid = ?`, f.id, uid)
			if err != nil {
				return fmt.Errorf("remove %s: %w", uid, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				ci.Removed = append(ci.Removed, uid)
			}
		}
		return nil
	})
	if err != nil {
		return f.store.wrapErr("remove", err)
	}
	f.store.noteRows(f.id, func(m map[string]rowState) {
		for _, uid := range ci.Removed {
			delete(m, uid)
		}
	})
	f.store.emit(f.name, ci)
	return nil
}

// SetFlags sets the bits in set and clears those in clear for uid.
func (f *Folder) SetFlags(uid string, set, clear message.Flags) error {
	res, err := f.store.db.Exec(`
		UPDATE messages SET flags = (flags & ~?) | ?
		WHERE folder_id = ? AND uid = ? AND flags != ((flags & ~?) | ?)
	`, clear, set, f.id, uid, clear, set)
	if err != nil {
		return f.store.wrapErr("set flags "+uid, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		f.store.noteRows(f.id, func(m map[string]rowState) {
			if st, ok := m[uid]; ok {
				st.flags = (st.flags &^ clear) | set
				m[uid] = st
			}
		})
		f.store.emit(f.name, folder.ChangeInfo{Changed: []string{uid}})
		return nil
	}
	var exists bool
	if err := f.store.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM messages WHERE folder_id = ? AND uid = ?)`,
		f.id, uid).Scan(&exists); err != nil {
		return f.store.wrapErr("set flags "+uid, err)
	}
	if !exists {
		return fmt.Errorf("set flags %s: %w", uid, folder.ErrNotFound)
	}
	return nil
}

// SetRaw stores the compressed raw MIME source of uid.
func (f *Folder) SetRaw(uid string, raw []byte) error {
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	res, err := f.store.db.Exec(`
		INSERT INTO message_raw (message_id, raw_data, compression)
		SELECT id, ?, 'zlib' FROM messages WHERE folder_id = ? AND uid = ?
		ON CONFLICT(message_id) DO UPDATE SET
			raw_data = excluded.raw_data,
			compression = excluded.compression
	`, compressed.Bytes(), f.id, uid)
	if err != nil {
		return f.store.wrapErr("store raw "+uid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store raw %s: %w", uid, folder.ErrNotFound)
	}
	return nil
}

// Raw returns the decompressed raw MIME source of uid.
func (f *Folder) Raw(uid string) ([]byte, error) {
	var data []byte
	var compression sql.NullString
	err := f.store.db.QueryRow(`
		SELECT r.raw_data, r.compression FROM message_raw r
		JOIN messages m ON m.id = r.message_id
		WHERE m.folder_id = ? AND m.uid = ?
	`, f.id, uid).Scan(&data, &compression)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw %s: %w", uid, folder.ErrNotFound)
	}
	if err != nil {
		return nil, f.store.wrapErr("raw "+uid, err)
	}
	if compression.Valid && compression.String == "zlib" {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return data, nil
}

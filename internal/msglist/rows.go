package msglist

import (
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/tree"
)

// Row is one visible line of the list.
type Row struct {
	UID         string
	Record      *message.Record
	Depth       int
	Group       string
	HasChildren bool
	Expanded    bool
	Selected    bool
	Cursor      bool
}

// Rows returns the visible rows in display order.
func (l *List) Rows() []Row {
	ids := l.arena.Rows()
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		uid := l.arena.SaveID(id)
		_, sel := l.selected[uid]
		rows = append(rows, Row{
			UID:         uid,
			Record:      l.arena.Record(id),
			Depth:       l.arena.Depth(id) - 1,
			Group:       l.arena.Group(id),
			HasChildren: l.arena.FirstChild(id) != tree.None,
			Expanded:    l.arena.IsExpanded(id),
			Selected:    sel,
			Cursor:      uid == l.cursor,
		})
	}
	return rows
}

// VisibleUIDs returns the UIDs of the visible rows in display order.
func (l *List) VisibleUIDs() []string {
	ids := l.arena.Rows()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = l.arena.SaveID(id)
	}
	return out
}

// UIDs returns every UID in the list in document order, including those
// inside collapsed threads.
func (l *List) UIDs() []string {
	out := make([]string, 0, l.index.Len())
	l.arena.Walk(func(id tree.NodeID) bool {
		out = append(out, l.arena.SaveID(id))
		return true
	})
	return out
}

// Count returns the number of messages in the list.
func (l *List) Count() int { return l.index.Len() }

// ContainsUID reports whether uid is in the list.
func (l *List) ContainsUID(uid string) bool { return l.index.Contains(uid) }

// Record returns the record shown for uid, or nil.
func (l *List) Record(uid string) *message.Record {
	id, ok := l.node(uid)
	if !ok {
		return nil
	}
	return l.arena.Record(id)
}

// RowOf returns the visible row of uid, or -1.
func (l *List) RowOf(uid string) int {
	id, ok := l.node(uid)
	if !ok {
		return -1
	}
	return l.arena.RowOf(id)
}

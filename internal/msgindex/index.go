// Package msgindex maps message UIDs to their node in the message-list
// tree and tracks the selection fallbacks derived while inserting.
package msgindex

import (
	"time"

	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/tree"
)

type entry struct {
	node tree.NodeID
	rec  *message.Record
}

type tracked struct {
	uid  string
	date time.Time
}

// Index is the UID to node mapping. Callers pair every arena insert and
// remove with the matching Index call.
type Index struct {
	entries map[string]entry

	newestRead   tracked
	oldestUnread tracked
}

// New returns an empty index.
func New() *Index {
	return &Index{entries: make(map[string]entry)}
}

// Insert records that rec lives at node. Re-inserting a UID replaces the
// previous entry.
func (x *Index) Insert(rec *message.Record, node tree.NodeID) {
	x.entries[rec.UID] = entry{node: node, rec: rec}

	date := rec.DateReceived
	if rec.Seen() {
		if x.newestRead.uid == "" || date.After(x.newestRead.date) {
			x.newestRead = tracked{uid: rec.UID, date: date}
		}
		return
	}
	if x.oldestUnread.uid == "" || date.Before(x.oldestUnread.date) {
		x.oldestUnread = tracked{uid: rec.UID, date: date}
	}
}

// Lookup returns the node holding uid.
func (x *Index) Lookup(uid string) (tree.NodeID, bool) {
	e, ok := x.entries[uid]
	if !ok {
		return tree.None, false
	}
	return e.node, true
}

// Record returns the record the index saw for uid at insert time.
func (x *Index) Record(uid string) *message.Record {
	return x.entries[uid].rec
}

// Update replaces the stored record of uid without moving it.
func (x *Index) Update(rec *message.Record) {
	if e, ok := x.entries[rec.UID]; ok {
		e.rec = rec
		x.entries[rec.UID] = e
	}
}

// Remove drops uid. A tracked fallback naming uid is forgotten rather than
// recomputed.
func (x *Index) Remove(uid string) {
	delete(x.entries, uid)
	if x.newestRead.uid == uid {
		x.newestRead = tracked{}
	}
	if x.oldestUnread.uid == uid {
		x.oldestUnread = tracked{}
	}
}

// Contains reports whether uid is indexed.
func (x *Index) Contains(uid string) bool {
	_, ok := x.entries[uid]
	return ok
}

// Len returns the number of indexed UIDs.
func (x *Index) Len() int { return len(x.entries) }

// Clear drops every entry and both fallbacks.
func (x *Index) Clear() {
	clear(x.entries)
	x.newestRead = tracked{}
	x.oldestUnread = tracked{}
}

// OldestUnread returns the UID of the unread message with the earliest
// received date seen since the last Clear.
func (x *Index) OldestUnread() (string, bool) {
	return x.oldestUnread.uid, x.oldestUnread.uid != ""
}

// NewestRead returns the UID of the read message with the latest received
// date seen since the last Clear.
func (x *Index) NewestRead() (string, bool) {
	return x.newestRead.uid, x.newestRead.uid != ""
}

// Each calls fn for every indexed UID in unspecified order.
func (x *Index) Each(fn func(uid string, node tree.NodeID)) {
	for uid, e := range x.entries {
		fn(uid, e.node)
	}
}

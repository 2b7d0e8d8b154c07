// Package tree implements the message-list node arena: a tree of nodes
// addressed by integer handles, with O(1) tail insertion and batched change
// notification.
package tree

import (
	"github.com/wesm/msglist/internal/message"
)

// NodeID addresses a node in an Arena. IDs are reused after removal, so a
// stale ID must not be dereferenced once its node was removed.
type NodeID int32

// None is the null node handle.
const None NodeID = -1

// Append as an insert position adds the node after the last child.
const Append = -1

// RootSaveID is the save-id of the synthetic root node.
const RootSaveID = "root"

type node struct {
	rec        *message.Record
	group      string
	parent     NodeID
	firstChild NodeID
	lastChild  NodeID
	prev, next NodeID
	children   int
	expanded   int8 // 0 = default, 1 = expanded, -1 = collapsed
	live       bool
}

// Arena owns every node of one message-list tree. It is not safe for
// concurrent use; the message list touches it only from its owner goroutine.
type Arena struct {
	nodes []node
	free  []NodeID
	root  NodeID
	count int // live nodes excluding root

	defaultExpanded bool
	forcedExpand    int8

	frozen       int
	dirty        bool
	observers    []registration
	nextObserver int
}

// New returns an arena holding only a root node.
func New() *Arena {
	a := &Arena{defaultExpanded: true}
	a.root = a.alloc(nil)
	return a
}

func (a *Arena) alloc(rec *message.Record) NodeID {
	n := node{
		rec:        rec,
		parent:     None,
		firstChild: None,
		lastChild:  None,
		prev:       None,
		next:       None,
		live:       true,
	}
	if k := len(a.free); k > 0 {
		id := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[id] = n
		return id
	}
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}

func (a *Arena) at(id NodeID) *node {
	if id < 0 || int(id) >= len(a.nodes) || !a.nodes[id].live {
		return nil
	}
	return &a.nodes[id]
}

// Root returns the synthetic root node.
func (a *Arena) Root() NodeID { return a.root }

// Len returns the number of live nodes, root excluded.
func (a *Arena) Len() int { return a.count }

// Valid reports whether id names a live node.
func (a *Arena) Valid(id NodeID) bool { return a.at(id) != nil }

// Clear drops every node and starts a fresh root. Observers see a single
// structure rebuild.
func (a *Arena) Clear() {
	a.nodes = a.nodes[:0]
	a.free = a.free[:0]
	a.count = 0
	a.root = a.alloc(nil)
	a.rebuilt()
}

// Insert adds a node for rec under parent. position Append (or any
// negative value) inserts after the last child in O(1); a non-negative
// position inserts before the position-th child, or appends when the
// parent has fewer children.
func (a *Arena) Insert(parent NodeID, position int, rec *message.Record) NodeID {
	if a.at(parent) == nil {
		parent = a.root
	}
	id := a.alloc(rec)
	p := &a.nodes[parent]

	sibling := None
	if position >= 0 && position < p.children {
		sibling = p.firstChild
		for i := 0; i < position; i++ {
			sibling = a.nodes[sibling].next
		}
	}

	n := &a.nodes[id]
	n.parent = parent
	if sibling == None {
		pos := p.children
		n.prev = p.lastChild
		if p.lastChild != None {
			a.nodes[p.lastChild].next = id
		} else {
			p.firstChild = id
		}
		p.lastChild = id
		position = pos
	} else {
		n.next = sibling
		n.prev = a.nodes[sibling].prev
		if n.prev != None {
			a.nodes[n.prev].next = id
		} else {
			p.firstChild = id
		}
		a.nodes[sibling].prev = id
	}
	p.children++
	a.count++

	a.notify(func(o Observer) { o.NodeInserted(parent, id, position) })
	return id
}

// Remove unlinks id and frees its whole subtree. visit, when non-nil, is
// called for every removed node (children before parents) while its record
// is still readable.
func (a *Arena) Remove(id NodeID, visit func(NodeID, *message.Record)) {
	n := a.at(id)
	if n == nil || id == a.root {
		return
	}
	parent := n.parent
	oldPos := -1
	if a.frozen == 0 && len(a.observers) > 0 {
		oldPos = a.positionOf(id)
	}

	p := &a.nodes[parent]
	if n.prev != None {
		a.nodes[n.prev].next = n.next
	} else {
		p.firstChild = n.next
	}
	if n.next != None {
		a.nodes[n.next].prev = n.prev
	} else {
		p.lastChild = n.prev
	}
	p.children--

	a.freeSubtree(id, visit)
	a.notify(func(o Observer) { o.NodeRemoved(parent, id, oldPos) })
}

func (a *Arena) freeSubtree(id NodeID, visit func(NodeID, *message.Record)) {
	for c := a.nodes[id].firstChild; c != None; {
		next := a.nodes[c].next
		a.freeSubtree(c, visit)
		c = next
	}
	if visit != nil {
		visit(id, a.nodes[id].rec)
	}
	a.nodes[id] = node{parent: None, firstChild: None, lastChild: None, prev: None, next: None}
	a.free = append(a.free, id)
	a.count--
}

func (a *Arena) positionOf(id NodeID) int {
	pos := 0
	for s := a.nodes[id].prev; s != None; s = a.nodes[s].prev {
		pos++
	}
	return pos
}

// Record returns the message record held by id, or nil for the root.
func (a *Arena) Record(id NodeID) *message.Record {
	if n := a.at(id); n != nil {
		return n.rec
	}
	return nil
}

// SetRecord replaces the record held by id and reports a data change.
func (a *Arena) SetRecord(id NodeID, rec *message.Record) {
	n := a.at(id)
	if n == nil || id == a.root {
		return
	}
	n.rec = rec
	a.DataChanged(id)
}

// DataChanged notifies observers that the row for id must be redrawn.
func (a *Arena) DataChanged(id NodeID) {
	if a.at(id) == nil {
		return
	}
	a.notify(func(o Observer) { o.NodeDataChanged(id) })
}

// Group returns the thread group key of id.
func (a *Arena) Group(id NodeID) string {
	if n := a.at(id); n != nil {
		return n.group
	}
	return ""
}

// SetGroup sets the thread group key of id. Flat thread views use it to
// keep replies logically grouped without nesting them.
func (a *Arena) SetGroup(id NodeID, group string) {
	if n := a.at(id); n != nil {
		n.group = group
	}
}

// SaveID returns the stable key used to persist per-node state.
func (a *Arena) SaveID(id NodeID) string {
	if id == a.root {
		return RootSaveID
	}
	if r := a.Record(id); r != nil {
		return r.UID
	}
	return ""
}

func (a *Arena) Parent(id NodeID) NodeID {
	if n := a.at(id); n != nil {
		return n.parent
	}
	return None
}

func (a *Arena) FirstChild(id NodeID) NodeID {
	if n := a.at(id); n != nil {
		return n.firstChild
	}
	return None
}

func (a *Arena) LastChild(id NodeID) NodeID {
	if n := a.at(id); n != nil {
		return n.lastChild
	}
	return None
}

func (a *Arena) NextSibling(id NodeID) NodeID {
	if n := a.at(id); n != nil {
		return n.next
	}
	return None
}

func (a *Arena) PrevSibling(id NodeID) NodeID {
	if n := a.at(id); n != nil {
		return n.prev
	}
	return None
}

// ChildCount returns the number of direct children of id.
func (a *Arena) ChildCount(id NodeID) int {
	if n := a.at(id); n != nil {
		return n.children
	}
	return 0
}

// Depth returns the number of edges between id and the root.
func (a *Arena) Depth(id NodeID) int {
	d := 0
	for n := a.at(id); n != nil && n.parent != None; n = a.at(n.parent) {
		d++
	}
	return d
}

// SubtreeSize counts id and all of its descendants.
func (a *Arena) SubtreeSize(id NodeID) int {
	if a.at(id) == nil {
		return 0
	}
	size := 1
	for c := a.nodes[id].firstChild; c != None; c = a.nodes[c].next {
		size += a.SubtreeSize(c)
	}
	return size
}

// Next returns the document-order successor of id inside the subtree of
// top, or None when id is the last node of that subtree.
func (a *Arena) Next(id, top NodeID) NodeID {
	if c := a.FirstChild(id); c != None {
		return c
	}
	for id != None && id != top {
		if s := a.NextSibling(id); s != None {
			return s
		}
		id = a.Parent(id)
	}
	return None
}

// Prev returns the document-order predecessor of id inside the subtree of
// top, or None when id is top.
func (a *Arena) Prev(id, top NodeID) NodeID {
	if id == top {
		return None
	}
	s := a.PrevSibling(id)
	if s == None {
		return a.Parent(id)
	}
	return a.lastDescendant(s)
}

func (a *Arena) lastDescendant(id NodeID) NodeID {
	for c := a.LastChild(id); c != None; c = a.LastChild(id) {
		id = c
	}
	return id
}

// Walk visits every node below the root in document order. Returning false
// from fn stops the walk.
func (a *Arena) Walk(fn func(NodeID) bool) {
	for id := a.Next(a.root, a.root); id != None; id = a.Next(id, a.root) {
		if !fn(id) {
			return
		}
	}
}

// WalkReverse visits every node below the root in reverse document order.
func (a *Arena) WalkReverse(fn func(NodeID) bool) {
	last := a.lastDescendant(a.root)
	for id := last; id != None && id != a.root; id = a.Prev(id, a.root) {
		if !fn(id) {
			return
		}
	}
}

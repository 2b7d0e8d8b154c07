package msglist

import (
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/thread"
	"github.com/wesm/msglist/internal/tree"
)

// The arena and the index change together only through insertNode and
// clearTree, so a UID is indexed exactly when its node is in the tree.

func (l *List) insertNode(parent tree.NodeID, rec *message.Record, group string) tree.NodeID {
	id := l.arena.Insert(parent, tree.Append, rec)
	l.arena.SetGroup(id, group)
	l.index.Insert(rec, id)
	return id
}

func (l *List) insertForest(res *thread.Result) {
	var insert func(parent tree.NodeID, nodes []*thread.Node)
	insert = func(parent tree.NodeID, nodes []*thread.Node) {
		for _, n := range nodes {
			id := l.insertNode(parent, n.Record, n.Group)
			insert(id, n.Children)
		}
	}
	insert(l.arena.Root(), res.Roots)
}

func (l *List) node(uid string) (tree.NodeID, bool) {
	if uid == "" {
		return tree.None, false
	}
	return l.index.Lookup(uid)
}

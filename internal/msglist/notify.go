package msglist

import (
	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/tree"
)

// Visibility returns the hide policy of the current view.
func (l *List) Visibility() folder.Visibility {
	var caps folder.Capabilities
	if l.folder != nil {
		caps = l.folder.Capabilities()
	}
	return folder.PolicyFor(caps, l.opts.ShowDeleted, l.opts.ShowJunk)
}

// ApplyChanged replaces the records of rows already in the list and
// redraws them together with the collapsed thread root that shows them.
func (l *List) ApplyChanged(recs []*message.Record) {
	for _, rec := range recs {
		id, ok := l.node(rec.UID)
		if !ok {
			continue
		}
		l.index.Update(rec)
		l.arena.SetRecord(id, rec)
		if anc := l.arena.OutermostCollapsedAncestor(id); anc != tree.None {
			l.arena.DataChanged(anc)
		}
	}
	l.arena.NotifyListBuilt()
}

// TakeFirstChange reports whether no folder change was handled since the
// folder was set.
func (l *List) TakeFirstChange() bool {
	first := l.firstChange
	l.firstChange = false
	return first
}

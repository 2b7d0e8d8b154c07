package msglist

import (
	"github.com/wesm/msglist/internal/regen"
	"github.com/wesm/msglist/internal/tree"
)

// Cursor returns the UID under the cursor, or "".
func (l *List) Cursor() string { return l.cursor }

// Selected returns the selected UIDs in display order.
func (l *List) Selected() []string {
	if len(l.selected) == 0 {
		return nil
	}
	out := make([]string, 0, len(l.selected))
	l.arena.Walk(func(id tree.NodeID) bool {
		if _, ok := l.selected[l.arena.SaveID(id)]; ok {
			out = append(out, l.arena.SaveID(id))
		}
		return len(out) < len(l.selected)
	})
	return out
}

// IsSelected reports whether uid is selected.
func (l *List) IsSelected(uid string) bool {
	_, ok := l.selected[uid]
	return ok
}

// SetCursor moves the cursor to uid and makes it the only selected
// message. It reports false when uid is not in the list. A rebuild in
// flight restores the new cursor like any other, so a uid the rebuild
// drops falls back to its neighbours.
func (l *List) SetCursor(uid string) bool {
	if _, ok := l.node(uid); !ok {
		return false
	}
	l.cursor = uid
	clear(l.selected)
	l.selected[uid] = struct{}{}
	l.revealCursor()

	// A cursor move overrides select directives issued before it.
	if l.deferred != nil {
		l.deferred.Select = regen.Select{}
	}
	if l.coord.Amend(func(r *regen.Request) { r.Select = regen.Select{} }) {
		l.cursorMoved = true
	}
	return true
}

// SelectUID selects uid. With fallback, a missing uid selects the oldest
// unread message, then the newest read one. While a rebuild is in flight
// the directive is applied when it lands.
func (l *List) SelectUID(uid string, fallback bool) {
	sel := regen.Select{Kind: regen.SelectUID, UID: uid, Fallback: fallback}
	if l.amendOrDefer(sel) {
		return
	}
	clear(l.selected)
	l.cursor = ""
	l.selectDirectUID(uid, fallback)
	l.revealCursor()
}

// SelectAll selects every visible message.
func (l *List) SelectAll() {
	if l.amendOrDefer(regen.Select{Kind: regen.SelectAll}) {
		return
	}
	l.selectAllRows()
	if l.cursor == "" {
		if id := l.arena.NodeAtRow(0); id != tree.None {
			l.cursor = l.arena.SaveID(id)
		}
	}
}

// SelectFirstUnread moves the cursor to the first unread message.
func (l *List) SelectFirstUnread() {
	if l.amendOrDefer(regen.Select{Kind: regen.SelectFirstUnread}) {
		return
	}
	clear(l.selected)
	l.cursor = ""
	l.selectFirstUnread()
	l.revealCursor()
}

// Select adds uid to the selection without moving the cursor.
func (l *List) Select(uid string) bool {
	if !l.index.Contains(uid) {
		return false
	}
	l.selected[uid] = struct{}{}
	return true
}

// SelectThread adds every message of the cursor's thread to the selection.
func (l *List) SelectThread() {
	id, ok := l.node(l.cursor)
	if !ok {
		return
	}
	group := l.arena.Group(id)
	if group == "" {
		l.selected[l.cursor] = struct{}{}
		return
	}
	l.arena.Walk(func(n tree.NodeID) bool {
		if l.arena.Group(n) == group {
			l.selected[l.arena.SaveID(n)] = struct{}{}
		}
		return true
	})
}

// ClearSelection empties the selection and keeps the cursor.
func (l *List) ClearSelection() {
	clear(l.selected)
}

// SetExpanded expands or collapses the thread rooted at uid.
func (l *List) SetExpanded(uid string, expanded bool) {
	id, ok := l.node(uid)
	if !ok || (l.arena.IsExpanded(id) == expanded && l.arena.HasExplicitExpansion(id)) {
		return
	}
	l.arena.SetExpanded(id, expanded)
	l.dirty = true
	l.revealCursor()
}

// IsExpanded reports whether the thread rooted at uid is expanded.
func (l *List) IsExpanded(uid string) bool {
	id, ok := l.node(uid)
	return ok && l.arena.IsExpanded(id)
}

// ExpandAll rebuilds with every thread expanded and saves that state.
func (l *List) ExpandAll() {
	l.Regen(regen.Request{ForceExpand: regen.ExpandAll})
}

// CollapseAll rebuilds with every thread collapsed and saves that state.
func (l *List) CollapseAll() {
	l.Regen(regen.Request{ForceExpand: regen.CollapseAll})
}

// amendOrDefer hands sel to a rebuild that has not landed yet. It reports
// false when nothing is pending and the selection must be applied now.
func (l *List) amendOrDefer(sel regen.Select) bool {
	if l.deferred != nil {
		l.deferred.Select = sel
		return true
	}
	return l.coord.Amend(func(r *regen.Request) { r.Select = sel })
}

func (l *List) selectAllRows() {
	for _, id := range l.arena.Rows() {
		l.selected[l.arena.SaveID(id)] = struct{}{}
	}
}

func (l *List) selectDirectUID(uid string, fallback bool) {
	if !l.index.Contains(uid) && fallback {
		if u, ok := l.index.OldestUnread(); ok {
			uid = u
		} else if u, ok := l.index.NewestRead(); ok {
			uid = u
		}
	}
	if l.index.Contains(uid) {
		l.cursor = uid
		l.selected[uid] = struct{}{}
	}
}

func (l *List) selectFirstUnread() {
	l.arena.Walk(func(id tree.NodeID) bool {
		if r := l.arena.Record(id); r != nil && !r.Seen() {
			l.cursor = r.UID
			l.selected[r.UID] = struct{}{}
			return false
		}
		return true
	})
}

// revealCursor moves a cursor hidden in a collapsed thread to the
// collapsed thread's root and records its row.
func (l *List) revealCursor() {
	id, ok := l.node(l.cursor)
	if !ok {
		l.cursor = ""
		l.lastRow = -1
		return
	}
	if anc := l.arena.OutermostCollapsedAncestor(id); anc != tree.None {
		uid := l.arena.SaveID(anc)
		if _, only := l.selected[l.cursor]; only && len(l.selected) == 1 {
			clear(l.selected)
			l.selected[uid] = struct{}{}
		}
		l.cursor = uid
		id = anc
	}
	l.lastRow = l.arena.RowOf(id)
}

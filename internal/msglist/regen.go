package msglist

import (
	"context"
	"errors"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/regen"
	"github.com/wesm/msglist/internal/search"
	"github.com/wesm/msglist/internal/thread"
	"github.com/wesm/msglist/internal/tree"
	"github.com/wesm/msglist/internal/viewstate"
)

// snapshot is what a rebuild captured on the owner goroutine when it
// started.
type snapshot struct {
	folder     folder.Folder
	opts       ViewOptions
	search     string
	prevSearch string
	firstBuild bool
	state      viewstate.State
	// candidates are cursor fallbacks taken from the old tree.
	candidates []string
}

type outcome struct {
	snap   *snapshot
	result *thread.Result
}

func (l *List) startRegen(req *regen.Request) regen.Work[*outcome] {
	if l.folder == nil {
		return nil
	}
	snap := &snapshot{
		folder:     l.folder,
		opts:       l.opts,
		search:     l.search,
		prevSearch: l.shownSearch,
		firstBuild: l.folderJustSet,
		state:      l.captureState(req),
	}
	snap.candidates = l.cursorCandidates(snap, req.Removed)
	l.cursorMoved = false

	// Expand changes made by the user since the last build go to disk
	// before the tree is replaced.
	if l.dirty {
		l.saveExpandState()
		l.dirty = false
	}

	in := thread.Input{
		Folder:  l.folder,
		Search:  snap.search,
		Options: snap.opts.threadOptions(),
	}
	if req.FolderChanged || snap.firstBuild {
		in.ForceInclude = l.cursor
	}
	b := l.builder
	return func(ctx context.Context) (*outcome, error) {
		res, err := b.Build(ctx, in)
		if err != nil {
			return nil, err
		}
		return &outcome{snap: snap, result: res}, nil
	}
}

func (l *List) captureState(req *regen.Request) viewstate.State {
	st := viewstate.State{
		CursorUID: l.cursor,
		CursorRow: l.lastRow,
		Selected:  l.Selected(),
		Dirty:     l.dirty,
	}
	if id, ok := l.node(l.cursor); ok {
		if row := l.arena.RowOf(id); row >= 0 {
			st.CursorRow = row
		}
	}
	if l.opts.GroupByThreads && req.ForceExpand == regen.ExpandKeep && !l.folderJustSet {
		st.Expand = viewstate.CaptureExpand(l.arena)
	}
	return st
}

func (l *List) cursorCandidates(snap *snapshot, removed []string) []string {
	id, ok := l.node(snap.state.CursorUID)
	if !ok {
		return nil
	}
	row := l.arena.RowOf(id)
	if row < 0 {
		return nil
	}
	gone := make(map[string]struct{}, len(removed))
	for _, uid := range removed {
		gone[uid] = struct{}{}
	}
	policy := folder.PolicyFor(snap.folder.Capabilities(), snap.opts.ShowDeleted, snap.opts.ShowJunk)
	return viewstate.CursorCandidates(l.VisibleUIDs(), row, snap.opts.DeleteSelectsPrevious, func(uid string) bool {
		if _, ok := gone[uid]; ok {
			return true
		}
		rec := l.index.Record(uid)
		return rec == nil || !policy.Selectable(rec)
	})
}

func (l *List) completeRegen(req *regen.Request, out *outcome) {
	if out == nil || out.snap.folder != l.folder {
		return
	}
	snap := out.snap
	if l.cursorMoved {
		snap = l.recaptureCursor(req, snap)
		l.cursorMoved = false
	}

	l.arena.Freeze()
	l.clearTree()
	l.arena.SetDefaultExpanded(snap.opts.ExpandedDefault)
	l.insertForest(out.result)
	l.restoreExpand(req, snap)
	l.restoreSelection(req, snap)
	l.shownSearch = snap.search
	l.folderJustSet = false

	switch {
	case l.index.Len() > 0:
		l.info = ""
	case snap.search != "":
		l.info = InfoNoMatch
	default:
		l.info = InfoEmptyFolder
	}

	if req.ForceExpand != regen.ExpandKeep {
		l.saveExpandState()
	}
	l.arena.Thaw()
	l.arena.NotifyListBuilt()

	l.logger.Debug("message list rebuilt",
		"folder", snap.folder.Name(),
		"messages", l.index.Len(),
		"cursor", l.cursor,
		"selected", len(l.selected))
}

// recaptureCursor returns snap with the cursor and selection taken from
// the tree that is about to be replaced.
func (l *List) recaptureCursor(req *regen.Request, snap *snapshot) *snapshot {
	s := *snap
	s.state.CursorUID = l.cursor
	s.state.CursorRow = l.lastRow
	s.state.Selected = l.Selected()
	s.candidates = l.cursorCandidates(&s, req.Removed)
	return &s
}

func (l *List) restoreExpand(req *regen.Request, snap *snapshot) {
	switch {
	case req.ForceExpand != regen.ExpandKeep:
		expand := req.ForceExpand > 0
		l.arena.Walk(func(id tree.NodeID) bool {
			if l.arena.FirstChild(id) != tree.None {
				l.arena.SetExpanded(id, expand)
			}
			return true
		})
	case snap.firstBuild || (snap.prevSearch != "" && snap.search == ""):
		viewstate.ApplyExpand(l.arena, l.loadExpandState(), l.index.Lookup)
	case snap.search != "" && snap.search != snap.prevSearch:
		// A new search starts from per-node defaults.
	default:
		viewstate.ApplyExpand(l.arena, snap.state.Expand, l.index.Lookup)
	}
}

func (l *List) restoreSelection(req *regen.Request, snap *snapshot) {
	clear(l.selected)
	l.cursor = ""

	switch sel := req.Select; sel.Kind {
	case regen.SelectAll:
		l.selectAllRows()
		if l.index.Contains(snap.state.CursorUID) {
			l.cursor = snap.state.CursorUID
		} else if id := l.arena.NodeAtRow(0); id != tree.None {
			l.cursor = l.arena.SaveID(id)
		}
	case regen.SelectUID:
		l.selectDirectUID(sel.UID, sel.Fallback)
	case regen.SelectFirstUnread:
		l.selectFirstUnread()
	default:
		l.restoreCursor(snap)
		for _, uid := range snap.state.Selected {
			if l.index.Contains(uid) {
				l.selected[uid] = struct{}{}
			}
		}
		if len(l.selected) == 0 && l.cursor != "" {
			l.selected[l.cursor] = struct{}{}
		}
	}
	l.revealCursor()
}

func (l *List) restoreCursor(snap *snapshot) {
	prev := snap.state.CursorUID
	if prev == "" {
		return
	}
	if l.index.Contains(prev) {
		l.cursor = prev
		return
	}
	for _, uid := range snap.candidates {
		if l.index.Contains(uid) {
			l.cursor = uid
			return
		}
	}
	if row := viewstate.ClampRow(snap.state.CursorRow, l.arena.RowCount()); row >= 0 {
		l.cursor = l.arena.SaveID(l.arena.NodeAtRow(row))
	}
}

func (l *List) failRegen(_ *regen.Request, err error) {
	l.cursorMoved = false
	if errors.Is(err, search.ErrInvalidExpression) {
		l.search = l.shownSearch
	}
	if isUnavailable(err) {
		clear(l.selected)
		l.cursor = ""
		l.lastRow = -1
	}
	l.reportError(err)
}

// Package viewstate captures and restores what the user sees across a
// message-list rebuild: cursor, selection and thread expand state. Expand
// state is also persisted per folder.
package viewstate

import (
	"github.com/wesm/msglist/internal/tree"
)

// State is the user-visible state captured before a rebuild.
type State struct {
	CursorUID string
	CursorRow int // -1 when there was no cursor row
	Selected  []string
	Expand    *ExpandState // nil when not captured
	// Dirty is set when the user changed rows since the last rebuild.
	Dirty bool
}

// ExpandState is a saved tree of expand markers keyed by save-id. The top
// node has id tree.RootSaveID and records the default expansion.
type ExpandState struct {
	ID       string         `plist:"id"`
	Expanded bool           `plist:"expanded"`
	Children []*ExpandState `plist:"children,omitempty"`
}

// Len counts the saved nodes, root excluded.
func (e *ExpandState) Len() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, c := range e.Children {
		n += 1 + c.Len()
	}
	return n
}

// CaptureExpand records the expansion of every node with children.
func CaptureExpand(a *tree.Arena) *ExpandState {
	root := &ExpandState{ID: tree.RootSaveID, Expanded: a.DefaultExpanded()}
	root.Children = captureChildren(a, a.Root())
	return root
}

func captureChildren(a *tree.Arena, parent tree.NodeID) []*ExpandState {
	var out []*ExpandState
	for c := a.FirstChild(parent); c != tree.None; c = a.NextSibling(c) {
		if a.FirstChild(c) == tree.None {
			continue
		}
		out = append(out, &ExpandState{
			ID:       a.SaveID(c),
			Expanded: a.IsExpanded(c),
			Children: captureChildren(a, c),
		})
	}
	return out
}

// ApplyExpand restores saved expansion. lookup maps a save-id to the node
// currently holding it; ids no longer present are skipped. The root entry
// sets the arena's default expansion.
func ApplyExpand(a *tree.Arena, e *ExpandState, lookup func(id string) (tree.NodeID, bool)) {
	if e == nil {
		return
	}
	if e.ID == tree.RootSaveID {
		a.SetDefaultExpanded(e.Expanded)
	}
	var apply func(nodes []*ExpandState)
	apply = func(nodes []*ExpandState) {
		for _, s := range nodes {
			if id, ok := lookup(s.ID); ok {
				a.SetExpanded(id, s.Expanded)
			}
			apply(s.Children)
		}
	}
	apply(e.Children)
}

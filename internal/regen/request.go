package regen

import "slices"

// SelectKind is the selection directive a request carries.
type SelectKind int

const (
	SelectNone SelectKind = iota
	SelectUID
	SelectAll
	SelectFirstUnread
)

// Select is applied after the rebuild instead of restoring the previous
// cursor.
type Select struct {
	Kind SelectKind
	UID  string
	// Fallback selects the oldest unread, then the newest read message
	// when UID is not in the list.
	Fallback bool
}

// Force values for Request.ForceExpand.
const (
	ExpandKeep  = 0
	ExpandAll   = 1
	CollapseAll = -1
)

// Request describes one regeneration. Requests submitted while another is
// pending are merged into it.
type Request struct {
	// Search replaces the list's search expression; nil keeps it.
	Search *string
	// FolderChanged marks a rebuild caused by folder mutations rather than
	// a user action.
	FolderChanged bool
	// Removed lists UIDs known to be gone; cursor fallback skips them.
	Removed []string
	Select  Select
	// ForceExpand expands or collapses every thread instead of restoring
	// the captured expand state.
	ForceExpand int
}

// SearchString returns a pointer to s for Request.Search.
func SearchString(s string) *string { return &s }

// Merge folds newer into r. A newer search replaces the pending one,
// FolderChanged stays set only when both requests are folder changes,
// removed UIDs accumulate, and the newer select and expand directives win
// when present.
func (r *Request) Merge(newer Request) {
	if newer.Search != nil {
		s := *newer.Search
		r.Search = &s
	}
	r.FolderChanged = r.FolderChanged && newer.FolderChanged
	if len(newer.Removed) > 0 {
		seen := make(map[string]struct{}, len(r.Removed)+len(newer.Removed))
		for _, uid := range r.Removed {
			seen[uid] = struct{}{}
		}
		for _, uid := range newer.Removed {
			if _, ok := seen[uid]; !ok {
				seen[uid] = struct{}{}
				r.Removed = append(r.Removed, uid)
			}
		}
	}
	if newer.Select.Kind != SelectNone {
		r.Select = newer.Select
	}
	if newer.ForceExpand != ExpandKeep {
		r.ForceExpand = newer.ForceExpand
	}
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	c := *r
	if r.Search != nil {
		s := *r.Search
		c.Search = &s
	}
	c.Removed = slices.Clone(r.Removed)
	return &c
}

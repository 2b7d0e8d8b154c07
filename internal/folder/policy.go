package folder

import "github.com/wesm/msglist/internal/message"

// Visibility decides which messages of a folder belong in the list.
// Trash folders show only deleted messages, junk folders only junk
// messages, and other folders hide both unless the user asked to see them.
type Visibility struct {
	Caps        Capabilities
	HideDeleted bool
	HideJunk    bool
}

// PolicyFor derives the visibility rules for a folder from the user's
// show-deleted and show-junk preferences.
func PolicyFor(caps Capabilities, showDeleted, showJunk bool) Visibility {
	v := Visibility{Caps: caps}
	v.HideJunk = !showJunk && caps.SupportsJunk && !caps.IsJunk && !caps.IsTrash
	v.HideDeleted = !showDeleted && !caps.IsTrash
	return v
}

func (v Visibility) junk(r *message.Record) bool {
	return v.Caps.SupportsJunk && r.Junk()
}

// Visible reports whether r should appear in the list.
func (v Visibility) Visible(r *message.Record) bool {
	deleted := r.Deleted()
	switch {
	case v.Caps.IsTrash:
		return deleted
	case v.Caps.IsJunk && v.Caps.SupportsJunk:
		return v.junk(r) && !(deleted && v.HideDeleted)
	default:
		return !(v.junk(r) && v.HideJunk) && !(deleted && v.HideDeleted)
	}
}

// Selectable reports whether the cursor may land on r. It matches Visible;
// the separate name keeps call sites readable.
func (v Visibility) Selectable(r *message.Record) bool {
	return v.Visible(r)
}

// ForceInclude reports whether the displayed message may be kept in the
// list although the search dropped it. Deleted or junk messages are kept
// only when the user shows them.
func (v Visibility) ForceInclude(r *message.Record) bool {
	return (!v.junk(r) || !v.HideJunk) && (!r.Deleted() || !v.HideDeleted)
}

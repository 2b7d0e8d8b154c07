// Package folder defines the folder collaborator the message list reads
// from, the change events it emits, and the hide-deleted/hide-junk policy.
package folder

import (
	"context"
	"errors"

	"github.com/wesm/msglist/internal/message"
)

var (
	// ErrUnavailable is returned when the folder or its store went away.
	ErrUnavailable = errors.New("folder unavailable")
	// ErrNotFound is returned by MessageInfo for an unknown UID.
	ErrNotFound = errors.New("message not found")
)

// Capabilities describes folder-type dependent behavior.
type Capabilities struct {
	IsTrash      bool // folder shows deleted messages only
	IsJunk       bool // folder shows junk messages only
	SupportsJunk bool // the store has a junk folder, so the junk flag is meaningful
}

// ChangeInfo lists the UIDs affected by one folder mutation.
type ChangeInfo struct {
	Added   []string
	Removed []string
	Changed []string
}

// IsEmpty reports whether the change carries no UIDs.
func (c ChangeInfo) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Folder is a mail folder the message list can regenerate from.
// Implementations must be safe for concurrent use: the list builder calls
// them from a background goroutine.
type Folder interface {
	// Name identifies the folder; it keys persisted view state.
	Name() string
	Capabilities() Capabilities

	// UIDs returns every message UID in folder-default order.
	UIDs(ctx context.Context) ([]string, error)
	// MessageInfo returns the current record for uid or ErrNotFound.
	MessageInfo(ctx context.Context, uid string) (*message.Record, error)
	// Search returns the UIDs matching a search expression. Malformed
	// expressions fail with an error wrapping search.ErrInvalidExpression.
	Search(ctx context.Context, expr string) ([]string, error)
	// SortUIDs sorts uids in place into the folder's defined order.
	SortUIDs(uids []string)

	// Subscribe registers fn for change events and returns a function that
	// removes the subscription. fn may be called from any goroutine.
	Subscribe(fn func(ChangeInfo)) (unsubscribe func())
}

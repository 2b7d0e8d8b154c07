// Package changes turns folder change events into either an in-place
// refresh of the affected rows or a regeneration request.
package changes

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/regen"
)

// DefaultThreshold is the number of changed messages at which a flag-only
// change stops being patched in place.
const DefaultThreshold = 100

// Target is the message list as seen by the notifier. It is only called on
// the owner goroutine.
type Target interface {
	// Busy reports whether a regeneration is scheduled or running.
	Busy() bool
	ContainsUID(uid string) bool
	Visibility() folder.Visibility
	// ApplyChanged replaces the records of rows already in the list.
	ApplyChanged(recs []*message.Record)
	Regen(r regen.Request)
	// TakeFirstChange reports whether this is the first change since the
	// folder was set, and clears that state.
	TakeFirstChange() bool
}

// Effective is a change set after the hide policy was applied.
type Effective struct {
	Added   []string
	Removed []string
	Changed []*message.Record
}

// Notifier routes folder events for one list.
type Notifier struct {
	target    Target
	folder    folder.Folder
	threshold int
	logger    *slog.Logger
}

// New creates a notifier for f. threshold <= 0 selects DefaultThreshold.
func New(target Target, f folder.Folder, threshold int, logger *slog.Logger) *Notifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{target: target, folder: f, threshold: threshold, logger: logger}
}

// Poster runs functions on the owner goroutine.
type Poster interface {
	Post(fn func())
}

// Attach subscribes to folder events and forwards them to Handle on the
// owner goroutine. The returned function unsubscribes.
func (n *Notifier) Attach(ctx context.Context, p Poster) func() {
	return n.folder.Subscribe(func(ci folder.ChangeInfo) {
		p.Post(func() { n.Handle(ctx, ci) })
	})
}

// Handle processes one change event. It must run on the owner goroutine.
func (n *Notifier) Handle(ctx context.Context, ci folder.ChangeInfo) {
	if ci.IsEmpty() {
		return
	}
	first := n.target.TakeFirstChange()

	if n.target.Busy() {
		n.logger.Debug("folder changed during regen", "folder", n.folder.Name(),
			"added", len(ci.Added), "removed", len(ci.Removed), "changed", len(ci.Changed))
		n.target.Regen(regen.Request{FolderChanged: true, Removed: slices.Clone(ci.Removed)})
		return
	}

	eff := n.Effective(ctx, ci)
	if len(eff.Added) == 0 && len(eff.Removed) == 0 && len(eff.Changed) < n.threshold {
		n.target.ApplyChanged(eff.Changed)
		return
	}
	n.logger.Debug("folder changed, regenerating", "folder", n.folder.Name(),
		"added", len(eff.Added), "removed", len(eff.Removed), "changed", len(eff.Changed))
	n.target.Regen(regen.Request{FolderChanged: !first, Removed: eff.Removed})
}

// Effective recomputes a change set under the list's visibility policy: a
// changed message in the list that is no longer visible counts as removed,
// a visible one outside the list counts as added. Trash and junk folders
// go through the same test, so un-deleting a message in the trash drops it.
func (n *Notifier) Effective(ctx context.Context, ci folder.ChangeInfo) Effective {
	eff := Effective{
		Added:   slices.Clone(ci.Added),
		Removed: slices.Clone(ci.Removed),
	}
	vis := n.target.Visibility()

	for _, uid := range ci.Changed {
		rec, err := n.folder.MessageInfo(ctx, uid)
		if err != nil {
			if errors.Is(err, folder.ErrNotFound) && n.target.ContainsUID(uid) {
				eff.Removed = append(eff.Removed, uid)
			} else if !errors.Is(err, folder.ErrNotFound) {
				n.logger.Warn("reading changed message", "uid", uid, "error", err)
			}
			continue
		}
		inList := n.target.ContainsUID(uid)
		hidden := !vis.Visible(rec)
		switch {
		case inList && hidden:
			eff.Removed = append(eff.Removed, uid)
		case !inList && !hidden:
			eff.Added = append(eff.Added, uid)
		default:
			eff.Changed = append(eff.Changed, rec)
		}
	}
	return eff
}

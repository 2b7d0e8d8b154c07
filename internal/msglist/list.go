// Package msglist is the message list: an ordered, filtered, optionally
// threaded view of one folder that follows folder changes and keeps the
// cursor, selection and expand state across rebuilds.
//
// A List is owned by one goroutine, the one driving its mainloop.Loop.
// Every method must be called there; folder events and background results
// are posted to the loop.
package msglist

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/wesm/msglist/internal/changes"
	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/mainloop"
	"github.com/wesm/msglist/internal/msgindex"
	"github.com/wesm/msglist/internal/regen"
	"github.com/wesm/msglist/internal/search"
	"github.com/wesm/msglist/internal/thread"
	"github.com/wesm/msglist/internal/tree"
	"github.com/wesm/msglist/internal/viewstate"
)

// Info messages shown when the list is empty.
const (
	InfoEmptyFolder = "No messages in this folder."
	InfoNoMatch     = "No message satisfies your search criteria."
)

// List is the message list.
type List struct {
	loop    *mainloop.Loop
	logger  *slog.Logger
	opts    ViewOptions
	store   *viewstate.Store
	errSink func(error)

	threshold int
	workers   int

	arena   *tree.Arena
	index   *msgindex.Index
	coord   *regen.Coordinator[*outcome]
	builder *thread.Builder

	folder      folder.Folder
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	// search is the expression the next build uses; shownSearch the one
	// the current tree was built with.
	search      string
	shownSearch string

	// folderJustSet is true until the first build after SetFolder lands.
	folderJustSet bool
	firstChange   bool

	cursor   string
	lastRow  int
	selected map[string]struct{}
	dirty    bool

	// cursorMoved is set when the cursor moved after the running rebuild
	// took its snapshot.
	cursorMoved bool

	frozen   int
	deferred *regen.Request

	info string
}

// New creates an empty list driven by loop.
func New(loop *mainloop.Loop, opts ...Option) *List {
	l := &List{
		loop:     loop,
		logger:   slog.Default(),
		opts:     DefaultViewOptions(),
		arena:    tree.New(),
		index:    msgindex.New(),
		selected: make(map[string]struct{}),
		lastRow:  -1,
	}
	for _, o := range opts {
		o(l)
	}
	l.arena.SetDefaultExpanded(l.opts.ExpandedDefault)
	l.builder = thread.NewBuilder(thread.WithWorkers(l.workers), thread.WithLogger(l.logger))
	l.coord = regen.New(loop, regen.Hooks[*outcome]{
		Start:    l.startRegen,
		Complete: l.completeRegen,
		Error:    l.failRegen,
	}, regen.WithLogger(l.logger))
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l
}

// AddObserver registers o for tree notifications. The returned function
// unregisters it.
func (l *List) AddObserver(o tree.Observer) func() {
	return l.arena.AddObserver(o)
}

// Folder returns the folder being shown, or nil.
func (l *List) Folder() folder.Folder { return l.folder }

// SetFolder switches the list to f and starts a rebuild. Expand state of
// the previous folder is saved first. A nil folder empties the list.
func (l *List) SetFolder(f folder.Folder) {
	if f == l.folder {
		return
	}
	l.saveExpandState()
	l.coord.Cancel()
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}

	l.clearTree()
	l.folder = f
	l.search = ""
	l.shownSearch = ""
	l.cursor = ""
	l.lastRow = -1
	clear(l.selected)
	l.dirty = false
	l.cursorMoved = false
	l.info = ""
	l.folderJustSet = true
	l.firstChange = true

	if f == nil {
		return
	}
	n := changes.New(l, f, l.threshold, l.logger)
	l.unsubscribe = n.Attach(l.ctx, l.loop)
	l.Regen(regen.Request{})
}

// Search returns the active search expression.
func (l *List) Search() string { return l.search }

// SetSearch applies a search expression; an empty one lists the whole
// folder. Malformed expressions are reported to the error sink and leave
// the list unchanged.
func (l *List) SetSearch(expr string) {
	if expr == l.search && !l.coord.Busy() {
		return
	}
	if _, err := search.Parse(expr); err != nil {
		l.reportError(err)
		return
	}
	l.search = expr
	l.Regen(regen.Request{Search: regen.SearchString(expr)})
}

// Regen requests a rebuild. While the list is frozen requests are merged
// and issued on the final Thaw.
func (l *List) Regen(r regen.Request) {
	if l.folder == nil {
		return
	}
	if l.frozen > 0 {
		if l.deferred == nil {
			l.deferred = r.Clone()
		} else {
			l.deferred.Merge(r)
		}
		return
	}
	l.coord.Request(r)
}

// Busy reports whether a rebuild is scheduled or running.
func (l *List) Busy() bool { return l.coord.Busy() }

// Generation returns the number of rebuilds started.
func (l *List) Generation() uint64 { return l.coord.Generation() }

// Freeze defers rebuilds until the matching Thaw.
func (l *List) Freeze() { l.frozen++ }

// Thaw undoes one Freeze and issues any rebuild requested meanwhile.
func (l *List) Thaw() {
	if l.frozen == 0 {
		return
	}
	l.frozen--
	if l.frozen == 0 && l.deferred != nil {
		r := *l.deferred
		l.deferred = nil
		l.Regen(r)
	}
}

// Info returns a message to show instead of an empty list, or "".
func (l *List) Info() string { return l.info }

// Options returns the current view settings.
func (l *List) Options() ViewOptions { return l.opts }

// SetOptions changes the view settings and rebuilds when the change
// affects what is shown.
func (l *List) SetOptions(o ViewOptions) {
	old := l.opts
	l.opts = o
	if old.ExpandedDefault != o.ExpandedDefault {
		l.arena.SetDefaultExpanded(o.ExpandedDefault)
	}
	if old.GroupByThreads != o.GroupByThreads ||
		old.ThreadSubject != o.ThreadSubject ||
		old.ThreadLatest != o.ThreadLatest ||
		old.ThreadFlat != o.ThreadFlat ||
		old.ShowDeleted != o.ShowDeleted ||
		old.ShowJunk != o.ShowJunk ||
		old.Sort != o.Sort ||
		!slices.Equal(old.ReplyPrefixes, o.ReplyPrefixes) {
		l.Regen(regen.Request{})
	}
}

// SetThreaded switches between a flat and a threaded list.
func (l *List) SetThreaded(on bool) {
	o := l.opts
	o.GroupByThreads = on
	l.SetOptions(o)
}

// SetShowDeleted shows or hides deleted messages.
func (l *List) SetShowDeleted(on bool) {
	o := l.opts
	o.ShowDeleted = on
	l.SetOptions(o)
}

// SetShowJunk shows or hides junk messages.
func (l *List) SetShowJunk(on bool) {
	o := l.opts
	o.ShowJunk = on
	l.SetOptions(o)
}

// SaveState persists the expand state of the current folder.
func (l *List) SaveState() {
	l.saveExpandState()
}

// Close stops background work, detaches from the folder and saves state.
func (l *List) Close() {
	l.saveExpandState()
	l.coord.Cancel()
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
	l.cancel()
}

func (l *List) clearTree() {
	l.arena.Clear()
	l.index.Clear()
}

func (l *List) reportError(err error) {
	if l.errSink != nil {
		l.errSink(err)
		return
	}
	l.logger.Error("message list", "error", err)
}

// canPersist reports whether expand state belongs on disk: a threaded,
// unsearched view of a folder.
func (l *List) canPersist() bool {
	return l.store != nil && l.folder != nil && l.opts.GroupByThreads && l.shownSearch == ""
}

func (l *List) saveExpandState() {
	if !l.canPersist() || l.folderJustSet {
		return
	}
	if err := l.store.Save(l.folder.Name(), viewstate.CaptureExpand(l.arena)); err != nil {
		l.logger.Warn("saving expand state", "folder", l.folder.Name(), "error", err)
	}
}

func (l *List) loadExpandState() *viewstate.ExpandState {
	if l.store == nil || l.folder == nil {
		return nil
	}
	st, err := l.store.Load(l.folder.Name())
	if err != nil {
		l.logger.Warn("loading expand state", "folder", l.folder.Name(), "error", err)
		return nil
	}
	return st
}

func isUnavailable(err error) bool {
	return errors.Is(err, folder.ErrUnavailable)
}

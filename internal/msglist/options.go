package msglist

import (
	"log/slog"

	"github.com/wesm/msglist/internal/thread"
	"github.com/wesm/msglist/internal/viewstate"
)

// ViewOptions are the display settings a regeneration is built with.
type ViewOptions struct {
	GroupByThreads bool
	ThreadSubject  bool
	ThreadLatest   bool
	ThreadFlat     bool
	ShowDeleted    bool
	ShowJunk       bool

	// ExpandedDefault is the expansion of threads without saved state.
	ExpandedDefault bool
	// DeleteSelectsPrevious moves the cursor up instead of down when the
	// message under it disappears.
	DeleteSelectsPrevious bool

	Sort          thread.SortSpec
	ReplyPrefixes []string
}

// DefaultViewOptions returns the settings used when none are configured.
func DefaultViewOptions() ViewOptions {
	return ViewOptions{ExpandedDefault: true}
}

func (o ViewOptions) threadOptions() thread.Options {
	return thread.Options{
		Group:         o.GroupByThreads,
		BySubject:     o.ThreadSubject,
		Latest:        o.ThreadLatest,
		Flat:          o.ThreadFlat,
		ShowDeleted:   o.ShowDeleted,
		ShowJunk:      o.ShowJunk,
		Sort:          o.Sort,
		ReplyPrefixes: o.ReplyPrefixes,
	}
}

// Option configures a List.
type Option func(*List)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *List) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithViewOptions sets the initial view settings.
func WithViewOptions(o ViewOptions) Option {
	return func(m *List) { m.opts = o }
}

// WithStateStore persists expand state per folder.
func WithStateStore(s *viewstate.Store) Option {
	return func(m *List) { m.store = s }
}

// WithErrorSink receives regeneration errors other than cancellation.
func WithErrorSink(fn func(error)) Option {
	return func(m *List) { m.errSink = fn }
}

// WithIncrementalThreshold sets how many changed messages are patched in
// place before a change triggers a full regeneration.
func WithIncrementalThreshold(n int) Option {
	return func(m *List) { m.threshold = n }
}

// WithWorkers bounds the concurrent record fetches of a regeneration.
func WithWorkers(n int) Option {
	return func(m *List) { m.workers = n }
}

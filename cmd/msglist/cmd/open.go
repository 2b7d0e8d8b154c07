package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/msglist/internal/config"
	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/maildir"
	"github.com/wesm/msglist/internal/mainloop"
	"github.com/wesm/msglist/internal/msglist"
	"github.com/wesm/msglist/internal/store"
	"github.com/wesm/msglist/internal/thread"
	"github.com/wesm/msglist/internal/viewstate"
)

// openedFolder is a folder resolved from the configuration.
type openedFolder struct {
	folder.Folder
	conf config.FolderConfig

	sqlite *store.Folder   // set for sqlite folders
	md     *maildir.Folder // set for maildir folders
}

// rescan reloads the folder and reports what changed on disk since the
// previous rescan.
func (o *openedFolder) rescan(ctx context.Context) error {
	var err error
	switch {
	case o.md != nil:
		_, err = o.md.Rescan(ctx)
	case o.sqlite != nil:
		_, err = o.sqlite.Rescan(ctx)
	}
	return err
}

// watch blocks until ctx is done, rescanning whenever the folder changes
// outside this process.
func (o *openedFolder) watch(ctx context.Context, interval time.Duration) error {
	switch {
	case o.md != nil:
		return o.md.Watch(ctx, interval)
	case o.sqlite != nil:
		return o.sqlite.Watch(ctx, interval)
	}
	return nil
}

func (o *openedFolder) close() {
	if o.md != nil {
		o.md.Close()
	}
}

// folderConfig returns the configured folder called name, or a sqlite
// folder definition when none is configured.
func folderConfig(name string) config.FolderConfig {
	if fc := cfg.GetFolder(name); fc != nil {
		if fc.Kind == "" {
			fc.Kind = config.KindSQLite
		}
		return *fc
	}
	return config.FolderConfig{Name: name, Kind: config.KindSQLite}
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.DatabasePath(), store.WithLogger(logger))
}

// openFolder opens the folder described by fc. st is only used for sqlite
// folders and may be nil otherwise.
func openFolder(ctx context.Context, st *store.Store, fc config.FolderConfig) (*openedFolder, error) {
	caps := folder.Capabilities{IsTrash: fc.IsTrash, IsJunk: fc.IsJunk}
	switch fc.Kind {
	case config.KindMaildir:
		md, err := maildir.Open(ctx, fc.Path, fc.Name, caps, maildir.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open maildir %s: %w", fc.Name, err)
		}
		return &openedFolder{Folder: md, conf: fc, md: md}, nil
	default:
		if st == nil {
			return nil, fmt.Errorf("open folder %s: no database", fc.Name)
		}
		caps.SupportsJunk = true
		f, err := st.EnsureFolder(fc.Name, caps)
		if err != nil {
			return nil, fmt.Errorf("open folder %s: %w", fc.Name, err)
		}
		return &openedFolder{Folder: f, conf: fc, sqlite: f}, nil
	}
}

// viewFlags are the list options a command may override.
type viewFlags struct {
	threaded    bool
	subject     bool
	latest      bool
	flat        bool
	showDeleted bool
	showJunk    bool
	sortBy      string
	descending  bool
}

func addViewFlags(c *cobra.Command, v *viewFlags) {
	f := c.Flags()
	f.BoolVar(&v.threaded, "threaded", false, "group messages into threads")
	f.BoolVar(&v.subject, "thread-subject", false, "also thread by subject")
	f.BoolVar(&v.latest, "thread-latest", false, "show the newest message of each thread as its root")
	f.BoolVar(&v.flat, "thread-flat", false, "list thread members at top level, grouped")
	f.BoolVar(&v.showDeleted, "show-deleted", false, "show messages marked deleted")
	f.BoolVar(&v.showJunk, "show-junk", false, "show junk messages")
	f.StringVar(&v.sortBy, "sort", "", "sort field: received, sent, subject, from, size, uid")
	f.BoolVar(&v.descending, "desc", false, "sort descending")
}

// viewOptions builds list options from the configuration, overridden by
// the flags the user set explicitly.
func viewOptions(c *config.Config, cmd *cobra.Command, v *viewFlags) (msglist.ViewOptions, error) {
	vc := c.View
	changed := func(name string) bool { return cmd != nil && cmd.Flags().Changed(name) }
	if changed("threaded") {
		vc.GroupByThreads = v.threaded
	}
	if changed("thread-subject") {
		vc.ThreadSubject = v.subject
	}
	if changed("thread-latest") {
		vc.ThreadLatest = v.latest
	}
	if changed("thread-flat") {
		vc.ThreadFlat = v.flat
	}
	if changed("show-deleted") {
		vc.ShowDeleted = v.showDeleted
	}
	if changed("show-junk") {
		vc.ShowJunk = v.showJunk
	}
	if changed("sort") {
		vc.SortBy = v.sortBy
	}
	if changed("desc") {
		vc.SortDescending = v.descending
	}

	field, err := thread.ParseSortField(vc.SortBy)
	if err != nil {
		return msglist.ViewOptions{}, err
	}
	return msglist.ViewOptions{
		GroupByThreads:        vc.GroupByThreads,
		ThreadSubject:         vc.ThreadSubject,
		ThreadLatest:          vc.ThreadLatest,
		ThreadFlat:            vc.ThreadFlat,
		ShowDeleted:           vc.ShowDeleted,
		ShowJunk:              vc.ShowJunk,
		ExpandedDefault:       vc.ExpandedDefault,
		DeleteSelectsPrevious: vc.DeleteSelectsPrevious,
		Sort:                  thread.SortSpec{Field: field, Descending: vc.SortDescending},
		ReplyPrefixes:         c.Threading.ReplyPrefixes,
	}, nil
}

// newList creates a message list wired to the configuration. Errors from
// regenerations go to sink.
func newList(loop *mainloop.Loop, opts msglist.ViewOptions, sink func(error)) *msglist.List {
	listOpts := []msglist.Option{
		msglist.WithLogger(logger),
		msglist.WithViewOptions(opts),
		msglist.WithStateStore(viewstate.NewStore(cfg.StateDir(), logger)),
		msglist.WithErrorSink(sink),
	}
	if cfg.Regen.IncrementalThreshold > 0 {
		listOpts = append(listOpts, msglist.WithIncrementalThreshold(cfg.Regen.IncrementalThreshold))
	}
	if cfg.Regen.Workers > 0 {
		listOpts = append(listOpts, msglist.WithWorkers(cfg.Regen.Workers))
	}
	return msglist.New(loop, listOpts...)
}

// settle runs the owner loop until the list has no rebuild pending or
// running.
func settle(ctx context.Context, loop *mainloop.Loop, l *msglist.List) error {
	for {
		loop.RunPending()
		if !l.Busy() && loop.Pending() == 0 {
			return nil
		}
		if err := loop.Wait(ctx); err != nil {
			return err
		}
	}
}

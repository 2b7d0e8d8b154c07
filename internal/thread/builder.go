// Package thread builds the ordered, filtered and optionally threaded
// message forest for one regeneration. It runs off the owner goroutine and
// never touches the live tree.
package thread

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
)

// Node is one message in a built forest.
type Node struct {
	Record   *message.Record
	Group    string // thread key, the UID of the thread's first message
	Children []*Node
}

// Result is the output of one build.
type Result struct {
	Roots     []*Node
	Count     int  // messages in the forest
	Total     int  // UIDs the folder or search returned
	Searching bool // a search expression was applied
}

// Walk visits every node of the forest in display order.
func (r *Result) Walk(fn func(n *Node, depth int)) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(r.Roots, 0)
}

// UIDs returns the UIDs of the forest in display order.
func (r *Result) UIDs() []string {
	out := make([]string, 0, r.Count)
	r.Walk(func(n *Node, _ int) { out = append(out, n.Record.UID) })
	return out
}

// Input describes one build.
type Input struct {
	Folder  folder.Folder
	Search  string // empty lists the whole folder
	Options Options

	// ForceInclude names the message currently displayed. It is kept in
	// the result even when the search no longer matches it, unless the
	// hide policy excludes it. The caller sets it only for folder-changed
	// rebuilds.
	ForceInclude string
}

// Builder runs search, filtering, sorting and threading.
type Builder struct {
	workers int
	logger  *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithWorkers bounds the concurrent record fetches of one build.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build computes the forest for in. Cancellation is checked before the
// search, after the UID list is known and before returning; a cancelled
// build returns ctx.Err() and no result.
func (b *Builder) Build(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Folder == nil {
		return nil, fmt.Errorf("build: %w", folder.ErrUnavailable)
	}

	var (
		uids []string
		err  error
	)
	searching := strings.TrimSpace(in.Search) != ""
	if searching {
		uids, err = in.Folder.Search(ctx, in.Search)
	} else {
		uids, err = in.Folder.UIDs(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("list %s: %w", in.Folder.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if searching && in.ForceInclude != "" && !slices.Contains(uids, in.ForceInclude) {
		uids = append(uids, in.ForceInclude)
	}

	recs, err := b.fetch(ctx, in.Folder, uids)
	if err != nil {
		return nil, err
	}

	policy := folder.PolicyFor(in.Folder.Capabilities(), in.Options.ShowDeleted, in.Options.ShowJunk)
	kept := recs[:0]
	for _, r := range recs {
		if r == nil {
			continue
		}
		if policy.Visible(r) {
			kept = append(kept, r)
			continue
		}
		// The displayed message survives a folder change unless it is
		// hidden for being deleted or junk.
		if r.UID == in.ForceInclude && policy.ForceInclude(r) {
			kept = append(kept, r)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sortRecords(in.Folder, kept, in.Options.Sort)

	res := &Result{Total: len(uids), Searching: searching, Count: len(kept)}
	if in.Options.Group {
		res.Roots = newThreader(in.Options).build(kept)
	} else {
		res.Roots = make([]*Node, len(kept))
		for i, r := range kept {
			res.Roots[i] = &Node{Record: r}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.logger.Debug("list built",
		"folder", in.Folder.Name(),
		"search", in.Search,
		"uids", len(uids),
		"shown", res.Count,
		"threaded", in.Options.Group)
	return res, nil
}

// fetch loads records concurrently. UIDs the folder no longer knows are
// skipped; any other failure aborts the build.
func (b *Builder) fetch(ctx context.Context, f folder.Folder, uids []string) ([]*message.Record, error) {
	recs := make([]*message.Record, len(uids))
	if len(uids) == 0 {
		return recs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	chunk := max(64, len(uids)/(b.workers*4))
	for start := 0; start < len(uids); start += chunk {
		end := min(start+chunk, len(uids))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := f.MessageInfo(gctx, uids[i])
				if errors.Is(err, folder.ErrNotFound) {
					b.logger.Debug("message vanished during build", "uid", uids[i])
					continue
				}
				if err != nil {
					return fmt.Errorf("message info %s: %w", uids[i], err)
				}
				recs[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return recs, nil
}

// sortRecords applies the folder order, then a stable sort by spec with
// the folder order as the tie-break.
func sortRecords(f folder.Folder, recs []*message.Record, spec SortSpec) {
	byUID := make(map[string]*message.Record, len(recs))
	uids := make([]string, len(recs))
	for i, r := range recs {
		byUID[r.UID] = r
		uids[i] = r.UID
	}
	f.SortUIDs(uids)
	for i, uid := range uids {
		recs[i] = byUID[uid]
	}

	slices.SortStableFunc(recs, func(a, b *message.Record) int {
		c := compareBy(spec.Field, a, b)
		if spec.Descending {
			c = -c
		}
		return c
	})
}

func compareBy(field SortField, a, b *message.Record) int {
	switch field {
	case SortSent:
		return a.DateSent.Compare(b.DateSent)
	case SortSubject:
		return cmp.Compare(strings.ToLower(a.Subject), strings.ToLower(b.Subject))
	case SortFrom:
		return cmp.Compare(strings.ToLower(a.From), strings.ToLower(b.From))
	case SortSize:
		return cmp.Compare(a.Size, b.Size)
	case SortUID:
		return folder.CompareUIDs(a.UID, b.UID)
	default:
		return a.DateReceived.Compare(b.DateReceived)
	}
}

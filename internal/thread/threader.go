package thread

import (
	"slices"
	"strings"

	"github.com/wesm/msglist/internal/folder"
	"github.com/wesm/msglist/internal/message"
)

// threader links records into reply threads. Parents are found through
// Message-ID, In-Reply-To and References; a reference to a message that is
// not in the list is skipped in favor of an older one that is, so the
// forest never holds placeholder nodes.
type threader struct {
	opts     Options
	subjects *SubjectNormalizer
}

func newThreader(opts Options) *threader {
	return &threader{opts: opts, subjects: NewSubjectNormalizer(opts.replyPrefixes())}
}

func normID(id string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(id), "<>"))
}

// build threads recs, which must already be in display order.
func (t *threader) build(recs []*message.Record) []*Node {
	n := len(recs)
	nodes := make([]*Node, n)
	parent := make([]int, n)
	byID := make(map[string]int, n)
	for i, r := range recs {
		nodes[i] = &Node{Record: r}
		parent[i] = -1
		if id := normID(r.MessageID); id != "" {
			if _, dup := byID[id]; !dup {
				byID[id] = i
			}
		}
	}

	// isAncestor reports whether a is b or one of its ancestors.
	isAncestor := func(a, b int) bool {
		for x := b; x >= 0; x = parent[x] {
			if x == a {
				return true
			}
		}
		return false
	}

	for i, r := range recs {
		refs := r.Parents()
		for k := len(refs) - 1; k >= 0; k-- {
			p, ok := byID[normID(refs[k])]
			if !ok || isAncestor(i, p) {
				continue
			}
			parent[i] = p
			break
		}
	}

	if t.opts.BySubject {
		t.mergeSubjects(recs, parent)
	}

	var roots []int
	for i := range recs {
		if parent[i] < 0 {
			roots = append(roots, i)
			continue
		}
		p := nodes[parent[i]]
		p.Children = append(p.Children, nodes[i])
	}
	for _, nd := range nodes {
		sortChildren(nd.Children)
	}

	pos := make(map[*Node]int, n)
	for i, nd := range nodes {
		pos[nd] = i
	}

	type thread struct {
		root *Node
		pos  int
	}
	threads := make([]thread, 0, len(roots))
	for _, i := range roots {
		root := nodes[i]
		setGroup(root, root.Record.UID)
		if t.opts.Latest {
			root = promoteLatest(root)
		}
		threads = append(threads, thread{root: root, pos: pos[root]})
	}
	slices.SortStableFunc(threads, func(a, b thread) int { return a.pos - b.pos })

	out := make([]*Node, 0, len(threads))
	for _, th := range threads {
		if t.opts.Flat {
			out = appendFlat(out, th.root)
			continue
		}
		out = append(out, th.root)
	}
	return out
}

// mergeSubjects makes threads with equal normalized subjects one thread.
// The first thread whose root subject carries no reply prefix becomes the
// container; when all are replies the one sent first is used.
func (t *threader) mergeSubjects(recs []*message.Record, parent []int) {
	type group struct {
		members   []int
		container int
		original  bool
	}
	groups := make(map[string]*group)
	var order []string
	for i, r := range recs {
		if parent[i] >= 0 {
			continue
		}
		key, reply := t.subjects.Normalize(r.Subject)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{container: i, original: !reply}
			groups[key] = g
			order = append(order, key)
		} else if !g.original && (!reply || r.DateSent.Before(recs[g.container].DateSent)) {
			g.container = i
			g.original = !reply
		}
		g.members = append(g.members, i)
	}
	for _, key := range order {
		g := groups[key]
		for _, m := range g.members {
			if m != g.container {
				parent[m] = g.container
			}
		}
	}
}

func sortChildren(children []*Node) {
	slices.SortStableFunc(children, func(a, b *Node) int {
		if c := a.Record.DateSent.Compare(b.Record.DateSent); c != 0 {
			return c
		}
		return folder.CompareUIDs(a.Record.UID, b.Record.UID)
	})
}

func setGroup(n *Node, group string) {
	n.Group = group
	for _, c := range n.Children {
		setGroup(c, group)
	}
}

// promoteLatest makes the newest message of the thread under root its
// displayed root. The old root becomes the first child of the promoted
// message, which keeps its own replies.
func promoteLatest(root *Node) *Node {
	newest, parentOf := root, (*Node)(nil)
	var visit func(n, p *Node)
	visit = func(n, p *Node) {
		if newer(n.Record, newest.Record) {
			newest, parentOf = n, p
		}
		for _, c := range n.Children {
			visit(c, n)
		}
	}
	visit(root, nil)
	if newest == root {
		return root
	}
	parentOf.Children = slices.DeleteFunc(parentOf.Children, func(c *Node) bool { return c == newest })
	newest.Children = append([]*Node{root}, newest.Children...)
	return newest
}

func newer(a, b *message.Record) bool {
	if c := a.DateReceived.Compare(b.DateReceived); c != 0 {
		return c > 0
	}
	return a.DateSent.After(b.DateSent)
}

// appendFlat lists root and its descendants at top level in document
// order, keeping their group key.
func appendFlat(out []*Node, root *Node) []*Node {
	children := root.Children
	root.Children = nil
	out = append(out, root)
	for _, c := range children {
		out = appendFlat(out, c)
	}
	return out
}

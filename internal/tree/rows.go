package tree

// SetDefaultExpanded sets the expansion of nodes without explicit state.
func (a *Arena) SetDefaultExpanded(expanded bool) {
	a.defaultExpanded = expanded
}

// DefaultExpanded returns the expansion of nodes without explicit state.
func (a *Arena) DefaultExpanded() bool { return a.defaultExpanded }

// ForceExpanded overrides every node's expansion: 1 expands all, -1
// collapses all, 0 returns to per-node state.
func (a *Arena) ForceExpanded(state int) {
	switch {
	case state > 0:
		a.forcedExpand = 1
	case state < 0:
		a.forcedExpand = -1
	default:
		a.forcedExpand = 0
	}
	a.rebuilt()
}

// IsExpanded reports whether the children of id are shown. The root is
// always expanded.
func (a *Arena) IsExpanded(id NodeID) bool {
	if id == a.root {
		return true
	}
	n := a.at(id)
	if n == nil {
		return false
	}
	if a.forcedExpand != 0 {
		return a.forcedExpand > 0
	}
	switch n.expanded {
	case 1:
		return true
	case -1:
		return false
	}
	return a.defaultExpanded
}

// HasExplicitExpansion reports whether id carries its own expansion state.
func (a *Arena) HasExplicitExpansion(id NodeID) bool {
	n := a.at(id)
	return n != nil && n.expanded != 0
}

// SetExpanded records explicit expansion state for id.
func (a *Arena) SetExpanded(id NodeID, expanded bool) {
	n := a.at(id)
	if n == nil || id == a.root {
		return
	}
	var v int8 = -1
	if expanded {
		v = 1
	}
	if n.expanded == v {
		return
	}
	n.expanded = v
	if n.children > 0 {
		a.rebuilt()
	}
}

// ResetExpanded drops every explicit expansion state.
func (a *Arena) ResetExpanded() {
	for i := range a.nodes {
		a.nodes[i].expanded = 0
	}
	a.rebuilt()
}

// Visible reports whether every ancestor of id is expanded.
func (a *Arena) Visible(id NodeID) bool {
	if a.at(id) == nil {
		return false
	}
	for p := a.Parent(id); p != None; p = a.Parent(p) {
		if !a.IsExpanded(p) {
			return false
		}
	}
	return true
}

// nextRow returns the next visible node after id in document order.
func (a *Arena) nextRow(id NodeID) NodeID {
	if id == a.root || a.IsExpanded(id) {
		if c := a.FirstChild(id); c != None {
			return c
		}
	}
	for id != None && id != a.root {
		if s := a.NextSibling(id); s != None {
			return s
		}
		id = a.Parent(id)
	}
	return None
}

// Rows returns the visible nodes in display order.
func (a *Arena) Rows() []NodeID {
	rows := make([]NodeID, 0, a.count)
	for id := a.nextRow(a.root); id != None; id = a.nextRow(id) {
		rows = append(rows, id)
	}
	return rows
}

// RowCount returns the number of visible rows.
func (a *Arena) RowCount() int {
	n := 0
	for id := a.nextRow(a.root); id != None; id = a.nextRow(id) {
		n++
	}
	return n
}

// RowOf returns the display row of id, or -1 when it is hidden or absent.
func (a *Arena) RowOf(id NodeID) int {
	if !a.Visible(id) {
		return -1
	}
	row := 0
	for n := a.nextRow(a.root); n != None; n = a.nextRow(n) {
		if n == id {
			return row
		}
		row++
	}
	return -1
}

// NodeAtRow returns the node shown at row, or None.
func (a *Arena) NodeAtRow(row int) NodeID {
	if row < 0 {
		return None
	}
	for n := a.nextRow(a.root); n != None; n = a.nextRow(n) {
		if row == 0 {
			return n
		}
		row--
	}
	return None
}

// OutermostCollapsedAncestor returns the highest collapsed ancestor of id,
// which is the row a hidden node is shown under, or None when id is
// visible.
func (a *Arena) OutermostCollapsedAncestor(id NodeID) NodeID {
	found := None
	for p := a.Parent(id); p != None && p != a.root; p = a.Parent(p) {
		if !a.IsExpanded(p) {
			found = p
		}
	}
	return found
}

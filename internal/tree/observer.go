package tree

// Observer receives structural change notifications from an Arena. All
// callbacks run synchronously on the goroutine that mutated the arena.
// PreChange precedes every other callback so a view can snapshot its state
// before diffing.
type Observer interface {
	PreChange()
	NodeInserted(parent, node NodeID, position int)
	// NodeRemoved reports a removed subtree. oldPosition is -1 when it was
	// not computed.
	NodeRemoved(parent, node NodeID, oldPosition int)
	NodeDataChanged(node NodeID)
	// StructureRebuilt replaces any number of inserts and removals that
	// happened while the arena was frozen.
	StructureRebuilt()
	// ListBuilt fires once after a regeneration or an in-place patch.
	ListBuilt()
}

// NopObserver implements Observer with no-ops; embed it to override only
// some callbacks.
type NopObserver struct{}

func (NopObserver) PreChange()                      {}
func (NopObserver) NodeInserted(_, _ NodeID, _ int) {}
func (NopObserver) NodeRemoved(_, _ NodeID, _ int)  {}
func (NopObserver) NodeDataChanged(NodeID)          {}
func (NopObserver) StructureRebuilt()               {}
func (NopObserver) ListBuilt()                      {}

type registration struct {
	id int
	o  Observer
}

// AddObserver registers o. The returned function unregisters it.
func (a *Arena) AddObserver(o Observer) func() {
	a.nextObserver++
	id := a.nextObserver
	a.observers = append(a.observers, registration{id: id, o: o})
	return func() {
		for i, r := range a.observers {
			if r.id == id {
				a.observers = append(a.observers[:i:i], a.observers[i+1:]...)
				return
			}
		}
	}
}

// Freeze suspends notifications. Calls nest; the matching Thaw that brings
// the count back to zero delivers one StructureRebuilt if anything changed.
func (a *Arena) Freeze() {
	a.frozen++
}

// Thaw undoes one Freeze.
func (a *Arena) Thaw() {
	if a.frozen == 0 {
		return
	}
	a.frozen--
	if a.frozen == 0 && a.dirty {
		a.dirty = false
		a.rebuilt()
	}
}

// Frozen reports whether notifications are currently batched.
func (a *Arena) Frozen() bool { return a.frozen > 0 }

// NotifyListBuilt tells observers that a rebuild or patch is complete.
func (a *Arena) NotifyListBuilt() {
	for _, r := range a.observers {
		r.o.ListBuilt()
	}
}

func (a *Arena) rebuilt() {
	if a.frozen > 0 {
		a.dirty = true
		return
	}
	for _, r := range a.observers {
		r.o.PreChange()
		r.o.StructureRebuilt()
	}
}

func (a *Arena) notify(fn func(Observer)) {
	if a.frozen > 0 {
		a.dirty = true
		return
	}
	for _, r := range a.observers {
		r.o.PreChange()
		fn(r.o)
	}
}

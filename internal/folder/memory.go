package folder

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/search"
)

// Memory is an in-memory folder. It is the reference Folder used by tests
// and by stores that load a whole folder up front. Mutations notify
// subscribers synchronously on the caller's goroutine.
type Memory struct {
	name string
	caps Capabilities

	mu     sync.RWMutex
	order  []string // insertion order
	byUID  map[string]*message.Record
	closed bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(ChangeInfo)

	// SearchError, when set, is returned by Search (error injection).
	SearchError error
}

// NewMemory creates an empty in-memory folder.
func NewMemory(name string, caps Capabilities) *Memory {
	return &Memory{
		name:  name,
		caps:  caps,
		byUID: make(map[string]*message.Record),
		subs:  make(map[int]func(ChangeInfo)),
	}
}

func (m *Memory) Name() string               { return m.name }
func (m *Memory) Capabilities() Capabilities { return m.caps }

// Add inserts or replaces records and emits one change event.
func (m *Memory) Add(recs ...*message.Record) {
	var ci ChangeInfo
	m.mu.Lock()
	for _, r := range recs {
		if _, ok := m.byUID[r.UID]; ok {
			ci.Changed = append(ci.Changed, r.UID)
		} else {
			ci.Added = append(ci.Added, r.UID)
			m.order = append(m.order, r.UID)
		}
		m.byUID[r.UID] = r
	}
	m.mu.Unlock()
	m.emit(ci)
}

// Remove deletes messages by UID and emits one change event.
func (m *Memory) Remove(uids ...string) {
	var ci ChangeInfo
	m.mu.Lock()
	for _, uid := range uids {
		if _, ok := m.byUID[uid]; !ok {
			continue
		}
		delete(m.byUID, uid)
		ci.Removed = append(ci.Removed, uid)
	}
	if len(ci.Removed) > 0 {
		m.order = slices.DeleteFunc(m.order, func(uid string) bool {
			_, ok := m.byUID[uid]
			return !ok
		})
	}
	m.mu.Unlock()
	m.emit(ci)
}

// SetFlags replaces the flags of uid (set bits in set, clear bits in clear)
// and emits a change event.
func (m *Memory) SetFlags(uid string, set, clear message.Flags) error {
	m.mu.Lock()
	r, ok := m.byUID[uid]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("set flags %s: %w", uid, ErrNotFound)
	}
	flags := (r.Flags &^ clear) | set
	changed := flags != r.Flags
	if changed {
		m.byUID[uid] = r.WithFlags(flags)
	}
	m.mu.Unlock()
	if changed {
		m.emit(ChangeInfo{Changed: []string{uid}})
	}
	return nil
}

// Close makes every later read fail with ErrUnavailable.
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Memory) UIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	return slices.Clone(m.order), nil
}

func (m *Memory) MessageInfo(ctx context.Context, uid string) (*message.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	r, ok := m.byUID[uid]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uid, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) Search(ctx context.Context, expr string) ([]string, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	pred, err := search.Compile(expr)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	var out []string
	for i, uid := range m.order {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if pred(m.byUID[uid]) {
			out = append(out, uid)
		}
	}
	return out, nil
}

// SortUIDs orders by date received, then by UID (numerically when both
// UIDs are numbers). Unknown UIDs sort last.
func (m *Memory) SortUIDs(uids []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slices.SortStableFunc(uids, func(a, b string) int {
		ra, rb := m.byUID[a], m.byUID[b]
		switch {
		case ra == nil && rb == nil:
			return CompareUIDs(a, b)
		case ra == nil:
			return 1
		case rb == nil:
			return -1
		}
		if c := ra.DateReceived.Compare(rb.DateReceived); c != 0 {
			return c
		}
		return CompareUIDs(a, b)
	})
}

// CompareUIDs orders numeric UIDs numerically and everything else
// lexically, numbers first.
func CompareUIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

func (m *Memory) Subscribe(fn func(ChangeInfo)) func() {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Memory) emit(ci ChangeInfo) {
	if ci.IsEmpty() {
		return
	}
	m.subMu.Lock()
	fns := make([]func(ChangeInfo), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(ci)
	}
}

// Emit delivers an arbitrary change event to subscribers. Stores that
// mutate records through other paths use it to report those changes.
func (m *Memory) Emit(ci ChangeInfo) {
	m.emit(ci)
}

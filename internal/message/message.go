// Package message defines the message record snapshot the list engine
// orders, filters and threads.
package message

import (
	"strings"
	"time"
)

// Flags is the per-message flag bitset.
type Flags uint32

const (
	FlagSeen Flags = 1 << iota
	FlagDeleted
	FlagJunk
	FlagFlagged
	FlagAnswered
	FlagForwarded
	FlagDraft
	FlagNotJunk
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSeen, "seen"},
	{FlagDeleted, "deleted"},
	{FlagJunk, "junk"},
	{FlagFlagged, "flagged"},
	{FlagAnswered, "answered"},
	{FlagForwarded, "forwarded"},
	{FlagDraft, "draft"},
	{FlagNotJunk, "notjunk"},
}

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String returns a comma-separated list of flag names.
func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseFlag maps a flag name (as produced by String) to its bit.
func ParseFlag(name string) (Flags, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

// Record is an immutable snapshot of one message in a folder. Folders hand
// out *Record values and replace them when a message changes; holders must
// never modify a Record they did not create.
type Record struct {
	UID          string
	Flags        Flags
	DateSent     time.Time
	DateReceived time.Time
	Subject      string
	From         string
	To           []string
	Size         int64
	Tags         map[string]string

	// Threading headers.
	MessageID  string
	InReplyTo  string
	References []string // oldest ancestor first
}

// Seen reports whether the message has been read.
func (r *Record) Seen() bool { return r.Flags&FlagSeen != 0 }

// Deleted reports whether the message is marked for deletion.
func (r *Record) Deleted() bool { return r.Flags&FlagDeleted != 0 }

// Junk reports whether the message is marked as junk.
func (r *Record) Junk() bool { return r.Flags&FlagJunk != 0 }

// WithFlags returns a copy of r with its flags replaced.
func (r *Record) WithFlags(flags Flags) *Record {
	c := *r
	c.Flags = flags
	return &c
}

// Parents returns the reply chain of r, oldest ancestor first, with the
// In-Reply-To id appended when References does not already end with it.
func (r *Record) Parents() []string {
	refs := make([]string, 0, len(r.References)+1)
	refs = append(refs, r.References...)
	if r.InReplyTo != "" && (len(refs) == 0 || refs[len(refs)-1] != r.InReplyTo) {
		refs = append(refs, r.InReplyTo)
	}
	return refs
}

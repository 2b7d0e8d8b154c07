package thread

import (
	"fmt"
	"strings"
)

// SortField selects the record field the list is ordered by.
type SortField int

const (
	SortReceived SortField = iota
	SortSent
	SortSubject
	SortFrom
	SortSize
	SortUID
)

var sortFieldNames = map[string]SortField{
	"received": SortReceived,
	"date":     SortReceived,
	"sent":     SortSent,
	"subject":  SortSubject,
	"from":     SortFrom,
	"sender":   SortFrom,
	"size":     SortSize,
	"uid":      SortUID,
}

// ParseSortField maps a configuration name to a SortField.
func ParseSortField(name string) (SortField, error) {
	if name == "" {
		return SortReceived, nil
	}
	f, ok := sortFieldNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown sort field %q", name)
	}
	return f, nil
}

func (f SortField) String() string {
	switch f {
	case SortSent:
		return "sent"
	case SortSubject:
		return "subject"
	case SortFrom:
		return "from"
	case SortSize:
		return "size"
	case SortUID:
		return "uid"
	default:
		return "received"
	}
}

// SortSpec orders the flat list and the thread roots.
type SortSpec struct {
	Field      SortField
	Descending bool
}

// DefaultReplyPrefixes are stripped from subjects before subject threading.
var DefaultReplyPrefixes = []string{"Re", "Fwd", "Fw"}

// Options is the snapshot of view settings one build runs with.
type Options struct {
	Group     bool // build threads instead of a flat list
	BySubject bool // also merge threads with equal normalized subjects
	Latest    bool // promote each thread's newest message to its root
	Flat      bool // keep thread members at top level, tagged by group

	ShowDeleted bool
	ShowJunk    bool

	Sort SortSpec

	// ReplyPrefixes overrides DefaultReplyPrefixes when non-empty.
	ReplyPrefixes []string
}

func (o Options) replyPrefixes() []string {
	if len(o.ReplyPrefixes) > 0 {
		return o.ReplyPrefixes
	}
	return DefaultReplyPrefixes
}

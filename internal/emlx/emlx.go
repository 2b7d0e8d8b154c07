// Package emlx reads Apple Mail .emlx files.
//
// An .emlx file holds a decimal byte count on its first line, then that
// many bytes of RFC 5322 message, then an optional XML property list with
// Apple Mail metadata.
package emlx

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"howett.net/plist"

	"github.com/wesm/msglist/internal/message"
)

// Apple Mail stores dates as seconds since 2001-01-01 UTC.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Bits of the Apple Mail "flags" value.
const (
	appleRead      = 1 << 0
	appleDeleted   = 1 << 1
	appleAnswered  = 1 << 2
	appleFlagged   = 1 << 4
	appleDraft     = 1 << 6
	appleForwarded = 1 << 8
	appleJunk      = 1 << 24
	appleNotJunk   = 1 << 25
)

var flagBits = []struct {
	apple uint64
	flag  message.Flags
}{
	{appleRead, message.FlagSeen},
	{appleDeleted, message.FlagDeleted},
	{appleAnswered, message.FlagAnswered},
	{appleFlagged, message.FlagFlagged},
	{appleDraft, message.FlagDraft},
	{appleForwarded, message.FlagForwarded},
	{appleJunk, message.FlagJunk},
	{appleNotJunk, message.FlagNotJunk},
}

// Message is a parsed .emlx file.
type Message struct {
	Raw []byte

	// AppleFlags is the raw "flags" value, zero without metadata.
	AppleFlags uint64
	// Received is date-received from the metadata, or date-sent when that
	// is missing. Zero without metadata.
	Received time.Time
	// Mailbox is the original-mailbox URL, if recorded.
	Mailbox string
}

// Flags maps the Apple Mail flag bits onto message flags.
func (m *Message) Flags() message.Flags {
	var f message.Flags
	for _, b := range flagBits {
		if m.AppleFlags&b.apple != 0 {
			f |= b.flag
		}
	}
	return f
}

// Parse parses the contents of an .emlx file. Unreadable metadata is
// ignored; only a malformed byte count is an error.
func Parse(data []byte) (*Message, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("emlx: no byte count line")
	}
	count, err := strconv.ParseInt(string(bytes.TrimSpace(data[:nl])), 10, 64)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("emlx: invalid byte count %q", bytes.TrimSpace(data[:nl]))
	}
	start := int64(nl + 1)
	end := start + count
	if end > int64(len(data)) {
		return nil, fmt.Errorf("emlx: byte count %d exceeds the %d bytes available", count, int64(len(data))-start)
	}

	m := &Message{Raw: data[start:end]}
	if meta := bytes.TrimSpace(data[end:]); len(meta) > 0 {
		m.readMetadata(meta)
	}
	return m, nil
}

// ParseFile reads and parses the .emlx file at path.
func ParseFile(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("emlx: %w", err)
	}
	return Parse(data)
}

func (m *Message) readMetadata(data []byte) {
	var meta map[string]any
	if _, err := plist.Unmarshal(data, &meta); err != nil {
		return
	}
	if n, ok := number(meta["flags"]); ok && n >= 0 {
		m.AppleFlags = uint64(n)
	}
	for _, key := range []string{"date-received", "date-sent"} {
		if secs, ok := number(meta[key]); ok {
			m.Received = appleEpoch.Add(time.Duration(secs * float64(time.Second)))
			break
		}
	}
	if s, ok := meta["original-mailbox"].(string); ok {
		m.Mailbox = s
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

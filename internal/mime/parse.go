// Package mime extracts the headers the message list needs from raw
// RFC 5322 messages, using enmime.
package mime

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/textutil"
)

// Headers are the list-relevant headers of one message.
type Headers struct {
	Subject    string
	Date       time.Time
	From       string // first From address, "Name <addr>" when a name is present
	To         []string
	MessageID  string
	InReplyTo  string
	References []string
	Keywords   []string
	Errors     []string // Non-fatal parsing errors
}

// Parse parses raw MIME data.
func Parse(raw []byte) (*Headers, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	h := &Headers{
		Subject:   textutil.EnsureUTF8(strings.TrimSpace(env.GetHeader("Subject"))),
		MessageID: normalizeID(env.GetHeader("Message-ID")),
		InReplyTo: firstID(env.GetHeader("In-Reply-To")),
	}
	if dateStr := env.GetHeader("Date"); dateStr != "" {
		h.Date = parseDate(dateStr)
	}
	if from := parseAddressList(env, "From"); len(from) > 0 {
		h.From = from[0]
	}
	h.To = append(parseAddressList(env, "To"), parseAddressList(env, "Cc")...)
	if refs := env.GetHeader("References"); refs != "" {
		h.References = parseReferences(refs)
	}
	for _, kw := range strings.Split(env.GetHeader("Keywords"), ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			h.Keywords = append(h.Keywords, strings.ToLower(kw))
		}
	}
	for _, e := range env.Errors {
		h.Errors = append(h.Errors, e.Error())
	}
	return h, nil
}

// Record builds a message record for uid from parsed headers. A zero
// received time falls back to the Date header.
func (h *Headers) Record(uid string, flags message.Flags, received time.Time, size int64) *message.Record {
	if received.IsZero() {
		received = h.Date
	}
	r := &message.Record{
		UID:          uid,
		Flags:        flags,
		DateSent:     h.Date,
		DateReceived: received,
		Subject:      h.Subject,
		From:         h.From,
		To:           h.To,
		Size:         size,
		MessageID:    h.MessageID,
		InReplyTo:    h.InReplyTo,
		References:   h.References,
	}
	if len(h.Keywords) > 0 {
		r.Tags = make(map[string]string, len(h.Keywords))
		for _, kw := range h.Keywords {
			r.Tags[kw] = ""
		}
	}
	return r
}

// ParseRecord parses raw and builds its record.
func ParseRecord(uid string, raw []byte, flags message.Flags, received time.Time) (*message.Record, error) {
	h, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return h.Record(uid, flags, received, int64(len(raw))), nil
}

// parseAddressList parses an address header using enmime's AddressList method.
func parseAddressList(env *enmime.Envelope, header string) []string {
	list, err := env.AddressList(header)
	if err != nil || list == nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		email := strings.ToLower(addr.Address)
		if name := textutil.EnsureUTF8(addr.Name); name != "" {
			out = append(out, name+" <"+email+">")
		} else {
			out = append(out, email)
		}
	}
	return out
}

// normalizeID returns a message id in its bracketed form, or "".
func normalizeID(id string) string {
	id = strings.Trim(strings.TrimSpace(id), "<>")
	if id == "" {
		return ""
	}
	return "<" + id + ">"
}

// firstID returns the first bracketed id of an In-Reply-To value, which
// may carry trailing comments.
func firstID(v string) string {
	if refs := parseReferences(v); len(refs) > 0 {
		return refs[0]
	}
	return normalizeID(v)
}

// parseReferences parses the References header into individual message IDs.
func parseReferences(refs string) []string {
	var result []string
	for {
		start := strings.IndexByte(refs, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(refs[start:], '>')
		if end < 0 {
			break
		}
		if id := normalizeID(refs[start : start+end+1]); id != "" {
			result = append(result, id)
		}
		refs = refs[start+end+1:]
	}
	if result == nil {
		for _, ref := range strings.Fields(refs) {
			if id := normalizeID(ref); id != "" {
				result = append(result, id)
			}
		}
	}
	return result
}

// dateFormats lists common email date formats for parseDate.
var dateFormats = []string{
	time.RFC1123Z,                    // "Mon, 02 Jan 2006 15:04:05 -0700"
	time.RFC1123,                     // "Mon, 02 Jan 2006 15:04:05 MST"
	"Mon, 2 Jan 2006 15:04:05 -0700", // Single-digit day
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700", // No weekday
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700", // No seconds
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate parses a Date header in UTC, or returns the zero time.
func parseDate(s string) time.Time {
	s = strings.Join(strings.Fields(s), " ")

	// Strip a trailing timezone comment like "(UTC)".
	candidates := []string{s}
	if idx := strings.LastIndex(s, "("); idx > 0 {
		candidates = []string{strings.TrimSpace(s[:idx]), s}
	}
	for _, c := range candidates {
		for _, format := range dateFormats {
			if t, err := time.Parse(format, c); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

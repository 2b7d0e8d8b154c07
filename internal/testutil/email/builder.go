// Package email builds raw RFC 5322 messages for tests.
package email

import (
	"strings"
	"time"
)

// MessageBuilder constructs messages with a fluent API.
// By default, messages use \n line endings matching Go raw string literals.
type MessageBuilder struct {
	from       string
	to         []string
	subject    string
	date       time.Time
	messageID  string
	inReplyTo  string
	references []string
	headerKeys []string
	headerVals []string
	body       string
	crlf       bool
	noSubject  bool
}

// DefaultDate is the Date header of a message built without Date.
var DefaultDate = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NewMessage creates a MessageBuilder with sensible defaults.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		from:    "sender@example.com",
		to:      []string{"recipient@example.com"},
		date:    DefaultDate,
		subject: "Test Message",
		body:    "This is a test message body.",
	}
}

func (b *MessageBuilder) From(v string) *MessageBuilder { b.from = v; return b }

// To replaces the recipients.
func (b *MessageBuilder) To(v ...string) *MessageBuilder { b.to = v; return b }

// Subject sets the Subject header. Use NoSubject() to omit it entirely.
func (b *MessageBuilder) Subject(v string) *MessageBuilder { b.subject = v; b.noSubject = false; return b }

func (b *MessageBuilder) NoSubject() *MessageBuilder { b.noSubject = true; return b }

// Date sets the Date header; the zero time omits it.
func (b *MessageBuilder) Date(t time.Time) *MessageBuilder { b.date = t; return b }

func (b *MessageBuilder) MessageID(id string) *MessageBuilder { b.messageID = id; return b }

// ReplyTo sets References to ids and In-Reply-To to the last of them.
func (b *MessageBuilder) ReplyTo(ids ...string) *MessageBuilder {
	b.references = ids
	b.inReplyTo = ""
	if len(ids) > 0 {
		b.inReplyTo = ids[len(ids)-1]
	}
	return b
}

// Header adds an arbitrary header.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	b.headerKeys = append(b.headerKeys, key)
	b.headerVals = append(b.headerVals, value)
	return b
}

func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// CRLF switches to \r\n line endings.
func (b *MessageBuilder) CRLF() *MessageBuilder { b.crlf = true; return b }

// Bytes builds the complete message.
func (b *MessageBuilder) Bytes() []byte {
	nl := "\n"
	if b.crlf {
		nl = "\r\n"
	}
	var s strings.Builder
	header := func(k, v string) { s.WriteString(k + ": " + v + nl) }

	header("From", b.from)
	if len(b.to) > 0 {
		header("To", strings.Join(b.to, ", "))
	}
	if !b.noSubject {
		header("Subject", b.subject)
	}
	if !b.date.IsZero() {
		header("Date", b.date.Format(time.RFC1123Z))
	}
	if b.messageID != "" {
		header("Message-ID", b.messageID)
	}
	if b.inReplyTo != "" {
		header("In-Reply-To", b.inReplyTo)
	}
	if len(b.references) > 0 {
		header("References", strings.Join(b.references, " "))
	}
	for i, k := range b.headerKeys {
		header(k, b.headerVals[i])
	}
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	s.WriteString(nl)
	s.WriteString(b.body + nl)
	return []byte(s.String())
}

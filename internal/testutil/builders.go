package testutil

import (
	"fmt"
	"time"

	"github.com/wesm/msglist/internal/message"
)

// BaseTime is the received date of a record built with offset zero.
var BaseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// RecordBuilder provides a fluent API for constructing message.Record in tests.
type RecordBuilder struct {
	r message.Record
}

// NewRecord creates a builder with sensible defaults. The Message-ID is
// derived from uid so replies can reference it with ReplyTo.
func NewRecord(uid string) *RecordBuilder {
	return &RecordBuilder{
		r: message.Record{
			UID:          uid,
			MessageID:    MessageID(uid),
			Subject:      "Test Subject " + uid,
			From:         "sender@example.com",
			To:           []string{"recipient@example.com"},
			DateSent:     BaseTime,
			DateReceived: BaseTime,
			Size:         1024,
		},
	}
}

// MessageID returns the Message-ID NewRecord assigns to uid.
func MessageID(uid string) string {
	return fmt.Sprintf("<%s@test.example>", uid)
}

func (b *RecordBuilder) WithSubject(s string) *RecordBuilder {
	b.r.Subject = s
	return b
}

func (b *RecordBuilder) WithFrom(addr string) *RecordBuilder {
	b.r.From = addr
	return b
}

func (b *RecordBuilder) WithFlags(f message.Flags) *RecordBuilder {
	b.r.Flags |= f
	return b
}

// Seen marks the record read.
func (b *RecordBuilder) Seen() *RecordBuilder {
	return b.WithFlags(message.FlagSeen)
}

// At sets both dates to BaseTime plus the given number of hours.
func (b *RecordBuilder) At(hours int) *RecordBuilder {
	t := BaseTime.Add(time.Duration(hours) * time.Hour)
	b.r.DateSent = t
	b.r.DateReceived = t
	return b
}

func (b *RecordBuilder) WithSize(sz int64) *RecordBuilder {
	b.r.Size = sz
	return b
}

func (b *RecordBuilder) WithTag(key, value string) *RecordBuilder {
	if b.r.Tags == nil {
		b.r.Tags = make(map[string]string)
	}
	b.r.Tags[key] = value
	return b
}

// ReplyTo makes the record a reply to the chain of uids, oldest first.
func (b *RecordBuilder) ReplyTo(uids ...string) *RecordBuilder {
	b.r.References = nil
	for _, uid := range uids {
		b.r.References = append(b.r.References, MessageID(uid))
	}
	if n := len(b.r.References); n > 0 {
		b.r.InReplyTo = b.r.References[n-1]
	}
	return b
}

// Build returns a pointer to the constructed Record.
func (b *RecordBuilder) Build() *message.Record {
	r := b.r
	return &r
}

// Records builds plain records for uids, one hour apart in order.
func Records(uids ...string) []*message.Record {
	out := make([]*message.Record, len(uids))
	for i, uid := range uids {
		out[i] = NewRecord(uid).At(i).Build()
	}
	return out
}

// Package mbox streams messages out of mboxo/mboxrd files.
//
// Each message is preceded by a "From " separator line. Body lines that
// match ^>+From  are unquoted by removing one '>'.
package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// MaxMessageBytes is the default per-message size limit.
const MaxMessageBytes = 64 << 20

var ErrMessageTooLarge = errors.New("mbox message exceeds max size")

// Message is one message from an mbox stream.
type Message struct {
	Sender string
	// Date is the separator line's timestamp, usually the delivery time.
	Date time.Time
	// Raw holds the RFC 5322 bytes without the separator line.
	Raw []byte
}

// Reader reads one message at a time.
type Reader struct {
	br       *bufio.Reader
	next     []byte // separator line of the next message
	eof      bool
	maxBytes int64
}

// NewReader returns a Reader enforcing MaxMessageBytes.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64<<10), maxBytes: MaxMessageBytes}
}

// SetMaxMessageBytes changes the size limit. Zero or less disables it.
func (r *Reader) SetMaxMessageBytes(n int64) { r.maxBytes = n }

// Next returns the next message, or io.EOF. An oversized message yields
// ErrMessageTooLarge and is skipped, so reading can continue.
func (r *Reader) Next() (*Message, error) {
	for r.next == nil {
		if r.eof {
			return nil, io.EOF
		}
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if isSeparator(line) {
			r.next = line
		}
	}

	sep := r.next
	r.next = nil
	msg := &Message{}
	msg.Sender, msg.Date, _ = ParseSeparator(string(sep))

	var raw bytes.Buffer
	tooLarge := false
	for !r.eof {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if isSeparator(line) {
			r.next = line
			break
		}
		line = unquote(line)
		if r.maxBytes > 0 && int64(raw.Len()+len(line)) > r.maxBytes {
			tooLarge = true
		}
		if !tooLarge {
			raw.Write(line)
		}
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: message from %s over %d bytes", ErrMessageTooLarge, msg.Sender, r.maxBytes)
	}
	msg.Raw = raw.Bytes()
	return msg, nil
}

// readLine returns the next line including its terminator. At end of
// input it sets r.eof and returns the final partial line, which may be
// empty.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if errors.Is(err, io.EOF) {
		r.eof = true
		return line, nil
	}
	return line, err
}

func unquote(line []byte) []byte {
	i := 0
	for i < len(line) && line[i] == '>' {
		i++
	}
	if i > 0 && bytes.HasPrefix(line[i:], []byte("From ")) {
		return line[1:]
	}
	return line
}

package mime

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wesm/msglist/internal/message"
	testemail "github.com/wesm/msglist/internal/testutil/email"
)

// mustParse calls Parse and fails the test on error.
func mustParse(t *testing.T, raw []byte) *Headers {
	t.Helper()
	h, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return h
}

func TestParseReferences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bracketed", "<a@x> <b@x>", []string{"<a@x>", "<b@x>"}},
		{"folded", "<a@x>\r\n\t<b@x>", []string{"<a@x>", "<b@x>"}},
		{"no spaces", "<a@x><b@x>", []string{"<a@x>", "<b@x>"}},
		{"bare ids", "a@x b@x", []string{"<a@x>", "<b@x>"}},
		{"empty brackets", "<> <a@x>", []string{"<a@x>"}},
		{"empty", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, parseReferences(tc.in)); diff != "" {
				t.Errorf("parseReferences(%q) (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestFirstID(t *testing.T) {
	tests := map[string]string{
		"<a@x>":                       "<a@x>",
		"<a@x> (Alice's message)":     "<a@x>",
		"a@x":                         "<a@x>",
		"":                            "",
		"Your message of 1 Jan <a@x>": "<a@x>",
	}
	for in, want := range tests {
		if got := firstID(in); got != want {
			t.Errorf("firstID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	// parseDate returns zero time for unparseable dates; malformed dates
	// are common in mail and must not fail the parse.
	tests := []struct {
		name  string
		input string
		want  time.Time // zero means parse failure
	}{
		{"RFC1123Z", "Mon, 02 Jan 2006 15:04:05 -0700",
			time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"RFC1123 named zone", "Mon, 2 Jan 2006 15:04:05 MST",
			time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"no weekday", "2 Jan 2006 15:04:05 -0700",
			time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"parenthesized zone", "Mon, 02 Jan 2006 15:04:05 -0700 (PST)",
			time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"double space after comma", "Mon,  2 Dec 2024 11:42:03 +0000 (UTC)",
			time.Date(2024, 12, 2, 11, 42, 3, 0, time.UTC)},
		{"ISO 8601", "2006-01-02T15:04:05-07:00",
			time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"SQL-like no tz", "2006-01-02 15:04:05",
			time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "not a date", time.Time{}},
		{"date only", "2006-01-02", time.Time{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseDate(tc.input)
			if !got.Equal(tc.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tc.input, got, tc.want)
			}
			if !got.IsZero() && got.Location() != time.UTC {
				t.Errorf("parseDate(%q) location = %v, want UTC", tc.input, got.Location())
			}
		})
	}
}

func TestParse_ThreadingHeaders(t *testing.T) {
	raw := testemail.NewMessage().
		From(`"Alice Example" <Alice@Example.com>`).
		To("bob@example.com", "Carol <carol@example.org>").
		Subject("=?UTF-8?Q?Re:_Caf=C3=A9?=").
		MessageID("<c@x>").
		ReplyTo("<a@x>", "<b@x>").
		Header("Cc", "dave@example.net").
		Header("Keywords", "Work, urgent").
		CRLF().
		Bytes()

	h := mustParse(t, raw)
	want := &Headers{
		Subject:    "Re: Café",
		Date:       testemail.DefaultDate,
		From:       "Alice Example <alice@example.com>",
		To:         []string{"bob@example.com", "Carol <carol@example.org>", "dave@example.net"},
		MessageID:  "<c@x>",
		InReplyTo:  "<b@x>",
		References: []string{"<a@x>", "<b@x>"},
		Keywords:   []string{"work", "urgent"},
	}
	if diff := cmp.Diff(want, h, cmpopts.IgnoreFields(Headers{}, "Errors")); diff != "" {
		t.Errorf("headers (-want +got):\n%s", diff)
	}
}

func TestParse_GroupAddressWithoutMembers(t *testing.T) {
	h := mustParse(t, testemail.NewMessage().To("undisclosed-recipients:;").Bytes())
	if len(h.To) != 0 {
		t.Errorf("To = %v, want empty for undisclosed-recipients group", h.To)
	}
	if h.Subject != "Test Message" {
		t.Errorf("Subject = %q", h.Subject)
	}
}

func TestParse_EightBitSubject(t *testing.T) {
	h := mustParse(t, testemail.NewMessage().Subject("Rand\x92s Opponent").Bytes())
	if !utf8.ValidString(h.Subject) || !strings.HasSuffix(h.Subject, "s Opponent") {
		t.Errorf("Subject = %q, want valid UTF-8", h.Subject)
	}
}

func TestParseRecord(t *testing.T) {
	raw := testemail.NewMessage().MessageID("a@x").Bytes()
	received := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	r, err := ParseRecord("42", raw, message.FlagSeen, received)
	if err != nil {
		t.Fatal(err)
	}
	if r.UID != "42" || !r.Seen() || r.MessageID != "<a@x>" || r.Size != int64(len(raw)) {
		t.Errorf("record = %+v", r)
	}
	if !r.DateReceived.Equal(received) || !r.DateSent.Equal(testemail.DefaultDate) {
		t.Errorf("dates = %v / %v", r.DateSent, r.DateReceived)
	}
	if r.Tags != nil {
		t.Errorf("tags = %v, want none", r.Tags)
	}

	// No delivery time: the Date header stands in.
	r, err = ParseRecord("43", raw, 0, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.DateReceived.Equal(testemail.DefaultDate) {
		t.Errorf("DateReceived = %v, want Date header", r.DateReceived)
	}
}

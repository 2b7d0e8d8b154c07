package search

import (
	"errors"
	"testing"
	"time"

	"github.com/wesm/msglist/internal/message"
)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func i64Ptr(v int64) *int64          { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Query
	}{
		// Basic Operators
		{
			name:  "from operator",
			query: "from:alice@example.com",
			want:  Query{FromAddrs: []string{"alice@example.com"}},
		},
		{
			name:  "to operator lowercased",
			query: "to:Bob@Example.com",
			want:  Query{ToAddrs: []string{"bob@example.com"}},
		},
		{
			name:  "multiple from",
			query: "from:alice@example.com from:bob@example.com",
			want:  Query{FromAddrs: []string{"alice@example.com", "bob@example.com"}},
		},
		{
			name:  "bare text",
			query: "hello world",
			want:  Query{TextTerms: []string{"hello", "world"}},
		},
		{
			name:  "quoted phrase",
			query: `"hello world"`,
			want:  Query{TextTerms: []string{"hello world"}},
		},
		{
			name:  "tabs separate terms",
			query: "hello\tworld",
			want:  Query{TextTerms: []string{"hello", "world"}},
		},

		// Quoted Operator Values
		{
			name:  "subject with quoted phrase",
			query: `subject:"meeting notes"`,
			want:  Query{SubjectTerms: []string{"meeting notes"}},
		},
		{
			name:  "subject with single-quoted phrase",
			query: `subject:'meeting notes'`,
			want:  Query{SubjectTerms: []string{"meeting notes"}},
		},
		{
			name:  "quoted phrase with colon",
			query: `"re: meeting notes" from:bob@example.com`,
			want: Query{
				TextTerms: []string{"re: meeting notes"},
				FromAddrs: []string{"bob@example.com"},
			},
		},
		{
			name:  "unknown operator is text",
			query: "foo:bar",
			want:  Query{TextTerms: []string{"foo:bar"}},
		},

		// Tags
		{
			name:  "tag presence and value",
			query: `tag:work label:"color=red"`,
			want:  Query{Tags: map[string]string{"work": "", "color": "red"}},
		},

		// Flags
		{
			name:  "is operators",
			query: "is:unread is:flagged",
			want:  Query{FlagsSet: message.FlagFlagged, FlagsClear: message.FlagSeen},
		},

		// Dates
		{
			name:  "after and before dates",
			query: "after:2024-01-15 before:2024/06/30",
			want: Query{
				AfterDate:  timePtr(utcDate(2024, 1, 15)),
				BeforeDate: timePtr(utcDate(2024, 6, 30)),
			},
		},

		// Sizes
		{
			name:  "larger than 5M",
			query: "larger:5M",
			want:  Query{LargerThan: i64Ptr(5 * 1024 * 1024)},
		},
		{
			name:  "smaller than 100KB",
			query: "smaller:100KB",
			want:  Query{SmallerThan: i64Ptr(100 * 1024)},
		},
		{
			name:  "plain byte count",
			query: "larger:512",
			want:  Query{LargerThan: i64Ptr(512)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.query)
			assertQueryEqual(t, *got, tt.want)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		`"unterminated`,
		`subject:"open`,
		"is:sideways",
		"before:yesterday",
		"newer_than:7x",
		"larger:huge",
		"from:",
		"tag:=red",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			if !errors.Is(err, ErrInvalidExpression) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidExpression", expr, err)
			}
		})
	}
}

func TestParse_RelativeDates(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	p := &Parser{Now: func() time.Time { return now }}

	q, err := p.Parse("newer_than:7d older_than:1m")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.AfterDate == nil || !q.AfterDate.Equal(now.AddDate(0, 0, -7)) {
		t.Errorf("AfterDate = %v, want %v", q.AfterDate, now.AddDate(0, 0, -7))
	}
	if q.BeforeDate == nil || !q.BeforeDate.Equal(now.AddDate(0, -1, 0)) {
		t.Errorf("BeforeDate = %v, want %v", q.BeforeDate, now.AddDate(0, -1, 0))
	}
}

func TestQuery_IsEmpty(t *testing.T) {
	tests := []struct {
		query   string
		isEmpty bool
	}{
		{"", true},
		{"   ", true},
		{"from:alice@example.com", false},
		{"hello", false},
		{"is:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q := mustParse(t, tt.query)
			if q.IsEmpty() != tt.isEmpty {
				t.Errorf("IsEmpty(%q): got %v, want %v", tt.query, q.IsEmpty(), tt.isEmpty)
			}
		})
	}
}

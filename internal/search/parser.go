// Package search provides Gmail-like search expression parsing and
// evaluation against message records.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/msglist/internal/message"
)

// ErrInvalidExpression is wrapped by every parse failure.
var ErrInvalidExpression = errors.New("invalid search expression")

// Query represents a parsed search query with all supported filters.
type Query struct {
	TextTerms    []string          // Full-text search terms (subject, from, to)
	FromAddrs    []string          // from: filters
	ToAddrs      []string          // to: filters
	SubjectTerms []string          // subject: filters
	Tags         map[string]string // tag:key or tag:key=value filters ("" matches any value)
	FlagsSet     message.Flags     // is:read, is:flagged, ...
	FlagsClear   message.Flags     // is:unread, is:unflagged, ...
	BeforeDate   *time.Time        // before: filter (date received)
	AfterDate    *time.Time        // after: filter (date received)
	LargerThan   *int64            // larger: filter (bytes)
	SmallerThan  *int64            // smaller: filter (bytes)
}

// IsEmpty returns true if the query has no search criteria.
func (q *Query) IsEmpty() bool {
	return len(q.TextTerms) == 0 &&
		len(q.FromAddrs) == 0 &&
		len(q.ToAddrs) == 0 &&
		len(q.SubjectTerms) == 0 &&
		len(q.Tags) == 0 &&
		q.FlagsSet == 0 &&
		q.FlagsClear == 0 &&
		q.BeforeDate == nil &&
		q.AfterDate == nil &&
		q.LargerThan == nil &&
		q.SmallerThan == nil
}

// operatorFn handles a parsed operator:value pair by applying it to the query.
type operatorFn func(q *Query, value string, now time.Time) error

// isValues maps is: operands to the flag they require set or clear.
var isValues = map[string]struct {
	flag message.Flags
	set  bool
}{
	"read":      {message.FlagSeen, true},
	"seen":      {message.FlagSeen, true},
	"unread":    {message.FlagSeen, false},
	"unseen":    {message.FlagSeen, false},
	"flagged":   {message.FlagFlagged, true},
	"starred":   {message.FlagFlagged, true},
	"unflagged": {message.FlagFlagged, false},
	"answered":  {message.FlagAnswered, true},
	"replied":   {message.FlagAnswered, true},
	"forwarded": {message.FlagForwarded, true},
	"deleted":   {message.FlagDeleted, true},
	"junk":      {message.FlagJunk, true},
	"spam":      {message.FlagJunk, true},
	"notjunk":   {message.FlagJunk, false},
	"draft":     {message.FlagDraft, true},
}

// operators maps operator names to their handler functions.
var operators = map[string]operatorFn{
	"from": func(q *Query, v string, _ time.Time) error {
		q.FromAddrs = append(q.FromAddrs, strings.ToLower(v))
		return nil
	},
	"to": func(q *Query, v string, _ time.Time) error {
		q.ToAddrs = append(q.ToAddrs, strings.ToLower(v))
		return nil
	},
	"subject": func(q *Query, v string, _ time.Time) error {
		q.SubjectTerms = append(q.SubjectTerms, v)
		return nil
	},
	"tag": addTag,
	"label": addTag,
	"l":     addTag,
	"is": func(q *Query, v string, _ time.Time) error {
		iv, ok := isValues[strings.ToLower(v)]
		if !ok {
			return fmt.Errorf("unknown is: value %q", v)
		}
		if iv.set {
			q.FlagsSet |= iv.flag
		} else {
			q.FlagsClear |= iv.flag
		}
		return nil
	},
	"before": func(q *Query, v string, _ time.Time) error {
		t := parseDate(v)
		if t == nil {
			return fmt.Errorf("bad date %q", v)
		}
		q.BeforeDate = t
		return nil
	},
	"after": func(q *Query, v string, _ time.Time) error {
		t := parseDate(v)
		if t == nil {
			return fmt.Errorf("bad date %q", v)
		}
		q.AfterDate = t
		return nil
	},
	"older_than": func(q *Query, v string, now time.Time) error {
		t := parseRelativeDate(v, now)
		if t == nil {
			return fmt.Errorf("bad relative date %q", v)
		}
		q.BeforeDate = t
		return nil
	},
	"newer_than": func(q *Query, v string, now time.Time) error {
		t := parseRelativeDate(v, now)
		if t == nil {
			return fmt.Errorf("bad relative date %q", v)
		}
		q.AfterDate = t
		return nil
	},
	"larger": func(q *Query, v string, _ time.Time) error {
		size := parseSize(v)
		if size == nil {
			return fmt.Errorf("bad size %q", v)
		}
		q.LargerThan = size
		return nil
	},
	"smaller": func(q *Query, v string, _ time.Time) error {
		size := parseSize(v)
		if size == nil {
			return fmt.Errorf("bad size %q", v)
		}
		q.SmallerThan = size
		return nil
	},
}

func addTag(q *Query, v string, _ time.Time) error {
	key, value, _ := strings.Cut(v, "=")
	if key == "" {
		return fmt.Errorf("empty tag name")
	}
	if q.Tags == nil {
		q.Tags = make(map[string]string)
	}
	q.Tags[key] = value
	return nil
}

// Parser holds configuration for query parsing.
type Parser struct {
	Now func() time.Time // Time source (mockable for testing)
}

// NewParser creates a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Now().UTC() }}
}

// Parse parses a Gmail-like search query string into a Query object.
//
// Supported operators:
//   - from:, to: - address filters
//   - subject: - subject text search
//   - tag:, label: or l: - user tag filter (tag:name or tag:name=value)
//   - is: - flag filters (read, unread, flagged, answered, forwarded, deleted, junk, draft)
//   - before:, after: - date filters (YYYY-MM-DD)
//   - older_than:, newer_than: - relative date filters (e.g., 7d, 2w, 1m, 1y)
//   - larger:, smaller: - size filters (e.g., 5M, 100K)
//   - Bare words and "quoted phrases" - text search
//
// Unknown operators are treated as text. An unterminated quote, an empty
// operator value, or a value the operator cannot interpret yields an error
// wrapping ErrInvalidExpression.
func (p *Parser) Parse(queryStr string) (*Query, error) {
	q := &Query{}
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}
	tokens, err := tokenize(queryStr)
	if err != nil {
		return nil, err
	}

	for _, token := range tokens {
		if isQuotedPhrase(token) {
			q.TextTerms = append(q.TextTerms, unquote(token))
			continue
		}

		if idx := strings.Index(token, ":"); idx != -1 {
			op := strings.ToLower(token[:idx])
			value := unquote(token[idx+1:])

			if handler, ok := operators[op]; ok {
				if value == "" {
					return nil, fmt.Errorf("%w: %s: missing value", ErrInvalidExpression, op)
				}
				if err := handler(q, value, now); err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrInvalidExpression, op, err)
				}
			} else {
				q.TextTerms = append(q.TextTerms, token)
			}
			continue
		}

		q.TextTerms = append(q.TextTerms, token)
	}

	return q, nil
}

// Parse is a convenience function that parses using default settings.
func Parse(queryStr string) (*Query, error) {
	return NewParser().Parse(queryStr)
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string, preserving quoted phrases and operator:value pairs.
// Handles cases like subject:"foo bar" where the operator and quoted value should stay together.
func tokenize(queryStr string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	// Track if we just saw a colon (for op:"value" handling)
	afterColon := false
	// Track if this quoted section started as op:"value" (quote immediately after colon)
	opQuoted := false

	for _, char := range queryStr {
		if (char == '"' || char == '\'') && !inQuotes {
			inQuotes = true
			quoteChar = char
			opQuoted = afterColon
			if !afterColon && current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			// Normalize the quote so unquote() strips it
			if afterColon {
				current.WriteRune('"')
			}
			afterColon = false
		} else if char == quoteChar && inQuotes {
			inQuotes = false
			if opQuoted {
				current.WriteRune('"')
				tokens = append(tokens, current.String())
				current.Reset()
			} else if current.Len() > 0 {
				// Standalone quoted phrase (may contain colons, but not op:"value")
				tokens = append(tokens, "\""+current.String()+"\"")
				current.Reset()
			}
			quoteChar = 0
			opQuoted = false
		} else if (char == ' ' || char == '\t') && !inQuotes {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			afterColon = false
		} else {
			current.WriteRune(char)
			afterColon = (char == ':')
		}
	}

	if inQuotes {
		return nil, fmt.Errorf("%w: unterminated quote", ErrInvalidExpression)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens, nil
}

// parseDate parses date strings like YYYY-MM-DD or YYYY/MM/DD.
func parseDate(value string) *time.Time {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
	}

	value = strings.TrimSpace(value)
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// parseRelativeDate parses relative dates like 7d, 2w, 1m, 1y relative to now.
func parseRelativeDate(value string, now time.Time) *time.Time {
	value = strings.TrimSpace(strings.ToLower(value))
	match := relativeDateRe.FindStringSubmatch(value)
	if match == nil {
		return nil
	}

	amount, _ := strconv.Atoi(match[1])
	unit := match[2]

	var result time.Time
	switch unit {
	case "d":
		result = now.AddDate(0, 0, -amount)
	case "w":
		result = now.AddDate(0, 0, -amount*7)
	case "m":
		result = now.AddDate(0, -amount, 0)
	case "y":
		result = now.AddDate(-amount, 0, 0)
	default:
		return nil
	}

	return &result
}

// sizeSuffixes is ordered longest first so "KB" wins over "B"-less "K".
var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"KB", 1024},
	{"MB", 1024 * 1024},
	{"GB", 1024 * 1024 * 1024},
	{"K", 1024},
	{"M", 1024 * 1024},
	{"G", 1024 * 1024 * 1024},
}

// parseSize parses size strings like 5M, 100K, 1G into bytes.
func parseSize(value string) *int64 {
	value = strings.TrimSpace(strings.ToUpper(value))

	for _, s := range sizeSuffixes {
		if strings.HasSuffix(value, s.suffix) {
			numStr := value[:len(value)-len(s.suffix)]
			if num, err := strconv.ParseFloat(numStr, 64); err == nil && num >= 0 {
				result := int64(num * float64(s.mult))
				return &result
			}
			return nil
		}
	}

	// Plain number (bytes)
	if num, err := strconv.ParseInt(value, 10, 64); err == nil && num >= 0 {
		return &num
	}
	return nil
}

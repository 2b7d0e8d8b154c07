package search

import (
	"strings"

	"github.com/wesm/msglist/internal/message"
)

// Predicate reports whether a record satisfies a search.
type Predicate func(*message.Record) bool

// MatchAll accepts every record.
func MatchAll(*message.Record) bool { return true }

// Compile parses expr and returns a predicate for it. An empty or
// whitespace-only expression compiles to MatchAll.
func Compile(expr string) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return MatchAll, nil
	}
	q, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if q.IsEmpty() {
		return MatchAll, nil
	}
	return q.Matches, nil
}

// Matches evaluates the query against r. All criteria must hold; multiple
// values of one address operator match if any value matches.
func (q *Query) Matches(r *message.Record) bool {
	if r.Flags&q.FlagsSet != q.FlagsSet || r.Flags&q.FlagsClear != 0 {
		return false
	}
	if q.AfterDate != nil && r.DateReceived.Before(*q.AfterDate) {
		return false
	}
	if q.BeforeDate != nil && !r.DateReceived.Before(*q.BeforeDate) {
		return false
	}
	if q.LargerThan != nil && r.Size <= *q.LargerThan {
		return false
	}
	if q.SmallerThan != nil && r.Size >= *q.SmallerThan {
		return false
	}
	if len(q.FromAddrs) > 0 && !anyAddrMatch(q.FromAddrs, []string{r.From}) {
		return false
	}
	if len(q.ToAddrs) > 0 && !anyAddrMatch(q.ToAddrs, r.To) {
		return false
	}
	subject := strings.ToLower(r.Subject)
	for _, term := range q.SubjectTerms {
		if !strings.Contains(subject, strings.ToLower(term)) {
			return false
		}
	}
	for key, want := range q.Tags {
		got, ok := r.Tags[key]
		if !ok || (want != "" && !strings.EqualFold(got, want)) {
			return false
		}
	}
	if len(q.TextTerms) > 0 {
		haystack := subject + "\n" + strings.ToLower(r.From) + "\n" + strings.ToLower(strings.Join(r.To, "\n"))
		for _, term := range q.TextTerms {
			if !strings.Contains(haystack, strings.ToLower(term)) {
				return false
			}
		}
	}
	return true
}

// anyAddrMatch handles both exact addresses and @domain patterns. Header
// values may carry a display name, so matching is by substring.
func anyAddrMatch(patterns, addrs []string) bool {
	for _, addr := range addrs {
		addr = strings.ToLower(addr)
		for _, p := range patterns {
			if strings.HasPrefix(p, "@") {
				if strings.HasSuffix(strings.TrimSuffix(addr, ">"), p) {
					return true
				}
				continue
			}
			if strings.Contains(addr, p) {
				return true
			}
		}
	}
	return false
}

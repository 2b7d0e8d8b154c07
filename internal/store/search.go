package store

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/wesm/msglist/internal/search"
)

// escapeLike escapes SQL LIKE special characters (%, _, \).
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func contains(s string) string { return "%" + escapeLike(strings.ToLower(s)) + "%" }

// addrCondition matches column against an address pattern the way
// search.Query does: @domain patterns match the end of the address, others
// any substring.
func addrCondition(column, pattern string) (string, any) {
	if strings.HasPrefix(pattern, "@") {
		return "rtrim(lower(" + column + "), '>') LIKE ? ESCAPE '\\'", "%" + escapeLike(strings.ToLower(pattern))
	}
	return "lower(" + column + ") LIKE ? ESCAPE '\\'", contains(pattern)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// buildSearchWhere translates q into a WHERE fragment over messages m.
// An empty query yields "". SQLite folds case for ASCII only, so text
// criteria with non-ASCII patterns are left out of the fragment and
// recheck is set: the caller must filter the rows with q.Matches.
func buildSearchWhere(q *search.Query) (where string, args []any, recheck bool) {
	var conds []string

	if q.FlagsSet != 0 {
		conds = append(conds, "(m.flags & ?) = ?")
		args = append(args, q.FlagsSet, q.FlagsSet)
	}
	if q.FlagsClear != 0 {
		conds = append(conds, "(m.flags & ?) = 0")
		args = append(args, q.FlagsClear)
	}
	if q.AfterDate != nil {
		conds = append(conds, "m.received_at >= ?")
		args = append(args, q.AfterDate.UnixNano())
	}
	if q.BeforeDate != nil {
		conds = append(conds, "m.received_at < ?")
		args = append(args, q.BeforeDate.UnixNano())
	}
	if q.LargerThan != nil {
		conds = append(conds, "m.size > ?")
		args = append(args, *q.LargerThan)
	}
	if q.SmallerThan != nil {
		conds = append(conds, "m.size < ?")
		args = append(args, *q.SmallerThan)
	}

	if len(q.FromAddrs) > 0 && !allASCII(q.FromAddrs) {
		recheck = true
	} else if len(q.FromAddrs) > 0 {
		var ors []string
		for _, p := range q.FromAddrs {
			c, a := addrCondition("m.from_addr", p)
			ors = append(ors, c)
			args = append(args, a)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(q.ToAddrs) > 0 && !allASCII(q.ToAddrs) {
		recheck = true
	} else if len(q.ToAddrs) > 0 {
		var ors []string
		for _, p := range q.ToAddrs {
			c, a := addrCondition("r.addr", p)
			ors = append(ors, c)
			args = append(args, a)
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM message_recipients r WHERE r.message_id = m.id AND ("+
			strings.Join(ors, " OR ")+"))")
	}

	for _, term := range q.SubjectTerms {
		if !isASCII(term) {
			recheck = true
			continue
		}
		conds = append(conds, `lower(m.subject) LIKE ? ESCAPE '\'`)
		args = append(args, contains(term))
	}

	names := make([]string, 0, len(q.Tags))
	for name := range q.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := q.Tags[name]
		if !isASCII(value) {
			recheck = true
			value = ""
		}
		if value != "" {
			conds = append(conds, "EXISTS (SELECT 1 FROM message_tags t WHERE t.message_id = m.id AND t.name = ? AND lower(t.value) = ?)")
			args = append(args, name, strings.ToLower(value))
		} else {
			conds = append(conds, "EXISTS (SELECT 1 FROM message_tags t WHERE t.message_id = m.id AND t.name = ?)")
			args = append(args, name)
		}
	}

	for _, term := range q.TextTerms {
		if !isASCII(term) {
			recheck = true
			continue
		}
		conds = append(conds, `(lower(m.subject) LIKE ? ESCAPE '\' OR lower(m.from_addr) LIKE ? ESCAPE '\'`+
			` OR EXISTS (SELECT 1 FROM message_recipients r WHERE r.message_id = m.id AND lower(r.addr) LIKE ? ESCAPE '\'))`)
		p := contains(term)
		args = append(args, p, p, p)
	}

	return strings.Join(conds, " AND "), args, recheck
}

func allASCII(patterns []string) bool {
	for _, p := range patterns {
		if !isASCII(p) {
			return false
		}
	}
	return true
}

package thread

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SubjectNormalizer strips reply prefixes and folds case so replies and
// their originals compare equal.
type SubjectNormalizer struct {
	prefixes []string // folded
	fold     cases.Caser
}

// NewSubjectNormalizer returns a normalizer for the given reply prefixes
// ("Re", "Fwd", localized variants). Matching is case-insensitive.
func NewSubjectNormalizer(prefixes []string) *SubjectNormalizer {
	n := &SubjectNormalizer{fold: cases.Fold()}
	for _, p := range prefixes {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), ":"))
		if p != "" {
			n.prefixes = append(n.prefixes, n.fold.String(norm.NFC.String(p)))
		}
	}
	return n
}

// Normalize returns the comparison key of subject and whether any reply
// prefix was removed. Mailing-list tags in square brackets are skipped
// while looking for prefixes.
func (n *SubjectNormalizer) Normalize(subject string) (key string, reply bool) {
	s := n.fold.String(norm.NFC.String(subject))
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if rest, ok := stripListTag(s); ok {
			s = rest
			continue
		}
		rest, ok := n.stripPrefix(s)
		if !ok {
			break
		}
		s = rest
		reply = true
	}
	return strings.Join(strings.Fields(s), " "), reply
}

func (n *SubjectNormalizer) stripPrefix(s string) (string, bool) {
	for _, p := range n.prefixes {
		if !strings.HasPrefix(s, p) {
			continue
		}
		rest := s[len(p):]
		// Re[2]: and Re(2): count as replies.
		if len(rest) > 0 && (rest[0] == '[' || rest[0] == '(') {
			closer := byte(']')
			if rest[0] == '(' {
				closer = ')'
			}
			end := strings.IndexByte(rest, closer)
			if end < 0 || !allDigits(rest[1:end]) {
				continue
			}
			rest = rest[end+1:]
		}
		rest = strings.TrimLeft(rest, " ")
		if strings.HasPrefix(rest, ":") {
			return rest[1:], true
		}
	}
	return s, false
}

func stripListTag(s string) (string, bool) {
	if !strings.HasPrefix(s, "[") {
		return s, false
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return s, false
	}
	rest := strings.TrimLeftFunc(s[end+1:], unicode.IsSpace)
	if rest == "" {
		// A subject that is only a tag keeps it.
		return s, false
	}
	return rest, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

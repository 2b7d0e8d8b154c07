package maildir

import (
	"github.com/emersion/go-maildir"

	"github.com/wesm/msglist/internal/message"
)

// flagMap is in maildir info order (ASCII).
var flagMap = []struct {
	md   maildir.Flag
	flag message.Flags
}{
	{maildir.FlagDraft, message.FlagDraft},
	{maildir.FlagFlagged, message.FlagFlagged},
	{maildir.FlagPassed, message.FlagForwarded},
	{maildir.FlagReplied, message.FlagAnswered},
	{maildir.FlagSeen, message.FlagSeen},
	{maildir.FlagTrashed, message.FlagDeleted},
}

func fromMaildir(flags []maildir.Flag) message.Flags {
	var out message.Flags
	for _, f := range flags {
		for _, m := range flagMap {
			if m.md == f {
				out |= m.flag
			}
		}
	}
	return out
}

// toMaildir returns the maildir info flags for flags. Bits without a
// maildir letter (junk, not-junk) are dropped.
func toMaildir(flags message.Flags) []maildir.Flag {
	var out []maildir.Flag
	for _, m := range flagMap {
		if flags&m.flag != 0 {
			out = append(out, m.md)
		}
	}
	return out
}

package mbox

import (
	"strings"
	"time"
)

// Date layouts of the ctime-like part of a "From " line, with and without
// seconds and weekday. A zone, if any, is handled separately.
var separatorLayouts = []string{
	"Mon Jan 2 15:04:05 2006",
	"Mon Jan 2 15:04 2006",
	"Jan 2 15:04:05 2006",
	"Jan 2 15:04 2006",
}

var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "UT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8,
	"HST": -10,
}

// parseZone accepts numeric offsets (-0700, -07:00) and well-known
// abbreviations.
func parseZone(tok string) (*time.Location, bool) {
	tok = strings.Trim(tok, "()")
	if h, ok := zoneOffsets[strings.ToUpper(tok)]; ok {
		return time.FixedZone(strings.ToUpper(tok), h*3600), true
	}
	for _, layout := range []string{"-0700", "-07:00"} {
		if t, err := time.Parse(layout, tok); err == nil {
			return t.Location(), true
		}
	}
	return nil, false
}

// ParseSeparator parses an mbox "From " line into its sender and date.
// Producers place the zone either before or after the year, and some
// append extra tokens such as "remote from host".
func ParseSeparator(line string) (sender string, date time.Time, ok bool) {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(fields) < 6 || fields[0] != "From" {
		return "", time.Time{}, false
	}
	sender, rest := fields[1], fields[2:]

	for _, layout := range separatorLayouts {
		n := len(strings.Fields(layout))
		if len(rest) < n {
			continue
		}
		// Zone before the year: "Mon Jan 2 15:04:05 PST 2006".
		if len(rest) > n {
			if loc, ok := parseZone(rest[n-1]); ok {
				parts := append(append([]string(nil), rest[:n-1]...), rest[n])
				if t, err := time.ParseInLocation(layout, strings.Join(parts, " "), loc); err == nil {
					return sender, t, true
				}
			}
		}
		loc := time.UTC
		if len(rest) > n {
			if l, ok := parseZone(rest[n]); ok {
				loc = l
			}
		}
		if t, err := time.ParseInLocation(layout, strings.Join(rest[:n], " "), loc); err == nil {
			return sender, t, true
		}
	}
	return "", time.Time{}, false
}

func isSeparator(line []byte) bool {
	if len(line) < 5 || string(line[:5]) != "From " {
		return false
	}
	_, _, ok := ParseSeparator(string(line))
	return ok
}

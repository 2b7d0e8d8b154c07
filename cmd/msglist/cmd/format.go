package cmd

import (
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/wesm/msglist/internal/message"
	"github.com/wesm/msglist/internal/msglist"
)

const (
	fromWidth    = 24
	subjectWidth = 60
	dateLayout   = "2006-01-02 15:04"
)

var (
	unreadStyle  = lipgloss.NewStyle().Bold(true)
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	deletedStyle = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"})
)

// rowFormatter renders list rows as fixed-width text lines. Styling is
// applied only when writing to a terminal.
type rowFormatter struct {
	styled bool
}

func newRowFormatter(w io.Writer) *rowFormatter {
	return &rowFormatter{styled: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// flagColumn is a four-character summary: cursor/selection marker, then
// unread, flagged and deleted/junk markers.
func flagColumn(row msglist.Row) string {
	var b [4]byte
	for i := range b {
		b[i] = ' '
	}
	switch {
	case row.Cursor:
		b[0] = '>'
	case row.Selected:
		b[0] = '*'
	}
	r := row.Record
	if !r.Seen() {
		b[1] = 'N'
	}
	if r.Flags.Has(message.FlagFlagged) {
		b[2] = 'F'
	}
	switch {
	case r.Deleted():
		b[3] = 'D'
	case r.Junk():
		b[3] = 'J'
	}
	return string(b[:])
}

// displayName returns the name part of an address, or the address.
func displayName(from string) string {
	if a, err := mail.ParseAddress(from); err == nil {
		if a.Name != "" {
			return a.Name
		}
		return a.Address
	}
	return from
}

// fit truncates s to width display cells and pads it to exactly width.
func fit(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

// threadMarker shows whether a row has children and their state.
func threadMarker(row msglist.Row) string {
	switch {
	case !row.HasChildren:
		return "  "
	case row.Expanded:
		return "- "
	default:
		return "+ "
	}
}

// Format renders one row.
func (f *rowFormatter) Format(row msglist.Row) string {
	r := row.Record
	date := "-"
	if !r.DateReceived.IsZero() {
		date = r.DateReceived.Local().Format(dateLayout)
	}
	subject := strings.Repeat("  ", row.Depth) + threadMarker(row) + r.Subject

	line := strings.Join([]string{
		flagColumn(row),
		fit(date, len(dateLayout)),
		fit(displayName(r.From), fromWidth),
		fit(subject, subjectWidth),
		humanize.IBytes(uint64(max(r.Size, 0))),
	}, " ")

	if !f.styled {
		return line
	}
	switch {
	case row.Cursor:
		return cursorStyle.Render(line)
	case r.Deleted():
		return deletedStyle.Render(line)
	case !r.Seen():
		return unreadStyle.Render(line)
	}
	return line
}

// Info renders a status line.
func (f *rowFormatter) Info(s string) string {
	if !f.styled {
		return s
	}
	return infoStyle.Render(s)
}

// writeRows writes every visible row of l followed by the list's info
// message, if any.
func writeRows(w io.Writer, f *rowFormatter, l *msglist.List) error {
	for _, row := range l.Rows() {
		if _, err := io.WriteString(w, f.Format(row)+"\n"); err != nil {
			return err
		}
	}
	summary := humanize.Comma(int64(l.Count())) + " messages"
	if info := l.Info(); info != "" {
		summary = info
	}
	_, err := io.WriteString(w, f.Info(summary)+"\n")
	return err
}

package viewstate

// CursorCandidates lists where the cursor may move if the message under it
// disappears, nearest first. rows are the UIDs of the visible rows before
// the rebuild and cursorRow the cursor's index in them. Rows after the
// cursor come first, then rows before it, or the other way round when
// preferPrevious is set. UIDs for which skip returns true are left out.
func CursorCandidates(rows []string, cursorRow int, preferPrevious bool, skip func(uid string) bool) []string {
	if cursorRow < 0 || cursorRow >= len(rows) {
		return nil
	}
	out := make([]string, 0, len(rows)-1)
	forward := func() {
		for _, uid := range rows[cursorRow+1:] {
			if skip == nil || !skip(uid) {
				out = append(out, uid)
			}
		}
	}
	backward := func() {
		for i := cursorRow - 1; i >= 0; i-- {
			if skip == nil || !skip(rows[i]) {
				out = append(out, rows[i])
			}
		}
	}
	if preferPrevious {
		backward()
		forward()
	} else {
		forward()
		backward()
	}
	return out
}

// ClampRow maps a previous cursor row into a list of rowCount rows, or -1
// when the list is empty.
func ClampRow(row, rowCount int) int {
	switch {
	case rowCount == 0:
		return -1
	case row < 0:
		return 0
	case row >= rowCount:
		return rowCount - 1
	}
	return row
}

package state

import (
	tuitree "github.com/glabrego/tvguide-cli/internal/tui/tree"
)

func ClampCursor(cursor, size int) int {
	if size <= 0 {
		return 0
	}
	if cursor >= size {
		return size - 1
	}
	if cursor < 0 {
		return 0
	}
	return cursor
}

func PageStep(height int, hasStatus bool) int {
	if height <= 0 {
		return 10
	}
	headerLines := 6
	if hasStatus {
		headerLines += 2
	}
	step := height - headerLines
	if step < 3 {
		step = 3
	}
	return step
}

// ClampOffset keeps a scroll offset inside [0, totalRows-height].
func ClampOffset(offset, totalRows, height int) int {
	maxOffset := totalRows - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	if offset < 0 {
		return 0
	}
	return offset
}

// FollowCursor moves offset the least amount needed to keep cursor inside a
// viewport of height rows.
func FollowCursor(offset, cursor, totalRows, height int) int {
	if height <= 0 || totalRows <= height {
		return 0
	}
	cursor = ClampCursor(cursor, totalRows)
	if cursor < offset {
		offset = cursor
	}
	if cursor >= offset+height {
		offset = cursor - height + 1
	}
	return ClampOffset(offset, totalRows, height)
}

// Window returns the [start, end) rows shown for a scroll offset.
func Window(totalRows, offset, height int) (int, int) {
	if totalRows <= 0 {
		return 0, 0
	}
	if height <= 0 || totalRows <= height {
		return 0, totalRows
	}
	start := ClampOffset(offset, totalRows, height)
	return start, start + height
}

func CenteredWindow(totalRows, cursor, height int) (int, int) {
	if totalRows <= 0 {
		return 0, 0
	}
	if height <= 0 || totalRows <= height {
		return 0, totalRows
	}
	cursor = ClampCursor(cursor, totalRows)
	return Window(totalRows, cursor-height/2, height)
}

func VisibleChannelIndices(rows []tuitree.Row, start, end int) []int {
	if start < 0 {
		start = 0
	}
	if end > len(rows) {
		end = len(rows)
	}
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		if rows[i].Kind == tuitree.RowChannel {
			out = append(out, rows[i].ChannelIndex)
		}
	}
	return out
}

// SyncedChannelCursor returns the channel index nearest to the row cursor,
// searching forward first, or -1 when no channel row exists.
func SyncedChannelCursor(rows []tuitree.Row, cursor int) int {
	if len(rows) == 0 {
		return -1
	}
	cursor = ClampCursor(cursor, len(rows))
	if rows[cursor].Kind == tuitree.RowChannel {
		return rows[cursor].ChannelIndex
	}
	for i := cursor + 1; i < len(rows); i++ {
		if rows[i].Kind == tuitree.RowChannel {
			return rows[i].ChannelIndex
		}
	}
	for i := cursor - 1; i >= 0; i-- {
		if rows[i].Kind == tuitree.RowChannel {
			return rows[i].ChannelIndex
		}
	}
	return -1
}

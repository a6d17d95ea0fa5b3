package view

import (
	"math"
	"strings"

	"github.com/mattn/go-runewidth"

	tuitheme "github.com/glabrego/tvguide-cli/internal/tui/theme"
)

// GridBlock is one program already placed on the timeline, in cells.
type GridBlock struct {
	Title string
	Left  float64
	Width float64
	Live  bool
}

// AxisTick is a time label at a cell offset.
type AxisTick struct {
	Label string
	Left  float64
}

// RenderGridRow draws the blocks of one channel into a strip of width cells
// starting offset cells into the timeline. Blocks must be in start order;
// an overlapping block is clipped to begin where the previous one ended.
func RenderGridRow(blocks []GridBlock, offset, width int, th tuitheme.Theme) string {
	if width <= 0 {
		return ""
	}
	if len(blocks) == 0 {
		return th.BlockGap.Render(fitCells("  no listings", width))
	}
	var b strings.Builder
	pos := 0
	for _, blk := range blocks {
		start := int(math.Round(blk.Left)) - offset
		end := int(math.Round(blk.Left+blk.Width)) - offset
		start = max(start, pos)
		end = min(end, width)
		if start >= end {
			continue
		}
		if start > pos {
			b.WriteString(th.BlockGap.Render(strings.Repeat(" ", start-pos)))
		}
		style := th.Block
		if blk.Live {
			style = th.BlockLive
		}
		b.WriteString(style.Render(fitCells("▏"+strings.TrimSpace(blk.Title), end-start)))
		pos = end
		if pos >= width {
			break
		}
	}
	if pos < width {
		b.WriteString(th.BlockGap.Render(strings.Repeat(" ", width-pos)))
	}
	return b.String()
}

// RenderAxis draws the time labels and the now marker. nowLeft is negative
// when now is outside the window.
func RenderAxis(ticks []AxisTick, nowLeft float64, offset, width int, th tuitheme.Theme) string {
	if width <= 0 {
		return ""
	}
	cells := []rune(strings.Repeat(" ", width))
	for _, tick := range ticks {
		at := int(math.Round(tick.Left)) - offset
		label := []rune(tick.Label)
		if at < 0 || at+len(label) > width {
			continue
		}
		copy(cells[at:], label)
	}
	marker := -1
	if nowLeft >= 0 {
		if at := int(math.Floor(nowLeft)) - offset; at >= 0 && at < width {
			marker = at
		}
	}
	if marker < 0 {
		return th.Axis.Render(string(cells))
	}
	return th.Axis.Render(string(cells[:marker])) +
		th.NowMarker.Render("▼") +
		th.Axis.Render(string(cells[marker+1:]))
}

// fitCells truncates or pads s to exactly n cells.
func fitCells(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > n {
		s = runewidth.Truncate(s, n, "")
	}
	if pad := n - runewidth.StringWidth(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

package view

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	tuitheme "github.com/glabrego/tvguide-cli/internal/tui/theme"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

var reANSICodes = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type ChannelLineParams struct {
	Channel tvapi.Channel
	Now     time.Time
	Active  bool
	// Indent is set for channels listed under a group header.
	Indent bool
	// Width is the width of the name column; the grid follows it.
	Width int
}

// RenderChannelLine renders the fixed-width name column of a channel row.
func RenderChannelLine(p ChannelLineParams, th tuitheme.Theme) string {
	cursorMarker := " "
	if p.Active {
		cursorMarker = ">"
	}
	favMarker := " "
	if p.Channel.IsFavorite {
		favMarker = "★"
	}
	prefix := fmt.Sprintf("%s%s ", cursorMarker, favMarker)
	if p.Indent {
		prefix = "  " + prefix
	}
	available := p.Width - visibleLen(prefix)
	if available < 1 {
		available = 1
	}
	name := strings.TrimSpace(p.Channel.Name)
	if name == "" {
		name = p.Channel.ID
	}
	label := truncateCells(name, available)
	pad := available - visibleLen(label)
	if pad < 0 {
		pad = 0
	}
	return th.RenderActiveLine(p.Active, prefix+th.StyleChannelName(p.Channel, label)+strings.Repeat(" ", pad))
}

// RenderGroupLine renders a group header with its member count on the right.
func RenderGroupLine(name string, count int, expanded, failed bool, width int, active bool, th tuitheme.Theme) string {
	prefix := "▾ "
	if !expanded {
		prefix = "▸ "
	}
	left := prefix + th.Group.Render(name)
	if failed {
		left += " " + th.StateWarn.Render("!")
	}
	right := th.GroupCount.Render(fmt.Sprintf("%d", count))
	available := width - visibleLen(right) - 1
	if available < 1 {
		available = 1
	}
	if visibleLen(left) > available {
		left = prefix + th.Group.Render(truncateCells(name, available-visibleLen(prefix)))
	}
	gap := width - visibleLen(left) - visibleLen(right)
	if gap < 1 {
		gap = 1
	}
	return th.RenderActiveLine(active, left+strings.Repeat(" ", gap)+right)
}

// WatchedLabel describes when a channel was last played.
func WatchedLabel(now, then time.Time) string {
	if then.IsZero() {
		return "never"
	}
	if now.IsZero() {
		now = time.Now()
	}
	if then.After(now) {
		return "just now"
	}
	d := now.Sub(then)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", n)
	}
	if d < 24*time.Hour {
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", n)
	}
	n := int(d / (24 * time.Hour))
	if n == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", n)
}

func truncateCells(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 1 {
		return strings.Repeat(".", maxWidth)
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

func visibleLen(s string) int {
	return runewidth.StringWidth(stripANSIText(s))
}

func stripANSIText(s string) string {
	return reANSICodes.ReplaceAllString(s, "")
}

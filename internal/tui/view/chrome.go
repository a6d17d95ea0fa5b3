package view

import (
	"fmt"
	"strings"

	tuitheme "github.com/glabrego/tvguide-cli/internal/tui/theme"
)

func Toolbar(inDetail, searching bool) string {
	if searching {
		return "type to search | enter apply | esc cancel"
	}
	if inDetail {
		return "j/k scroll | [ ] prev/next program | enter play | f favorite | y copy URL | esc back | ? help"
	}
	return "j/k move | tab switch | / search | enter play | i info | f favorite | R/E/X refresh | ? help"
}

func HelpLines() []string {
	return []string{
		"j/k, arrows     move cursor",
		"g/G             top / bottom",
		"pgup/pgdown     page",
		"tab, 1/2/3      switch tab (All, Favorites, Recent)",
		"space, h/l      collapse / expand group",
		"< > n           pan the grid / back to now",
		"/               search (ctrl+l clears)",
		"enter           play channel",
		"i               program details",
		"f               toggle favorite",
		"y               copy stream URL",
		"r               reload tab",
		"R / E / X       refresh playlist / guide / hard reset",
		"ctrl+x          cancel running refreshes",
		"q, ctrl+c       quit",
	}
}

// TabBar renders the tab titles with the active one highlighted.
func TabBar(titles []string, active int, th tuitheme.Theme) string {
	parts := make([]string, 0, len(titles))
	for i, title := range titles {
		if i == active {
			parts = append(parts, th.TabActive.Render(title))
			continue
		}
		parts = append(parts, th.TabIdle.Render(title))
	}
	return strings.Join(parts, " ")
}

func Footer(tab, phase string, shown int, searchQuery, window string, th tuitheme.Theme) string {
	parts := []string{
		th.MetaLabel.Render("tab") + " " + th.MetaValue.Render(tab),
		th.MetaLabel.Render("state") + " " + th.MetaValue.Render(phase),
		th.MetaValue.Render(fmt.Sprintf("%d channels", shown)),
	}
	if window != "" {
		parts = append(parts, th.MetaLabel.Render("window")+" "+th.MetaValue.Render(window))
	}
	if searchQuery != "" {
		parts = append(parts, th.MetaLabel.Render("search")+" "+th.MetaValue.Render(fmt.Sprintf("%q", searchQuery)))
	}
	return strings.Join(parts, " • ")
}

func Message(loading bool, hasWarning bool, status, warning string, th tuitheme.Theme) string {
	state := "idle"
	if loading {
		state = "loading"
	}
	if hasWarning {
		state = "warning"
	}
	main := "Ready"
	if status != "" {
		main = status
	} else if hasWarning {
		main = warning
	}
	stateLabel := th.StateIdle.Render("state")
	switch state {
	case "warning":
		stateLabel = th.StateWarn.Render("state")
	case "loading":
		stateLabel = th.StateLoad.Render("state")
	}
	return fmt.Sprintf("%s: %s | %s", stateLabel, state, th.MetaValue.Render(main))
}

// RefreshLine renders one refresh run: title, bar, and the latest message.
func RefreshLine(title, bar, message string, width int, th tuitheme.Theme) string {
	line := th.MetaLabel.Render(title) + " " + bar
	if message = strings.TrimSpace(message); message != "" {
		available := width - visibleLen(line) - 1
		if available > 0 {
			line += " " + th.MetaValue.Render(truncateCells(message, available))
		}
	}
	return line
}

package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

type Theme struct {
	Title      lipgloss.Style
	TabActive  lipgloss.Style
	TabIdle    lipgloss.Style
	Group      lipgloss.Style
	GroupCount lipgloss.Style
	ActiveLine lipgloss.Style
	MetaLabel  lipgloss.Style
	MetaValue  lipgloss.Style
	StateIdle  lipgloss.Style
	StateWarn  lipgloss.Style
	StateLoad  lipgloss.Style

	ChannelPlain    lipgloss.Style
	ChannelFavorite lipgloss.Style
	ChannelMissing  lipgloss.Style

	Block     lipgloss.Style
	BlockLive lipgloss.Style
	BlockGap  lipgloss.Style
	NowMarker lipgloss.Style
	Axis      lipgloss.Style
}

func Default() Theme {
	cpMauve := lipgloss.Color("#cba6f7")
	cpRed := lipgloss.Color("#f38ba8")
	cpPeach := lipgloss.Color("#fab387")
	cpYellow := lipgloss.Color("#f9e2af")
	cpGreen := lipgloss.Color("#a6e3a1")
	cpTeal := lipgloss.Color("#94e2d5")
	cpLavender := lipgloss.Color("#b4befe")
	cpText := lipgloss.Color("#cdd6f4")
	cpSubtext0 := lipgloss.Color("#a6adc8")
	cpSubtext1 := lipgloss.Color("#bac2de")
	cpOverlay0 := lipgloss.Color("#6c7086")
	cpOverlay1 := lipgloss.Color("#7f849c")
	cpSurface0 := lipgloss.Color("#313244")
	cpSurface1 := lipgloss.Color("#45475a")

	return Theme{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(cpMauve),
		TabActive:  lipgloss.NewStyle().Foreground(cpLavender).Background(cpSurface0).Padding(0, 1).Bold(true),
		TabIdle:    lipgloss.NewStyle().Foreground(cpOverlay1).Padding(0, 1),
		Group:      lipgloss.NewStyle().Bold(true).Foreground(cpTeal),
		GroupCount: lipgloss.NewStyle().Foreground(cpYellow).Bold(true),
		ActiveLine: lipgloss.NewStyle().Background(cpSurface0).Foreground(cpText),
		MetaLabel:  lipgloss.NewStyle().Foreground(cpOverlay1),
		MetaValue:  lipgloss.NewStyle().Foreground(cpSubtext1),
		StateIdle:  lipgloss.NewStyle().Foreground(cpGreen),
		StateWarn:  lipgloss.NewStyle().Foreground(cpRed),
		StateLoad:  lipgloss.NewStyle().Foreground(cpPeach),

		ChannelPlain:    lipgloss.NewStyle().Foreground(cpText),
		ChannelFavorite: lipgloss.NewStyle().Bold(true).Foreground(cpYellow),
		ChannelMissing: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(cpOverlay0),

		Block:     lipgloss.NewStyle().Foreground(cpSubtext0).Background(cpSurface1),
		BlockLive: lipgloss.NewStyle().Foreground(cpText).Background(cpSurface0).Bold(true),
		BlockGap:  lipgloss.NewStyle().Foreground(cpOverlay0),
		NowMarker: lipgloss.NewStyle().Foreground(cpRed).Bold(true),
		Axis:      lipgloss.NewStyle().Foreground(cpOverlay1),
	}
}

// StyleChannelName styles a channel name by its state. A channel missing
// from the last playlist wins over favorite.
func (t Theme) StyleChannelName(ch tvapi.Channel, name string) string {
	if name == "" {
		return name
	}
	switch {
	case ch.IsMissing:
		return t.ChannelMissing.Render(name)
	case ch.IsFavorite:
		return t.ChannelFavorite.Render(name)
	default:
		return t.ChannelPlain.Render(name)
	}
}

func (t Theme) RenderActiveLine(active bool, line string) string {
	if !active {
		return line
	}
	return t.ActiveLine.Render(line)
}

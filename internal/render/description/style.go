package description

import "github.com/charmbracelet/lipgloss"

var (
	cpBlue     = lipgloss.Color("#89b4fa")
	cpLavender = lipgloss.Color("#b4befe")
	cpPeach    = lipgloss.Color("#fab387")
	cpSubtext0 = lipgloss.Color("#a6adc8")
	cpOverlay0 = lipgloss.Color("#6c7086")
	cpOverlay1 = lipgloss.Color("#7f849c")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(cpLavender)
	metaStyle    = lipgloss.NewStyle().Foreground(cpOverlay0)
	liveStyle    = lipgloss.NewStyle().Bold(true).Foreground(cpPeach)
	linkURLStyle = lipgloss.NewStyle().Foreground(cpBlue).Faint(true)
	quotePrefix  = lipgloss.NewStyle().Foreground(cpOverlay1).Render("│ ")
	quoteText    = lipgloss.NewStyle().Italic(true).Foreground(cpSubtext0)
)

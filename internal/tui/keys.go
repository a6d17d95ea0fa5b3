package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit        key.Binding
	Help        key.Binding
	Back        key.Binding
	Up          key.Binding
	Down        key.Binding
	Top         key.Binding
	Bottom      key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	NextTab     key.Binding
	PrevTab     key.Binding
	TabAll      key.Binding
	TabFav      key.Binding
	TabRecent   key.Binding
	Toggle      key.Binding
	Collapse    key.Binding
	Expand      key.Binding
	PanLeft     key.Binding
	PanRight    key.Binding
	PanNow      key.Binding
	Search      key.Binding
	ClearSearch key.Binding
	Play        key.Binding
	Info        key.Binding
	Favorite    key.Binding
	Copy        key.Binding
	Reload      key.Binding
	Playlist    key.Binding
	Guide       key.Binding
	HardReset   key.Binding
	Cancel      key.Binding
	PrevProgram key.Binding
	NextProgram key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Back:        key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j", "down")),
		Top:         key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
		Bottom:      key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
		PageUp:      key.NewBinding(key.WithKeys("pgup", "ctrl+b"), key.WithHelp("pgup", "page up")),
		PageDown:    key.NewBinding(key.WithKeys("pgdown", "ctrl+f"), key.WithHelp("pgdown", "page down")),
		NextTab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		PrevTab:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous tab")),
		TabAll:      key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "all")),
		TabFav:      key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "favorites")),
		TabRecent:   key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "recent")),
		Toggle:      key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "toggle group")),
		Collapse:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("h", "collapse")),
		Expand:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("l", "expand")),
		PanLeft:     key.NewBinding(key.WithKeys("<", ","), key.WithHelp("<", "earlier")),
		PanRight:    key.NewBinding(key.WithKeys(">", "."), key.WithHelp(">", "later")),
		PanNow:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "now")),
		Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		ClearSearch: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear search")),
		Play:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		Info:        key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "details")),
		Favorite:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		Copy:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy URL")),
		Reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Playlist:    key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh playlist")),
		Guide:       key.NewBinding(key.WithKeys("E"), key.WithHelp("E", "refresh guide")),
		HardReset:   key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "hard reset")),
		Cancel:      key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "cancel refresh")),
		PrevProgram: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "previous program")),
		NextProgram: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next program")),
	}
}

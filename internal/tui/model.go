package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/app"
	"github.com/glabrego/tvguide-cli/internal/config"
	"github.com/glabrego/tvguide-cli/internal/guide"
	"github.com/glabrego/tvguide-cli/internal/timegrid"
	"github.com/glabrego/tvguide-cli/internal/tui/actions"
	"github.com/glabrego/tvguide-cli/internal/tui/platform"
	"github.com/glabrego/tvguide-cli/internal/tui/state"
	tuitheme "github.com/glabrego/tvguide-cli/internal/tui/theme"
	tuitree "github.com/glabrego/tvguide-cli/internal/tui/tree"
	"github.com/glabrego/tvguide-cli/internal/tui/view"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

const (
	scrollDebounce  = 400 * time.Millisecond
	resetConfirmFor = 4 * time.Second
)

var refreshOrder = []app.RefreshKind{app.RefreshPlaylist, app.RefreshGuide, app.RefreshReset}

// Streamer resolves the URL a player should open for a channel.
type Streamer interface {
	StreamURL(ch tvapi.Channel) (string, error)
}

// RefreshControl starts, cancels and reports background refresh runs.
type RefreshControl interface {
	actions.Refresher
	Cancel(id string) bool
	LastCompleted(kind app.RefreshKind) time.Time
}

type Options struct {
	Player  string
	Refresh config.RefreshConfig
	Now     func() time.Time
	// Launch opens a stream URL; defaults to the configured player.
	Launch     func(string) error
	Copy       func(string) error
	RenderLogo func(context.Context, string, int) (string, error)
	Log        pslog.Logger
}

type Model struct {
	guide   *guide.Controller
	streams Streamer
	refresh RefreshControl
	opts    Options
	log     pslog.Logger
	keys    keyMap
	theme   tuitheme.Theme

	search  textinput.Model
	spinner spinner.Model
	bar     progressbar.Model
	updates chan app.Run
	runs    map[app.RefreshKind]app.Run

	width         int
	height        int
	cursor        int
	offset        int
	gridOffset    int
	gridPinned    bool
	searching     bool
	showHelp      bool
	inDetail      bool
	detailTop     int
	detailProgram int
	loading       bool
	status        string
	statusID      int
	err           error
	scrollSeq     int
	resetArmedAt  time.Time
	selected      string
	pendingFav    map[string]bool
	logo          map[string]string
	logoErr       map[string]string
	logoLoading   map[string]bool
}

func NewModel(g *guide.Controller, streams Streamer, refresh RefreshControl, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = pslog.Ctx(context.Background())
	}
	if opts.Launch == nil {
		player := opts.Player
		opts.Launch = func(streamURL string) error {
			return platform.LaunchPlayer(player, streamURL)
		}
	}
	if opts.Copy == nil {
		opts.Copy = platform.CopyToClipboard
	}
	if opts.RenderLogo == nil {
		opts.RenderLogo = view.RenderLogoPreview
	}

	th := tuitheme.Default()
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "channel name"
	search.CharLimit = 120

	spin := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(th.StateLoad))
	bar := progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(30))

	return Model{
		guide:       g,
		streams:     streams,
		refresh:     refresh,
		opts:        opts,
		log:         opts.Log,
		keys:        defaultKeyMap(),
		theme:       th,
		search:      search,
		spinner:     spin,
		bar:         bar,
		updates:     make(chan app.Run, 64),
		runs:        make(map[app.RefreshKind]app.Run),
		loading:     true,
		pendingFav:  make(map[string]bool),
		logo:        make(map[string]string),
		logoErr:     make(map[string]string),
		logoLoading: make(map[string]bool),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		actions.LoadTabCmd(m.guide, m.guide.ActiveTab(), "init"),
		m.spinner.Tick,
		actions.TickCmd(m.opts.Now()),
	}
	if m.refresh != nil {
		cmds = append(cmds, actions.ListenRefreshCmd(m.updates))
		cmds = append(cmds, m.startupRefreshCmds()...)
	}
	return tea.Batch(cmds...)
}

// startupRefreshCmds starts the playlist and guide refreshes that are due.
func (m Model) startupRefreshCmds() []tea.Cmd {
	cfg := m.opts.Refresh
	if !cfg.UpdateOnStart {
		return nil
	}
	now := m.opts.Now()
	cmds := make([]tea.Cmd, 0, 2)
	if cfg.M3UURL != "" && app.NeedsRefresh(m.refresh.LastCompleted(app.RefreshPlaylist), cfg.M3UIntervalHours, false, now) {
		cmds = append(cmds, actions.StartRefreshCmd(m.refresh, app.RefreshPlaylist, m.refreshRequest(app.RefreshPlaylist, false), m.updates))
	}
	if cfg.EPGURL != "" && app.NeedsRefresh(m.refresh.LastCompleted(app.RefreshGuide), cfg.EPGIntervalHours, false, now) {
		cmds = append(cmds, actions.StartRefreshCmd(m.refresh, app.RefreshGuide, m.refreshRequest(app.RefreshGuide, false), m.updates))
	}
	return cmds
}

func (m Model) refreshRequest(kind app.RefreshKind, force bool) tvapi.RefreshRequest {
	req := tvapi.RefreshRequest{Force: force}
	switch kind {
	case app.RefreshPlaylist:
		req.URL = m.opts.Refresh.M3UURL
		req.IntervalHours = m.opts.Refresh.M3UIntervalHours
	case app.RefreshGuide:
		req.URL = m.opts.Refresh.EPGURL
		req.IntervalHours = m.opts.Refresh.EPGIntervalHours
	}
	return req
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.guide.Resize(m.gridWidth())
		m.search.Width = max(10, m.width-12)
		m.bar.Width = max(10, min(40, m.width/3))
		if !m.gridPinned {
			m.followNow()
		}
		m.clampGrid()
		v := m.guide.View()
		m.offset = state.FollowCursor(m.offset, m.cursor, len(v.Rows), m.bodyHeight())
		return m, m.ensureProgramsCmd(v)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	case actions.TabLoadedMsg:
		m.loading = false
		if msg.ScrollErr != nil {
			m.log.Warn("scroll offset not saved", "err", msg.ScrollErr)
		}
		v := m.guide.View()
		if msg.Source != "reload" {
			m.restoreScroll(v)
		} else {
			m.restoreSelection(v)
		}
		m.err = msg.Err
		if msg.Err != nil {
			m.log.Warn("tab load failed", "tab", string(msg.Tab), "source", msg.Source, "err", msg.Err)
		} else if msg.Source == "init" {
			m.status = fmt.Sprintf("Loaded %d channels in %s", channelCount(v), msg.Duration.Round(time.Millisecond))
		}
		return m, m.ensureProgramsCmd(v)
	case actions.GroupToggledMsg:
		m.loading = false
		v := m.guide.View()
		m.clampCursor(v)
		if msg.Err != nil {
			m.err = fmt.Errorf("group %s: %w", msg.Group, msg.Err)
			return m, nil
		}
		m.err = nil
		return m, m.ensureProgramsCmd(v)
	case actions.SearchAppliedMsg:
		m.loading = false
		v := m.guide.View()
		m.cursor = tuitree.FirstChannelRow(v.Rows)
		m.offset = 0
		m.err = msg.Err
		return m, tea.Batch(m.scheduleScrollSave(), m.ensureProgramsCmd(v))
	case actions.ProgramsLoadedMsg:
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = fmt.Errorf("listings: %w", msg.Err)
		}
		return m, nil
	case actions.FavoriteToggledMsg:
		delete(m.pendingFav, msg.Channel.ID)
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		return m.withStatus(msg.Status, 3*time.Second)
	case actions.PlaySuccessMsg:
		if msg.WatchErr != nil {
			m.log.Warn("watch not recorded", "channel", msg.Channel.ID, "err", msg.WatchErr)
		}
		return m.withStatus(msg.Status, 3*time.Second)
	case actions.PlayErrorMsg:
		return m.withStatus(msg.Err.Error(), 4*time.Second)
	case actions.CopySuccessMsg:
		return m.withStatus(msg.Status, 3*time.Second)
	case actions.CopyErrorMsg:
		return m.withStatus(msg.Err.Error(), 4*time.Second)
	case actions.RefreshStartedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		if prev, ok := m.runs[msg.Run.Kind]; !ok || prev.ID != msg.Run.ID {
			m.runs[msg.Run.Kind] = msg.Run
		}
		if !msg.Started {
			return m.withStatus(msg.Run.Kind.Title()+" refresh already running", 3*time.Second)
		}
		return m, nil
	case actions.RefreshUpdateMsg:
		run := msg.Run
		prev, seen := m.runs[run.Kind]
		m.runs[run.Kind] = run
		cmds := []tea.Cmd{actions.ListenRefreshCmd(m.updates)}
		if run.Status.IsFinished() && (!seen || prev.ID != run.ID || !prev.Status.IsFinished()) {
			cmds = append(cmds, m.refreshFinished(run))
		}
		return m, tea.Batch(cmds...)
	case actions.ScrollDebounceMsg:
		if msg.Seq != m.scrollSeq {
			return m, nil
		}
		return m, actions.SaveScrollCmd(m.guide, msg.Tab, m.offset)
	case actions.ScrollSavedMsg:
		if msg.Err != nil {
			m.log.Warn("scroll offset not saved", "err", msg.Err)
		}
		return m, nil
	case actions.TickMsg:
		rolled := m.guide.SetNow(msg.Now)
		if !m.gridPinned {
			m.followNow()
		}
		cmds := []tea.Cmd{actions.TickCmd(msg.Now)}
		if rolled {
			m.clampGrid()
			cmds = append(cmds, m.ensureProgramsCmd(m.guide.View()))
		}
		return m, tea.Batch(cmds...)
	case actions.ClearStatusMsg:
		if msg.ID == m.statusID {
			m.status = ""
		}
		return m, nil
	case actions.LogoPreviewMsg:
		delete(m.logoLoading, msg.ChannelID)
		if msg.Err != nil {
			m.logoErr[msg.ChannelID] = msg.Err.Error()
			return m, nil
		}
		delete(m.logoErr, msg.ChannelID)
		m.logo[msg.ChannelID] = msg.Raw
		return m, nil
	}

	if m.searching {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}
	if key.Matches(msg, m.keys.Help) {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Back):
			m.showHelp = false
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		return m.cancelRefreshes()
	case key.Matches(msg, m.keys.Playlist):
		return m.startRefresh(app.RefreshPlaylist)
	case key.Matches(msg, m.keys.Guide):
		return m.startRefresh(app.RefreshGuide)
	case key.Matches(msg, m.keys.HardReset):
		return m.startRefresh(app.RefreshReset)
	}
	if m.inDetail {
		return m.handleDetailKey(msg)
	}

	v := m.guide.View()
	switch {
	case key.Matches(msg, m.keys.Up):
		return m, m.moveCursor(v, -1)
	case key.Matches(msg, m.keys.Down):
		return m, m.moveCursor(v, 1)
	case key.Matches(msg, m.keys.Top):
		return m, m.moveCursor(v, -len(v.Rows))
	case key.Matches(msg, m.keys.Bottom):
		return m, m.moveCursor(v, len(v.Rows))
	case key.Matches(msg, m.keys.PageUp):
		return m, m.moveCursor(v, -state.PageStep(m.height, m.status != ""))
	case key.Matches(msg, m.keys.PageDown):
		return m, m.moveCursor(v, state.PageStep(m.height, m.status != ""))
	case key.Matches(msg, m.keys.NextTab):
		return m.switchTab(m.tabAt(v.Tab, 1))
	case key.Matches(msg, m.keys.PrevTab):
		return m.switchTab(m.tabAt(v.Tab, -1))
	case key.Matches(msg, m.keys.TabAll):
		return m.switchTab(state.TabAll)
	case key.Matches(msg, m.keys.TabFav):
		return m.switchTab(state.TabFavorites)
	case key.Matches(msg, m.keys.TabRecent):
		return m.switchTab(state.TabRecent)
	case key.Matches(msg, m.keys.Toggle):
		if row, ok := m.currentRow(v); ok && row.Kind == tuitree.RowGroup {
			return m.toggleGroup(row.Group.Name)
		}
		return m, nil
	case key.Matches(msg, m.keys.Collapse):
		row, ok := m.currentRow(v)
		if !ok {
			return m, nil
		}
		if row.Kind == tuitree.RowGroup {
			if row.Group.Expanded {
				return m.toggleGroup(row.Group.Name)
			}
			return m, nil
		}
		if header := tuitree.HeaderIndex(v.Rows, m.cursor); header >= 0 {
			return m, m.moveCursor(v, header-m.cursor)
		}
		return m, nil
	case key.Matches(msg, m.keys.Expand):
		if row, ok := m.currentRow(v); ok && row.Kind == tuitree.RowGroup && !row.Group.Expanded {
			return m.toggleGroup(row.Group.Name)
		}
		return m, nil
	case key.Matches(msg, m.keys.PanLeft):
		m.gridPinned = true
		m.gridOffset -= max(1, m.gridWidth()/2)
		m.clampGrid()
		return m, nil
	case key.Matches(msg, m.keys.PanRight):
		m.gridPinned = true
		m.gridOffset += max(1, m.gridWidth()/2)
		m.clampGrid()
		return m, nil
	case key.Matches(msg, m.keys.PanNow):
		m.gridPinned = false
		m.followNow()
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.SetValue(v.State.SearchText)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.ClearSearch):
		if v.State.SearchText == "" {
			return m, nil
		}
		m.loading = true
		return m, actions.SearchCmd(m.guide, "")
	case key.Matches(msg, m.keys.Play):
		row, ok := m.currentRow(v)
		if !ok {
			return m, nil
		}
		if row.Kind == tuitree.RowGroup {
			return m.toggleGroup(row.Group.Name)
		}
		return m.play(v.Channels[row.ChannelIndex])
	case key.Matches(msg, m.keys.Info):
		idx := state.SyncedChannelCursor(v.Rows, m.cursor)
		if idx < 0 || idx >= len(v.Channels) {
			return m, nil
		}
		if row := tuitree.ChannelRow(v.Rows, v.Channels, v.Channels[idx].ID); row >= 0 && row != m.cursor {
			m.cursor = row
			m.offset = state.FollowCursor(m.offset, m.cursor, len(v.Rows), m.bodyHeight())
		}
		ch := m.displayed(v.Channels[idx])
		m.inDetail = true
		m.detailTop = 0
		m.detailProgram = m.liveProgramIndex(ch.ID)
		return m, tea.Batch(m.logoCmd(ch), actions.EnsureProgramsCmd(m.guide, []string{ch.ID}))
	case key.Matches(msg, m.keys.Favorite):
		if ch, ok := m.currentChannel(v); ok {
			return m.toggleFavorite(ch)
		}
		return m, nil
	case key.Matches(msg, m.keys.Copy):
		if ch, ok := m.currentChannel(v); ok {
			return m.copyStreamURL(ch)
		}
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		m.loading = true
		m.err = nil
		m.keepSelection(v)
		return m, actions.ReloadCmd(m.guide, v.Tab)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.searching = false
		m.search.Blur()
		return m, nil
	case "enter":
		m.searching = false
		m.search.Blur()
		m.loading = true
		return m, actions.SearchCmd(m.guide, strings.TrimSpace(m.search.Value()))
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := m.guide.View()
	ch, ok := m.currentChannel(v)
	if !ok {
		m.inDetail = false
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Back):
		m.inDetail = false
		m.detailTop = 0
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.detailTop > 0 {
			m.detailTop--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		maxTop := view.DetailMaxTop(len(m.detailLines(ch)), m.bodyHeight())
		if m.detailTop < maxTop {
			m.detailTop++
		}
		return m, nil
	case key.Matches(msg, m.keys.PrevProgram):
		if m.detailProgram > 0 {
			m.detailProgram--
			m.detailTop = 0
		}
		return m, nil
	case key.Matches(msg, m.keys.NextProgram):
		programs, _ := m.guide.Programs(ch.ID)
		if m.detailProgram < len(programs)-1 {
			m.detailProgram++
			m.detailTop = 0
		}
		return m, nil
	case key.Matches(msg, m.keys.Play):
		return m.play(ch)
	case key.Matches(msg, m.keys.Favorite):
		return m.toggleFavorite(ch)
	case key.Matches(msg, m.keys.Copy):
		return m.copyStreamURL(ch)
	}
	return m, nil
}

func (m Model) switchTab(id state.TabID) (tea.Model, tea.Cmd) {
	if id == m.guide.ActiveTab() {
		return m, nil
	}
	m.loading = true
	m.inDetail = false
	m.err = nil
	// Drops a pending debounced save that would land on the new tab.
	m.scrollSeq++
	return m, actions.SwitchTabCmd(m.guide, m.guide.ActiveTab(), m.offset, id)
}

func (m Model) tabAt(current state.TabID, delta int) state.TabID {
	n := len(state.Tabs)
	for i, id := range state.Tabs {
		if id == current {
			return state.Tabs[((i+delta)%n+n)%n]
		}
	}
	return state.TabAll
}

func (m Model) toggleGroup(name string) (tea.Model, tea.Cmd) {
	m.loading = true
	return m, actions.ToggleGroupCmd(m.guide, name)
}

func (m Model) toggleFavorite(ch tvapi.Channel) (tea.Model, tea.Cmd) {
	if _, pending := m.pendingFav[ch.ID]; pending {
		return m, nil
	}
	m.pendingFav[ch.ID] = !ch.IsFavorite
	return m, actions.ToggleFavoriteCmd(m.guide, ch.ID)
}

func (m Model) play(ch tvapi.Channel) (tea.Model, tea.Cmd) {
	streamURL, err := m.streams.StreamURL(ch)
	if err != nil {
		return m.withStatus(fmt.Sprintf("Cannot play %s: %v", ch.Name, err), 4*time.Second)
	}
	m.status = "Starting " + ch.Name + "..."
	return m, actions.PlayCmd(m.guide, ch, streamURL, m.opts.Launch)
}

func (m Model) copyStreamURL(ch tvapi.Channel) (tea.Model, tea.Cmd) {
	streamURL, err := m.streams.StreamURL(ch)
	if err != nil {
		return m.withStatus(fmt.Sprintf("No stream URL: %v", err), 4*time.Second)
	}
	return m, actions.CopyURLCmd(streamURL, m.opts.Copy)
}

func (m Model) startRefresh(kind app.RefreshKind) (tea.Model, tea.Cmd) {
	if m.refresh == nil {
		return m, nil
	}
	if kind == app.RefreshReset {
		now := m.opts.Now()
		if m.resetArmedAt.IsZero() || now.Sub(m.resetArmedAt) > resetConfirmFor {
			m.resetArmedAt = now
			return m.withStatus("Press X again to wipe and reload all channels", resetConfirmFor)
		}
		m.resetArmedAt = time.Time{}
	}
	m.err = nil
	return m, actions.StartRefreshCmd(m.refresh, kind, m.refreshRequest(kind, true), m.updates)
}

func (m Model) cancelRefreshes() (tea.Model, tea.Cmd) {
	if m.refresh == nil {
		return m, nil
	}
	cancelled := 0
	for _, kind := range refreshOrder {
		run, ok := m.runs[kind]
		if ok && run.Status.IsActive() && m.refresh.Cancel(run.ID) {
			cancelled++
		}
	}
	if cancelled == 0 {
		return m.withStatus("No refresh running", 2*time.Second)
	}
	return m.withStatus(fmt.Sprintf("Cancelling %d refresh(es)", cancelled), 3*time.Second)
}

// refreshFinished reacts to the end of a run: reload what the backend
// changed and report the outcome.
func (m *Model) refreshFinished(run app.Run) tea.Cmd {
	title := run.Kind.Title()
	switch run.Status {
	case app.RunFailed:
		m.err = fmt.Errorf("%s refresh: %w", strings.ToLower(title), run.Err)
		return nil
	case app.RunCancelled:
		m.status = title + " refresh cancelled"
		return nil
	}

	msg := run.Message
	if msg == "" {
		msg = title + " refresh finished"
	}
	m.status = msg
	switch run.Kind {
	case app.RefreshGuide:
		m.guide.InvalidatePrograms()
		return m.ensureProgramsCmd(m.guide.View())
	default:
		if run.Kind == app.RefreshReset {
			m.guide.InvalidatePrograms()
		}
		m.loading = true
		m.keepSelection(m.guide.View())
		return actions.ReloadCmd(m.guide, m.guide.ActiveTab())
	}
}

func (m *Model) withStatus(status string, ttl time.Duration) (tea.Model, tea.Cmd) {
	m.status = status
	m.statusID++
	return *m, actions.ClearStatusCmd(m.statusID, ttl)
}

func (m *Model) moveCursor(v guide.View, delta int) tea.Cmd {
	if len(v.Rows) == 0 {
		return nil
	}
	m.cursor = state.ClampCursor(m.cursor+delta, len(v.Rows))
	return m.followCursor(v)
}

func (m *Model) followCursor(v guide.View) tea.Cmd {
	next := state.FollowCursor(m.offset, m.cursor, len(v.Rows), m.bodyHeight())
	if next == m.offset {
		return nil
	}
	m.offset = next
	return tea.Batch(m.scheduleScrollSave(), m.ensureProgramsCmd(v))
}

func (m *Model) scheduleScrollSave() tea.Cmd {
	m.scrollSeq++
	return actions.DebounceScrollCmd(m.scrollSeq, m.guide.ActiveTab(), scrollDebounce)
}

// restoreScroll applies the persisted offset of the active tab and puts the
// cursor on the first channel in view.
func (m *Model) restoreScroll(v guide.View) {
	m.offset = state.ClampOffset(v.State.ScrollOffset, len(v.Rows), m.bodyHeight())
	m.cursor = m.offset
	for i := m.offset; i < len(v.Rows); i++ {
		if v.Rows[i].Kind == tuitree.RowChannel {
			m.cursor = i
			break
		}
	}
	m.cursor = state.ClampCursor(m.cursor, len(v.Rows))
}

// keepSelection remembers the channel under the cursor so a reload that
// reorders rows can put the cursor back on it.
func (m *Model) keepSelection(v guide.View) {
	m.selected = ""
	if ch, ok := m.currentChannel(v); ok {
		m.selected = ch.ID
	}
}

func (m *Model) restoreSelection(v guide.View) {
	id := m.selected
	m.selected = ""
	row := -1
	if id != "" {
		row = tuitree.ChannelRow(v.Rows, v.Channels, id)
	}
	if row < 0 {
		m.clampCursor(v)
		return
	}
	m.cursor = row
	height := m.bodyHeight()
	if row < m.offset || row >= m.offset+height {
		m.offset, _ = state.CenteredWindow(len(v.Rows), row, height)
	}
}

func (m *Model) clampCursor(v guide.View) {
	m.cursor = state.ClampCursor(m.cursor, len(v.Rows))
	m.offset = state.FollowCursor(m.offset, m.cursor, len(v.Rows), m.bodyHeight())
}

func (m Model) currentRow(v guide.View) (tuitree.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(v.Rows) {
		return tuitree.Row{}, false
	}
	return v.Rows[m.cursor], true
}

func (m Model) currentChannel(v guide.View) (tvapi.Channel, bool) {
	row, ok := m.currentRow(v)
	if !ok || row.Kind != tuitree.RowChannel || row.ChannelIndex >= len(v.Channels) {
		return tvapi.Channel{}, false
	}
	return m.displayed(v.Channels[row.ChannelIndex]), true
}

// displayed applies a pending favorite flip so the row reflects the action
// before the backend answers.
func (m Model) displayed(ch tvapi.Channel) tvapi.Channel {
	if target, ok := m.pendingFav[ch.ID]; ok {
		ch.IsFavorite = target
	}
	return ch
}

func (m Model) ensureProgramsCmd(v guide.View) tea.Cmd {
	start, end := state.Window(len(v.Rows), m.offset, m.bodyHeight())
	indices := state.VisibleChannelIndices(v.Rows, start, end)
	ids := make([]string, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(v.Channels) {
			ids = append(ids, v.Channels[idx].ID)
		}
	}
	return actions.EnsureProgramsCmd(m.guide, ids)
}

func (m Model) logoCmd(ch tvapi.Channel) tea.Cmd {
	if strings.TrimSpace(ch.Logo) == "" || m.logoLoading[ch.ID] {
		return nil
	}
	if _, ok := m.logo[ch.ID]; ok {
		return nil
	}
	if _, ok := m.logoErr[ch.ID]; ok {
		return nil
	}
	m.logoLoading[ch.ID] = true
	return actions.LogoPreviewCmd(ch.ID, ch.Logo, min(32, m.contentWidth()), m.opts.RenderLogo)
}

func (m Model) liveProgramIndex(channelID string) int {
	programs, _ := m.guide.Programs(channelID)
	now := m.guide.Now()
	for i, p := range programs {
		if now.Before(p.End.Time) {
			return i
		}
	}
	return 0
}

func (m Model) nameWidth() int {
	if m.width <= 0 {
		return 24
	}
	return min(32, max(14, m.width/4))
}

func (m Model) gridWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(10, m.width-m.nameWidth()-1)
}

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(20, m.width-4)
}

func (m Model) gridCells() int {
	w := m.guide.Window()
	return int(math.Ceil(w.WallMinutes() * m.guide.Scale()))
}

func (m *Model) clampGrid() {
	maxOffset := m.gridCells() - m.gridWidth()
	if m.gridOffset > maxOffset {
		m.gridOffset = maxOffset
	}
	if m.gridOffset < 0 {
		m.gridOffset = 0
	}
}

// followNow scrolls the grid so now sits a quarter into the visible strip.
func (m *Model) followNow() {
	w := m.guide.Window()
	now := m.guide.Now()
	if !w.Contains(now) {
		m.gridOffset = 0
		return
	}
	m.gridOffset = int(w.Offset(now, m.guide.Scale())) - m.gridWidth()/4
	m.clampGrid()
}

func (m Model) activeRuns() []app.Run {
	out := make([]app.Run, 0, len(m.runs))
	for _, kind := range refreshOrder {
		if run, ok := m.runs[kind]; ok {
			out = append(out, run)
		}
	}
	return out
}

// bodyHeight is the number of list rows that fit between header and footer.
func (m Model) bodyHeight() int {
	if m.height <= 0 {
		return 20
	}
	// title, toolbar, blank, axis; blank, message, footer; one per run.
	chrome := 7 + len(m.runs)
	return max(3, m.height-chrome)
}

func (m Model) View() string {
	v := m.guide.View()
	var b strings.Builder
	b.WriteString(m.header(v))
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString("Help (? to close)\n\n")
		b.WriteString(strings.Join(view.HelpLines(), "\n"))
		b.WriteString("\n\n")
		b.WriteString(m.bottom(v))
		return b.String()
	}
	if m.searching {
		b.WriteString(m.search.View())
	} else {
		b.WriteString(view.Toolbar(m.inDetail, false))
	}
	b.WriteString("\n\n")
	if m.inDetail {
		b.WriteString(m.detailView(v))
	} else {
		b.WriteString(m.listView(v))
	}
	b.WriteString("\n")
	b.WriteString(m.bottom(v))
	return b.String()
}

func (m Model) header(v guide.View) string {
	titles := make([]string, len(state.Tabs))
	active := 0
	for i, id := range state.Tabs {
		titles[i] = id.Title()
		if id == v.Tab {
			active = i
		}
	}
	line := m.theme.Title.Render("TV Guide") + "  " + view.TabBar(titles, active, m.theme)
	if m.loading || v.Phase.Busy() {
		line += " " + m.spinner.View()
	}
	return line
}

func (m Model) listView(v guide.View) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", m.nameWidth()+1))
	b.WriteString(m.axis())
	b.WriteString("\n")

	if len(v.Rows) == 0 {
		switch {
		case m.loading || v.Phase.Busy():
			b.WriteString("Loading channels...\n")
		case strings.TrimSpace(v.State.SearchText) != "":
			b.WriteString("No channels match the search.\n")
		default:
			b.WriteString("No channels available.\n")
		}
		return b.String()
	}

	indent := !v.Flat && hasHeaders(v)
	start, end := state.Window(len(v.Rows), m.offset, m.bodyHeight())
	b.WriteString(view.RenderListBody(view.ListRenderInput{
		Rows:   v.Rows,
		Start:  start,
		End:    end,
		Cursor: m.cursor,
		RenderGroupLine: func(g tuitree.GroupNode, active bool) string {
			return view.RenderGroupLine(g.Name, g.Count, g.Expanded, m.guide.GroupError(g.Name) != nil, m.nameWidth()+1+m.gridWidth(), active, m.theme)
		},
		RenderChannelLine: func(row tuitree.Row, active bool) string {
			ch := m.displayed(v.Channels[row.ChannelIndex])
			name := view.RenderChannelLine(view.ChannelLineParams{
				Channel: ch,
				Now:     m.guide.Now(),
				Active:  active,
				Indent:  indent,
				Width:   m.nameWidth(),
			}, m.theme)
			return name + " " + view.RenderGridRow(m.gridBlocks(ch.ID), m.gridOffset, m.gridWidth(), m.theme)
		},
	}))
	return b.String()
}

func hasHeaders(v guide.View) bool {
	for _, row := range v.Rows {
		if row.Kind == tuitree.RowGroup {
			return true
		}
	}
	return false
}

func (m Model) gridBlocks(channelID string) []view.GridBlock {
	layout := m.guide.Layout(channelID)
	out := make([]view.GridBlock, 0, len(layout))
	for _, blk := range layout {
		out = append(out, view.GridBlock{
			Title: blk.Program.Title,
			Left:  blk.Rect.Left,
			Width: blk.Rect.Width,
			Live:  blk.Live,
		})
	}
	return out
}

func (m Model) axis() string {
	w := m.guide.Window()
	scale := m.guide.Scale()
	ticks := timegrid.Ticks(w, time.Hour)
	out := make([]view.AxisTick, 0, len(ticks))
	loc := windowLoc(w)
	for _, t := range ticks {
		out = append(out, view.AxisTick{Label: t.In(loc).Format("15:04"), Left: w.Offset(t, scale)})
	}
	nowLeft := -1.0
	if now := m.guide.Now(); w.Contains(now) {
		nowLeft = w.Offset(now, scale)
	}
	return view.RenderAxis(out, nowLeft, m.gridOffset, m.gridWidth(), m.theme)
}

func (m Model) detailLines(ch tvapi.Channel) []string {
	programs, _ := m.guide.Programs(ch.ID)
	var program *tvapi.Program
	if len(programs) > 0 {
		idx := state.ClampCursor(m.detailProgram, len(programs))
		program = &programs[idx]
	}
	preview := view.LogoPreviewState{
		Enabled: strings.TrimSpace(ch.Logo) != "",
		Loading: m.logoLoading[ch.ID],
		Raw:     m.logo[ch.ID],
		Err:     m.logoErr[ch.ID],
	}
	lines := view.DetailLines(view.DetailInput{
		Channel: ch,
		Program: program,
		Loc:     windowLoc(m.guide.Window()),
		Now:     m.guide.Now(),
		Width:   m.contentWidth(),
	}, 2, preview)
	if program == nil {
		if err := m.guide.ProgramError(); err != nil {
			lines = append(lines, "", "Listings unavailable: "+err.Error())
		}
	}
	return lines
}

func (m Model) detailView(v guide.View) string {
	ch, ok := m.currentChannel(v)
	if !ok {
		return "No channel selected.\n"
	}
	return view.RenderDetailLines(m.detailLines(ch), m.detailTop, m.bodyHeight())
}

func (m Model) bottom(v guide.View) string {
	var b strings.Builder
	for _, run := range m.activeRuns() {
		b.WriteString(m.refreshLine(run))
		b.WriteString("\n")
	}
	warning := ""
	if m.err != nil {
		warning = tvapi.Kind(m.err) + ": " + m.err.Error()
	}
	b.WriteString(view.Message(m.loading || v.Phase.Busy(), m.err != nil, m.status, warning, m.theme))
	b.WriteString("\n")
	w := m.guide.Window()
	loc := windowLoc(w)
	window := w.Start.In(loc).Format("Mon 15:04") + "-" + w.End.In(loc).Format("15:04")
	b.WriteString(view.Footer(v.Tab.Title(), string(v.Phase), channelCount(v), strings.TrimSpace(v.State.SearchText), window, m.theme))
	b.WriteString("\n")
	return b.String()
}

func (m Model) refreshLine(run app.Run) string {
	message := run.Message
	switch run.Status {
	case app.RunFailed:
		message = "failed"
		if run.Err != nil {
			message = "failed: " + run.Err.Error()
		}
	case app.RunCancelled:
		message = "cancelled"
	case app.RunPending:
		message = "starting"
	}
	return view.RefreshLine(run.Kind.Title(), m.bar.ViewAs(run.Fraction()), message, max(20, m.width), m.theme)
}

func windowLoc(w timegrid.Window) *time.Location {
	if w.Loc == nil {
		return time.Local
	}
	return w.Loc
}

func channelCount(v guide.View) int {
	n := 0
	for _, row := range v.Rows {
		if row.Kind == tuitree.RowChannel {
			n++
		}
	}
	return n
}

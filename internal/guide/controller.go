// Package guide drives the channel guide: per-tab channel loading with stale
// data retention, lazy group expansion, search, and the program grid for the
// channels in view.
package guide

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/app"
	"github.com/glabrego/tvguide-cli/internal/timegrid"
	"github.com/glabrego/tvguide-cli/internal/tui/state"
	"github.com/glabrego/tvguide-cli/internal/tui/tree"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

// Phase is the data readiness of one tab.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseLoading       Phase = "loading"
	PhaseReady         Phase = "ready"
	PhaseLoadingGroup  Phase = "loading-group"
	PhaseFiltering     Phase = "filtering"
	PhaseLoadingSearch Phase = "loading-search"
)

// Busy reports whether a fetch is in flight.
func (p Phase) Busy() bool {
	return p == PhaseLoading || p == PhaseLoadingGroup || p == PhaseLoadingSearch
}

// Backend is what the controller needs from the service layer.
type Backend interface {
	Groups(ctx context.Context) ([]tvapi.Group, error)
	Channels(ctx context.Context, query tvapi.ChannelQuery) ([]tvapi.Channel, error)
	Programs(ctx context.Context, channelIDs []string, start, end time.Time, timezone string) (map[string][]tvapi.Program, error)
	ToggleFavorite(ctx context.Context, channelID string) (tvapi.Channel, error)
	MarkWatched(ctx context.Context, ch tvapi.Channel, now time.Time) (tvapi.Channel, error)
}

type Options struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	// Strict fails on a misconfigured window instead of clamping it.
	Strict bool
	// Timezone is sent with program requests; empty leaves it to the backend.
	Timezone string
	// CellsPerHour is the narrowest grid zoom; wider terminals fit the
	// whole window instead.
	CellsPerHour int
	Prefetch     int
	Now          func() time.Time
	Log          pslog.Logger
}

type tabData struct {
	state     state.TabState
	phase     Phase
	loaded    bool
	groups    []tvapi.Group
	channels  []tvapi.Channel
	loadedFor map[string]bool
	results   []tvapi.Channel
	resultsOf string
	err       error
	groupErr  map[string]error
}

type Controller struct {
	backend Backend
	store   *state.Store
	opts    Options
	log     pslog.Logger
	flight  singleflight.Group

	mu         sync.Mutex
	tabs       map[state.TabID]*tabData
	active     state.TabID
	window     timegrid.Window
	dayKey     string
	width      int
	scale      float64
	now        time.Time
	programs   map[string][]tvapi.Program
	programErr error
}

// New builds a controller. In strict mode a misconfigured guide window is
// returned as timegrid.ErrInvalidWindow.
func New(backend Backend, store *state.Store, opts Options) (*Controller, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 4
	}
	if opts.Log == nil {
		opts.Log = pslog.Ctx(context.Background())
	}
	now := opts.Now()
	window, err := timegrid.SafeGuideWindow(now, opts.Location, opts.StartHour, opts.EndHour, opts.Strict, opts.Log)
	if err != nil {
		return nil, err
	}
	return &Controller{
		backend:  backend,
		store:    store,
		opts:     opts,
		log:      opts.Log,
		tabs:     make(map[state.TabID]*tabData, len(state.Tabs)),
		active:   state.TabAll,
		window:   window,
		dayKey:   timegrid.DayKey(now, opts.Location),
		now:      now,
		programs: make(map[string][]tvapi.Program),
	}, nil
}

// tab returns the data of id, loading its persisted state on first visit.
// Callers hold c.mu.
func (c *Controller) tab(id state.TabID) *tabData {
	td, ok := c.tabs[id]
	if !ok {
		td = &tabData{
			state:     c.store.Load(id),
			phase:     PhaseIdle,
			loadedFor: make(map[string]bool),
			groupErr:  make(map[string]error),
		}
		c.tabs[id] = td
	}
	return td
}

func (c *Controller) ActiveTab() state.TabID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SelectTab makes id the active tab and loads it on first visit. Revisits
// show the retained data without fetching.
func (c *Controller) SelectTab(ctx context.Context, id state.TabID) error {
	if !id.Valid() {
		return fmt.Errorf("unknown tab %q: %w", id, tvapi.ErrNotFound)
	}
	c.mu.Lock()
	c.active = id
	td := c.tab(id)
	loaded := td.loaded
	search := td.state.SearchText
	c.mu.Unlock()

	if loaded {
		return nil
	}
	if err := c.load(ctx, id); err != nil {
		return err
	}
	if id == state.TabAll && strings.TrimSpace(search) != "" {
		return c.search(ctx, id, search)
	}
	return nil
}

// Reload refetches the active tab. It is the only operation that reorders
// rows.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	id := c.active
	search := c.tab(id).state.SearchText
	c.mu.Unlock()
	if err := c.load(ctx, id); err != nil {
		return err
	}
	if id == state.TabAll && strings.TrimSpace(search) != "" {
		return c.search(ctx, id, search)
	}
	return nil
}

func (c *Controller) load(ctx context.Context, id state.TabID) error {
	_, err, shared := c.flight.Do("tab:"+string(id), func() (any, error) {
		c.setPhase(id, PhaseLoading)
		var err error
		if id == state.TabAll {
			err = c.loadAll(ctx)
		} else {
			err = c.loadFiltered(ctx, id)
		}
		c.mu.Lock()
		td := c.tab(id)
		td.phase = PhaseReady
		td.err = err
		c.mu.Unlock()
		return nil, err
	})
	if shared {
		c.log.Debug("tab load coalesced", "tab", string(id))
	}
	return err
}

func (c *Controller) loadAll(ctx context.Context) error {
	groups, err := c.backend.Groups(ctx)
	if len(groups) > 0 || err == nil {
		c.mu.Lock()
		td := c.tab(state.TabAll)
		td.groups = groups
		td.loaded = true
		// Loaded members stay visible until their group is fetched again.
		td.loadedFor = make(map[string]bool)
		c.mu.Unlock()
	}
	if err != nil {
		c.log.Warn("groups load failed", "tab", string(state.TabAll), "err", err)
		if len(groups) == 0 {
			return err
		}
	}

	c.mu.Lock()
	expanded := make([]string, 0)
	td := c.tab(state.TabAll)
	for _, g := range groups {
		if td.state.ExpandedGroups[g.Name] {
			expanded = append(expanded, g.Name)
		}
	}
	c.mu.Unlock()

	c.prefetchGroups(ctx, expanded)
	return err
}

// prefetchGroups loads the named groups in parallel. Each group's failure is
// recorded on its own and does not stop the others.
func (c *Controller) prefetchGroups(ctx context.Context, names []string) {
	if len(names) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(c.opts.Prefetch)
	for _, name := range names {
		p.Go(func() {
			if err := c.loadGroup(ctx, name); err != nil {
				c.log.Warn("group prefetch failed", "group", name, "err", err)
			}
		})
	}
	p.Wait()
}

// loadGroup fetches one group of the "all" tab. On failure the group is
// collapsed again, even when stale members are still loaded, and the error
// kept for GroupError. Expanding it again retries the fetch.
func (c *Controller) loadGroup(ctx context.Context, name string) error {
	_, err, _ := c.flight.Do("group:"+name, func() (any, error) {
		channels, err := c.backend.Channels(ctx, tvapi.ChannelQuery{Group: name})
		c.mu.Lock()
		defer c.mu.Unlock()
		td := c.tab(state.TabAll)
		if len(channels) > 0 || err == nil {
			c.mergeGroup(td, name, channels)
		}
		if err != nil {
			td.groupErr[name] = err
			delete(td.state.ExpandedGroups, name)
			if saveErr := c.store.SaveExpanded(state.TabAll, td.state.ExpandedGroups); saveErr != nil {
				c.log.Warn("persist expanded groups failed", "err", saveErr)
			}
			return nil, err
		}
		delete(td.groupErr, name)
		return nil, nil
	})
	return err
}

func hasMembers(channels []tvapi.Channel, name string) bool {
	for _, ch := range channels {
		if tree.GroupName(ch) == name {
			return true
		}
	}
	return false
}

// mergeGroup replaces the members of group name, keeping other groups and
// the position of the first member. Callers hold c.mu.
func (c *Controller) mergeGroup(td *tabData, name string, members []tvapi.Channel) {
	out := make([]tvapi.Channel, 0, len(td.channels)+len(members))
	inserted := false
	for _, ch := range td.channels {
		if tree.GroupName(ch) == name {
			if !inserted {
				out = append(out, members...)
				inserted = true
			}
			continue
		}
		out = append(out, ch)
	}
	if !inserted {
		out = append(out, members...)
	}
	td.channels = out
	td.loadedFor[name] = true
}

func (c *Controller) loadFiltered(ctx context.Context, id state.TabID) error {
	query := tvapi.ChannelQuery{}
	switch id {
	case state.TabFavorites:
		query.FavoritesOnly = true
	case state.TabRecent:
		query.RecentOnly = true
	}
	channels, err := c.backend.Channels(ctx, query)
	if len(channels) > 0 || err == nil {
		c.mu.Lock()
		td := c.tab(id)
		td.channels = channels
		td.loaded = true
		c.mu.Unlock()
	}
	if err != nil {
		c.log.Warn("tab load failed", "tab", string(id), "err", err)
	}
	return err
}

// ToggleGroup flips the expansion of a group on the active tab and persists
// it at once. Expanding an unloaded group of the "all" tab fetches it; if
// that fails the group reverts to collapsed and toggling again retries.
func (c *Controller) ToggleGroup(ctx context.Context, name string) error {
	c.mu.Lock()
	id := c.active
	td := c.tab(id)
	if !c.knowsGroup(td, name) {
		c.mu.Unlock()
		return fmt.Errorf("group %q: %w", name, tvapi.ErrNotFound)
	}
	expanded := !td.state.ExpandedGroups[name]
	if expanded {
		td.state.ExpandedGroups[name] = true
	} else {
		delete(td.state.ExpandedGroups, name)
	}
	saveErr := c.store.SaveExpanded(id, td.state.ExpandedGroups)
	needsFetch := expanded && id == state.TabAll && !td.loadedFor[name]
	if needsFetch {
		td.phase = PhaseLoadingGroup
	}
	c.mu.Unlock()

	if saveErr != nil {
		c.log.Warn("persist expanded groups failed", "tab", string(id), "err", saveErr)
	}
	if !needsFetch {
		return nil
	}
	err := c.loadGroup(ctx, name)
	c.setPhase(id, PhaseReady)
	return err
}

// knowsGroup reports whether name is a group of td. Callers hold c.mu.
func (c *Controller) knowsGroup(td *tabData, name string) bool {
	for _, g := range td.groups {
		if g.Name == name {
			return true
		}
	}
	return hasMembers(td.channels, name)
}

// SetSearch updates and persists the active tab's search text. On the "all"
// tab a non-empty query is answered by the backend; other tabs filter the
// loaded channels in memory.
func (c *Controller) SetSearch(ctx context.Context, text string) error {
	c.mu.Lock()
	id := c.active
	td := c.tab(id)
	td.state.SearchText = text
	saveErr := c.store.SaveSearch(id, text)
	serverSide := id == state.TabAll && strings.TrimSpace(text) != ""
	if !serverSide {
		td.phase = PhaseFiltering
	}
	c.mu.Unlock()

	if saveErr != nil {
		c.log.Warn("persist search failed", "tab", string(id), "err", saveErr)
	}
	if !serverSide {
		c.setPhase(id, PhaseReady)
		return nil
	}
	return c.search(ctx, id, text)
}

func (c *Controller) search(ctx context.Context, id state.TabID, text string) error {
	query := strings.TrimSpace(text)
	c.setPhase(id, PhaseLoadingSearch)
	_, err, _ := c.flight.Do("search:"+string(id)+":"+query, func() (any, error) {
		channels, err := c.backend.Channels(ctx, tvapi.ChannelQuery{Search: query})
		c.mu.Lock()
		defer c.mu.Unlock()
		td := c.tab(id)
		if (len(channels) > 0 || err == nil) && strings.TrimSpace(td.state.SearchText) == query {
			td.results = channels
			td.resultsOf = query
		}
		td.err = err
		return nil, err
	})
	c.setPhase(id, PhaseReady)
	if err != nil {
		c.log.Warn("search failed", "tab", string(id), "err", err)
	}
	return err
}

// SetScroll persists the scroll offset of tab. The tab is passed by the
// caller because a save may land after another tab became active. Callers
// debounce.
func (c *Controller) SetScroll(tab state.TabID, offset int) error {
	if !tab.Valid() {
		return fmt.Errorf("scroll of tab %q: %w", tab, tvapi.ErrNotFound)
	}
	if offset < 0 {
		offset = 0
	}
	c.mu.Lock()
	c.tab(tab).state.ScrollOffset = offset
	c.mu.Unlock()
	return c.store.SaveScroll(tab, offset)
}

func (c *Controller) setPhase(id state.TabID, phase Phase) {
	c.mu.Lock()
	c.tab(id).phase = phase
	c.mu.Unlock()
}

// Resize recomputes the grid scale for a grid area of width cells.
func (c *Controller) Resize(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
	c.scale = c.scaleFor(c.window)
}

// scaleFor returns the cells-per-minute scale for w. Callers hold c.mu.
func (c *Controller) scaleFor(w timegrid.Window) float64 {
	scale := timegrid.ScaleForWidth(w, c.width)
	if floor := float64(c.opts.CellsPerHour) / 60; scale < floor {
		scale = floor
	}
	return scale
}

// Scale is the current cells-per-minute scale of the grid.
func (c *Controller) Scale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// SetNow advances the clock used for live state. When the wall-clock day
// changes the guide window is rebuilt and cached programs are dropped; the
// return value reports that.
func (c *Controller) SetNow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	key := timegrid.DayKey(now, c.opts.Location)
	if key == c.dayKey {
		return false
	}
	window, err := timegrid.SafeGuideWindow(now, c.opts.Location, c.opts.StartHour, c.opts.EndHour, false, c.log)
	if err != nil {
		c.log.Error("guide window rebuild failed", "err", err)
		return false
	}
	c.window = window
	c.dayKey = key
	c.scale = c.scaleFor(window)
	c.programs = make(map[string][]tvapi.Program)
	c.programErr = nil
	c.log.Info("guide window rolled over", "day", key)
	return true
}

func (c *Controller) Window() timegrid.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

func (c *Controller) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// EnsurePrograms fetches programs for the given channels that are not cached
// for the current window yet.
func (c *Controller) EnsurePrograms(ctx context.Context, channelIDs []string) error {
	c.mu.Lock()
	window := c.window
	dayKey := c.dayKey
	missing := make([]string, 0, len(channelIDs))
	seen := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := c.programs[id]; !ok {
			missing = append(missing, id)
		}
	}
	c.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	key := "programs:" + dayKey + ":" + strings.Join(missing, ",")
	_, err, _ := c.flight.Do(key, func() (any, error) {
		programs, err := c.backend.Programs(ctx, missing, window.Start, window.End, c.opts.Timezone)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.dayKey != dayKey {
			return nil, nil
		}
		if err == nil || len(programs) > 0 {
			for _, id := range missing {
				list := programs[id]
				sort.SliceStable(list, func(i, j int) bool {
					return list[i].Start.Before(list[j].Start.Time)
				})
				c.programs[id] = list
			}
		}
		c.programErr = err
		return nil, err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("programs load failed", "channels", len(missing), "err", err)
	}
	return err
}

// InvalidatePrograms drops every cached program so the next EnsurePrograms
// refetches. Used after the guide data changed on the backend.
func (c *Controller) InvalidatePrograms() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs = make(map[string][]tvapi.Program)
	c.programErr = nil
}

// Programs returns the cached programs of a channel, in start order.
func (c *Controller) Programs(channelID string) ([]tvapi.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.programs[channelID]
	return list, ok
}

// Block is one program placed on the grid.
type Block struct {
	Program tvapi.Program
	Rect    timegrid.Rect
	Live    bool
}

// Layout places a channel's programs on the current grid. Live state is
// evaluated against the controller clock on every call.
func (c *Controller) Layout(channelID string) []Block {
	c.mu.Lock()
	programs := c.programs[channelID]
	window := c.window
	scale := c.scale
	now := c.now
	c.mu.Unlock()
	if len(programs) == 0 {
		return nil
	}

	intervals := make([]timegrid.Interval, len(programs))
	for i, p := range programs {
		intervals[i] = timegrid.Interval{ID: p.ID, Start: p.Start.Time, End: p.End.Time}
	}
	rects, err := timegrid.ComputeLayout(window, scale, intervals)
	if err != nil {
		c.log.Warn("program layout skipped", "channel", channelID, "err", err)
		return nil
	}
	blocks := make([]Block, 0, len(programs))
	for i, p := range programs {
		blocks = append(blocks, Block{
			Program: p,
			Rect:    rects[p.ID],
			Live:    timegrid.IsLive(intervals[i], now),
		})
	}
	return blocks
}

// ToggleFavorite runs the optimistic favorite saga for a loaded channel.
// Rows keep their position whatever the outcome.
func (c *Controller) ToggleFavorite(ctx context.Context, channelID string) (tvapi.Channel, error) {
	ch, ok := c.findChannel(channelID)
	if !ok {
		return tvapi.Channel{}, fmt.Errorf("channel %s: %w", channelID, tvapi.ErrNotFound)
	}
	saga := app.NewFavoriteSaga(ch)
	out, err := saga.Execute(ctx, c.backend.ToggleFavorite, c.replaceChannel)
	if err != nil {
		c.log.Warn("favorite toggle rolled back", "channel", channelID, "err", err)
	}
	return out, err
}

// MarkWatched records playback of a loaded channel.
func (c *Controller) MarkWatched(ctx context.Context, channelID string) (tvapi.Channel, error) {
	ch, ok := c.findChannel(channelID)
	if !ok {
		return tvapi.Channel{}, fmt.Errorf("channel %s: %w", channelID, tvapi.ErrNotFound)
	}
	c.mu.Lock()
	now := c.now
	c.mu.Unlock()
	if fresh := c.opts.Now(); fresh.After(now) {
		now = fresh
	}
	updated, err := c.backend.MarkWatched(ctx, ch, now)
	if err != nil {
		return ch, err
	}
	c.replaceChannel(updated)
	return updated, nil
}

// Channel returns the loaded copy of a channel.
func (c *Controller) Channel(channelID string) (tvapi.Channel, bool) {
	return c.findChannel(channelID)
}

func (c *Controller) findChannel(channelID string) (tvapi.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order := append([]state.TabID{c.active}, state.Tabs...)
	for _, id := range order {
		td, ok := c.tabs[id]
		if !ok {
			continue
		}
		for _, list := range [][]tvapi.Channel{td.channels, td.results} {
			for _, ch := range list {
				if ch.ID == channelID {
					return ch, true
				}
			}
		}
	}
	return tvapi.Channel{}, false
}

// replaceChannel swaps every loaded copy of ch in place.
func (c *Controller) replaceChannel(ch tvapi.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, td := range c.tabs {
		for _, list := range [][]tvapi.Channel{td.channels, td.results} {
			for i := range list {
				if list[i].ID == ch.ID {
					list[i] = ch
				}
			}
		}
	}
}

// LastError is the most recent load failure of a tab, shown alongside the
// retained data.
func (c *Controller) LastError(id state.TabID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	td, ok := c.tabs[id]
	if !ok {
		return nil
	}
	return td.err
}

// GroupError is the last load failure of a group on the "all" tab.
func (c *Controller) GroupError(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	td, ok := c.tabs[state.TabAll]
	if !ok {
		return nil
	}
	return td.groupErr[name]
}

func (c *Controller) ProgramError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.programErr
}

// View is a snapshot of the active tab. Row channel indices point into
// Channels.
type View struct {
	Tab      state.TabID
	Phase    Phase
	State    state.TabState
	Rows     []tree.Row
	Channels []tvapi.Channel
	Err      error
	Flat     bool
}

// View builds the rows of the active tab.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.active
	td := c.tab(id)
	v := View{
		Tab:   id,
		Phase: td.phase,
		State: td.state.Clone(),
		Err:   td.err,
	}
	query := strings.TrimSpace(td.state.SearchText)

	switch {
	case id == state.TabAll && query != "":
		v.Flat = true
		if td.resultsOf == query {
			v.Channels = append([]tvapi.Channel(nil), td.results...)
			v.Rows = tree.BuildRows(v.Channels, tree.BuildOptions{
				Filter:        func(tvapi.Channel) bool { return true },
				FlattenFilter: true,
			})
		} else {
			v.Channels = append([]tvapi.Channel(nil), td.channels...)
			v.Rows = tree.BuildRows(v.Channels, tree.BuildOptions{
				Filter:        tree.MatchSearch(query),
				FlattenFilter: true,
			})
		}
	case id == state.TabAll:
		v.Channels = append([]tvapi.Channel(nil), td.channels...)
		v.Rows = tree.BuildRows(v.Channels, tree.BuildOptions{
			Groups:   td.groups,
			Expanded: td.state.ExpandedGroups,
		})
	default:
		v.Channels = append([]tvapi.Channel(nil), td.channels...)
		v.Rows = tree.BuildRows(v.Channels, tree.BuildOptions{
			Expanded: td.state.ExpandedGroups,
			Filter:   tree.MatchSearch(query),
		})
	}
	return v
}

package guide

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glabrego/tvguide-cli/internal/timegrid"
	"github.com/glabrego/tvguide-cli/internal/tui/state"
	"github.com/glabrego/tvguide-cli/internal/tui/tree"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

type fakeBackend struct {
	mu          sync.Mutex
	groups      []tvapi.Group
	groupsErr   error
	byGroup     map[string][]tvapi.Channel
	groupErr    map[string]error
	favorites   []tvapi.Channel
	listErr     error
	search      map[string][]tvapi.Channel
	programs    map[string][]tvapi.Program
	programsErr error
	toggleErr   error
	gate        chan struct{}
	entered     chan struct{}

	groupCalls    atomic.Int32
	channelCalls  atomic.Int32
	programCalls  atomic.Int32
	programIDs    [][]string
	watchedCalled atomic.Int32
}

func (f *fakeBackend) Groups(ctx context.Context) ([]tvapi.Group, error) {
	f.groupCalls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return f.groups, nil
}

func (f *fakeBackend) Channels(_ context.Context, q tvapi.ChannelQuery) ([]tvapi.Channel, error) {
	f.channelCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case q.Group != "":
		if err := f.groupErr[q.Group]; err != nil {
			return nil, err
		}
		return clone(f.byGroup[q.Group]), nil
	case q.Search != "":
		if f.listErr != nil {
			return nil, f.listErr
		}
		return clone(f.search[q.Search]), nil
	default:
		if f.listErr != nil {
			return nil, f.listErr
		}
		return clone(f.favorites), nil
	}
}

func (f *fakeBackend) Programs(_ context.Context, ids []string, _, _ time.Time, _ string) (map[string][]tvapi.Program, error) {
	f.programCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programIDs = append(f.programIDs, append([]string(nil), ids...))
	if f.programsErr != nil {
		return nil, f.programsErr
	}
	out := make(map[string][]tvapi.Program)
	for _, id := range ids {
		if list, ok := f.programs[id]; ok {
			out[id] = list
		}
	}
	return out, nil
}

func (f *fakeBackend) ToggleFavorite(_ context.Context, id string) (tvapi.Channel, error) {
	if f.toggleErr != nil {
		return tvapi.Channel{}, f.toggleErr
	}
	return tvapi.Channel{ID: id, IsFavorite: true}, nil
}

func (f *fakeBackend) MarkWatched(_ context.Context, ch tvapi.Channel, now time.Time) (tvapi.Channel, error) {
	f.watchedCalled.Add(1)
	ch.LastWatched = tvapi.Timestamp{Time: now}
	return ch, nil
}

func clone(in []tvapi.Channel) []tvapi.Channel {
	if in == nil {
		return nil
	}
	return append([]tvapi.Channel(nil), in...)
}

var testNow = time.Date(2025, 3, 1, 20, 30, 0, 0, time.UTC)

func newController(t *testing.T, backend *fakeBackend, kv *state.MemoryKV) *Controller {
	t.Helper()
	if kv == nil {
		kv = state.NewMemoryKV()
	}
	c, err := New(backend, state.NewStore(kv, nil), Options{
		Location:  time.UTC,
		StartHour: -1,
		EndHour:   24,
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func newsAndSports() *fakeBackend {
	return &fakeBackend{
		groups: []tvapi.Group{{Name: "News", Count: 2}, {Name: "Sports", Count: 1}, {Name: "Kids", Count: 1}},
		byGroup: map[string][]tvapi.Channel{
			"News":   {{ID: "n1", Name: "News One", Group: "News"}, {ID: "n2", Name: "News Two", Group: "News"}},
			"Sports": {{ID: "s1", Name: "Sports One", Group: "Sports"}},
			"Kids":   {{ID: "k1", Name: "Kids One", Group: "Kids"}},
		},
		groupErr: map[string]error{},
	}
}

func countKind(rows []tree.Row, kind tree.RowKind) int {
	n := 0
	for _, r := range rows {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func TestSelectTab_AllPrefetchesExpandedGroupsWithIsolatedErrors(t *testing.T) {
	kv := state.NewMemoryKV()
	store := state.NewStore(kv, nil)
	if err := store.SaveExpanded(state.TabAll, map[string]bool{"News": true, "Sports": true}); err != nil {
		t.Fatalf("SaveExpanded: %v", err)
	}
	backend := newsAndSports()
	backend.groupErr["Sports"] = tvapi.ErrNetwork
	c := newController(t, backend, kv)

	if err := c.SelectTab(context.Background(), state.TabAll); err != nil {
		t.Fatalf("SelectTab returned error: %v", err)
	}
	v := c.View()
	if v.Phase != PhaseReady {
		t.Fatalf("expected ready, got %s", v.Phase)
	}
	if countKind(v.Rows, tree.RowGroup) != 3 || countKind(v.Rows, tree.RowChannel) != 2 {
		t.Fatalf("unexpected rows %+v", v.Rows)
	}
	if !errors.Is(c.GroupError("Sports"), tvapi.ErrNetwork) || c.GroupError("News") != nil {
		t.Fatalf("expected isolated group error, got sports=%v news=%v", c.GroupError("Sports"), c.GroupError("News"))
	}
	if v.State.ExpandedGroups["Sports"] {
		t.Fatal("expected failed group to collapse")
	}
	if got := store.Load(state.TabAll).ExpandedGroups; got["Sports"] || !got["News"] {
		t.Fatalf("expected collapse to be persisted, got %v", got)
	}
	if c.LastError(state.TabAll) != nil {
		t.Fatalf("group failure must not become a tab error: %v", c.LastError(state.TabAll))
	}
}

func TestFailedGroupReloadCollapsesAndKeepsStaleMembers(t *testing.T) {
	kv := state.NewMemoryKV()
	store := state.NewStore(kv, nil)
	if err := store.SaveExpanded(state.TabAll, map[string]bool{"News": true}); err != nil {
		t.Fatalf("SaveExpanded: %v", err)
	}
	backend := newsAndSports()
	c := newController(t, backend, kv)
	ctx := context.Background()
	if err := c.SelectTab(ctx, state.TabAll); err != nil {
		t.Fatalf("SelectTab returned error: %v", err)
	}
	if countKind(c.View().Rows, tree.RowChannel) != 2 {
		t.Fatalf("expected News members, got %+v", c.View().Rows)
	}

	backend.mu.Lock()
	backend.groupErr["News"] = tvapi.ErrNetwork
	backend.mu.Unlock()
	if err := c.Reload(ctx); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	v := c.View()
	if v.State.ExpandedGroups["News"] || countKind(v.Rows, tree.RowChannel) != 0 {
		t.Fatalf("expected News collapsed after failed reload, got %+v", v.Rows)
	}
	if store.Load(state.TabAll).ExpandedGroups["News"] {
		t.Fatal("expected collapse to be persisted")
	}
	if !errors.Is(c.GroupError("News"), tvapi.ErrNetwork) {
		t.Fatalf("expected group error, got %v", c.GroupError("News"))
	}
	if _, ok := c.Channel("n1"); !ok {
		t.Fatal("expected stale members to stay loaded")
	}

	backend.mu.Lock()
	delete(backend.groupErr, "News")
	backend.mu.Unlock()
	calls := backend.channelCalls.Load()
	if err := c.ToggleGroup(ctx, "News"); err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if backend.channelCalls.Load() == calls || c.GroupError("News") != nil {
		t.Fatal("expected expanding again to refetch the group")
	}
}

func TestLoadsForSameTabAreCoalesced(t *testing.T) {
	backend := newsAndSports()
	backend.gate = make(chan struct{})
	backend.entered = make(chan struct{}, 4)
	c := newController(t, backend, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.SelectTab(context.Background(), state.TabAll)
	}()
	<-backend.entered
	go func() {
		defer wg.Done()
		_ = c.Reload(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	if c.View().Phase != PhaseLoading {
		t.Fatalf("expected loading phase, got %s", c.View().Phase)
	}
	close(backend.gate)
	wg.Wait()

	if got := backend.groupCalls.Load(); got != 1 {
		t.Fatalf("expected one groups fetch, got %d", got)
	}
}

func TestFailedReloadKeepsStaleData(t *testing.T) {
	backend := &fakeBackend{favorites: []tvapi.Channel{
		{ID: "a", Name: "Alpha", Group: "News", IsFavorite: true},
		{ID: "b", Name: "Beta", Group: "Sports", IsFavorite: true},
	}}
	c := newController(t, backend, nil)
	ctx := context.Background()
	if err := c.SelectTab(ctx, state.TabFavorites); err != nil {
		t.Fatalf("SelectTab returned error: %v", err)
	}

	backend.mu.Lock()
	backend.listErr = tvapi.ErrNetwork
	backend.mu.Unlock()
	if err := c.Reload(ctx); !errors.Is(err, tvapi.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	v := c.View()
	if v.Phase != PhaseReady || len(v.Channels) != 2 {
		t.Fatalf("expected ready with stale data, got phase=%s channels=%d", v.Phase, len(v.Channels))
	}
	if !errors.Is(c.LastError(state.TabFavorites), tvapi.ErrNetwork) {
		t.Fatalf("expected last error, got %v", c.LastError(state.TabFavorites))
	}

	calls := backend.channelCalls.Load()
	if err := c.SelectTab(ctx, state.TabFavorites); err != nil {
		t.Fatalf("revisit returned error: %v", err)
	}
	if backend.channelCalls.Load() != calls {
		t.Fatal("expected revisit to reuse retained data")
	}
}

func TestToggleGroupFetchesPersistsAndRevertsOnFailure(t *testing.T) {
	kv := state.NewMemoryKV()
	backend := newsAndSports()
	c := newController(t, backend, kv)
	ctx := context.Background()
	if err := c.SelectTab(ctx, state.TabAll); err != nil {
		t.Fatalf("SelectTab returned error: %v", err)
	}
	if rows := c.View().Rows; len(rows) != 3 {
		t.Fatalf("expected three collapsed headers, got %d", len(rows))
	}

	if err := c.ToggleGroup(ctx, "News"); err != nil {
		t.Fatalf("ToggleGroup returned error: %v", err)
	}
	v := c.View()
	header := tree.GroupRow(v.Rows, "News")
	if header != 0 || len(v.Rows) != 5 || v.Rows[1].Kind != tree.RowChannel || v.Rows[2].Kind != tree.RowChannel {
		t.Fatalf("expected News members right after header, got %+v", v.Rows)
	}
	if !state.NewStore(kv, nil).Load(state.TabAll).ExpandedGroups["News"] {
		t.Fatal("expected expansion to be persisted immediately")
	}

	backend.mu.Lock()
	backend.groupErr["Kids"] = tvapi.ErrNetwork
	backend.mu.Unlock()
	if err := c.ToggleGroup(ctx, "Kids"); !errors.Is(err, tvapi.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	v = c.View()
	if v.State.ExpandedGroups["Kids"] || v.Phase != PhaseReady {
		t.Fatalf("expected Kids collapsed and ready, got %+v phase=%s", v.State.ExpandedGroups, v.Phase)
	}
	if c.GroupError("Kids") == nil {
		t.Fatal("expected retry affordance error for Kids")
	}

	backend.mu.Lock()
	delete(backend.groupErr, "Kids")
	backend.mu.Unlock()
	if err := c.ToggleGroup(ctx, "Kids"); err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if c.GroupError("Kids") != nil || !c.View().State.ExpandedGroups["Kids"] {
		t.Fatal("expected retry to expand Kids")
	}

	calls := backend.channelCalls.Load()
	if err := c.ToggleGroup(ctx, "News"); err != nil {
		t.Fatalf("collapse returned error: %v", err)
	}
	if err := c.ToggleGroup(ctx, "News"); err != nil {
		t.Fatalf("re-expand returned error: %v", err)
	}
	if backend.channelCalls.Load() != calls {
		t.Fatal("expected loaded group to expand without fetching")
	}

	if err := c.ToggleGroup(ctx, "Nope"); !errors.Is(err, tvapi.ErrNotFound) {
		t.Fatalf("expected not found for unknown group, got %v", err)
	}
}

func TestSearchFlattensOnAllAndFiltersElsewhere(t *testing.T) {
	backend := newsAndSports()
	backend.search = map[string][]tvapi.Channel{
		"one": {{ID: "n1", Name: "News One", Group: "News"}, {ID: "s1", Name: "Sports One", Group: "Sports"}},
	}
	backend.favorites = []tvapi.Channel{
		{ID: "n1", Name: "News One", Group: "News", IsFavorite: true},
		{ID: "s2", Name: "Sports Two", Group: "Sports", IsFavorite: true},
	}
	kv := state.NewMemoryKV()
	c := newController(t, backend, kv)
	ctx := context.Background()
	if err := c.SelectTab(ctx, state.TabAll); err != nil {
		t.Fatalf("SelectTab returned error: %v", err)
	}
	if err := c.ToggleGroup(ctx, "News"); err != nil {
		t.Fatalf("ToggleGroup returned error: %v", err)
	}

	if err := c.SetSearch(ctx, "one"); err != nil {
		t.Fatalf("SetSearch returned error: %v", err)
	}
	v := c.View()
	if !v.Flat || countKind(v.Rows, tree.RowGroup) != 0 || countKind(v.Rows, tree.RowChannel) != 2 {
		t.Fatalf("expected flat server results, got %+v", v.Rows)
	}
	if state.NewStore(kv, nil).Load(state.TabAll).SearchText != "one" {
		t.Fatal("expected search text to be persisted")
	}

	if err := c.SelectTab(ctx, state.TabFavorites); err != nil {
		t.Fatalf("SelectTab favorites returned error: %v", err)
	}
	searches := backend.channelCalls.Load()
	if err := c.SetSearch(ctx, "sports"); err != nil {
		t.Fatalf("SetSearch favorites returned error: %v", err)
	}
	if backend.channelCalls.Load() != searches {
		t.Fatal("expected in-memory filtering on the favorites tab")
	}
	v = c.View()
	if v.Flat || countKind(v.Rows, tree.RowGroup) != 1 || v.Rows[0].Group.Name != "Sports" || v.Rows[0].Group.Count != 1 {
		t.Fatalf("expected one grouped match, got %+v", v.Rows)
	}

	if err := c.SelectTab(ctx, state.TabAll); err != nil {
		t.Fatalf("back to all returned error: %v", err)
	}
	if c.View().State.SearchText != "one" {
		t.Fatal("expected all tab search to survive tab switches")
	}
	if err := c.SetSearch(ctx, ""); err != nil {
		t.Fatalf("clear search returned error: %v", err)
	}
	if v := c.View(); v.Flat || countKind(v.Rows, tree.RowGroup) != 3 {
		t.Fatalf("expected grouped rows after clearing, got %+v", v.Rows)
	}
}

func TestScrollIsPersistedPerTab(t *testing.T) {
	kv := state.NewMemoryKV()
	c := newController(t, &fakeBackend{}, kv)
	ctx := context.Background()
	_ = c.SelectTab(ctx, state.TabFavorites)
	if err := c.SetScroll(state.TabFavorites, 12); err != nil {
		t.Fatalf("SetScroll returned error: %v", err)
	}
	_ = c.SelectTab(ctx, state.TabRecent)
	if err := c.SetScroll(state.TabRecent, 3); err != nil {
		t.Fatalf("SetScroll returned error: %v", err)
	}
	store := state.NewStore(kv, nil)
	if store.Load(state.TabFavorites).ScrollOffset != 12 || store.Load(state.TabRecent).ScrollOffset != 3 {
		t.Fatal("expected independent scroll offsets")
	}
	if store.Load(state.TabAll).ScrollOffset != 0 {
		t.Fatal("expected all tab untouched")
	}
}

func TestLateScrollSaveStaysOnItsTab(t *testing.T) {
	kv := state.NewMemoryKV()
	c := newController(t, &fakeBackend{}, kv)
	ctx := context.Background()
	_ = c.SelectTab(ctx, state.TabAll)
	_ = c.SelectTab(ctx, state.TabFavorites)

	if err := c.SetScroll(state.TabAll, 19); err != nil {
		t.Fatalf("SetScroll returned error: %v", err)
	}
	store := state.NewStore(kv, nil)
	if store.Load(state.TabFavorites).ScrollOffset != 0 {
		t.Fatal("expected favorites scroll untouched by a save for the all tab")
	}
	if store.Load(state.TabAll).ScrollOffset != 19 {
		t.Fatal("expected the all tab to keep its offset")
	}
	if v := c.View(); v.Tab != state.TabFavorites || v.State.ScrollOffset != 0 {
		t.Fatalf("expected active favorites view untouched, got %s offset %d", v.Tab, v.State.ScrollOffset)
	}
	if err := c.SetScroll("bogus", 1); !errors.Is(err, tvapi.ErrNotFound) {
		t.Fatalf("expected unknown tab error, got %v", err)
	}
}

func TestToggleFavoriteKeepsOrderAndRollsBack(t *testing.T) {
	backend := &fakeBackend{favorites: []tvapi.Channel{
		{ID: "a", Name: "Alpha", Group: "News", IsFavorite: true},
		{ID: "b", Name: "Beta", Group: "News", IsFavorite: true},
	}}
	c := newController(t, backend, nil)
	ctx := context.Background()
	_ = c.SelectTab(ctx, state.TabFavorites)

	backend.toggleErr = tvapi.ErrNetwork
	got, err := c.ToggleFavorite(ctx, "a")
	if !errors.Is(err, tvapi.ErrNetwork) || !got.IsFavorite {
		t.Fatalf("expected rollback to favorite, got %+v err=%v", got, err)
	}
	if ch, _ := c.Channel("a"); !ch.IsFavorite {
		t.Fatal("expected loaded copy restored")
	}

	backend.toggleErr = nil
	got, err = c.ToggleFavorite(ctx, "b")
	if err != nil || !got.IsFavorite || got.Name != "Beta" {
		t.Fatalf("expected server truth merged, got %+v err=%v", got, err)
	}
	v := c.View()
	if v.Channels[0].ID != "a" || v.Channels[1].ID != "b" {
		t.Fatalf("expected order unchanged, got %+v", v.Channels)
	}

	if _, err := c.ToggleFavorite(ctx, "zzz"); !errors.Is(err, tvapi.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkWatchedUpdatesLoadedCopy(t *testing.T) {
	backend := &fakeBackend{favorites: []tvapi.Channel{{ID: "a", Name: "Alpha"}}}
	c := newController(t, backend, nil)
	_ = c.SelectTab(context.Background(), state.TabFavorites)
	ch, err := c.MarkWatched(context.Background(), "a")
	if err != nil {
		t.Fatalf("MarkWatched returned error: %v", err)
	}
	if !ch.LastWatched.Equal(testNow) || backend.watchedCalled.Load() != 1 {
		t.Fatalf("unexpected watched result %+v", ch)
	}
	if loaded, _ := c.Channel("a"); !loaded.LastWatched.Equal(testNow) {
		t.Fatal("expected loaded copy to carry last watched")
	}
}

func TestEnsureProgramsCachesPerWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	backend := &fakeBackend{programs: map[string][]tvapi.Program{
		"a": {
			{ID: "late", ChannelID: "a", Title: "Late", Start: tvapi.Timestamp{Time: start.Add(time.Hour)}, End: tvapi.Timestamp{Time: start.Add(2 * time.Hour)}},
			{ID: "now", ChannelID: "a", Title: "Now", Start: tvapi.Timestamp{Time: start}, End: tvapi.Timestamp{Time: start.Add(time.Hour)}},
		},
	}}
	c := newController(t, backend, nil)
	c.Resize(25 * 60)
	ctx := context.Background()

	if err := c.EnsurePrograms(ctx, []string{"a", "b", "a"}); err != nil {
		t.Fatalf("EnsurePrograms returned error: %v", err)
	}
	if err := c.EnsurePrograms(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("EnsurePrograms returned error: %v", err)
	}
	if backend.programCalls.Load() != 1 {
		t.Fatalf("expected one programs fetch, got %d", backend.programCalls.Load())
	}
	if list, ok := c.Programs("b"); !ok || len(list) != 0 {
		t.Fatalf("expected empty cached entry for b, got %v ok=%v", list, ok)
	}

	blocks := c.Layout("a")
	if len(blocks) != 2 || blocks[0].Program.ID != "now" {
		t.Fatalf("expected programs in start order, got %+v", blocks)
	}
	if !blocks[0].Live || blocks[1].Live {
		t.Fatalf("unexpected live flags %+v", blocks)
	}
	// Window starts 23:00 the day before, one cell per minute.
	if blocks[0].Rect.Left != 21*60 || blocks[0].Rect.Width != 60 {
		t.Fatalf("unexpected geometry %+v", blocks[0].Rect)
	}

	if c.SetNow(testNow.Add(time.Hour)) {
		t.Fatal("same day must not roll the window")
	}
	if blocks := c.Layout("a"); blocks[0].Live || !blocks[1].Live {
		t.Fatalf("expected live state to follow the clock, got %+v", blocks)
	}

	if !c.SetNow(testNow.Add(5 * time.Hour)) {
		t.Fatal("expected day rollover")
	}
	if _, ok := c.Programs("a"); ok {
		t.Fatal("expected program cache cleared on rollover")
	}
	if err := c.EnsurePrograms(ctx, []string{"a"}); err != nil {
		t.Fatalf("EnsurePrograms returned error: %v", err)
	}
	if backend.programCalls.Load() != 2 {
		t.Fatalf("expected refetch after rollover, got %d", backend.programCalls.Load())
	}
}

func TestEnsureProgramsFailureIsReported(t *testing.T) {
	backend := &fakeBackend{programsErr: tvapi.ErrNetwork}
	c := newController(t, backend, nil)
	if err := c.EnsurePrograms(context.Background(), []string{"a"}); !errors.Is(err, tvapi.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, ok := c.Programs("a"); ok {
		t.Fatal("expected failed channel to stay uncached for retry")
	}
	if !errors.Is(c.ProgramError(), tvapi.ErrNetwork) {
		t.Fatalf("expected program error, got %v", c.ProgramError())
	}
}

func TestNewWindowValidation(t *testing.T) {
	store := state.NewStore(state.NewMemoryKV(), nil)
	_, err := New(&fakeBackend{}, store, Options{Location: time.UTC, StartHour: 10, EndHour: 4, Strict: true, Now: func() time.Time { return testNow }})
	if !errors.Is(err, timegrid.ErrInvalidWindow) {
		t.Fatalf("expected invalid window in strict mode, got %v", err)
	}
	c, err := New(&fakeBackend{}, store, Options{Location: time.UTC, StartHour: 10, EndHour: 4, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("expected clamped window, got %v", err)
	}
	if w := c.Window(); w.WallMinutes() != 24*60 {
		t.Fatalf("expected full-day fallback, got %v minutes", w.WallMinutes())
	}
}

func TestInvalidateProgramsForcesRefetch(t *testing.T) {
	backend := &fakeBackend{programs: map[string][]tvapi.Program{}}
	c := newController(t, backend, nil)
	ctx := context.Background()
	if err := c.EnsurePrograms(ctx, []string{"a"}); err != nil {
		t.Fatalf("EnsurePrograms returned error: %v", err)
	}
	c.InvalidatePrograms()
	if _, ok := c.Programs("a"); ok {
		t.Fatal("expected cache to be empty after invalidation")
	}
	if err := c.EnsurePrograms(ctx, []string{"a"}); err != nil {
		t.Fatalf("EnsurePrograms returned error: %v", err)
	}
	if backend.programCalls.Load() != 2 {
		t.Fatalf("expected a second programs fetch, got %d", backend.programCalls.Load())
	}
}

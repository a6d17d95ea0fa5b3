package state

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	tuitree "github.com/glabrego/tvguide-cli/internal/tui/tree"
)

func TestClampCursor(t *testing.T) {
	if got := ClampCursor(-1, 3); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
	if got := ClampCursor(3, 3); got != 2 {
		t.Fatalf("expected clamp to 2, got %d", got)
	}
	if got := ClampCursor(1, 3); got != 1 {
		t.Fatalf("expected keep 1, got %d", got)
	}
}

func TestPageStep(t *testing.T) {
	if got := PageStep(0, false); got != 10 {
		t.Fatalf("expected default step 10, got %d", got)
	}
	if got := PageStep(12, true); got != 4 {
		t.Fatalf("expected step 4 with status, got %d", got)
	}
}

func TestFollowCursorAndWindow(t *testing.T) {
	if got := FollowCursor(0, 7, 20, 5); got != 3 {
		t.Fatalf("expected offset 3, got %d", got)
	}
	if got := FollowCursor(10, 4, 20, 5); got != 4 {
		t.Fatalf("expected offset 4, got %d", got)
	}
	if got := FollowCursor(2, 3, 20, 5); got != 2 {
		t.Fatalf("expected offset to stay at 2, got %d", got)
	}
	start, end := Window(20, 30, 5)
	if start != 15 || end != 20 {
		t.Fatalf("unexpected window: start=%d end=%d", start, end)
	}
	start, end = CenteredWindow(5, 3, 3)
	if start != 2 || end != 5 {
		t.Fatalf("unexpected centered window: start=%d end=%d", start, end)
	}
}

func TestVisibleChannelsAndSync(t *testing.T) {
	rows := []tuitree.Row{
		{Kind: tuitree.RowGroup},
		{Kind: tuitree.RowChannel, ChannelIndex: 4},
		{Kind: tuitree.RowGroup},
		{Kind: tuitree.RowChannel, ChannelIndex: 7},
	}
	if got := VisibleChannelIndices(rows, 1, 4); !reflect.DeepEqual(got, []int{4, 7}) {
		t.Fatalf("unexpected visible channels: %v", got)
	}
	if got := SyncedChannelCursor(rows, 2); got != 7 {
		t.Fatalf("expected synced channel 7, got %d", got)
	}
	if got := SyncedChannelCursor(rows[:1], 0); got != -1 {
		t.Fatalf("expected -1 without channel rows, got %d", got)
	}
}

func TestStoreLoadDefaultsForUnseenTab(t *testing.T) {
	store := NewStore(NewMemoryKV(), nil)
	got := store.Load(TabRecent)
	want := TabState{Tab: TabRecent, ExpandedGroups: map[string]bool{}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(NewMemoryKV(), nil)
	st := TabState{
		Tab:            TabAll,
		ScrollOffset:   42,
		ExpandedGroups: map[string]bool{"News": true, "Sports": false, "Kids & Family": true},
		SearchText:     "bbc",
	}
	if err := store.Save(TabAll, st); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := store.Load(TabAll); !reflect.DeepEqual(got, st) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got, st)
	}
}

func TestStoreKeepsTabsApart(t *testing.T) {
	kv := NewMemoryKV()
	store := NewStore(kv, nil)
	if err := store.Save(TabFavorites, TabState{Tab: TabFavorites, ScrollOffset: 3, ExpandedGroups: map[string]bool{"A": true}}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := store.Load(TabAll); got.ScrollOffset != 0 || len(got.ExpandedGroups) != 0 {
		t.Fatalf("expected all tab untouched, got %+v", got)
	}
	keys := kv.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, "tabstate/favorites/") {
			t.Fatalf("unexpected key %q", k)
		}
	}
	if len(keys) != 3 {
		t.Fatalf("expected one key per kind, got %v", keys)
	}
}

func TestStoreIgnoresCorruptValues(t *testing.T) {
	kv := NewMemoryKV()
	_ = kv.Set("tabstate/all/scroll", "abc")
	_ = kv.Set("tabstate/all/expanded", "{")
	_ = kv.Set("tabstate/all/search", "news")
	got := NewStore(kv, nil).Load(TabAll)
	if got.ScrollOffset != 0 || len(got.ExpandedGroups) != 0 || got.SearchText != "news" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

type failingKV struct{}

func (failingKV) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }
func (failingKV) Set(string, string) error         { return errors.New("disk gone") }

func TestStoreSurfacesWriteErrors(t *testing.T) {
	store := NewStore(failingKV{}, nil)
	if err := store.SaveScroll(TabAll, 1); err == nil || !strings.Contains(err.Error(), "tabstate/all/scroll") {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if got := store.Load(TabAll); got.ScrollOffset != 0 {
		t.Fatalf("expected defaults on read failure, got %+v", got)
	}
}

func TestTabStateCloneIsIndependent(t *testing.T) {
	st := NewTabState(TabAll)
	st.ExpandedGroups["A"] = true
	clone := st.Clone()
	clone.ExpandedGroups["B"] = true
	if len(st.ExpandedGroups) != 1 {
		t.Fatalf("expected original map untouched, got %v", st.ExpandedGroups)
	}
}

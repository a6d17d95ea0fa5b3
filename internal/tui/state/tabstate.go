package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"pkt.systems/pslog"
)

type TabID string

const (
	TabAll       TabID = "all"
	TabFavorites TabID = "favorites"
	TabRecent    TabID = "recent"
)

// Tabs lists the guide tabs in display order.
var Tabs = []TabID{TabAll, TabFavorites, TabRecent}

func (t TabID) Valid() bool {
	switch t {
	case TabAll, TabFavorites, TabRecent:
		return true
	}
	return false
}

func (t TabID) Title() string {
	switch t {
	case TabFavorites:
		return "Favorites"
	case TabRecent:
		return "Recent"
	default:
		return "All"
	}
}

// TabState is the per-tab view state that survives navigation and restarts.
type TabState struct {
	Tab            TabID
	ScrollOffset   int
	ExpandedGroups map[string]bool
	SearchText     string
}

// NewTabState is the state of a tab that was never visited.
func NewTabState(tab TabID) TabState {
	return TabState{Tab: tab, ExpandedGroups: map[string]bool{}}
}

// Clone returns a copy that shares no map with st.
func (st TabState) Clone() TabState {
	out := st
	out.ExpandedGroups = make(map[string]bool, len(st.ExpandedGroups))
	for k, v := range st.ExpandedGroups {
		out.ExpandedGroups[k] = v
	}
	return out
}

// KV is a durable string store. Get reports whether the key exists.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type kind string

const (
	kindScroll   kind = "scroll"
	kindExpanded kind = "expanded"
	kindSearch   kind = "search"
)

func key(tab TabID, k kind) string {
	return "tabstate/" + string(tab) + "/" + string(k)
}

// Store adapts a KV to TabState, one key per tab and kind. It does not
// debounce or cache: every save goes straight to the KV.
type Store struct {
	kv  KV
	log pslog.Logger
}

func NewStore(kv KV, log pslog.Logger) *Store {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Store{kv: kv, log: log}
}

// Load returns the persisted state of tab. Missing or unreadable parts fall
// back to their defaults.
func (s *Store) Load(tab TabID) TabState {
	st := NewTabState(tab)
	log := s.log.With("tab", tab)

	if raw, ok := s.get(log, key(tab, kindScroll)); ok {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			log.Warn("ignoring stored scroll offset", "value", raw)
		} else {
			st.ScrollOffset = offset
		}
	}
	if raw, ok := s.get(log, key(tab, kindExpanded)); ok {
		expanded := map[string]bool{}
		if err := json.Unmarshal([]byte(raw), &expanded); err != nil {
			log.Warn("ignoring stored expanded groups", "err", err)
		} else {
			st.ExpandedGroups = expanded
		}
	}
	if raw, ok := s.get(log, key(tab, kindSearch)); ok {
		st.SearchText = raw
	}
	return st
}

func (s *Store) get(log pslog.Logger, k string) (string, bool) {
	raw, ok, err := s.kv.Get(k)
	if err != nil {
		log.Warn("tab state read failed", "key", k, "err", err)
		return "", false
	}
	return raw, ok
}

// Save persists every part of st under tab.
func (s *Store) Save(tab TabID, st TabState) error {
	if err := s.SaveScroll(tab, st.ScrollOffset); err != nil {
		return err
	}
	if err := s.SaveExpanded(tab, st.ExpandedGroups); err != nil {
		return err
	}
	return s.SaveSearch(tab, st.SearchText)
}

func (s *Store) SaveScroll(tab TabID, offset int) error {
	if offset < 0 {
		offset = 0
	}
	return s.set(key(tab, kindScroll), strconv.Itoa(offset))
}

func (s *Store) SaveExpanded(tab TabID, expanded map[string]bool) error {
	if expanded == nil {
		expanded = map[string]bool{}
	}
	raw, err := json.Marshal(expanded)
	if err != nil {
		return fmt.Errorf("encode expanded groups: %w", err)
	}
	return s.set(key(tab, kindExpanded), string(raw))
}

func (s *Store) SaveSearch(tab TabID, text string) error {
	return s.set(key(tab, kindSearch), text)
}

func (s *Store) set(k, value string) error {
	if err := s.kv.Set(k, value); err != nil {
		s.log.Warn("tab state write failed", "key", k, "err", err)
		return fmt.Errorf("save %s: %w", k, err)
	}
	return nil
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: map[string]string{}}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.writes++
	return nil
}

// Writes is the number of Set calls so far.
func (m *MemoryKV) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Keys returns the stored keys.
func (m *MemoryKV) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	return out
}

package actions

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/tvguide-cli/internal/app"
	"github.com/glabrego/tvguide-cli/internal/tui/state"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

// Guide is the part of the guide controller the UI drives.
type Guide interface {
	SelectTab(ctx context.Context, id state.TabID) error
	Reload(ctx context.Context) error
	ToggleGroup(ctx context.Context, name string) error
	SetSearch(ctx context.Context, text string) error
	SetScroll(tab state.TabID, offset int) error
	EnsurePrograms(ctx context.Context, channelIDs []string) error
	ToggleFavorite(ctx context.Context, channelID string) (tvapi.Channel, error)
	MarkWatched(ctx context.Context, channelID string) (tvapi.Channel, error)
}

// Refresher starts background refresh runs.
type Refresher interface {
	Start(ctx context.Context, kind app.RefreshKind, req tvapi.RefreshRequest, onUpdate func(app.Run)) (app.Run, bool, error)
}

type TabLoadedMsg struct {
	Tab      state.TabID
	Err      error
	Duration time.Duration
	Source   string
	// ScrollErr is set when saving the previous tab's scroll offset failed.
	ScrollErr error
}

type GroupToggledMsg struct {
	Group string
	Err   error
}

type SearchAppliedMsg struct {
	Query string
	Err   error
}

type ProgramsLoadedMsg struct {
	Err error
}

type FavoriteToggledMsg struct {
	Channel tvapi.Channel
	Status  string
	Err     error
}

type PlaySuccessMsg struct {
	Channel tvapi.Channel
	Status  string
	// WatchErr is set when playback started but recording it failed.
	WatchErr error
}

type PlayErrorMsg struct {
	Err error
}

type CopySuccessMsg struct {
	Status string
}

type CopyErrorMsg struct {
	Err error
}

type RefreshStartedMsg struct {
	Run     app.Run
	Started bool
	Err     error
}

type RefreshUpdateMsg struct {
	Run app.Run
}

type ScrollDebounceMsg struct {
	Seq int
	Tab state.TabID
}

type ScrollSavedMsg struct {
	Err error
}

type TickMsg struct {
	Now time.Time
}

type ClearStatusMsg struct {
	ID int
}

type LogoPreviewMsg struct {
	ChannelID string
	Raw       string
	Err       error
}

func LoadTabCmd(guide Guide, tab state.TabID, source string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		start := time.Now()

		err := guide.SelectTab(ctx, tab)
		return TabLoadedMsg{Tab: tab, Err: err, Duration: time.Since(start), Source: source}
	}
}

// SwitchTabCmd saves the scroll offset of the tab being left, then selects
// the next one. Both run in order inside one command.
func SwitchTabCmd(guide Guide, leaving state.TabID, leavingOffset int, tab state.TabID) tea.Cmd {
	return func() tea.Msg {
		scrollErr := guide.SetScroll(leaving, leavingOffset)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		start := time.Now()

		err := guide.SelectTab(ctx, tab)
		return TabLoadedMsg{Tab: tab, Err: err, Duration: time.Since(start), Source: "select", ScrollErr: scrollErr}
	}
}

func ReloadCmd(guide Guide, tab state.TabID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		start := time.Now()

		err := guide.Reload(ctx)
		return TabLoadedMsg{Tab: tab, Err: err, Duration: time.Since(start), Source: "reload"}
	}
}

func ToggleGroupCmd(guide Guide, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		return GroupToggledMsg{Group: name, Err: guide.ToggleGroup(ctx, name)}
	}
}

func SearchCmd(guide Guide, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		return SearchAppliedMsg{Query: text, Err: guide.SetSearch(ctx, text)}
	}
}

func EnsureProgramsCmd(guide Guide, channelIDs []string) tea.Cmd {
	if len(channelIDs) == 0 {
		return nil
	}
	ids := append([]string(nil), channelIDs...)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		return ProgramsLoadedMsg{Err: guide.EnsurePrograms(ctx, ids)}
	}
}

func ToggleFavoriteCmd(guide Guide, channelID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ch, err := guide.ToggleFavorite(ctx, channelID)
		if err != nil {
			if ch.ID == "" {
				ch.ID = channelID
			}
			return FavoriteToggledMsg{Channel: ch, Err: err}
		}
		status := "Removed from favorites"
		if ch.IsFavorite {
			status = "Added to favorites"
		}
		return FavoriteToggledMsg{Channel: ch, Status: status}
	}
}

// PlayCmd launches the player and then records the channel as watched.
func PlayCmd(guide Guide, ch tvapi.Channel, streamURL string, launch func(string) error) tea.Cmd {
	return func() tea.Msg {
		if launch == nil {
			return PlayErrorMsg{Err: fmt.Errorf("no player available")}
		}
		if err := launch(streamURL); err != nil {
			return PlayErrorMsg{Err: fmt.Errorf("play %s: %w", ch.Name, err)}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		updated, err := guide.MarkWatched(ctx, ch.ID)
		if err != nil {
			return PlaySuccessMsg{Channel: ch, Status: "Playing " + ch.Name, WatchErr: err}
		}
		return PlaySuccessMsg{Channel: updated, Status: "Playing " + ch.Name}
	}
}

func CopyURLCmd(url string, copyFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if copyFn != nil {
			if err := copyFn(url); err == nil {
				return CopySuccessMsg{Status: "Stream URL copied to clipboard"}
			}
		}
		return CopyErrorMsg{Err: fmt.Errorf("could not copy URL to clipboard")}
	}
}

// StartRefreshCmd starts a run whose snapshots are delivered on updates.
// The run outlives the command; it ends on completion or on cancel.
func StartRefreshCmd(refresher Refresher, kind app.RefreshKind, req tvapi.RefreshRequest, updates chan<- app.Run) tea.Cmd {
	return func() tea.Msg {
		run, started, err := refresher.Start(context.Background(), kind, req, func(r app.Run) {
			updates <- r
		})
		return RefreshStartedMsg{Run: run, Started: started, Err: err}
	}
}

// ListenRefreshCmd waits for the next run snapshot. The model issues it
// again after every RefreshUpdateMsg.
func ListenRefreshCmd(updates <-chan app.Run) tea.Cmd {
	return func() tea.Msg {
		run, ok := <-updates
		if !ok {
			return nil
		}
		return RefreshUpdateMsg{Run: run}
	}
}

func DebounceScrollCmd(seq int, tab state.TabID, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return ScrollDebounceMsg{Seq: seq, Tab: tab}
	})
}

// SaveScrollCmd persists offset for tab, whichever tab is active when the
// command runs.
func SaveScrollCmd(guide Guide, tab state.TabID, offset int) tea.Cmd {
	return func() tea.Msg {
		return ScrollSavedMsg{Err: guide.SetScroll(tab, offset)}
	}
}

// TickCmd fires on the next wall-clock minute boundary.
func TickCmd(now time.Time) tea.Cmd {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return tea.Tick(next.Sub(now), func(t time.Time) tea.Msg {
		return TickMsg{Now: t}
	})
}

func ClearStatusCmd(id int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return ClearStatusMsg{ID: id}
	})
}

func LogoPreviewCmd(channelID, logoURL string, width int, renderFn func(context.Context, string, int) (string, error)) tea.Cmd {
	return func() tea.Msg {
		if renderFn == nil {
			return LogoPreviewMsg{ChannelID: channelID, Err: fmt.Errorf("logo preview unavailable")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		raw, err := renderFn(ctx, logoURL, width)
		return LogoPreviewMsg{ChannelID: channelID, Raw: raw, Err: err}
	}
}

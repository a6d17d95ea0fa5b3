package app

import (
	"context"
	"fmt"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

// FavoriteSaga is the optimistic favorite toggle as a compensating
// transaction: Apply flips the flag locally, then either Commit adopts the
// server's copy or Rollback restores the snapshot taken before Apply.
type FavoriteSaga struct {
	snapshot tvapi.Channel
	applied  tvapi.Channel
}

func NewFavoriteSaga(ch tvapi.Channel) *FavoriteSaga {
	applied := ch
	applied.IsFavorite = !ch.IsFavorite
	return &FavoriteSaga{snapshot: ch, applied: applied}
}

func (f *FavoriteSaga) ChannelID() string {
	return f.snapshot.ID
}

// Apply returns the channel as it should look while the request is in flight.
func (f *FavoriteSaga) Apply() tvapi.Channel {
	return f.applied
}

// Commit merges the server truth. Only the favorite flag and last-watched time
// are taken from the server; the rest of the local copy stays as displayed.
func (f *FavoriteSaga) Commit(server tvapi.Channel) tvapi.Channel {
	out := f.applied
	out.IsFavorite = server.IsFavorite
	if !server.LastWatched.IsZero() {
		out.LastWatched = server.LastWatched
	}
	return out
}

// Rollback returns the pre-toggle snapshot.
func (f *FavoriteSaga) Rollback() tvapi.Channel {
	return f.snapshot
}

// Execute runs the saga against toggle, calling update with the optimistic
// copy first and with the committed or restored copy last.
func (f *FavoriteSaga) Execute(ctx context.Context, toggle func(context.Context, string) (tvapi.Channel, error), update func(tvapi.Channel)) (tvapi.Channel, error) {
	update(f.Apply())
	server, err := toggle(ctx, f.snapshot.ID)
	if err != nil {
		restored := f.Rollback()
		update(restored)
		return restored, fmt.Errorf("favorite rolled back: %w", err)
	}
	committed := f.Commit(server)
	update(committed)
	return committed, nil
}

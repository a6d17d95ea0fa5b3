package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glabrego/tvguide-cli/internal/storage"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func TestIntegration_SyncToggleAndRestore(t *testing.T) {
	if os.Getenv("TVGUIDE_INTEGRATION") != "1" {
		t.Skip("set TVGUIDE_INTEGRATION=1 to run integration tests")
	}

	baseURL := os.Getenv("TVGUIDE_API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "tvguide-integration.db"))
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := repo.Init(ctx); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	client := tvapi.NewClient(baseURL, nil)
	svc := NewService(client, repo, 200, nil)

	lineup, err := svc.SyncLineup(ctx)
	if err != nil {
		t.Fatalf("SyncLineup returned error: %v", err)
	}
	if len(lineup) == 0 {
		t.Skip("backend has no channels; load a playlist first")
	}

	ch := lineup[0]
	saga := NewFavoriteSaga(ch)
	toggled, err := saga.Execute(ctx, svc.ToggleFavorite, func(tvapi.Channel) {})
	if err != nil {
		t.Fatalf("favorite toggle returned error: %v", err)
	}
	defer func() {
		restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer restoreCancel()
		if toggled.IsFavorite != ch.IsFavorite {
			_, _ = svc.ToggleFavorite(restoreCtx, ch.ID)
		}
	}()
	if toggled.IsFavorite == ch.IsFavorite {
		t.Fatalf("expected favorite state to change from %v", ch.IsFavorite)
	}

	favs, err := svc.ListCached(ctx, tvapi.ChannelQuery{FavoritesOnly: true})
	if err != nil {
		t.Fatalf("ListCached returned error: %v", err)
	}
	found := false
	for _, f := range favs {
		if f.ID == ch.ID {
			found = true
		}
	}
	if found != toggled.IsFavorite {
		t.Fatalf("cache disagrees with toggle: found=%v favorite=%v", found, toggled.IsFavorite)
	}

	groups, err := svc.Groups(ctx)
	if err != nil || len(groups) == 0 {
		t.Fatalf("expected groups, got %+v err=%v", groups, err)
	}
}

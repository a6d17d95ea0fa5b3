package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

// API is the subset of the backend client the service talks to.
type API interface {
	ListChannels(ctx context.Context, query tvapi.ChannelQuery) (tvapi.ChannelPage, error)
	ListGroups(ctx context.Context) ([]tvapi.Group, error)
	ToggleFavorite(ctx context.Context, channelID string) (tvapi.Channel, error)
	MarkWatched(ctx context.Context, channelID string) error
	ClearLastWatched(ctx context.Context, channelID string) error
	Programs(ctx context.Context, query tvapi.ProgramQuery) (map[string][]tvapi.Program, error)
	GetSettings(ctx context.Context) (tvapi.Settings, error)
	SaveSettings(ctx context.Context, settings tvapi.Settings) error
	StreamURL(channelID string) string
	Opener
}

// Repository is the local cache used when the backend is unreachable.
type Repository interface {
	SaveChannels(ctx context.Context, channels []tvapi.Channel) error
	MergeChannels(ctx context.Context, channels []tvapi.Channel) error
	UpdateChannel(ctx context.Context, ch tvapi.Channel) error
	ListChannels(ctx context.Context, query tvapi.ChannelQuery) ([]tvapi.Channel, error)
	ListGroups(ctx context.Context) ([]tvapi.Group, error)
	SavePrograms(ctx context.Context, programs map[string][]tvapi.Program) error
	ListPrograms(ctx context.Context, channelIDs []string, start, end time.Time) (map[string][]tvapi.Program, error)
}

type Service struct {
	api       API
	repo      Repository
	pageLimit int
	log       pslog.Logger
}

// NewService wires the backend client to the cache. repo may be nil, in which
// case failures are never masked by cached data.
func NewService(api API, repo Repository, pageLimit int, log pslog.Logger) *Service {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	if pageLimit <= 0 {
		pageLimit = 500
	}
	return &Service{api: api, repo: repo, pageLimit: pageLimit, log: log}
}

// Groups returns the server groups. When the backend fails and the cache has
// a lineup, the cached groups are returned together with the error.
func (s *Service) Groups(ctx context.Context) ([]tvapi.Group, error) {
	groups, err := s.api.ListGroups(ctx)
	if err == nil {
		return groups, nil
	}
	if s.repo == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	cached, cacheErr := s.repo.ListGroups(ctx)
	if cacheErr != nil || len(cached) == 0 {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	s.log.Warn("serving cached groups", "err", err, "groups", len(cached))
	return cached, fmt.Errorf("fetch groups: %w", err)
}

// Channels fetches one page of channels and merges it into the cache. As with
// Groups, a backend failure may still return cached channels with the error.
func (s *Service) Channels(ctx context.Context, query tvapi.ChannelQuery) ([]tvapi.Channel, error) {
	if query.Limit <= 0 {
		query.Limit = s.pageLimit
	}
	page, err := s.api.ListChannels(ctx, query)
	if err == nil {
		if s.repo != nil {
			if cacheErr := s.repo.MergeChannels(ctx, page.Items); cacheErr != nil {
				s.log.Warn("cache channels failed", "err", cacheErr)
			}
		}
		return page.Items, nil
	}
	if s.repo == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	cached, cacheErr := s.repo.ListChannels(ctx, query)
	if cacheErr != nil || len(cached) == 0 {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	s.log.Warn("serving cached channels", "err", err, "channels", len(cached))
	return cached, fmt.Errorf("fetch channels: %w", err)
}

// SyncLineup pages through the whole lineup and replaces the cache with it.
func (s *Service) SyncLineup(ctx context.Context) ([]tvapi.Channel, error) {
	var all []tvapi.Channel
	for skip := 0; ; {
		page, err := s.api.ListChannels(ctx, tvapi.ChannelQuery{Skip: skip, Limit: s.pageLimit})
		if err != nil {
			return nil, fmt.Errorf("fetch lineup at %d: %w", skip, err)
		}
		all = append(all, page.Items...)
		skip += len(page.Items)
		if len(page.Items) == 0 || skip >= page.Total {
			break
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveChannels(ctx, all); err != nil {
			return nil, fmt.Errorf("save lineup to cache: %w", err)
		}
	}
	s.log.Info("lineup synced", "channels", len(all))
	return all, nil
}

// ListCached reads channels from the cache only.
func (s *Service) ListCached(ctx context.Context, query tvapi.ChannelQuery) ([]tvapi.Channel, error) {
	if s.repo == nil {
		return nil, nil
	}
	channels, err := s.repo.ListChannels(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load channels from cache: %w", err)
	}
	return channels, nil
}

// Programs fetches the programs of the given channels inside [start, end).
// Successful responses are cached; on failure cached programs are returned
// with the error.
func (s *Service) Programs(ctx context.Context, channelIDs []string, start, end time.Time, timezone string) (map[string][]tvapi.Program, error) {
	if len(channelIDs) == 0 {
		return map[string][]tvapi.Program{}, nil
	}
	programs, err := s.api.Programs(ctx, tvapi.ProgramQuery{
		Start:      start,
		End:        end,
		ChannelIDs: channelIDs,
		Timezone:   timezone,
	})
	if err == nil {
		if s.repo != nil {
			if cacheErr := s.repo.SavePrograms(ctx, programs); cacheErr != nil {
				s.log.Warn("cache programs failed", "err", cacheErr)
			}
		}
		return programs, nil
	}
	if s.repo == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("fetch programs: %w", err)
	}
	cached, cacheErr := s.repo.ListPrograms(ctx, channelIDs, start, end)
	if cacheErr != nil || len(cached) == 0 {
		return nil, fmt.Errorf("fetch programs: %w", err)
	}
	return cached, fmt.Errorf("fetch programs: %w", err)
}

// ToggleFavorite flips the flag on the backend and returns its copy.
func (s *Service) ToggleFavorite(ctx context.Context, channelID string) (tvapi.Channel, error) {
	ch, err := s.api.ToggleFavorite(ctx, channelID)
	if err != nil {
		return tvapi.Channel{}, fmt.Errorf("toggle favorite %s: %w", channelID, err)
	}
	s.cacheChannel(ctx, ch)
	return ch, nil
}

// MarkWatched records playback of ch at now and returns the updated copy.
func (s *Service) MarkWatched(ctx context.Context, ch tvapi.Channel, now time.Time) (tvapi.Channel, error) {
	if err := s.api.MarkWatched(ctx, ch.ID); err != nil {
		return ch, fmt.Errorf("mark watched %s: %w", ch.ID, err)
	}
	ch.LastWatched = tvapi.Timestamp{Time: now}
	s.cacheChannel(ctx, ch)
	return ch, nil
}

func (s *Service) ClearWatched(ctx context.Context, ch tvapi.Channel) (tvapi.Channel, error) {
	if err := s.api.ClearLastWatched(ctx, ch.ID); err != nil {
		return ch, fmt.Errorf("clear watched %s: %w", ch.ID, err)
	}
	ch.LastWatched = tvapi.Timestamp{}
	s.cacheChannel(ctx, ch)
	return ch, nil
}

func (s *Service) cacheChannel(ctx context.Context, ch tvapi.Channel) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpdateChannel(ctx, ch); err != nil {
		s.log.Warn("cache channel failed", "channel", ch.ID, "err", err)
	}
}

func (s *Service) Settings(ctx context.Context) (tvapi.Settings, error) {
	settings, err := s.api.GetSettings(ctx)
	if err != nil {
		return tvapi.Settings{}, fmt.Errorf("fetch settings: %w", err)
	}
	return settings, nil
}

func (s *Service) SaveSettings(ctx context.Context, settings tvapi.Settings) error {
	if err := s.api.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// StreamURL returns the playback URL for a channel. Missing channels have no
// stream and yield tvapi.ErrNotFound.
func (s *Service) StreamURL(ch tvapi.Channel) (string, error) {
	if ch.IsMissing {
		return "", fmt.Errorf("channel %s has no stream: %w", ch.ID, tvapi.ErrNotFound)
	}
	return s.api.StreamURL(ch.ID), nil
}

// Opener starts the streaming refresh endpoints.
type Opener interface {
	RefreshPlaylist(ctx context.Context, req tvapi.RefreshRequest) (io.ReadCloser, error)
	RefreshGuide(ctx context.Context, req tvapi.RefreshRequest) (io.ReadCloser, error)
	HardReset(ctx context.Context) (io.ReadCloser, error)
}

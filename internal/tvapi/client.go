package tvapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/progress"
)

type Client struct {
	baseURL    string
	http       *http.Client
	stream     *http.Client
	attempts   uint
	retryDelay time.Duration
	log        pslog.Logger
}

type Option func(*Client)

// WithLogger sets the logger used for request failures.
func WithLogger(log pslog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRetry configures retries of idempotent GET requests.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = attempts
		c.retryDelay = delay
	}
}

// NewClient builds a client for the backend at baseURL. A nil httpClient gets
// a 10s timeout for regular calls; streaming calls are bounded by their
// context only.
func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	stream := httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
		stream = &http.Client{}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       httpClient,
		stream:     stream,
		attempts:   3,
		retryDelay: 250 * time.Millisecond,
		log:        pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListChannels(ctx context.Context, query ChannelQuery) (ChannelPage, error) {
	q := make(url.Values)
	if query.Search != "" {
		q.Set("search", query.Search)
	}
	if query.Group != "" {
		q.Set("group", query.Group)
	}
	if query.FavoritesOnly {
		q.Set("favorites_only", "true")
	}
	if query.RecentOnly {
		q.Set("recent_only", "true")
	}
	if query.Skip > 0 {
		q.Set("skip", strconv.Itoa(query.Skip))
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	path := "/channels"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page ChannelPage
	if err := c.getJSON(ctx, "list channels", path, &page); err != nil {
		return ChannelPage{}, err
	}
	if page.Items == nil {
		page.Items = []Channel{}
	}
	return page, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.getJSON(ctx, "list groups", "/channels/groups", &groups); err != nil {
		return nil, err
	}
	for i := range groups {
		if strings.TrimSpace(groups[i].Name) == "" {
			groups[i].Name = UncategorizedGroup
		}
	}
	return groups, nil
}

// ToggleFavorite flips the favorite flag server-side and returns the updated channel.
func (c *Client) ToggleFavorite(ctx context.Context, channelID string) (Channel, error) {
	resp, err := c.do(ctx, c.http, "toggle favorite", http.MethodPut, "/channels/"+url.PathEscape(channelID)+"/favorite", nil)
	if err != nil {
		return Channel{}, err
	}
	defer resp.Body.Close()

	var ch Channel
	if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
		return Channel{}, decodeErr("toggle favorite", err)
	}
	return ch, nil
}

func (c *Client) MarkWatched(ctx context.Context, channelID string) error {
	return c.post(ctx, "mark watched", "/channels/"+url.PathEscape(channelID)+"/watched")
}

func (c *Client) ClearLastWatched(ctx context.Context, channelID string) error {
	return c.post(ctx, "clear last watched", "/channels/"+url.PathEscape(channelID)+"/clear_last_watched")
}

// Programs fetches the guide for the requested channels. The response is a
// line stream: progress lines are skipped and the last map line wins.
func (c *Client) Programs(ctx context.Context, query ProgramQuery) (map[string][]Program, error) {
	q := make(url.Values)
	q.Set("start", query.Start.UTC().Format(time.RFC3339))
	q.Set("end", query.End.UTC().Format(time.RFC3339))
	q.Set("channel_ids", strings.Join(query.ChannelIDs, ","))
	if query.Timezone != "" {
		q.Set("to_timezone", query.Timezone)
	}

	resp, err := c.do(ctx, c.stream, "list programs", http.MethodGet, "/programs?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result map[string][]Program
	err = progress.ScanLines(ctx, resp.Body, func(line []byte) error {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			return decodeErr("list programs", err)
		}
		if isEventLine(probe) {
			return nil
		}
		var programs map[string][]Program
		if err := json.Unmarshal(line, &programs); err != nil {
			return decodeErr("list programs", err)
		}
		result = programs
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, err
		}
		return nil, networkErr("list programs", err)
	}
	if result == nil {
		return nil, decodeErr("list programs", io.ErrUnexpectedEOF)
	}
	for id, programs := range result {
		for i := range programs {
			if programs[i].ChannelID == "" {
				programs[i].ChannelID = id
			}
		}
	}
	return result, nil
}

func isEventLine(probe map[string]json.RawMessage) bool {
	raw, ok := probe["type"]
	if !ok {
		return false
	}
	var kind string
	return json.Unmarshal(raw, &kind) == nil
}

func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var settings Settings
	if err := c.getJSON(ctx, "get settings", "/settings", &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (c *Client) SaveSettings(ctx context.Context, settings Settings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	resp, err := c.do(ctx, c.http, "save settings", http.MethodPost, "/settings/save", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RefreshPlaylist starts a playlist refresh and returns its progress stream.
// The caller closes the stream; cancelling ctx aborts the transfer.
func (c *Client) RefreshPlaylist(ctx context.Context, req RefreshRequest) (io.ReadCloser, error) {
	return c.openRefresh(ctx, "refresh playlist", "/m3u/refresh", req)
}

// RefreshGuide starts a guide-data refresh and returns its progress stream.
func (c *Client) RefreshGuide(ctx context.Context, req RefreshRequest) (io.ReadCloser, error) {
	return c.openRefresh(ctx, "refresh guide", "/epg/refresh", req)
}

// HardReset wipes and reloads the whole catalog, streaming progress.
func (c *Client) HardReset(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.stream, "hard reset", http.MethodPost, "/channels/hard-reset", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// StreamURL is the playlist URL the backend serves for a channel.
func (c *Client) StreamURL(channelID string) string {
	return c.baseURL + "/stream/" + url.PathEscape(channelID)
}

func (c *Client) openRefresh(ctx context.Context, op, path string, req RefreshRequest) (io.ReadCloser, error) {
	q := make(url.Values)
	q.Set("url", req.URL)
	q.Set("interval", strconv.Itoa(req.IntervalHours))
	q.Set("force", strconv.FormatBool(req.Force))
	resp, err := c.do(ctx, c.stream, op, http.MethodPost, path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, op, path string) error {
	resp, err := c.do(ctx, c.http, op, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return retry.Do(
		func() error {
			resp, err := c.do(ctx, c.http, op, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return decodeErr(op, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying backend request", "op", op, "attempt", n+1, "err", err)
		}),
	)
}

// do sends a request and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", "op", op, "err", err)
		return nil, networkErr(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		c.log.Warn("backend request rejected", "op", op, "status", resp.StatusCode)
		return nil, statusErr
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

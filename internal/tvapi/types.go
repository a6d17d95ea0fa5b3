package tvapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UncategorizedGroup is the label the backend reports for channels without a group.
const UncategorizedGroup = "Uncategorized"

// Channel is the subset of backend channel fields used by the guide.
type Channel struct {
	ID          string    `json:"guide_id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Group       string    `json:"group"`
	Logo        string    `json:"logo,omitempty"`
	IsFavorite  bool      `json:"is_favorite"`
	LastWatched Timestamp `json:"last_watched"`
	CreatedAt   Timestamp `json:"created_at"`
	IsMissing   bool      `json:"is_missing"`
}

// GroupName returns the channel's group label, or UncategorizedGroup when empty.
func (c Channel) GroupName() string {
	if strings.TrimSpace(c.Group) == "" {
		return UncategorizedGroup
	}
	return c.Group
}

// ChannelPage is one page of GET /channels.
type ChannelPage struct {
	Items []Channel `json:"items"`
	Total int       `json:"total"`
	Skip  int       `json:"skip"`
	Limit int       `json:"limit"`
}

// ChannelQuery selects channels. Zero values are omitted from the request.
type ChannelQuery struct {
	Search        string
	Group         string
	FavoritesOnly bool
	RecentOnly    bool
	Skip          int
	Limit         int
}

// Group is a named bucket of channels with its server-side member count.
type Group struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Program is one guide entry for a channel.
type Program struct {
	ID          string    `json:"program_id"`
	ChannelID   string    `json:"channel_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Start       Timestamp `json:"start_time"`
	End         Timestamp `json:"end_time"`
}

// Duration is End minus Start.
func (p Program) Duration() time.Duration {
	return p.End.Time.Sub(p.Start.Time)
}

// ProgramQuery selects the programs of a set of channels inside [Start, End).
type ProgramQuery struct {
	Start      time.Time
	End        time.Time
	ChannelIDs []string
	Timezone   string
}

// Settings is the backend settings document.
type Settings struct {
	M3UURL            string `json:"m3uUrl"`
	M3UUpdateInterval int    `json:"m3uUpdateInterval"`
	EPGURL            string `json:"epgUrl"`
	EPGUpdateInterval int    `json:"epgUpdateInterval"`
	UpdateOnStart     bool   `json:"updateOnStart"`
	Theme             string `json:"theme,omitempty"`
	GuideStartHour    *int   `json:"guideStartHour,omitempty"`
	GuideEndHour      *int   `json:"guideEndHour,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
}

// RefreshRequest parameterises the playlist and guide refresh endpoints.
type RefreshRequest struct {
	URL           string
	IntervalHours int
	Force         bool
}

// Timestamp accepts the timestamp shapes the backend emits: RFC 3339, naive
// ISO 8601 (read as UTC), and unix seconds. A JSON null leaves it zero.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("parse timestamp %s: %w", data, err)
		}
		whole := int64(secs)
		t.Time = time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// ParseTimestamp parses one backend timestamp string.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

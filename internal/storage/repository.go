package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

type Repository struct {
	db *sql.DB
}

// migration is a numbered schema change, recorded in schema_migrations once applied.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "key value store",
		SQL: `
CREATE TABLE IF NOT EXISTS kv (
  namespace TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (namespace, key)
);`,
	},
	{
		Version:     2,
		Description: "channel cache",
		SQL: `
CREATE TABLE IF NOT EXISTS channels (
  guide_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  url TEXT NOT NULL,
  group_name TEXT NOT NULL,
  logo TEXT,
  is_favorite INTEGER NOT NULL DEFAULT 0,
  last_watched TEXT,
  is_missing INTEGER NOT NULL DEFAULT 0,
  position INTEGER NOT NULL,
  fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channels_position ON channels(position);`,
	},
	{
		Version:     3,
		Description: "program cache",
		SQL: `
CREATE TABLE IF NOT EXISTS programs (
  channel_id TEXT NOT NULL,
  program_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  category TEXT,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  PRIMARY KEY (channel_id, program_id)
);
CREATE INDEX IF NOT EXISTS idx_programs_time ON programs(start_time, end_time);`,
	},
}

func NewRepository(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && !strings.HasPrefix(path, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Init configures the connection and applies pending migrations.
func (r *Repository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if err := r.runMigrations(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *Repository) runMigrations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  description TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (r *Repository) GetValue(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (r *Repository) SetValue(ctx context.Context, namespace, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO kv (namespace, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET
  value=excluded.value,
  updated_at=excluded.updated_at
`, namespace, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// KV is a namespaced view of the key value table.
type KV struct {
	repo      *Repository
	namespace string
	timeout   time.Duration
}

// KV returns the key value store for one namespace. Namespaces never share keys.
func (r *Repository) KV(namespace string) *KV {
	return &KV{repo: r, namespace: namespace, timeout: 2 * time.Second}
}

func (k *KV) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	return k.repo.GetValue(ctx, k.namespace, key)
}

func (k *KV) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	return k.repo.SetValue(ctx, k.namespace, key, value)
}

// SaveChannels replaces the cached lineup, keeping the given order.
func (r *Repository) SaveChannels(ctx context.Context, channels []tvapi.Channel) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM channels"); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO channels (guide_id, name, url, group_name, logo, is_favorite, last_watched, is_missing, position, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(guide_id) DO UPDATE SET
  name=excluded.name,
  url=excluded.url,
  group_name=excluded.group_name,
  logo=excluded.logo,
  is_favorite=excluded.is_favorite,
  last_watched=excluded.last_watched,
  is_missing=excluded.is_missing,
  position=excluded.position,
  fetched_at=excluded.fetched_at
`)
	if err != nil {
		return fmt.Errorf("prepare save statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, ch := range channels {
		_, err := stmt.ExecContext(
			ctx,
			ch.ID,
			ch.Name,
			ch.URL,
			ch.Group,
			ch.Logo,
			boolToInt(ch.IsFavorite),
			formatTime(ch.LastWatched.Time),
			boolToInt(ch.IsMissing),
			i,
			now,
		)
		if err != nil {
			return fmt.Errorf("save channel %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// MergeChannels upserts a partial lineup such as one group or a search
// result. Known channels keep their position; new ones are appended.
func (r *Repository) MergeChannels(ctx context.Context, channels []tvapi.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO channels (guide_id, name, url, group_name, logo, is_favorite, last_watched, is_missing, position, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM channels), ?)
ON CONFLICT(guide_id) DO UPDATE SET
  name=excluded.name,
  url=excluded.url,
  group_name=excluded.group_name,
  logo=excluded.logo,
  is_favorite=excluded.is_favorite,
  last_watched=excluded.last_watched,
  is_missing=excluded.is_missing,
  fetched_at=excluded.fetched_at
`)
	if err != nil {
		return fmt.Errorf("prepare merge statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, ch := range channels {
		_, err := stmt.ExecContext(
			ctx,
			ch.ID,
			ch.Name,
			ch.URL,
			ch.Group,
			ch.Logo,
			boolToInt(ch.IsFavorite),
			formatTime(ch.LastWatched.Time),
			boolToInt(ch.IsMissing),
			now,
		)
		if err != nil {
			return fmt.Errorf("merge channel %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateChannel rewrites the cached copy of one channel, if present.
func (r *Repository) UpdateChannel(ctx context.Context, ch tvapi.Channel) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE channels SET name = ?, url = ?, group_name = ?, logo = ?, is_favorite = ?, last_watched = ?, is_missing = ?
WHERE guide_id = ?
`, ch.Name, ch.URL, ch.Group, ch.Logo, boolToInt(ch.IsFavorite), formatTime(ch.LastWatched.Time), boolToInt(ch.IsMissing), ch.ID)
	if err != nil {
		return fmt.Errorf("update channel %s: %w", ch.ID, err)
	}
	return nil
}

// ListChannels returns cached channels in saved order, optionally narrowed
// by the same filters the backend understands.
func (r *Repository) ListChannels(ctx context.Context, query tvapi.ChannelQuery) ([]tvapi.Channel, error) {
	var (
		where []string
		args  []any
	)
	if query.Group != "" {
		if query.Group == tvapi.UncategorizedGroup {
			where = append(where, "(group_name = ? OR group_name = '')")
		} else {
			where = append(where, "group_name = ?")
		}
		args = append(args, query.Group)
	}
	if query.Search != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(query.Search)+"%")
	}
	if query.FavoritesOnly {
		where = append(where, "is_favorite = 1")
	}
	if query.RecentOnly {
		where = append(where, "last_watched IS NOT NULL AND last_watched != ''")
	}

	sqlText := `
SELECT guide_id, name, url, group_name, logo, is_favorite, last_watched, is_missing
FROM channels`
	if len(where) > 0 {
		sqlText += "\nWHERE " + strings.Join(where, " AND ")
	}
	if query.RecentOnly {
		sqlText += "\nORDER BY last_watched DESC, position ASC"
	} else {
		sqlText += "\nORDER BY position ASC"
	}
	if query.Limit > 0 {
		sqlText += "\nLIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]tvapi.Channel, 0, 64)
	for rows.Next() {
		var (
			ch          tvapi.Channel
			logo        sql.NullString
			lastWatched sql.NullString
			favorite    int
			missing     int
		)
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.Group, &logo, &favorite, &lastWatched, &missing); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.Logo = logo.String
		ch.IsFavorite = favorite != 0
		ch.IsMissing = missing != 0
		if lastWatched.String != "" {
			ts, err := time.Parse(time.RFC3339Nano, lastWatched.String)
			if err != nil {
				return nil, fmt.Errorf("parse channel last_watched %q: %w", lastWatched.String, err)
			}
			ch.LastWatched = tvapi.Timestamp{Time: ts}
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return channels, nil
}

// ListGroups derives group counts from the cached lineup, ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]tvapi.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT CASE WHEN group_name = '' THEN ? ELSE group_name END AS g, COUNT(*)
FROM channels
GROUP BY g
ORDER BY g
`, tvapi.UncategorizedGroup)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []tvapi.Group
	for rows.Next() {
		var g tvapi.Group
		if err := rows.Scan(&g.Name, &g.Count); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return groups, nil
}

// SavePrograms upserts the programs of each channel.
func (r *Repository) SavePrograms(ctx context.Context, programs map[string][]tvapi.Program) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO programs (channel_id, program_id, title, description, category, start_time, end_time)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(channel_id, program_id) DO UPDATE SET
  title=excluded.title,
  description=excluded.description,
  category=excluded.category,
  start_time=excluded.start_time,
  end_time=excluded.end_time
`)
	if err != nil {
		return fmt.Errorf("prepare save statement: %w", err)
	}
	defer stmt.Close()

	for channelID, list := range programs {
		for _, p := range list {
			id := p.ID
			if id == "" {
				id = channelID + "_" + p.Start.UTC().Format(time.RFC3339)
			}
			if _, err := stmt.ExecContext(ctx,
				channelID, id, p.Title, p.Description, p.Category,
				formatTime(p.Start.Time), formatTime(p.End.Time),
			); err != nil {
				return fmt.Errorf("save program %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListPrograms returns cached programs overlapping [start, end) for the given
// channels, ordered by start time.
func (r *Repository) ListPrograms(ctx context.Context, channelIDs []string, start, end time.Time) (map[string][]tvapi.Program, error) {
	out := make(map[string][]tvapi.Program, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channelIDs)), ",")
	args := make([]any, 0, len(channelIDs)+2)
	for _, id := range channelIDs {
		args = append(args, id)
	}
	args = append(args, formatTime(end), formatTime(start))

	rows, err := r.db.QueryContext(ctx, `
SELECT channel_id, program_id, title, description, category, start_time, end_time
FROM programs
WHERE channel_id IN (`+placeholders+`) AND start_time < ? AND end_time > ?
ORDER BY start_time ASC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p           tvapi.Program
			description sql.NullString
			category    sql.NullString
			startRaw    string
			endRaw      string
		)
		if err := rows.Scan(&p.ChannelID, &p.ID, &p.Title, &description, &category, &startRaw, &endRaw); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		p.Description = description.String
		p.Category = category.String
		startAt, err := time.Parse(time.RFC3339Nano, startRaw)
		if err != nil {
			return nil, fmt.Errorf("parse program start_time %q: %w", startRaw, err)
		}
		endAt, err := time.Parse(time.RFC3339Nano, endRaw)
		if err != nil {
			return nil, fmt.Errorf("parse program end_time %q: %w", endRaw, err)
		}
		p.Start = tvapi.Timestamp{Time: startAt}
		p.End = tvapi.Timestamp{Time: endAt}
		out[p.ChannelID] = append(out[p.ChannelID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// PrunePrograms drops programs that ended before cutoff.
func (r *Repository) PrunePrograms(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM programs WHERE end_time < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune programs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// formatTime stores instants as fixed-width UTC strings so that text
// comparison matches time order.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/google/uuid"
	"github.com/onnwee/point-farmer/crypto"
)

// PGStore is the Postgres-backed Store implementation. When an Encryptor is
// provided, Twitch access/refresh tokens are encrypted at rest.
type PGStore struct {
	db  *sql.DB
	enc crypto.Encryptor
}

// Open connects to Postgres using the given DSN.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection (used by tests).
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

// SetEncryptor enables token-at-rest encryption for settings columns.
func (p *PGStore) SetEncryptor(enc crypto.Encryptor) { p.enc = enc }

// Close releases the underlying connection pool.
func (p *PGStore) Close() error { return p.db.Close() }

// Ping verifies connectivity (readiness probe).
func (p *PGStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies idempotent schema changes for all required tables and indices.
func (p *PGStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id BIGSERIAL PRIMARY KEY,
			channel_name TEXT NOT NULL,
			channel_id TEXT DEFAULT '',
			is_live BOOLEAN DEFAULT FALSE,
			viewer_count INTEGER DEFAULT 0,
			points_collected INTEGER DEFAULT 0,
			watch_time_minutes INTEGER DEFAULT 0,
			bonus_claims INTEGER DEFAULT 0,
			is_active BOOLEAN DEFAULT TRUE,
			auto_claim_points BOOLEAN DEFAULT TRUE,
			claim_bonuses BOOLEAN DEFAULT TRUE,
			send_logs_to_discord BOOLEAN DEFAULT TRUE,
			auto_follow BOOLEAN DEFAULT FALSE,
			priority TEXT DEFAULT 'medium',
			last_updated TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_name_lower ON channels(LOWER(channel_name))`,
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id BIGSERIAL PRIMARY KEY,
			channel_id BIGINT DEFAULT 0,
			channel_name TEXT DEFAULT '',
			activity_type TEXT NOT NULL,
			message TEXT NOT NULL,
			points_gained INTEGER DEFAULT 0,
			ts TIMESTAMPTZ DEFAULT NOW(),
			sent_to_discord BOOLEAN DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_ts ON activity_logs(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_channel ON activity_logs(channel_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_unsent ON activity_logs(sent_to_discord, ts)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY,
			twitch_username TEXT DEFAULT '',
			twitch_client_id TEXT DEFAULT '',
			twitch_access_token TEXT DEFAULT '',
			twitch_refresh_token TEXT DEFAULT '',
			discord_webhook_url TEXT DEFAULT '',
			max_concurrent_channels INTEGER DEFAULT 5,
			refresh_interval INTEGER DEFAULT 60,
			encryption_version INTEGER DEFAULT 0,
			last_updated TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS stats (
			id INTEGER PRIMARY KEY,
			total_points_collected INTEGER DEFAULT 0,
			total_watch_time_minutes INTEGER DEFAULT 0,
			total_bonus_claims INTEGER DEFAULT 0,
			active_channels INTEGER DEFAULT 0,
			points_per_hour INTEGER DEFAULT 0,
			start_date TIMESTAMPTZ DEFAULT NOW(),
			last_updated TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS access_keys (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			label TEXT DEFAULT '',
			is_admin BOOLEAN DEFAULT FALSE,
			is_active BOOLEAN DEFAULT TRUE,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO stats (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}
	for i, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

const channelCols = `id, channel_name, channel_id, is_live, viewer_count, points_collected,
	watch_time_minutes, bonus_claims, is_active, auto_claim_points, claim_bonuses,
	send_logs_to_discord, auto_follow, priority, last_updated`

func scanChannel(row interface{ Scan(...any) error }) (*Channel, error) {
	var c Channel
	err := row.Scan(&c.ID, &c.ChannelName, &c.ChannelID, &c.IsLive, &c.ViewerCount,
		&c.PointsCollected, &c.WatchTimeMinutes, &c.BonusClaims, &c.IsActive,
		&c.AutoClaimPoints, &c.ClaimBonuses, &c.SendLogsToDiscord, &c.AutoFollow,
		&c.Priority, &c.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PGStore) queryChannels(ctx context.Context, where string, args ...any) ([]Channel, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+channelCols+` FROM channels `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *PGStore) Channels(ctx context.Context) ([]Channel, error) {
	return p.queryChannels(ctx, ``)
}

func (p *PGStore) ActiveChannels(ctx context.Context) ([]Channel, error) {
	return p.queryChannels(ctx, `WHERE is_active`)
}

func (p *PGStore) Channel(ctx context.Context, id int64) (*Channel, error) {
	return scanChannel(p.db.QueryRowContext(ctx, `SELECT `+channelCols+` FROM channels WHERE id=$1`, id))
}

func (p *PGStore) ChannelByName(ctx context.Context, name string) (*Channel, error) {
	return scanChannel(p.db.QueryRowContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE LOWER(channel_name)=LOWER($1)`, name))
}

func (p *PGStore) CreateChannel(ctx context.Context, nc NewChannel) (*Channel, error) {
	priority := nc.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	row := p.db.QueryRowContext(ctx, `INSERT INTO channels
		(channel_name, auto_claim_points, claim_bonuses, send_logs_to_discord, auto_follow, priority)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+channelCols,
		nc.ChannelName, nc.AutoClaimPoints, nc.ClaimBonuses, nc.SendLogsToDiscord, nc.AutoFollow, priority)
	c, err := scanChannel(row)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return c, err
}

// isUniqueViolation matches the Postgres 23505 error without importing the
// driver's error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

func (p *PGStore) UpdateChannel(ctx context.Context, id int64, up ChannelUpdate) (*Channel, error) {
	set := []string{"last_updated=NOW()"}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if up.ChannelID != nil {
		add("channel_id", *up.ChannelID)
	}
	if up.IsLive != nil {
		add("is_live", *up.IsLive)
	}
	if up.ViewerCount != nil {
		add("viewer_count", *up.ViewerCount)
	}
	if up.PointsCollected != nil {
		add("points_collected", *up.PointsCollected)
	}
	if up.WatchTimeMinutes != nil {
		add("watch_time_minutes", *up.WatchTimeMinutes)
	}
	if up.BonusClaims != nil {
		add("bonus_claims", *up.BonusClaims)
	}
	if up.IsActive != nil {
		add("is_active", *up.IsActive)
	}
	if up.AutoClaimPoints != nil {
		add("auto_claim_points", *up.AutoClaimPoints)
	}
	if up.ClaimBonuses != nil {
		add("claim_bonuses", *up.ClaimBonuses)
	}
	if up.SendLogsToDiscord != nil {
		add("send_logs_to_discord", *up.SendLogsToDiscord)
	}
	if up.AutoFollow != nil {
		add("auto_follow", *up.AutoFollow)
	}
	if up.Priority != nil {
		add("priority", *up.Priority)
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE channels SET %s WHERE id=$%d RETURNING `+channelCols,
		strings.Join(set, ", "), len(args))
	return scanChannel(p.db.QueryRowContext(ctx, q, args...))
}

func (p *PGStore) DeleteChannel(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const logCols = `id, channel_id, channel_name, activity_type, message, points_gained, ts, sent_to_discord`

func (p *PGStore) queryLogs(ctx context.Context, tail string, args ...any) ([]ActivityLog, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+logCols+` FROM activity_logs `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActivityLog
	for rows.Next() {
		var l ActivityLog
		if err := rows.Scan(&l.ID, &l.ChannelID, &l.ChannelName, &l.ActivityType,
			&l.Message, &l.PointsGained, &l.Timestamp, &l.SentToDiscord); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *PGStore) Logs(ctx context.Context, limit int) ([]ActivityLog, error) {
	if limit <= 0 {
		limit = 100
	}
	return p.queryLogs(ctx, `ORDER BY ts DESC, id DESC LIMIT $1`, limit)
}

func (p *PGStore) ChannelLogs(ctx context.Context, channelID int64, limit int) ([]ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return p.queryLogs(ctx, `WHERE channel_id=$1 ORDER BY ts DESC, id DESC LIMIT $2`, channelID, limit)
}

func (p *PGStore) UnsentLogs(ctx context.Context) ([]ActivityLog, error) {
	return p.queryLogs(ctx, `WHERE NOT sent_to_discord ORDER BY ts ASC, id ASC`)
}

func (p *PGStore) CreateLog(ctx context.Context, nl NewLog) (*ActivityLog, error) {
	row := p.db.QueryRowContext(ctx, `INSERT INTO activity_logs
		(channel_id, channel_name, activity_type, message, points_gained, sent_to_discord)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+logCols,
		nl.ChannelID, nl.ChannelName, nl.ActivityType, nl.Message, nl.PointsGained, nl.SentToDiscord)
	var l ActivityLog
	err := row.Scan(&l.ID, &l.ChannelID, &l.ChannelName, &l.ActivityType,
		&l.Message, &l.PointsGained, &l.Timestamp, &l.SentToDiscord)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (p *PGStore) MarkLogSent(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE activity_logs SET sent_to_discord=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) Settings(ctx context.Context) (*Settings, error) {
	row := p.db.QueryRowContext(ctx, `SELECT twitch_username, twitch_client_id, twitch_access_token,
		twitch_refresh_token, discord_webhook_url, max_concurrent_channels, refresh_interval,
		encryption_version, last_updated FROM settings WHERE id=1`)
	var s Settings
	var encVersion int
	if err := row.Scan(&s.TwitchUsername, &s.TwitchClientID, &s.TwitchAccessToken,
		&s.TwitchRefreshToken, &s.DiscordWebhookURL, &s.MaxConcurrentChannels,
		&s.RefreshInterval, &encVersion, &s.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if encVersion == 1 && p.enc != nil {
		var err error
		if s.TwitchAccessToken != "" {
			if s.TwitchAccessToken, err = crypto.DecryptString(p.enc, s.TwitchAccessToken); err != nil {
				return nil, fmt.Errorf("decrypt access token: %w", err)
			}
		}
		if s.TwitchRefreshToken != "" {
			if s.TwitchRefreshToken, err = crypto.DecryptString(p.enc, s.TwitchRefreshToken); err != nil {
				return nil, fmt.Errorf("decrypt refresh token: %w", err)
			}
		}
	}
	return &s, nil
}

// sealTokens encrypts token values when an encryptor is configured.
// Returns the values to store plus the encryption_version to record.
func (p *PGStore) sealTokens(access, refresh string) (string, string, int, error) {
	if p.enc == nil {
		return access, refresh, 0, nil
	}
	var err error
	if access != "" {
		if access, err = crypto.EncryptString(p.enc, access); err != nil {
			return "", "", 0, fmt.Errorf("encrypt access token: %w", err)
		}
	}
	if refresh != "" {
		if refresh, err = crypto.EncryptString(p.enc, refresh); err != nil {
			return "", "", 0, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	return access, refresh, 1, nil
}

func (p *PGStore) SaveSettings(ctx context.Context, s Settings) (*Settings, error) {
	access, refresh, encVersion, err := p.sealTokens(s.TwitchAccessToken, s.TwitchRefreshToken)
	if err != nil {
		return nil, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO settings
		(id, twitch_username, twitch_client_id, twitch_access_token, twitch_refresh_token,
		 discord_webhook_url, max_concurrent_channels, refresh_interval, encryption_version, last_updated)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (id) DO UPDATE SET
			twitch_username=EXCLUDED.twitch_username,
			twitch_client_id=EXCLUDED.twitch_client_id,
			twitch_access_token=EXCLUDED.twitch_access_token,
			twitch_refresh_token=EXCLUDED.twitch_refresh_token,
			discord_webhook_url=EXCLUDED.discord_webhook_url,
			max_concurrent_channels=EXCLUDED.max_concurrent_channels,
			refresh_interval=EXCLUDED.refresh_interval,
			encryption_version=EXCLUDED.encryption_version,
			last_updated=NOW()`,
		s.TwitchUsername, s.TwitchClientID, access, refresh,
		s.DiscordWebhookURL, s.MaxConcurrentChannels, s.RefreshInterval, encVersion)
	if err != nil {
		return nil, err
	}
	return p.Settings(ctx)
}

func (p *PGStore) UpdateSettings(ctx context.Context, up SettingsUpdate) (*Settings, error) {
	// Merge in application code so token encryption stays in one place.
	cur, err := p.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if up.TwitchUsername != nil {
		cur.TwitchUsername = *up.TwitchUsername
	}
	if up.TwitchClientID != nil {
		cur.TwitchClientID = *up.TwitchClientID
	}
	if up.TwitchAccessToken != nil {
		cur.TwitchAccessToken = *up.TwitchAccessToken
	}
	if up.TwitchRefreshToken != nil {
		cur.TwitchRefreshToken = *up.TwitchRefreshToken
	}
	if up.DiscordWebhookURL != nil {
		cur.DiscordWebhookURL = *up.DiscordWebhookURL
	}
	if up.MaxConcurrentChannels != nil {
		cur.MaxConcurrentChannels = *up.MaxConcurrentChannels
	}
	if up.RefreshInterval != nil {
		cur.RefreshInterval = *up.RefreshInterval
	}
	return p.SaveSettings(ctx, *cur)
}

func (p *PGStore) Stats(ctx context.Context) (*Stats, error) {
	row := p.db.QueryRowContext(ctx, `SELECT total_points_collected, total_watch_time_minutes,
		total_bonus_claims, active_channels, points_per_hour, start_date, last_updated
		FROM stats WHERE id=1`)
	var st Stats
	if err := row.Scan(&st.TotalPointsCollected, &st.TotalWatchTimeMinutes, &st.TotalBonusClaims,
		&st.ActiveChannels, &st.PointsPerHour, &st.StartDate, &st.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (p *PGStore) UpdateStats(ctx context.Context, up StatsUpdate) (*Stats, error) {
	set := []string{"last_updated=NOW()"}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if up.TotalPointsCollected != nil {
		add("total_points_collected", *up.TotalPointsCollected)
	}
	if up.TotalWatchTimeMinutes != nil {
		add("total_watch_time_minutes", *up.TotalWatchTimeMinutes)
	}
	if up.TotalBonusClaims != nil {
		add("total_bonus_claims", *up.TotalBonusClaims)
	}
	if up.ActiveChannels != nil {
		add("active_channels", *up.ActiveChannels)
	}
	if up.PointsPerHour != nil {
		add("points_per_hour", *up.PointsPerHour)
	}
	q := fmt.Sprintf(`UPDATE stats SET %s WHERE id=1`, strings.Join(set, ", "))
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return nil, err
	}
	return p.Stats(ctx)
}

const keyCols = `id, key, label, is_admin, is_active, expires_at, created_at`

func scanKey(row interface{ Scan(...any) error }) (*AccessKey, error) {
	var k AccessKey
	err := row.Scan(&k.ID, &k.Key, &k.Label, &k.IsAdmin, &k.IsActive, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (p *PGStore) AccessKeys(ctx context.Context) ([]AccessKey, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+keyCols+` FROM access_keys ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccessKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (p *PGStore) AccessKeyByKey(ctx context.Context, key string) (*AccessKey, error) {
	return scanKey(p.db.QueryRowContext(ctx, `SELECT `+keyCols+` FROM access_keys WHERE key=$1`, key))
}

func (p *PGStore) CreateAccessKey(ctx context.Context, nk NewAccessKey) (*AccessKey, error) {
	key := nk.Key
	if key == "" {
		key = uuid.New().String()
	}
	row := p.db.QueryRowContext(ctx, `INSERT INTO access_keys (key, label, is_admin, expires_at)
		VALUES ($1,$2,$3,$4) RETURNING `+keyCols, key, nk.Label, nk.IsAdmin, nk.ExpiresAt)
	k, err := scanKey(row)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return k, err
}

func (p *PGStore) UpdateAccessKey(ctx context.Context, id int64, up AccessKeyUpdate) (*AccessKey, error) {
	set := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if up.Label != nil {
		add("label", *up.Label)
	}
	if up.IsAdmin != nil {
		add("is_admin", *up.IsAdmin)
	}
	if up.IsActive != nil {
		add("is_active", *up.IsActive)
	}
	if up.ExpiresAt != nil {
		add("expires_at", *up.ExpiresAt)
	}
	if len(set) == 0 {
		return scanKey(p.db.QueryRowContext(ctx, `SELECT `+keyCols+` FROM access_keys WHERE id=$1`, id))
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE access_keys SET %s WHERE id=$%d RETURNING `+keyCols,
		strings.Join(set, ", "), len(args))
	return scanKey(p.db.QueryRowContext(ctx, q, args...))
}

func (p *PGStore) DeleteAccessKey(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM access_keys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*MemStore)(nil)
var _ Store = (*PGStore)(nil)

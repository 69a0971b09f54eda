// Package store defines the data model for the point farming service and the
// Store interface all components operate against. Two implementations exist:
// MemStore (default, process-local) and PGStore (Postgres, selected when
// DB_DSN is set). Components receive a Store by injection; there is no
// package-level singleton.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a uniqueness constraint would be violated
	// (channel names are unique case-insensitively, key strings exactly).
	ErrDuplicate = errors.New("already exists")
)

// Channel priority tiers.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Activity log kinds.
const (
	ActivityPoints     = "points"
	ActivityBonus      = "bonus"
	ActivityLive       = "live"
	ActivityOffline    = "offline"
	ActivityError      = "error"
	ActivityConnection = "connection"
)

// Channel is a tracked Twitch channel being farmed.
type Channel struct {
	ID               int64     `json:"id"`
	ChannelName      string    `json:"channelName"`
	ChannelID        string    `json:"channelId"`
	IsLive           bool      `json:"isLive"`
	ViewerCount      int       `json:"viewerCount"`
	PointsCollected  int       `json:"pointsCollected"`
	WatchTimeMinutes int       `json:"watchTimeMinutes"`
	BonusClaims      int       `json:"bonusClaims"`
	IsActive         bool      `json:"isActive"`
	AutoClaimPoints  bool      `json:"autoClaimPoints"`
	ClaimBonuses     bool      `json:"claimBonuses"`
	SendLogsToDiscord bool     `json:"sendLogsToDiscord"`
	AutoFollow       bool      `json:"autoFollow"`
	Priority         string    `json:"priority"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// NewChannel carries the caller-settable fields of a channel on creation.
type NewChannel struct {
	ChannelName       string `json:"channelName"`
	AutoClaimPoints   bool   `json:"autoClaimPoints"`
	ClaimBonuses      bool   `json:"claimBonuses"`
	SendLogsToDiscord bool   `json:"sendLogsToDiscord"`
	AutoFollow        bool   `json:"autoFollow"`
	Priority          string `json:"priority"`
}

// ChannelUpdate is a partial channel update; nil fields are left untouched.
type ChannelUpdate struct {
	ChannelID         *string
	IsLive            *bool
	ViewerCount       *int
	PointsCollected   *int
	WatchTimeMinutes  *int
	BonusClaims       *int
	IsActive          *bool
	AutoClaimPoints   *bool
	ClaimBonuses      *bool
	SendLogsToDiscord *bool
	AutoFollow        *bool
	Priority          *string
}

// ActivityLog records one farming event. Entries are immutable once written
// except for the SentToDiscord flag, which only ever flips false -> true.
type ActivityLog struct {
	ID            int64     `json:"id"`
	ChannelID     int64     `json:"channelId,omitempty"`
	ChannelName   string    `json:"channelName,omitempty"`
	ActivityType  string    `json:"activityType"`
	Message       string    `json:"message"`
	PointsGained  int       `json:"pointsGained"`
	Timestamp     time.Time `json:"timestamp"`
	SentToDiscord bool      `json:"sentToDiscord"`
}

// NewLog carries the fields of a log entry on creation.
type NewLog struct {
	ChannelID     int64
	ChannelName   string
	ActivityType  string
	Message       string
	PointsGained  int
	SentToDiscord bool
}

// Settings is the singleton farming configuration record.
type Settings struct {
	TwitchUsername        string    `json:"twitchUsername"`
	TwitchClientID        string    `json:"twitchClientId"`
	TwitchAccessToken     string    `json:"twitchAccessToken,omitempty"`
	TwitchRefreshToken    string    `json:"twitchRefreshToken,omitempty"`
	DiscordWebhookURL     string    `json:"discordWebhookUrl"`
	MaxConcurrentChannels int       `json:"maxConcurrentChannels"`
	RefreshInterval       int       `json:"refreshInterval"` // seconds between claim ticks
	LastUpdated           time.Time `json:"lastUpdated"`
}

// SettingsUpdate is a partial settings update; nil fields are left untouched.
type SettingsUpdate struct {
	TwitchUsername        *string `json:"twitchUsername"`
	TwitchClientID        *string `json:"twitchClientId"`
	TwitchAccessToken     *string `json:"twitchAccessToken"`
	TwitchRefreshToken    *string `json:"twitchRefreshToken"`
	DiscordWebhookURL     *string `json:"discordWebhookUrl"`
	MaxConcurrentChannels *int    `json:"maxConcurrentChannels"`
	RefreshInterval       *int    `json:"refreshInterval"`
}

// Stats is the singleton aggregate record. Totals are maintained
// incrementally by the claimer/poller (not recomputed from channels), so
// they can drift after channel deletion. Accepted: this is a best-effort
// simulation, not a ledger.
type Stats struct {
	TotalPointsCollected  int       `json:"totalPointsCollected"`
	TotalWatchTimeMinutes int       `json:"totalWatchTimeMinutes"`
	TotalBonusClaims      int       `json:"totalBonusClaims"`
	ActiveChannels        int       `json:"activeChannels"`
	PointsPerHour         int       `json:"pointsPerHour"`
	StartDate             time.Time `json:"startDate"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// StatsUpdate is a partial stats update; nil fields are left untouched.
type StatsUpdate struct {
	TotalPointsCollected  *int
	TotalWatchTimeMinutes *int
	TotalBonusClaims      *int
	ActiveChannels        *int
	PointsPerHour         *int
}

// AccessKey is a bearer credential for the HTTP API.
type AccessKey struct {
	ID        int64      `json:"id"`
	Key       string     `json:"key"`
	Label     string     `json:"label"`
	IsAdmin   bool       `json:"isAdmin"`
	IsActive  bool       `json:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewAccessKey carries the fields of an access key on creation. An empty Key
// lets the store generate one.
type NewAccessKey struct {
	Key       string     `json:"key"`
	Label     string     `json:"label"`
	IsAdmin   bool       `json:"isAdmin"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// AccessKeyUpdate is a partial access key update; nil fields are untouched.
type AccessKeyUpdate struct {
	Label     *string    `json:"label"`
	IsAdmin   *bool      `json:"isAdmin"`
	IsActive  *bool      `json:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Expired reports whether the key has an expiry in the past.
func (k *AccessKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Store is the data access contract shared by all components.
type Store interface {
	// Channels
	Channels(ctx context.Context) ([]Channel, error)
	ActiveChannels(ctx context.Context) ([]Channel, error)
	Channel(ctx context.Context, id int64) (*Channel, error)
	ChannelByName(ctx context.Context, name string) (*Channel, error)
	CreateChannel(ctx context.Context, nc NewChannel) (*Channel, error)
	UpdateChannel(ctx context.Context, id int64, up ChannelUpdate) (*Channel, error)
	DeleteChannel(ctx context.Context, id int64) error

	// Activity logs. Logs and ChannelLogs return newest first; UnsentLogs
	// returns only unsent entries, oldest first. MarkLogSent is idempotent.
	Logs(ctx context.Context, limit int) ([]ActivityLog, error)
	ChannelLogs(ctx context.Context, channelID int64, limit int) ([]ActivityLog, error)
	CreateLog(ctx context.Context, nl NewLog) (*ActivityLog, error)
	MarkLogSent(ctx context.Context, id int64) error
	UnsentLogs(ctx context.Context) ([]ActivityLog, error)

	// Settings (singleton; Save replaces, Update merges)
	Settings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s Settings) (*Settings, error)
	UpdateSettings(ctx context.Context, up SettingsUpdate) (*Settings, error)

	// Stats (singleton)
	Stats(ctx context.Context) (*Stats, error)
	UpdateStats(ctx context.Context, up StatsUpdate) (*Stats, error)

	// Access keys
	AccessKeys(ctx context.Context) ([]AccessKey, error)
	AccessKeyByKey(ctx context.Context, key string) (*AccessKey, error)
	CreateAccessKey(ctx context.Context, nk NewAccessKey) (*AccessKey, error)
	UpdateAccessKey(ctx context.Context, id int64, up AccessKeyUpdate) (*AccessKey, error)
	DeleteAccessKey(ctx context.Context, id int64) error
}

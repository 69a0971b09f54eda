package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLogRetention bounds how many activity log entries MemStore keeps.
// Oldest entries are evicted first once the cap is exceeded.
const DefaultLogRetention = 10000

// MemStore is the in-memory Store implementation. A single RWMutex guards
// all state, so each store call is atomic; read-modify-write sequences
// spanning multiple calls remain best-effort by design.
type MemStore struct {
	mu sync.RWMutex

	channels  map[int64]Channel
	logs      map[int64]ActivityLog
	settings  Settings
	stats     Stats
	keys      map[int64]AccessKey
	nextChan  int64
	nextLog   int64
	nextKey   int64
	retention int
}

// NewMemStore returns an empty store with default settings and stats.
func NewMemStore() *MemStore {
	now := time.Now().UTC()
	return &MemStore{
		channels: make(map[int64]Channel),
		logs:     make(map[int64]ActivityLog),
		keys:     make(map[int64]AccessKey),
		nextChan: 1,
		nextLog:  1,
		nextKey:  1,
		settings: Settings{
			MaxConcurrentChannels: 5,
			RefreshInterval:       60,
			LastUpdated:           now,
		},
		stats: Stats{
			StartDate:   now,
			LastUpdated: now,
		},
		retention: DefaultLogRetention,
	}
}

// SetLogRetention overrides the retained log bound. n <= 0 disables eviction.
func (m *MemStore) SetLogRetention(n int) {
	m.mu.Lock()
	m.retention = n
	m.mu.Unlock()
}

func (m *MemStore) Channels(_ context.Context) ([]Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, c := range m.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) ActiveChannels(ctx context.Context) ([]Channel, error) {
	all, _ := m.Channels(ctx)
	out := all[:0]
	for _, c := range all {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) Channel(_ context.Context, id int64) (*Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemStore) ChannelByName(_ context.Context, name string) (*Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.channels {
		if strings.EqualFold(c.ChannelName, name) {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CreateChannel(_ context.Context, nc NewChannel) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.channels {
		if strings.EqualFold(c.ChannelName, nc.ChannelName) {
			return nil, ErrDuplicate
		}
	}
	priority := nc.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	c := Channel{
		ID:                m.nextChan,
		ChannelName:       nc.ChannelName,
		IsActive:          true,
		AutoClaimPoints:   nc.AutoClaimPoints,
		ClaimBonuses:      nc.ClaimBonuses,
		SendLogsToDiscord: nc.SendLogsToDiscord,
		AutoFollow:        nc.AutoFollow,
		Priority:          priority,
		LastUpdated:       time.Now().UTC(),
	}
	m.nextChan++
	m.channels[c.ID] = c
	return &c, nil
}

func (m *MemStore) UpdateChannel(_ context.Context, id int64, up ChannelUpdate) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	if up.ChannelID != nil {
		c.ChannelID = *up.ChannelID
	}
	if up.IsLive != nil {
		c.IsLive = *up.IsLive
	}
	if up.ViewerCount != nil {
		c.ViewerCount = *up.ViewerCount
	}
	if up.PointsCollected != nil {
		c.PointsCollected = *up.PointsCollected
	}
	if up.WatchTimeMinutes != nil {
		c.WatchTimeMinutes = *up.WatchTimeMinutes
	}
	if up.BonusClaims != nil {
		c.BonusClaims = *up.BonusClaims
	}
	if up.IsActive != nil {
		c.IsActive = *up.IsActive
	}
	if up.AutoClaimPoints != nil {
		c.AutoClaimPoints = *up.AutoClaimPoints
	}
	if up.ClaimBonuses != nil {
		c.ClaimBonuses = *up.ClaimBonuses
	}
	if up.SendLogsToDiscord != nil {
		c.SendLogsToDiscord = *up.SendLogsToDiscord
	}
	if up.AutoFollow != nil {
		c.AutoFollow = *up.AutoFollow
	}
	if up.Priority != nil {
		c.Priority = *up.Priority
	}
	c.LastUpdated = time.Now().UTC()
	m.channels[id] = c
	return &c, nil
}

func (m *MemStore) DeleteChannel(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return ErrNotFound
	}
	// Historical log entries keep their channelId reference; orphans are fine.
	delete(m.channels, id)
	return nil
}

func (m *MemStore) Logs(_ context.Context, limit int) ([]ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLogs(func(ActivityLog) bool { return true }, limit, false), nil
}

func (m *MemStore) ChannelLogs(_ context.Context, channelID int64, limit int) ([]ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLogs(func(l ActivityLog) bool { return l.ChannelID == channelID }, limit, false), nil
}

func (m *MemStore) UnsentLogs(_ context.Context) ([]ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLogs(func(l ActivityLog) bool { return !l.SentToDiscord }, 0, true), nil
}

// sortedLogs filters and sorts under the caller-held lock. ascending=true
// yields oldest first. limit <= 0 means unlimited.
func (m *MemStore) sortedLogs(keep func(ActivityLog) bool, limit int, ascending bool) []ActivityLog {
	out := make([]ActivityLog, 0, len(m.logs))
	for _, l := range m.logs {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp.Equal(b.Timestamp) {
			if ascending {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if ascending {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Timestamp.After(b.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemStore) CreateLog(_ context.Context, nl NewLog) (*ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := ActivityLog{
		ID:            m.nextLog,
		ChannelID:     nl.ChannelID,
		ChannelName:   nl.ChannelName,
		ActivityType:  nl.ActivityType,
		Message:       nl.Message,
		PointsGained:  nl.PointsGained,
		Timestamp:     time.Now().UTC(),
		SentToDiscord: nl.SentToDiscord,
	}
	m.nextLog++
	m.logs[l.ID] = l
	m.evictLogs()
	return &l, nil
}

// evictLogs drops the oldest entries past the retention bound. Caller holds
// the write lock.
func (m *MemStore) evictLogs() {
	if m.retention <= 0 || len(m.logs) <= m.retention {
		return
	}
	ids := make([]int64, 0, len(m.logs))
	for id := range m.logs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids[:len(ids)-m.retention] {
		delete(m.logs, id)
	}
}

func (m *MemStore) MarkLogSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return ErrNotFound
	}
	l.SentToDiscord = true
	m.logs[id] = l
	return nil
}

func (m *MemStore) Settings(_ context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.settings
	return &s, nil
}

func (m *MemStore) SaveSettings(_ context.Context, s Settings) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.LastUpdated = time.Now().UTC()
	m.settings = s
	out := s
	return &out, nil
}

func (m *MemStore) UpdateSettings(_ context.Context, up SettingsUpdate) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings
	if up.TwitchUsername != nil {
		s.TwitchUsername = *up.TwitchUsername
	}
	if up.TwitchClientID != nil {
		s.TwitchClientID = *up.TwitchClientID
	}
	if up.TwitchAccessToken != nil {
		s.TwitchAccessToken = *up.TwitchAccessToken
	}
	if up.TwitchRefreshToken != nil {
		s.TwitchRefreshToken = *up.TwitchRefreshToken
	}
	if up.DiscordWebhookURL != nil {
		s.DiscordWebhookURL = *up.DiscordWebhookURL
	}
	if up.MaxConcurrentChannels != nil {
		s.MaxConcurrentChannels = *up.MaxConcurrentChannels
	}
	if up.RefreshInterval != nil {
		s.RefreshInterval = *up.RefreshInterval
	}
	s.LastUpdated = time.Now().UTC()
	m.settings = s
	out := s
	return &out, nil
}

func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.stats
	return &st, nil
}

func (m *MemStore) UpdateStats(_ context.Context, up StatsUpdate) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats
	if up.TotalPointsCollected != nil {
		st.TotalPointsCollected = *up.TotalPointsCollected
	}
	if up.TotalWatchTimeMinutes != nil {
		st.TotalWatchTimeMinutes = *up.TotalWatchTimeMinutes
	}
	if up.TotalBonusClaims != nil {
		st.TotalBonusClaims = *up.TotalBonusClaims
	}
	if up.ActiveChannels != nil {
		st.ActiveChannels = *up.ActiveChannels
	}
	if up.PointsPerHour != nil {
		st.PointsPerHour = *up.PointsPerHour
	}
	st.LastUpdated = time.Now().UTC()
	m.stats = st
	out := st
	return &out, nil
}

func (m *MemStore) AccessKeys(_ context.Context) ([]AccessKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AccessKey, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) AccessKeyByKey(_ context.Context, key string) (*AccessKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		if k.Key == key {
			k := k
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CreateAccessKey(_ context.Context, nk NewAccessKey) (*AccessKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := nk.Key
	if key == "" {
		key = uuid.New().String()
	}
	for _, k := range m.keys {
		if k.Key == key {
			return nil, ErrDuplicate
		}
	}
	k := AccessKey{
		ID:        m.nextKey,
		Key:       key,
		Label:     nk.Label,
		IsAdmin:   nk.IsAdmin,
		IsActive:  true,
		ExpiresAt: nk.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	m.nextKey++
	m.keys[k.ID] = k
	return &k, nil
}

func (m *MemStore) UpdateAccessKey(_ context.Context, id int64, up AccessKeyUpdate) (*AccessKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	if up.Label != nil {
		k.Label = *up.Label
	}
	if up.IsAdmin != nil {
		k.IsAdmin = *up.IsAdmin
	}
	if up.IsActive != nil {
		k.IsActive = *up.IsActive
	}
	if up.ExpiresAt != nil {
		k.ExpiresAt = up.ExpiresAt
	}
	m.keys[id] = k
	return &k, nil
}

func (m *MemStore) DeleteAccessKey(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

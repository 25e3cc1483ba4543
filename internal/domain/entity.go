// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Storage keys. Blocks, schedules and settings live in the synchronized
// namespace (small, cross-device); stats, pending unblocks and daily
// attempt counters live in the local namespace (larger, device-only).
const (
	KeyActiveBlocks    = "activeBlocks"
	KeySchedules       = "schedules"
	KeySettings        = "settings"
	KeyStats           = "stats"
	KeyPendingUnblocks = "pendingUnblocks"
	KeyDailyAttempts   = "dailyAttempts"
)

// BlockReason records how a block came to exist.
type BlockReason string

const (
	ReasonManual   BlockReason = "manual"
	ReasonSchedule BlockReason = "schedule"
)

// Instants are persisted as epoch milliseconds so the stored JSON stays
// readable by every surface that shares the namespaces.

// TimeToMillis converts a time.Time to epoch milliseconds.
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// MillisToTime converts epoch milliseconds back to a time.Time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// BlockEntry is a currently blocked domain. The map in storage is keyed by
// the normalized domain (lowercase, no www. prefix).
type BlockEntry struct {
	Until     int64       `json:"until"`
	BlockedAt int64       `json:"blockedAt"`
	Reason    BlockReason `json:"reason"`
}

// Expired reports whether the block has lapsed at the given instant.
func (b BlockEntry) Expired(now time.Time) bool {
	return now.UnixMilli() >= b.Until
}

// PendingUnblock is an in-flight delayed request to lift a block.
// At most one exists per domain.
type PendingUnblock struct {
	RequestedAt   int64 `json:"requestedAt"`
	UnlocksAt     int64 `json:"unlocksAt"`
	AttemptNumber int   `json:"attemptNumber"`
}

// Ready reports whether the delay has elapsed.
func (p PendingUnblock) Ready(now time.Time) bool {
	return now.UnixMilli() >= p.UnlocksAt
}

// Abandoned reports whether the entry is past its unlock time by more than
// the grace period and is eligible for lazy garbage collection.
func (p PendingUnblock) Abandoned(now time.Time, grace time.Duration) bool {
	return now.UnixMilli() > p.UnlocksAt+grace.Milliseconds()
}

// RemainingSeconds returns the whole seconds left until unlock, rounded up,
// never negative.
func (p PendingUnblock) RemainingSeconds(now time.Time) int {
	ms := p.UnlocksAt - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return int((ms + 999) / 1000)
}

// Schedule is a recurring weekly window during which a set of domains is
// auto-blocked. Times are minute-of-day in local time; Days holds weekdays
// with Sunday == 0.
type Schedule struct {
	ID          string   `json:"id"`
	Domains     []string `json:"domains"`
	StartMinute int      `json:"startTime"`
	EndMinute   int      `json:"endTime"`
	Days        []int    `json:"days"`
	Enabled     bool     `json:"enabled"`
	CreatedAt   int64    `json:"createdAt"`
}

// ActiveOn reports whether the schedule applies on the given weekday.
func (s Schedule) ActiveOn(weekday int) bool {
	for _, d := range s.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

// Stats is the aggregate usage record. BlockedAttempts is keyed by date
// (YYYY-MM-DD), SiteAttempts by normalized domain.
type Stats struct {
	TotalBlocksCreated int            `json:"totalBlocksCreated"`
	BlockedAttempts    map[string]int `json:"blockedAttempts"`
	SiteAttempts       map[string]int `json:"siteAttempts"`
	StreakStartDate    string         `json:"streakStartDate,omitempty"`
	LastActiveDate     string         `json:"lastActiveDate,omitempty"`
}

// EnsureMaps initializes nil maps after a read from storage.
func (s *Stats) EnsureMaps() {
	if s.BlockedAttempts == nil {
		s.BlockedAttempts = make(map[string]int)
	}
	if s.SiteAttempts == nil {
		s.SiteAttempts = make(map[string]int)
	}
}

// Settings are user-tunable knobs, stored in the synchronized namespace and
// merged with defaults at every read.
type Settings struct {
	BaseDelayMinutes  int    `json:"baseDelayMinutes"`
	MaxDelayMinutes   int    `json:"maxDelayMinutes"`
	EscalationStep    int    `json:"escalationStepMinutes"`
	EscalationEnabled bool   `json:"escalationEnabled"`
	BlockPageURL      string `json:"blockPageUrl"`
}

// Tab is an open browser tab as reported by the browser-side helper.
type Tab struct {
	ID  int    `json:"tabId"`
	URL string `json:"url"`
}

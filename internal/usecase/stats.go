package usecase

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/timeutil"
)

// StatsRetentionDays bounds how long per-day attempt counts are kept.
const StatsRetentionDays = 30

// SiteCount is one entry of the top-sites view.
type SiteCount struct {
	Domain   string `json:"domain"`
	Attempts int    `json:"attempts"`
}

// StatsSummary is the derived read-only view over the raw Stats record.
type StatsSummary struct {
	Today              int         `json:"today"`
	Week               int         `json:"week"`
	Streak             int         `json:"streak"`
	TotalBlocksCreated int         `json:"totalBlocksCreated"`
	TopSites           []SiteCount `json:"topSites"`
}

// StatsRecorder tallies blocked-navigation attempts for statistics and
// streaks. It does no navigation inspection itself; the monitor calls
// RecordBlockedAttempt exactly once per blocked navigation.
type StatsRecorder struct {
	local  domain.Gateway
	clock  domain.Clock
	logger *zap.Logger
}

// NewStatsRecorder creates an attempt recorder.
func NewStatsRecorder(local domain.Gateway, clock domain.Clock, logger *zap.Logger) *StatsRecorder {
	return &StatsRecorder{local: local, clock: clock, logger: logger}
}

// RecordBlockedAttempt bumps today's counter and the domain's lifetime
// counter, refreshes the last-active date, and starts the streak if this
// is the first ever attempt.
func (r *StatsRecorder) RecordBlockedAttempt(ctx context.Context, d string) error {
	today := timeutil.DateKey(r.clock.Now())

	return r.local.WithLock(ctx, domain.KeyStats, func(ctx context.Context) error {
		var stats domain.Stats
		if _, err := r.local.Read(ctx, domain.KeyStats, &stats); err != nil {
			return err
		}
		stats.EnsureMaps()
		stats.BlockedAttempts[today]++
		stats.SiteAttempts[d]++
		stats.LastActiveDate = today
		if stats.StreakStartDate == "" {
			stats.StreakStartDate = today
		}
		return r.local.Write(ctx, domain.KeyStats, stats)
	})
}

// Get returns the raw stats record.
func (r *StatsRecorder) Get(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	if _, err := r.local.Read(ctx, domain.KeyStats, &stats); err != nil {
		return stats, err
	}
	stats.EnsureMaps()
	return stats, nil
}

// Summary computes the derived views: today's count, the 7-day rolling
// sum, the current streak and the top-N sites by lifetime attempts.
func (r *StatsRecorder) Summary(ctx context.Context, topN int) (*StatsSummary, error) {
	stats, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	summary := &StatsSummary{
		Today:              stats.BlockedAttempts[timeutil.DateKey(now)],
		TotalBlocksCreated: stats.TotalBlocksCreated,
	}

	for i := 0; i < 7; i++ {
		summary.Week += stats.BlockedAttempts[timeutil.DateKey(now.AddDate(0, 0, -i))]
	}

	summary.Streak = streak(stats.BlockedAttempts, now)
	summary.TopSites = topSites(stats.SiteAttempts, topN)
	return summary, nil
}

// streak counts consecutive days with at least one attempt, scanning
// backward from today. A zero-count today does not break the streak; it
// just means today has not contributed yet.
func streak(attempts map[string]int, now time.Time) int {
	day := now
	if attempts[timeutil.DateKey(day)] == 0 {
		day = day.AddDate(0, 0, -1)
	}

	count := 0
	for attempts[timeutil.DateKey(day)] > 0 {
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}

func topSites(siteAttempts map[string]int, n int) []SiteCount {
	sites := make([]SiteCount, 0, len(siteAttempts))
	for d, c := range siteAttempts {
		sites = append(sites, SiteCount{Domain: d, Attempts: c})
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Attempts != sites[j].Attempts {
			return sites[i].Attempts > sites[j].Attempts
		}
		return sites[i].Domain < sites[j].Domain
	})
	if n > 0 && len(sites) > n {
		sites = sites[:n]
	}
	return sites
}

// Cleanup prunes per-day attempt counts older than the retention window.
func (r *StatsRecorder) Cleanup(ctx context.Context) error {
	cutoff := timeutil.DateKey(r.clock.Now().AddDate(0, 0, -StatsRetentionDays))

	return r.local.WithLock(ctx, domain.KeyStats, func(ctx context.Context) error {
		var stats domain.Stats
		if _, err := r.local.Read(ctx, domain.KeyStats, &stats); err != nil {
			return err
		}
		stats.EnsureMaps()

		changed := false
		for day := range stats.BlockedAttempts {
			// Date keys sort lexicographically in chronological order.
			if day < cutoff {
				delete(stats.BlockedAttempts, day)
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return r.local.Write(ctx, domain.KeyStats, stats)
	})
}

// Package daemon implements the background monitor process.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/matcher"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

// MonitorConfig holds the periodic evaluation intervals.
type MonitorConfig struct {
	ScheduleInterval    time.Duration // schedule window evaluation
	PendingInterval     time.Duration // abandoned pending-unblock pruning
	MaintenanceInterval time.Duration // attempt-counter and stats cleanup
}

// DefaultMonitorConfig returns the default intervals.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ScheduleInterval:    time.Minute,
		PendingInterval:     10 * time.Minute,
		MaintenanceInterval: time.Hour,
	}
}

// Monitor is the persistent background process. It decides block outcomes
// for reported navigations and drives the periodic passes: schedule
// evaluation every minute, pruning and cleanup less often. Nearly every
// tick is a no-op in the steady state.
type Monitor struct {
	config    MonitorConfig
	blocks    *usecase.BlockList
	unblocker *usecase.Unblocker
	scheduler *usecase.Scheduler
	stats     *usecase.StatsRecorder
	settings  *usecase.SettingsManager
	logger    *zap.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(
	config MonitorConfig,
	blocks *usecase.BlockList,
	unblocker *usecase.Unblocker,
	scheduler *usecase.Scheduler,
	stats *usecase.StatsRecorder,
	settings *usecase.SettingsManager,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:    config,
		blocks:    blocks,
		unblocker: unblocker,
		scheduler: scheduler,
		stats:     stats,
		settings:  settings,
		logger:    logger,
	}
}

// Decide resolves one reported navigation: not blockable, not blocked, or
// blocked with a redirect target. A blocked navigation is recorded against
// the owning domain (the blocked entry's own key, which may be a parent of
// the visited domain).
func (m *Monitor) Decide(ctx context.Context, tabID int, rawURL string) (bool, string, error) {
	if !matcher.IsBlockable(rawURL) {
		return false, "", nil
	}

	owner, entry, err := m.blocks.Lookup(ctx, rawURL)
	if err != nil {
		return false, "", err
	}
	if entry == nil {
		return false, "", nil
	}

	if err := m.stats.RecordBlockedAttempt(ctx, owner); err != nil {
		m.logger.Warn("failed to record blocked attempt",
			zap.String("domain", owner),
			zap.Error(err))
	}

	settings := m.settings.GetOrDefaults(ctx)
	target := usecase.BlockPageURL(settings, owner, entry.Until)

	m.logger.Info("navigation blocked",
		zap.Int("tab_id", tabID),
		zap.String("domain", owner))
	return true, target, nil
}

// Run starts the monitor loop. Blocks until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started")

	// Evaluate immediately on startup so an active schedule window does
	// not wait a full tick.
	m.checkSchedules(ctx)
	m.runMaintenance(ctx)

	scheduleTicker := time.NewTicker(m.config.ScheduleInterval)
	pendingTicker := time.NewTicker(m.config.PendingInterval)
	maintenanceTicker := time.NewTicker(m.config.MaintenanceInterval)

	defer func() {
		scheduleTicker.Stop()
		pendingTicker.Stop()
		maintenanceTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()

		case <-scheduleTicker.C:
			m.checkSchedules(ctx)

		case <-pendingTicker.C:
			m.prunePending(ctx)

		case <-maintenanceTicker.C:
			m.runMaintenance(ctx)
		}
	}
}

func (m *Monitor) checkSchedules(ctx context.Context) {
	if err := m.scheduler.CheckAll(ctx); err != nil {
		m.logger.Warn("schedule evaluation failed", zap.Error(err))
	}
}

// prunePending reads the pending set; the read itself garbage-collects
// abandoned entries.
func (m *Monitor) prunePending(ctx context.Context) {
	if _, err := m.unblocker.GetPending(ctx); err != nil {
		m.logger.Warn("pending-unblock prune failed", zap.Error(err))
	}
}

func (m *Monitor) runMaintenance(ctx context.Context) {
	if err := m.unblocker.CleanupDailyAttempts(ctx); err != nil {
		m.logger.Warn("daily-attempt cleanup failed", zap.Error(err))
	}
	if err := m.stats.Cleanup(ctx); err != nil {
		m.logger.Warn("stats cleanup failed", zap.Error(err))
	}
}

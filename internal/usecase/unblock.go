package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/timeutil"
)

// PendingGrace is how long past its unlock time an unconfirmed pending
// unblock survives before lazy garbage collection treats it as abandoned.
const PendingGrace = time.Hour

// Unblocker runs the delayed-unblock protocol: request starts an
// escalating wait, confirm is the authoritative gate, cancel backs out.
// Escalation is per-domain, per-calendar-day: the attempt counter key
// embeds the local date, so it resets at local midnight rather than on a
// sliding 24h window.
type Unblocker struct {
	local    domain.Gateway
	blocks   *BlockList
	settings *SettingsManager
	clock    domain.Clock
	wake     domain.WakeScheduler // optional
	logger   *zap.Logger
}

// NewUnblocker creates an unblock throttle. wake may be nil; wake-ups are
// notification-only and never load-bearing.
func NewUnblocker(
	local domain.Gateway,
	blocks *BlockList,
	settings *SettingsManager,
	clock domain.Clock,
	wake domain.WakeScheduler,
	logger *zap.Logger,
) *Unblocker {
	return &Unblocker{
		local:    local,
		blocks:   blocks,
		settings: settings,
		clock:    clock,
		wake:     wake,
		logger:   logger,
	}
}

// attemptKey is "<domain>|<date>" so the counter resets implicitly when
// the day rolls over.
func attemptKey(d string, day string) string {
	return fmt.Sprintf("%s|%s", d, day)
}

// Delay computes the wait for the given 1-based same-day attempt number.
func Delay(settings domain.Settings, attempt int) time.Duration {
	minutes := settings.BaseDelayMinutes
	if attempt > 1 && settings.EscalationEnabled {
		minutes = settings.BaseDelayMinutes + (attempt-1)*settings.EscalationStep
		if minutes > settings.MaxDelayMinutes {
			minutes = settings.MaxDelayMinutes
		}
	}
	return minuteDuration(minutes)
}

// Request starts a delayed unblock for a domain, returning the normalized
// domain and the new pending entry. A second request while one is
// outstanding fails with unblock_pending carrying the remaining seconds,
// so the caller can re-display the same countdown.
func (u *Unblocker) Request(ctx context.Context, rawDomain string) (string, *domain.PendingUnblock, error) {
	d, err := ValidateDomain(rawDomain)
	if err != nil {
		return "", nil, err
	}

	settings, err := u.settings.Get(ctx)
	if err != nil {
		return "", nil, err
	}

	// The conflict check and the pending upsert share one critical section
	// on pendingUnblocks, so two concurrent requests cannot both pass the
	// check. The attempt counter nests under it; distinct keys lock
	// independently.
	var result domain.PendingUnblock
	var conflict *domain.Error
	err = u.local.WithLock(ctx, domain.KeyPendingUnblocks, func(ctx context.Context) error {
		pending, err := u.loadPending(ctx)
		if err != nil {
			return err
		}

		now := u.clock.Now()
		pruned := u.pruneAbandoned(pending, now)

		if p, ok := pending[d]; ok && !p.Ready(now) {
			conflict = domain.Ef(domain.ErrUnblockPending, "unblock already pending for %q", d).
				WithDetail("remainingTime", p.RemainingSeconds(now))
			if pruned {
				return u.local.Write(ctx, domain.KeyPendingUnblocks, pending)
			}
			return nil
		}

		// Count this attempt for today. A rejected duplicate never reaches
		// this point, so it does not inflate the escalation counter.
		day := timeutil.DateKey(now)
		attempt := 0
		if err := u.local.WithLock(ctx, domain.KeyDailyAttempts, func(ctx context.Context) error {
			counts := map[string]int{}
			if _, err := u.local.Read(ctx, domain.KeyDailyAttempts, &counts); err != nil {
				return err
			}
			attempt = counts[attemptKey(d, day)] + 1
			counts[attemptKey(d, day)] = attempt
			return u.local.Write(ctx, domain.KeyDailyAttempts, counts)
		}); err != nil {
			return err
		}

		delay := Delay(settings, attempt)
		result = domain.PendingUnblock{
			RequestedAt:   domain.TimeToMillis(now),
			UnlocksAt:     domain.TimeToMillis(now.Add(delay)),
			AttemptNumber: attempt,
		}
		pending[d] = result
		return u.local.Write(ctx, domain.KeyPendingUnblocks, pending)
	})
	if err != nil {
		return "", nil, err
	}
	if conflict != nil {
		return "", nil, conflict
	}

	if u.wake != nil {
		dom := d
		u.wake.Schedule(wakeName(d), domain.MillisToTime(result.UnlocksAt), func() {
			u.logger.Info("unblock delay elapsed", zap.String("domain", dom))
		})
	}

	u.logger.Info("unblock requested",
		zap.String("domain", d),
		zap.Int("attempt", result.AttemptNumber),
		zap.Int64("unlocks_at", result.UnlocksAt))
	return d, &result, nil
}

// Cancel removes the pending unblock for a domain. Canceling something
// already consumed reports no_pending_unblock; the caller may simply have
// raced an already-completed confirm, so this is a benign failure.
func (u *Unblocker) Cancel(ctx context.Context, rawDomain string) (string, error) {
	d, err := ValidateDomain(rawDomain)
	if err != nil {
		return "", err
	}

	removed := false
	if err := u.local.WithLock(ctx, domain.KeyPendingUnblocks, func(ctx context.Context) error {
		pending, err := u.loadPending(ctx)
		if err != nil {
			return err
		}
		if _, ok := pending[d]; !ok {
			return nil
		}
		removed = true
		delete(pending, d)
		return u.local.Write(ctx, domain.KeyPendingUnblocks, pending)
	}); err != nil {
		return "", err
	}

	if u.wake != nil {
		u.wake.Clear(wakeName(d))
	}
	if !removed {
		return "", domain.Ef(domain.ErrNoPendingUnblock, "no pending unblock for %q", d)
	}

	u.logger.Info("unblock canceled", zap.String("domain", d))
	return d, nil
}

// Confirm is the authoritative gate: it re-reads the clock and fails with
// unblock_delay_not_complete while the delay runs. On success the block is
// removed and the pending entry consumed.
func (u *Unblocker) Confirm(ctx context.Context, rawDomain string) (string, error) {
	d, err := ValidateDomain(rawDomain)
	if err != nil {
		return "", err
	}

	var conflict *domain.Error
	if err := u.local.WithLock(ctx, domain.KeyPendingUnblocks, func(ctx context.Context) error {
		pending, err := u.loadPending(ctx)
		if err != nil {
			return err
		}
		// Fresh clock read: the deadline is re-checked here, never trusted
		// from the value computed at request time.
		now := u.clock.Now()
		if p, ok := pending[d]; ok && !p.Ready(now) {
			conflict = domain.Ef(domain.ErrUnblockDelayNotComplete, "unblock delay for %q not complete", d).
				WithDetail("remainingTime", p.RemainingSeconds(now))
		}
		return nil
	}); err != nil {
		return "", err
	}
	if conflict != nil {
		return "", conflict
	}

	// The block may have expired on its own while the delay ran; that is
	// still a successful confirm.
	if _, err := u.blocks.Remove(ctx, d); err != nil && domain.KindOf(err) != domain.ErrBlockNotFound {
		return "", err
	}

	if err := u.local.WithLock(ctx, domain.KeyPendingUnblocks, func(ctx context.Context) error {
		pending, err := u.loadPending(ctx)
		if err != nil {
			return err
		}
		if _, ok := pending[d]; !ok {
			return nil
		}
		delete(pending, d)
		return u.local.Write(ctx, domain.KeyPendingUnblocks, pending)
	}); err != nil {
		return "", err
	}

	if u.wake != nil {
		u.wake.Clear(wakeName(d))
	}

	u.logger.Info("unblock confirmed", zap.String("domain", d))
	return d, nil
}

// GetPending returns all pending unblocks, lazily purging entries more
// than the grace period past their unlock time.
func (u *Unblocker) GetPending(ctx context.Context) (map[string]domain.PendingUnblock, error) {
	var result map[string]domain.PendingUnblock

	err := u.local.WithLock(ctx, domain.KeyPendingUnblocks, func(ctx context.Context) error {
		pending, err := u.loadPending(ctx)
		if err != nil {
			return err
		}
		if u.pruneAbandoned(pending, u.clock.Now()) {
			if err := u.local.Write(ctx, domain.KeyPendingUnblocks, pending); err != nil {
				return err
			}
		}
		result = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CleanupDailyAttempts drops attempt counters from prior days.
func (u *Unblocker) CleanupDailyAttempts(ctx context.Context) error {
	today := timeutil.DateKey(u.clock.Now())

	return u.local.WithLock(ctx, domain.KeyDailyAttempts, func(ctx context.Context) error {
		counts := map[string]int{}
		if _, err := u.local.Read(ctx, domain.KeyDailyAttempts, &counts); err != nil {
			return err
		}
		changed := false
		for key := range counts {
			if !strings.HasSuffix(key, "|"+today) {
				delete(counts, key)
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return u.local.Write(ctx, domain.KeyDailyAttempts, counts)
	})
}

func (u *Unblocker) loadPending(ctx context.Context) (map[string]domain.PendingUnblock, error) {
	pending := map[string]domain.PendingUnblock{}
	if _, err := u.local.Read(ctx, domain.KeyPendingUnblocks, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// pruneAbandoned removes entries past unlocksAt + grace. Reports whether
// anything was dropped.
func (u *Unblocker) pruneAbandoned(pending map[string]domain.PendingUnblock, now time.Time) bool {
	pruned := false
	for d, p := range pending {
		if p.Abandoned(now, PendingGrace) {
			delete(pending, d)
			pruned = true
		}
	}
	return pruned
}

func wakeName(d string) string {
	return "unblock:" + d
}

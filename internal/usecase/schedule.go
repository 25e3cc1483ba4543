package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/timeutil"
)

// ScheduleInput is a user-supplied schedule before validation. Times are
// "HH:MM" strings as entered.
type ScheduleInput struct {
	Domains   []string `json:"domains"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Days      []int    `json:"days"`
	Enabled   *bool    `json:"enabled,omitempty"`
}

// Scheduler evaluates recurring weekly windows and applies
// schedule-sourced blocks. It is driven by a periodic external tick and
// must be idempotent: in the steady state nearly every evaluation is a
// no-op.
type Scheduler struct {
	sync   domain.Gateway
	blocks *BlockList
	clock  domain.Clock
	logger *zap.Logger
}

// NewScheduler creates a schedule engine.
func NewScheduler(sync domain.Gateway, blocks *BlockList, clock domain.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sync:   sync,
		blocks: blocks,
		clock:  clock,
		logger: logger,
	}
}

// Add validates and stores a new schedule, returning it with its assigned
// ID.
func (s *Scheduler) Add(ctx context.Context, input ScheduleInput) (*domain.Schedule, error) {
	if len(input.Domains) == 0 {
		return nil, domain.E(domain.ErrScheduleNoDomains, "schedule has no domains")
	}
	if len(input.Days) == 0 {
		return nil, domain.E(domain.ErrScheduleNoDays, "schedule has no days")
	}
	for _, d := range input.Days {
		if d < 0 || d > 6 {
			return nil, domain.Ef(domain.ErrScheduleNoDays, "invalid weekday %d", d)
		}
	}

	domains := make([]string, 0, len(input.Domains))
	for _, raw := range input.Domains {
		d, err := ValidateDomain(raw)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}

	start, err := timeutil.ParseClock(input.StartTime)
	if err != nil {
		return nil, domain.Ef(domain.ErrScheduleInvalidTime, "invalid start time %q", input.StartTime)
	}
	end, err := timeutil.ParseClock(input.EndTime)
	if err != nil {
		return nil, domain.Ef(domain.ErrScheduleInvalidTime, "invalid end time %q", input.EndTime)
	}
	if start >= end {
		return nil, domain.E(domain.ErrScheduleInvalidTime, "start time must be before end time")
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	sched := domain.Schedule{
		ID:          uuid.NewString(),
		Domains:     domains,
		StartMinute: start,
		EndMinute:   end,
		Days:        append([]int(nil), input.Days...),
		Enabled:     enabled,
		CreatedAt:   domain.TimeToMillis(s.clock.Now()),
	}

	if err := s.sync.WithLock(ctx, domain.KeySchedules, func(ctx context.Context) error {
		schedules, err := s.loadSchedules(ctx)
		if err != nil {
			return err
		}
		schedules = append(schedules, sched)
		return s.sync.Write(ctx, domain.KeySchedules, schedules)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("schedule added",
		zap.String("id", sched.ID),
		zap.Strings("domains", sched.Domains))
	return &sched, nil
}

// Delete removes a schedule by ID.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	found := false
	err := s.sync.WithLock(ctx, domain.KeySchedules, func(ctx context.Context) error {
		schedules, err := s.loadSchedules(ctx)
		if err != nil {
			return err
		}
		kept := schedules[:0]
		for _, sched := range schedules {
			if sched.ID == id {
				found = true
				continue
			}
			kept = append(kept, sched)
		}
		if !found {
			return nil
		}
		return s.sync.Write(ctx, domain.KeySchedules, kept)
	})
	if err != nil {
		return err
	}
	if !found {
		return domain.Ef(domain.ErrInvalidSchedule, "no schedule with id %q", id)
	}
	s.logger.Info("schedule deleted", zap.String("id", id))
	return nil
}

// Toggle enables or disables a schedule by ID.
func (s *Scheduler) Toggle(ctx context.Context, id string, enabled bool) error {
	found := false
	err := s.sync.WithLock(ctx, domain.KeySchedules, func(ctx context.Context) error {
		schedules, err := s.loadSchedules(ctx)
		if err != nil {
			return err
		}
		for i := range schedules {
			if schedules[i].ID == id {
				schedules[i].Enabled = enabled
				found = true
				break
			}
		}
		if !found {
			return nil
		}
		return s.sync.Write(ctx, domain.KeySchedules, schedules)
	})
	if err != nil {
		return err
	}
	if !found {
		return domain.Ef(domain.ErrInvalidSchedule, "no schedule with id %q", id)
	}
	s.logger.Info("schedule toggled", zap.String("id", id), zap.Bool("enabled", enabled))
	return nil
}

// GetAll returns all stored schedules.
func (s *Scheduler) GetAll(ctx context.Context) ([]domain.Schedule, error) {
	var result []domain.Schedule
	err := s.sync.WithLock(ctx, domain.KeySchedules, func(ctx context.Context) error {
		schedules, err := s.loadSchedules(ctx)
		if err != nil {
			return err
		}
		result = schedules
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckSingle applies one schedule if it is active right now. A block the
// schedule already placed is left alone so its expiry is not restarted on
// every tick; a manual block is converted to the schedule's window but its
// expiry is never shortened.
func (s *Scheduler) CheckSingle(ctx context.Context, sched domain.Schedule) error {
	if !sched.Enabled {
		return nil
	}

	now := s.clock.Now()
	if !sched.ActiveOn(int(now.Weekday())) {
		return nil
	}
	minute := timeutil.MinuteOfDay(now)
	if !timeutil.InWindow(minute, sched.StartMinute, sched.EndMinute) {
		return nil
	}
	if timeutil.MinutesUntil(now, sched.EndMinute) <= 0 {
		// Window has effectively ended.
		return nil
	}

	until := domain.TimeToMillis(timeutil.AtMinute(now, sched.EndMinute))

	for _, d := range sched.Domains {
		entry, err := s.blocks.Get(ctx, d)
		if err != nil {
			s.logger.Warn("schedule check: block lookup failed",
				zap.String("schedule", sched.ID),
				zap.String("domain", d),
				zap.Error(err))
			continue
		}
		if entry != nil && entry.Reason == domain.ReasonSchedule {
			continue
		}

		blockUntil := until
		if entry != nil && entry.Until > blockUntil {
			// Never shorten an existing manual block.
			blockUntil = entry.Until
		}
		if err := s.blocks.ApplySchedule(ctx, d, blockUntil); err != nil {
			s.logger.Warn("schedule check: apply failed",
				zap.String("schedule", sched.ID),
				zap.String("domain", d),
				zap.Error(err))
		}
	}
	return nil
}

// CheckAll evaluates every stored schedule. A failure on one schedule
// never aborts evaluation of the rest.
func (s *Scheduler) CheckAll(ctx context.Context) error {
	schedules, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, sched := range schedules {
		if err := s.CheckSingle(ctx, sched); err != nil {
			s.logger.Warn("schedule evaluation failed",
				zap.String("schedule", sched.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) loadSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	if _, err := s.sync.Read(ctx, domain.KeySchedules, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

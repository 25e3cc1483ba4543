package usecase

import (
	"context"
	"fmt"
	"net/url"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/matcher"
)

const (
	// Manual block duration bounds, in minutes.
	MinBlockMinutes = 1
	MaxBlockMinutes = 480
)

// ValidateDomain normalizes raw input and enforces the rules for a
// storable domain: non-empty after normalization, contains a dot, at
// least 3 characters, no whitespace or control characters.
func ValidateDomain(raw string) (string, error) {
	for _, r := range raw {
		if unicode.IsControl(r) {
			return "", domain.E(domain.ErrInvalidDomain, "domain contains control characters")
		}
	}
	d := matcher.Normalize(raw)
	if d == "" {
		return "", domain.Ef(domain.ErrInvalidDomain, "not a valid domain: %q", raw)
	}
	if len(d) < 3 || !containsDot(d) || containsSpace(d) {
		return "", domain.Ef(domain.ErrInvalidDomain, "not a valid domain: %q", raw)
	}
	return d, nil
}

func containsDot(s string) bool {
	for _, r := range s {
		if r == '.' {
			return true
		}
	}
	return false
}

func containsSpace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// BlockList is the registry of currently blocked domains. Blocks live
// under one key in the synchronized namespace; every mutation is a
// read-modify-write inside the key's lock. Expiry is lazy: detected on
// read, with the pruned map persisted in the same critical section.
type BlockList struct {
	sync     domain.Gateway
	local    domain.Gateway
	clock    domain.Clock
	tabs     domain.TabController // optional
	settings *SettingsManager
	logger   *zap.Logger
}

// NewBlockList creates a block registry. tabs may be nil when no browser
// collaborator is attached (unit tests, maintenance tools).
func NewBlockList(
	sync domain.Gateway,
	local domain.Gateway,
	clock domain.Clock,
	tabs domain.TabController,
	settings *SettingsManager,
	logger *zap.Logger,
) *BlockList {
	return &BlockList{
		sync:     sync,
		local:    local,
		clock:    clock,
		tabs:     tabs,
		settings: settings,
		logger:   logger,
	}
}

// Add validates and upserts a manual (or schedule-sourced) block lasting
// the given number of minutes. Invalid input never mutates state.
func (b *BlockList) Add(ctx context.Context, rawDomain string, minutes int, reason domain.BlockReason) (string, error) {
	d, err := ValidateDomain(rawDomain)
	if err != nil {
		return "", err
	}
	if minutes < MinBlockMinutes {
		return "", domain.Ef(domain.ErrDurationTooShort, "duration %d minutes is below the minimum", minutes).
			WithDetail("minMinutes", MinBlockMinutes)
	}
	if minutes > MaxBlockMinutes {
		return "", domain.Ef(domain.ErrDurationTooLong, "duration %d minutes is above the maximum", minutes).
			WithDetail("maxMinutes", MaxBlockMinutes)
	}
	if reason == "" {
		reason = domain.ReasonManual
	}

	now := b.clock.Now()
	entry := domain.BlockEntry{
		Until:     domain.TimeToMillis(now.Add(minuteDuration(minutes))),
		BlockedAt: domain.TimeToMillis(now),
		Reason:    reason,
	}
	if err := b.put(ctx, d, entry); err != nil {
		return "", err
	}
	return d, nil
}

// ApplySchedule upserts a schedule-sourced block running until the given
// instant. Schedule windows are not subject to the manual duration bounds.
func (b *BlockList) ApplySchedule(ctx context.Context, normalized string, until int64) error {
	entry := domain.BlockEntry{
		Until:     until,
		BlockedAt: domain.TimeToMillis(b.clock.Now()),
		Reason:    domain.ReasonSchedule,
	}
	return b.put(ctx, normalized, entry)
}

// put upserts the entry, bumps the created counter, and signals the tab
// collaborator to redirect any open tab the new block covers.
func (b *BlockList) put(ctx context.Context, d string, entry domain.BlockEntry) error {
	err := b.sync.WithLock(ctx, domain.KeyActiveBlocks, func(ctx context.Context) error {
		blocks, err := b.loadBlocks(ctx)
		if err != nil {
			return err
		}
		blocks[d] = entry
		return b.sync.Write(ctx, domain.KeyActiveBlocks, blocks)
	})
	if err != nil {
		return err
	}

	if err := b.local.WithLock(ctx, domain.KeyStats, func(ctx context.Context) error {
		var stats domain.Stats
		if _, err := b.local.Read(ctx, domain.KeyStats, &stats); err != nil {
			return err
		}
		stats.EnsureMaps()
		stats.TotalBlocksCreated++
		return b.local.Write(ctx, domain.KeyStats, stats)
	}); err != nil {
		// The block itself is in place; a failed counter bump is not worth
		// failing the caller over.
		b.logger.Warn("failed to bump created-blocks counter", zap.Error(err))
	}

	b.logger.Info("block applied",
		zap.String("domain", d),
		zap.String("reason", string(entry.Reason)),
		zap.Int64("until", entry.Until))

	b.redirectOpenTabs(ctx, d, entry)
	return nil
}

// redirectOpenTabs sends any open tab covered by the new block to the
// block page. Best effort: failures are logged, never propagated.
func (b *BlockList) redirectOpenTabs(ctx context.Context, d string, entry domain.BlockEntry) {
	if b.tabs == nil {
		return
	}
	tabs, err := b.tabs.OpenTabs(ctx)
	if err != nil {
		b.logger.Warn("failed to list open tabs", zap.Error(err))
		return
	}

	settings := b.settings.GetOrDefaults(ctx)
	target := BlockPageURL(settings, d, entry.Until)

	for _, tab := range tabs {
		if !matcher.IsBlockable(tab.URL) {
			continue
		}
		candidate := matcher.Normalize(tab.URL)
		if candidate == "" || !matcher.Matches(candidate, d) {
			continue
		}
		if err := b.tabs.Redirect(ctx, tab.ID, target); err != nil {
			b.logger.Warn("failed to redirect tab",
				zap.Int("tab_id", tab.ID),
				zap.Error(err))
		}
	}
}

// Remove deletes the block for a domain and any pending unblock attached
// to it. Returns block_not_found when the domain had no entry.
func (b *BlockList) Remove(ctx context.Context, rawDomain string) (string, error) {
	d, err := ValidateDomain(rawDomain)
	if err != nil {
		return "", err
	}

	found := false
	err = b.sync.WithLock(ctx, domain.KeyActiveBlocks, func(ctx context.Context) error {
		blocks, err := b.loadBlocks(ctx)
		if err != nil {
			return err
		}
		if _, ok := blocks[d]; !ok {
			return nil
		}
		found = true
		delete(blocks, d)
		return b.sync.Write(ctx, domain.KeyActiveBlocks, blocks)
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", domain.Ef(domain.ErrBlockNotFound, "no block for %q", d)
	}

	// Removing a block must not leave a dangling pending-unblock record.
	if err := b.local.WithLock(ctx, domain.KeyPendingUnblocks, func(ctx context.Context) error {
		pending := map[string]domain.PendingUnblock{}
		if _, err := b.local.Read(ctx, domain.KeyPendingUnblocks, &pending); err != nil {
			return err
		}
		if _, ok := pending[d]; !ok {
			return nil
		}
		delete(pending, d)
		return b.local.Write(ctx, domain.KeyPendingUnblocks, pending)
	}); err != nil {
		return "", err
	}

	b.logger.Info("block removed", zap.String("domain", d))
	return d, nil
}

// GetAll returns all non-expired blocks. Expired entries found during the
// read are pruned and the trimmed map persisted inside the same critical
// section, so a concurrent writer cannot interleave with the prune.
func (b *BlockList) GetAll(ctx context.Context) (map[string]domain.BlockEntry, error) {
	var result map[string]domain.BlockEntry

	err := b.sync.WithLock(ctx, domain.KeyActiveBlocks, func(ctx context.Context) error {
		blocks, err := b.loadBlocks(ctx)
		if err != nil {
			return err
		}

		now := b.clock.Now()
		pruned := false
		for d, entry := range blocks {
			if entry.Expired(now) {
				delete(blocks, d)
				pruned = true
			}
		}
		if pruned {
			if err := b.sync.Write(ctx, domain.KeyActiveBlocks, blocks); err != nil {
				return err
			}
		}
		result = blocks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the entry stored under exactly the given normalized domain,
// or nil when absent.
func (b *BlockList) Get(ctx context.Context, normalized string) (*domain.BlockEntry, error) {
	blocks, err := b.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if entry, ok := blocks[normalized]; ok {
		return &entry, nil
	}
	return nil, nil
}

// Lookup resolves the block covering a visited domain: direct match first,
// then a scan for a parent whose subdomain the candidate is. The returned
// owner is the blocked entry's own key, not the literal visited domain.
func (b *BlockList) Lookup(ctx context.Context, visited string) (owner string, entry *domain.BlockEntry, err error) {
	candidate := matcher.Normalize(visited)
	if candidate == "" {
		return "", nil, nil
	}

	blocks, err := b.GetAll(ctx)
	if err != nil {
		return "", nil, err
	}

	if e, ok := blocks[candidate]; ok {
		return candidate, &e, nil
	}
	for d, e := range blocks {
		if matcher.Matches(candidate, d) {
			e := e
			return d, &e, nil
		}
	}
	return "", nil, nil
}

// IsBlocked reports whether a visited domain is covered by any block.
func (b *BlockList) IsBlocked(ctx context.Context, visited string) (bool, error) {
	_, entry, err := b.Lookup(ctx, visited)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (b *BlockList) loadBlocks(ctx context.Context) (map[string]domain.BlockEntry, error) {
	blocks := map[string]domain.BlockEntry{}
	if _, err := b.sync.Read(ctx, domain.KeyActiveBlocks, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// BlockPageURL builds the redirect target for a blocked navigation.
func BlockPageURL(settings domain.Settings, d string, until int64) string {
	return fmt.Sprintf("%s?domain=%s&until=%d", settings.BlockPageURL, url.QueryEscape(d), until)
}

func minuteDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}

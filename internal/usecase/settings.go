// Package usecase contains application business logic.
package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultSettings returns the built-in defaults: a 5 minute base delay
// escalating by 5 minutes per same-day attempt, capped at 15.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		BaseDelayMinutes:  5,
		MaxDelayMinutes:   15,
		EscalationStep:    5,
		EscalationEnabled: true,
		BlockPageURL:      "/blocked",
	}
}

// storedSettings mirrors domain.Settings with optional fields, so a
// partially populated stored object merges with defaults instead of
// zeroing the missing knobs.
type storedSettings struct {
	BaseDelayMinutes  *int    `json:"baseDelayMinutes,omitempty"`
	MaxDelayMinutes   *int    `json:"maxDelayMinutes,omitempty"`
	EscalationStep    *int    `json:"escalationStepMinutes,omitempty"`
	EscalationEnabled *bool   `json:"escalationEnabled,omitempty"`
	BlockPageURL      *string `json:"blockPageUrl,omitempty"`
}

// SettingsManager reads user settings from the synchronized namespace,
// applying defaults at the read boundary.
type SettingsManager struct {
	sync   domain.Gateway
	logger *zap.Logger
}

// NewSettingsManager creates a settings manager.
func NewSettingsManager(sync domain.Gateway, logger *zap.Logger) *SettingsManager {
	return &SettingsManager{sync: sync, logger: logger}
}

// Get returns the effective settings: stored values merged over defaults.
func (m *SettingsManager) Get(ctx context.Context) (domain.Settings, error) {
	merged := DefaultSettings()

	var stored storedSettings
	ok, err := m.sync.Read(ctx, domain.KeySettings, &stored)
	if err != nil {
		return merged, err
	}
	if !ok {
		return merged, nil
	}

	if stored.BaseDelayMinutes != nil && *stored.BaseDelayMinutes > 0 {
		merged.BaseDelayMinutes = *stored.BaseDelayMinutes
	}
	if stored.MaxDelayMinutes != nil && *stored.MaxDelayMinutes > 0 {
		merged.MaxDelayMinutes = *stored.MaxDelayMinutes
	}
	if stored.EscalationStep != nil && *stored.EscalationStep > 0 {
		merged.EscalationStep = *stored.EscalationStep
	}
	if stored.EscalationEnabled != nil {
		merged.EscalationEnabled = *stored.EscalationEnabled
	}
	if stored.BlockPageURL != nil && *stored.BlockPageURL != "" {
		merged.BlockPageURL = *stored.BlockPageURL
	}
	return merged, nil
}

// GetOrDefaults returns effective settings, falling back to pure defaults
// when the read fails. Used on paths where settings only tune presentation.
func (m *SettingsManager) GetOrDefaults(ctx context.Context) domain.Settings {
	s, err := m.Get(ctx)
	if err != nil {
		m.logger.Warn("settings read failed, using defaults", zap.Error(err))
		return DefaultSettings()
	}
	return s
}

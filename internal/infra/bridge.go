package infra

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// RedirectCommand is a queued instruction for the browser-side helper.
type RedirectCommand struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

// BrowserBridge implements domain.TabController over the HTTP surface: the
// browser-side helper reports its open-tab snapshot and polls for redirect
// commands. The daemon never talks to a browser API directly.
type BrowserBridge struct {
	mu       sync.Mutex
	tabs     []domain.Tab
	commands []RedirectCommand
	logger   *zap.Logger
}

// NewBrowserBridge creates an empty bridge.
func NewBrowserBridge(logger *zap.Logger) *BrowserBridge {
	return &BrowserBridge{logger: logger}
}

// OpenTabs returns the last reported open-tab snapshot. An empty snapshot
// is normal when no helper has connected yet.
func (b *BrowserBridge) OpenTabs(ctx context.Context) ([]domain.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Tab, len(b.tabs))
	copy(out, b.tabs)
	return out, nil
}

// Redirect queues a redirect command for the helper to apply.
func (b *BrowserBridge) Redirect(ctx context.Context, tabID int, url string) error {
	b.mu.Lock()
	b.commands = append(b.commands, RedirectCommand{TabID: tabID, URL: url})
	b.mu.Unlock()

	b.logger.Info("queued tab redirect",
		zap.Int("tab_id", tabID),
		zap.String("url", url))
	return nil
}

// SetTabs replaces the open-tab snapshot.
func (b *BrowserBridge) SetTabs(tabs []domain.Tab) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tabs = make([]domain.Tab, len(tabs))
	copy(b.tabs, tabs)
}

// DrainCommands returns and clears the queued redirect commands.
func (b *BrowserBridge) DrainCommands() []RedirectCommand {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.commands
	b.commands = nil
	return out
}

// Ensure BrowserBridge implements domain.TabController.
var _ domain.TabController = (*BrowserBridge)(nil)

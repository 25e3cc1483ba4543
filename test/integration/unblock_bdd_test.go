//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/bus"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var _ = Describe("Delayed Unblock Flow", func() {
	var (
		tmpDir  string
		clock   *testClock
		handler *bus.Handler
		ctx     context.Context
	)

	minutes := func(v string) json.RawMessage { return json.RawMessage(v) }

	// Wednesday 10:00 local time.
	start := time.Date(2024, 3, 13, 10, 0, 0, 0, time.Local)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "webmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		clock = newTestClock(start)
		logger := zap.NewNop()

		// Real file-backed stores, as the daemon runs them.
		syncStore := infra.NewFileStore(filepath.Join(tmpDir, "sync.json"))
		localStore := infra.NewFileStore(filepath.Join(tmpDir, "local.json"))
		syncGW := infra.NewStoreGateway(syncStore, logger)
		localGW := infra.NewStoreGateway(localStore, logger)

		settings := usecase.NewSettingsManager(syncGW, logger)
		blocks := usecase.NewBlockList(syncGW, localGW, clock, nil, settings, logger)
		unblocker := usecase.NewUnblocker(localGW, blocks, settings, clock, nil, logger)
		scheduler := usecase.NewScheduler(syncGW, blocks, clock, logger)
		stats := usecase.NewStatsRecorder(localGW, clock, logger)

		handler = bus.NewHandler(blocks, unblocker, scheduler, stats, logger)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("blocking and unblocking youtube.com", func() {
		It("walks the full escalating round trip", func() {
			By("blocking the site for an hour")
			resp := handler.Handle(ctx, bus.Request{Action: "addBlock", Domain: "https://www.youtube.com", Minutes: minutes("60")})
			Expect(resp.Success()).To(BeTrue())
			Expect(resp["domain"]).To(Equal("youtube.com"))

			By("requesting an unblock: first attempt waits 5 minutes")
			resp = handler.Handle(ctx, bus.Request{Action: "requestUnblock", Domain: "youtube.com"})
			Expect(resp.Success()).To(BeTrue())
			Expect(resp["waitTime"]).To(Equal(int64(300)))
			Expect(resp["attemptNumber"]).To(Equal(1))

			By("confirming too early is refused")
			clock.Advance(2 * time.Minute)
			resp = handler.Handle(ctx, bus.Request{Action: "confirmUnblock", Domain: "youtube.com"})
			Expect(resp.Success()).To(BeFalse())
			Expect(resp.Code()).To(Equal(domain.ErrUnblockDelayNotComplete))

			By("confirming after the delay lifts the block")
			clock.Advance(4 * time.Minute)
			resp = handler.Handle(ctx, bus.Request{Action: "confirmUnblock", Domain: "youtube.com"})
			Expect(resp.Success()).To(BeTrue())

			resp = handler.Handle(ctx, bus.Request{Action: "getBlocks"})
			Expect(resp.Success()).To(BeTrue())
			Expect(resp["blocks"]).NotTo(HaveKey("youtube.com"))

			By("re-blocking and requesting again escalates to 10 minutes")
			resp = handler.Handle(ctx, bus.Request{Action: "addBlock", Domain: "youtube.com", Minutes: minutes("60")})
			Expect(resp.Success()).To(BeTrue())
			resp = handler.Handle(ctx, bus.Request{Action: "requestUnblock", Domain: "youtube.com"})
			Expect(resp.Success()).To(BeTrue())
			Expect(resp["waitTime"]).To(Equal(int64(600)))
			Expect(resp["attemptNumber"]).To(Equal(2))

			By("the counter resets the next day")
			resp = handler.Handle(ctx, bus.Request{Action: "cancelUnblock", Domain: "youtube.com"})
			Expect(resp.Success()).To(BeTrue())
			clock.Set(start.AddDate(0, 0, 1))
			resp = handler.Handle(ctx, bus.Request{Action: "requestUnblock", Domain: "youtube.com"})
			Expect(resp.Success()).To(BeTrue())
			Expect(resp["attemptNumber"]).To(Equal(1))
			Expect(resp["waitTime"]).To(Equal(int64(300)))
		})

		It("persists state across component restarts", func() {
			resp := handler.Handle(ctx, bus.Request{Action: "addBlock", Domain: "youtube.com", Minutes: minutes("120")})
			Expect(resp.Success()).To(BeTrue())

			// A second stack over the same files sees the block.
			logger := zap.NewNop()
			syncGW := infra.NewStoreGateway(infra.NewFileStore(filepath.Join(tmpDir, "sync.json")), logger)
			localGW := infra.NewStoreGateway(infra.NewFileStore(filepath.Join(tmpDir, "local.json")), logger)
			settings := usecase.NewSettingsManager(syncGW, logger)
			blocks := usecase.NewBlockList(syncGW, localGW, clock, nil, settings, logger)

			blocked, err := blocks.IsBlocked(ctx, "music.youtube.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(blocked).To(BeTrue())
		})

		It("expires blocks lazily on read", func() {
			resp := handler.Handle(ctx, bus.Request{Action: "addBlock", Domain: "youtube.com", Minutes: minutes("30")})
			Expect(resp.Success()).To(BeTrue())

			clock.Advance(31 * time.Minute)
			resp = handler.Handle(ctx, bus.Request{Action: "getBlocks"})
			Expect(resp.Success()).To(BeTrue())
			Expect(resp["blocks"]).NotTo(HaveKey("youtube.com"))
		})
	})
})

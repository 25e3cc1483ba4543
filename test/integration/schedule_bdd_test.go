//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var _ = Describe("Schedule Engine", func() {
	var (
		tmpDir    string
		clock     *testClock
		blocks    *usecase.BlockList
		scheduler *usecase.Scheduler
		ctx       context.Context
	)

	// Wednesday 10:00 local time, inside a 09:00-17:00 workday window.
	wednesday := time.Date(2024, 3, 13, 10, 0, 0, 0, time.Local)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "webmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		clock = newTestClock(wednesday)
		logger := zap.NewNop()

		syncGW := infra.NewStoreGateway(infra.NewFileStore(filepath.Join(tmpDir, "sync.json")), logger)
		localGW := infra.NewStoreGateway(infra.NewFileStore(filepath.Join(tmpDir, "local.json")), logger)

		settings := usecase.NewSettingsManager(syncGW, logger)
		blocks = usecase.NewBlockList(syncGW, localGW, clock, nil, settings, logger)
		scheduler = usecase.NewScheduler(syncGW, blocks, clock, logger)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	workdays := func() usecase.ScheduleInput {
		return usecase.ScheduleInput{
			Domains:   []string{"youtube.com"},
			StartTime: "09:00",
			EndTime:   "17:00",
			Days:      []int{1, 2, 3, 4, 5},
		}
	}

	Describe("evaluating an active window", func() {
		It("blocks the scheduled domain until the window ends", func() {
			_, err := scheduler.Add(ctx, workdays())
			Expect(err).NotTo(HaveOccurred())

			Expect(scheduler.CheckAll(ctx)).To(Succeed())

			entry, err := blocks.Get(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry).NotTo(BeNil())
			Expect(entry.Reason).To(Equal(domain.ReasonSchedule))

			// Until is 17:00 today.
			end := time.Date(2024, 3, 13, 17, 0, 0, 0, time.Local)
			Expect(entry.Until).To(Equal(domain.TimeToMillis(end)))
		})

		It("does not restart its own block on re-evaluation", func() {
			_, err := scheduler.Add(ctx, workdays())
			Expect(err).NotTo(HaveOccurred())

			Expect(scheduler.CheckAll(ctx)).To(Succeed())
			first, err := blocks.Get(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(45 * time.Minute)
			Expect(scheduler.CheckAll(ctx)).To(Succeed())
			second, err := blocks.Get(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(second.BlockedAt).To(Equal(first.BlockedAt))
			Expect(second.Until).To(Equal(first.Until))
		})

		It("lets the block lapse when the window closes", func() {
			_, err := scheduler.Add(ctx, workdays())
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.CheckAll(ctx)).To(Succeed())

			// Past 17:00 the window is over and the block has expired.
			clock.Set(time.Date(2024, 3, 13, 17, 1, 0, 0, time.Local))
			Expect(scheduler.CheckAll(ctx)).To(Succeed())

			blocked, err := blocks.IsBlocked(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(blocked).To(BeFalse())
		})

		It("skips disabled schedules and off days", func() {
			sched, err := scheduler.Add(ctx, workdays())
			Expect(err).NotTo(HaveOccurred())

			Expect(scheduler.Toggle(ctx, sched.ID, false)).To(Succeed())
			Expect(scheduler.CheckAll(ctx)).To(Succeed())
			blocked, err := blocks.IsBlocked(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(blocked).To(BeFalse())

			// Saturday is not in the schedule even when re-enabled.
			Expect(scheduler.Toggle(ctx, sched.ID, true)).To(Succeed())
			clock.Set(time.Date(2024, 3, 16, 10, 0, 0, 0, time.Local))
			Expect(scheduler.CheckAll(ctx)).To(Succeed())
			blocked, err = blocks.IsBlocked(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(blocked).To(BeFalse())
		})

		It("never shortens a manual block that outlasts the window", func() {
			_, err := blocks.Add(ctx, "youtube.com", 480, domain.ReasonManual)
			Expect(err).NotTo(HaveOccurred())
			manual, err := blocks.Get(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = scheduler.Add(ctx, workdays())
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.CheckAll(ctx)).To(Succeed())

			entry, err := blocks.Get(ctx, "youtube.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Until).To(Equal(manual.Until))
		})
	})
})

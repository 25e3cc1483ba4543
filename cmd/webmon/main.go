// Package main is the CLI entry point for webmon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/web_mon/internal/api"
	"github.com/eliteGoblin/focusd/web_mon/internal/bus"
	"github.com/eliteGoblin/focusd/web_mon/internal/client"
	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/timeutil"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "webmon",
	Short: "Website monitor - blocks distracting websites",
	Long: `webmon blocks distracting websites with an escalating, time-delayed
unblock flow. Removing a block takes a waiting period that grows with every
same-day attempt, so an impulsive unblock has time to cool off.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background daemon",
	Long: `Starts the background daemon that enforces blocks, evaluates
schedules, and serves the control API for the browser helper and CLI.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE:  runStatus,
}

var blockCmd = &cobra.Command{
	Use:   "block <domain>",
	Short: "Block a website",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlock,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked websites",
	RunE:  runList,
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <domain>",
	Short: "Request an unblock (starts the waiting period)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnblock,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <domain>",
	Short: "Confirm an unblock once the waiting period is over",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirm,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <domain>",
	Short: "Cancel a pending unblock request",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending unblock requests",
	RunE:  runPending,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show blocking statistics",
	RunE:  runStats,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring blocking schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a schedule",
	RunE:  runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE:  runScheduleList,
}

var scheduleRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRm,
}

var scheduleToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleToggle,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when detaching the daemon.
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	blockMinutes    int
	scheduleDomains []string
	scheduleStart   string
	scheduleEnd     string
	scheduleDays    []int
	toggleEnabled   bool
	jsonOutput      bool
)

func init() {
	blockCmd.Flags().IntVarP(&blockMinutes, "minutes", "m", 60, "How long to block, in minutes (1-480)")
	scheduleAddCmd.Flags().StringSliceVar(&scheduleDomains, "domains", nil, "Domains to block (comma separated)")
	scheduleAddCmd.Flags().StringVar(&scheduleStart, "start", "09:00", "Window start (HH:MM)")
	scheduleAddCmd.Flags().StringVar(&scheduleEnd, "end", "17:00", "Window end (HH:MM)")
	scheduleAddCmd.Flags().IntSliceVar(&scheduleDays, "days", []int{1, 2, 3, 4, 5}, "Weekdays (0=Sunday..6=Saturday)")
	scheduleToggleCmd.Flags().BoolVar(&toggleEnabled, "enabled", true, "Enable (true) or disable (false)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRmCmd)
	scheduleCmd.AddCommand(scheduleToggleCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	runFile := infra.NewRunFile(cfg.DataDir)
	if alive, info := runFile.IsRunning(); alive {
		fmt.Printf("webmon is already running (pid %d)\n", info.PID)
		return nil
	}

	if err := daemon.StartDetached(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Give the daemon a moment to write its run file.
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== webmon Started ===")
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("API: %s\n", cfg.BaseURL())
	fmt.Println("The daemon is running in the background.")
	fmt.Println("======================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println("\n=== webmon Status ===")

	runFile := infra.NewRunFile(cfg.DataDir)
	alive, info := runFile.IsRunning()
	if !alive {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'webmon start' to enable blocking.")
		return nil
	}

	fmt.Printf("Status: RUNNING (pid %d)\n", info.PID)
	if info.StartedAt > 0 {
		fmt.Printf("Up since: %s\n", time.Unix(info.StartedAt, 0).Format(time.RFC1123))
	}

	c := client.New(cfg.BaseURL())
	if !c.Healthy(cmd.Context()) {
		fmt.Println("API: not responding")
		fmt.Println("=====================")
		return nil
	}

	resp, err := c.Do(cmd.Context(), bus.Request{Action: "getBlocks"})
	if err == nil && resp.Success() {
		if blocks, ok := resp["blocks"].(map[string]any); ok {
			fmt.Printf("Blocked websites: %d\n", len(blocks))
		}
	}

	fmt.Println("=====================")
	return nil
}

func runBlock(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{
		Action:  "addBlock",
		Domain:  args[0],
		Minutes: json.RawMessage(fmt.Sprintf("%d", blockMinutes)),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Blocked %s for %s.\n", resp["domain"], timeutil.FormatMinutes(blockMinutes))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "getBlocks"})
	if err != nil {
		return err
	}

	blocks, _ := resp["blocks"].(map[string]any)
	if len(blocks) == 0 {
		fmt.Println("No websites are currently blocked.")
		return nil
	}

	fmt.Println("\n=== Blocked Websites ===")
	domains := make([]string, 0, len(blocks))
	for d := range blocks {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, d := range domains {
		entry, _ := blocks[d].(map[string]any)
		until := asInt64(entry["until"])
		remaining := time.Until(time.UnixMilli(until)).Round(time.Minute)
		reason, _ := entry["reason"].(string)
		fmt.Printf("  %-30s %s left (%s)\n", d, timeutil.FormatMinutes(int(remaining.Minutes())), reason)
	}
	fmt.Println("========================")
	return nil
}

func runUnblock(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "requestUnblock", Domain: args[0]})
	if err != nil {
		return err
	}

	wait := asInt64(resp["waitTime"])
	attempt := asInt64(resp["attemptNumber"])
	fmt.Printf("Unblock requested for %s (attempt %d today).\n", resp["domain"], attempt)
	fmt.Printf("Wait %s, then run: webmon confirm %s\n",
		timeutil.FormatCountdown(int(wait)), resp["domain"])
	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "confirmUnblock", Domain: args[0]})
	if err != nil {
		return err
	}
	fmt.Printf("%s is no longer blocked.\n", resp["domain"])
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "cancelUnblock", Domain: args[0]})
	if err != nil {
		return err
	}
	fmt.Printf("Canceled the pending unblock for %s.\n", resp["domain"])
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "getPendingUnblocks"})
	if err != nil {
		return err
	}

	pending, _ := resp["pending"].(map[string]any)
	if len(pending) == 0 {
		fmt.Println("No pending unblock requests.")
		return nil
	}

	fmt.Println("\n=== Pending Unblocks ===")
	for d, v := range pending {
		entry, _ := v.(map[string]any)
		unlocksAt := time.UnixMilli(asInt64(entry["unlocksAt"]))
		remaining := int(time.Until(unlocksAt).Seconds())
		if remaining <= 0 {
			fmt.Printf("  %-30s ready to confirm\n", d)
		} else {
			fmt.Printf("  %-30s %s remaining\n", d, timeutil.FormatCountdown(remaining))
		}
	}
	fmt.Println("========================")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "getStats"})
	if err != nil {
		return err
	}

	summary, _ := resp["summary"].(map[string]any)
	fmt.Println("\n=== webmon Stats ===")
	fmt.Printf("Blocked attempts today: %d\n", asInt64(summary["today"]))
	fmt.Printf("Blocked attempts (7 days): %d\n", asInt64(summary["week"]))
	fmt.Printf("Current streak: %d days\n", asInt64(summary["streak"]))
	fmt.Printf("Blocks created: %d\n", asInt64(summary["totalBlocksCreated"]))

	if topSites, ok := summary["topSites"].([]any); ok && len(topSites) > 0 {
		fmt.Println("\nMost-attempted sites:")
		for _, v := range topSites {
			site, _ := v.(map[string]any)
			fmt.Printf("  %-30s %d\n", site["domain"], asInt64(site["attempts"]))
		}
	}
	fmt.Println("====================")
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{
		Action: "addSchedule",
		Schedule: &usecase.ScheduleInput{
			Domains:   scheduleDomains,
			StartTime: scheduleStart,
			EndTime:   scheduleEnd,
			Days:      scheduleDays,
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("Schedule %s created (%s-%s).\n", resp["id"], scheduleStart, scheduleEnd)
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "getSchedules"})
	if err != nil {
		return err
	}

	schedules, _ := resp["schedules"].([]any)
	if len(schedules) == 0 {
		fmt.Println("No schedules configured.")
		return nil
	}

	fmt.Println("\n=== Schedules ===")
	for _, v := range schedules {
		s, _ := v.(map[string]any)
		state := "off"
		if enabled, _ := s["enabled"].(bool); enabled {
			state = "on"
		}
		fmt.Printf("[%s] %s-%s [%s]\n",
			s["id"],
			timeutil.FormatClock(int(asInt64(s["startTime"]))),
			timeutil.FormatClock(int(asInt64(s["endTime"]))),
			state)
		if domains, ok := s["domains"].([]any); ok {
			for _, d := range domains {
				fmt.Printf("    - %s\n", d)
			}
		}
	}
	fmt.Println("=================")
	return nil
}

func runScheduleRm(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{Action: "deleteSchedule", ID: args[0]})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted schedule %s.\n", resp["id"])
	return nil
}

func runScheduleToggle(cmd *cobra.Command, args []string) error {
	resp, err := doAction(cmd.Context(), bus.Request{
		Action:  "toggleSchedule",
		ID:      args[0],
		Enabled: &toggleEnabled,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Schedule %s is now %v.\n", resp["id"], resp["enabled"])
	return nil
}

// doAction sends one action to the daemon and turns a protocol failure
// into a CLI error with the stable user message.
func doAction(ctx context.Context, req bus.Request) (bus.Response, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	c := client.New(cfg.BaseURL())
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w (is the daemon running? try 'webmon start')", err)
	}
	if !resp.Success() {
		msg, _ := resp["error"].(string)
		if details, ok := resp["details"].(map[string]any); ok {
			if remaining, ok := details["remainingTime"]; ok {
				return nil, fmt.Errorf("%s (%s remaining)", msg,
					timeutil.FormatCountdown(int(asInt64(remaining))))
			}
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return resp, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	// Storage: synchronized namespace in a plain JSON file, local
	// namespace in the encrypted SQLite store.
	syncStore := infra.NewFileStore(cfg.DataDir + "/sync.json")
	keyProvider := infra.NewFileKeyProvider(cfg.DataDir)
	key, err := keyProvider.EnsureKey()
	if err != nil {
		return fmt.Errorf("failed to prepare store key: %w", err)
	}
	localStore, err := infra.NewEncryptedStore(cfg.DataDir, key)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer localStore.Close()

	syncGW := infra.NewStoreGateway(syncStore, logger)
	localGW := infra.NewStoreGateway(localStore, logger)

	clock := infra.SystemClock{}
	bridge := infra.NewBrowserBridge(logger)
	wake := infra.NewNamedTimers()
	defer wake.StopAll()

	settings := usecase.NewSettingsManager(syncGW, logger)
	blocks := usecase.NewBlockList(syncGW, localGW, clock, bridge, settings, logger)
	unblocker := usecase.NewUnblocker(localGW, blocks, settings, clock, wake, logger)
	scheduler := usecase.NewScheduler(syncGW, blocks, clock, logger)
	stats := usecase.NewStatsRecorder(localGW, clock, logger)

	handler := bus.NewHandler(blocks, unblocker, scheduler, stats, logger)
	monitor := daemon.NewMonitor(daemon.DefaultMonitorConfig(), blocks, unblocker, scheduler, stats, settings, logger)
	server := api.NewServer(handler, bridge, monitor, logger)

	runFile := infra.NewRunFile(cfg.DataDir)
	if err := runFile.Write(infra.RunInfo{
		PID:        os.Getpid(),
		ListenAddr: cfg.Listen,
		AppVersion: Version,
	}); err != nil {
		logger.Warn("failed to write run file", zap.Error(err))
	}
	defer func() { _ = runFile.Clear() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, cfg.Listen)
	}()

	monitorErr := make(chan error, 1)
	go func() {
		monitorErr <- monitor.Run(ctx)
	}()

	select {
	case err := <-serverErr:
		cancel()
		<-monitorErr
		return ignoreCanceled(err)
	case err := <-monitorErr:
		cancel()
		<-serverErr
		return ignoreCanceled(err)
	}
}

func ignoreCanceled(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}

func createLogger(cfg config.Config) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{cfg.LogPath}
	zapCfg.ErrorOutputPaths = []string{cfg.LogPath}
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("webmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// asInt64 coerces the numeric shapes JSON decoding produces.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

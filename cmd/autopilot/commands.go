package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentdeck/autopilot/internal/config"
	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/executor"
	"github.com/agentdeck/autopilot/internal/gate"
	"github.com/agentdeck/autopilot/internal/notify"
	"github.com/agentdeck/autopilot/internal/orchestrator"
	"github.com/agentdeck/autopilot/internal/recurrence"
	"github.com/agentdeck/autopilot/internal/registry"
	"github.com/agentdeck/autopilot/internal/runstore"
	"github.com/agentdeck/autopilot/internal/scheduler"
	"github.com/agentdeck/autopilot/internal/updater"
	"github.com/agentdeck/autopilot/tui"
	"github.com/agentdeck/autopilot/web/api"
)

var (
	listAll        bool
	runsAutomation string
	runsStatus     string
	runsLimit      int
	runsUnread     bool
	previewCount   int
	servePort      int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling engine and status API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "status API port (overrides config)")
	rootCmd.AddCommand(serveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List automations",
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include archived automations")
	rootCmd.AddCommand(listCmd)

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Show run history",
		RunE:  runRuns,
	}
	runsCmd.Flags().StringVar(&runsAutomation, "automation", "", "filter by automation id")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by run status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 0, "max rows")
	runsCmd.Flags().BoolVar(&runsUnread, "unread", false, "only unread runs")
	rootCmd.AddCommand(runsCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	triggerCmd := &cobra.Command{
		Use:   "trigger AUTOMATION",
		Short: "Fire an automation now",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrigger,
	}
	rootCmd.AddCommand(triggerCmd)

	previewCmd := &cobra.Command{
		Use:   "preview AUTOMATION",
		Short: "Show the next scheduled occurrences",
		Args:  cobra.ExactArgs(1),
		RunE:  runPreview,
	}
	previewCmd.Flags().IntVar(&previewCount, "count", 5, "occurrences to show")
	rootCmd.AddCommand(previewCmd)

	pauseCmd := &cobra.Command{
		Use:   "pause AUTOMATION",
		Short: "Pause an automation",
		Args:  cobra.ExactArgs(1),
		RunE:  runPause,
	}
	rootCmd.AddCommand(pauseCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume AUTOMATION",
		Short: "Resume a paused automation",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	rootCmd.AddCommand(resumeCmd)

	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Launch the terminal dashboard",
		RunE:  runDashboard,
	}
	rootCmd.AddCommand(dashboardCmd)

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update autopilot to the latest release",
		RunE:  runUpdate,
	}
	rootCmd.AddCommand(updateCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.General.RegistryDir)
	if err != nil {
		return err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := notify.NewHub()
	defer hub.Close()

	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}

	exec := executor.New(executor.NewSingleServer(cfg.Server.BaseURL), cfg.General.MemoryDir)
	sched := scheduler.New(recurrence.New())
	g := gate.New(cfg.General.MaxConcurrentRuns)
	orch := orchestrator.New(reg, store, sched, g, exec, hub, notify.NewMultiNotifier(notifiers...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(); err != nil {
		return err
	}
	defer orch.Stop()

	watcher, err := registry.NewWatcher(reg, orch.SyncChanged)
	if err != nil {
		return fmt.Errorf("watching %s: %w", cfg.General.RegistryDir, err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(orch, reg, store, hub, addr)

	log.Printf("autopilot: serving on http://%s (registry %s)", addr, cfg.General.RegistryDir)
	return server.Start(ctx)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := registry.New(cfg.General.RegistryDir)
	if err != nil {
		return err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	autos, err := reg.List()
	if listAll {
		autos, err = reg.ListAll()
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tNEXT RUN\tLAST RUN\tRUNS\tFAILURES")
	for _, a := range autos {
		next, last := "-", "-"
		runCount, failures := 0, 0
		if timing, err := store.GetTiming(a.ID); err == nil {
			if timing.NextRunAt != nil {
				next = humanize.Time(*timing.NextRunAt)
			}
			if timing.LastRunAt != nil {
				last = humanize.Time(*timing.LastRunAt)
			}
			runCount = timing.RunCount
			failures = timing.ConsecutiveFailures
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			a.ID, a.Name, a.Status, next, last, runCount, failures)
	}
	return w.Flush()
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListRunOptions{
		AutomationID: runsAutomation,
		Status:       domain.RunStatus(runsStatus),
		UnreadOnly:   runsUnread,
		Limit:        runsLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tAUTOMATION\tSTATUS\tSTARTED\tTRY\tTITLE")
	for _, r := range runs {
		title := r.ResultTitle
		if title == "" && r.ErrorMessage != "" {
			title = r.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.AutomationID, r.Status, humanize.Time(r.StartedAt), r.Attempt, title)
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := registry.New(cfg.General.RegistryDir)
	if err != nil {
		return err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	autos, err := reg.List()
	if err != nil {
		return err
	}
	var active, paused int
	for _, a := range autos {
		switch a.Status {
		case domain.AutomationActive:
			active++
		case domain.AutomationPaused:
			paused++
		}
	}

	counts, err := store.CountByStatus()
	if err != nil {
		return err
	}

	fmt.Printf("Automations: %d total | %d active | %d paused\n", len(autos), active, paused)
	fmt.Printf("Runs: %d running | %d pending review | %d failed\n",
		counts[domain.RunRunning], counts[domain.RunPendingReview], counts[domain.RunFailed])
	return nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newDaemonClient(cfg.Web.Host, cfg.Web.Port)
	if err := client.post("/api/automations/" + args[0] + "/trigger"); err != nil {
		return err
	}
	fmt.Printf("Triggered %s\n", args[0])
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := registry.New(cfg.General.RegistryDir)
	if err != nil {
		return err
	}
	auto, err := reg.Get(args[0])
	if err != nil {
		return err
	}

	engine := recurrence.New()
	if err := engine.Validate(auto.Schedule); err != nil {
		return err
	}
	occurrences := engine.Preview(auto.Schedule, previewCount)
	if len(occurrences) == 0 {
		fmt.Println("No future occurrences")
		return nil
	}
	for _, t := range occurrences {
		fmt.Printf("%s  (%s)\n", t.Format(time.RFC1123), humanize.Time(t))
	}
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newDaemonClient(cfg.Web.Host, cfg.Web.Port)
	if err := client.PauseAutomation(args[0]); err != nil {
		return err
	}
	fmt.Printf("Paused %s\n", args[0])
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newDaemonClient(cfg.Web.Host, cfg.Web.Port)
	if err := client.ResumeAutomation(args[0]); err != nil {
		return err
	}
	fmt.Printf("Resumed %s\n", args[0])
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	u := updater.New()
	latest, err := u.CheckLatest()
	if err != nil {
		return err
	}
	if !updater.NeedsUpdate(version, latest) {
		fmt.Printf("Already up to date (%s)\n", version)
		return nil
	}
	fmt.Printf("Updating %s -> %s\n", version, latest)
	if err := u.SelfUpdate(latest); err != nil {
		return err
	}
	fmt.Println("Updated. Restart any running `autopilot serve`.")
	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := registry.New(cfg.General.RegistryDir)
	if err != nil {
		return err
	}
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	fetch := func() (*tui.Snapshot, error) {
		autos, err := reg.List()
		if err != nil {
			return nil, err
		}
		snap := &tui.Snapshot{}
		for _, a := range autos {
			row := &tui.AutomationView{ID: a.ID, Name: a.Name, Status: string(a.Status)}
			if timing, err := store.GetTiming(a.ID); err == nil {
				row.NextRunAt = timing.NextRunAt
				row.LastRunAt = timing.LastRunAt
				row.RunCount = timing.RunCount
				row.ConsecutiveFailures = timing.ConsecutiveFailures
			}
			snap.Automations = append(snap.Automations, row)
		}

		runs, err := store.ListRuns(runstore.ListRunOptions{})
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			snap.Runs = append(snap.Runs, &tui.RunView{
				ID:           r.ID,
				AutomationID: r.AutomationID,
				Workspace:    r.Workspace,
				Status:       string(r.Status),
				Attempt:      r.Attempt,
				StartedAt:    r.StartedAt,
				CompletedAt:  r.CompletedAt,
				Title:        r.ResultTitle,
				Summary:      r.ResultSummary,
				Read:         r.ReadAt != nil,
			})
		}
		return snap, nil
	}

	model := tui.NewModel(tui.ModelConfig{
		Engine: newDaemonClient(cfg.Web.Host, cfg.Web.Port),
		Fetch:  fetch,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

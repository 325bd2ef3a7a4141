// Package main provides the CLI entrypoint for handscene.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/app"
	"github.com/ayusman/handscene/internal/config"
	"github.com/ayusman/handscene/internal/logger"
	"github.com/ayusman/handscene/internal/store"
	"github.com/ayusman/handscene/internal/tray"
)

var (
	configPath string

	runAddr          string
	runStaticDir     string
	runTray          bool
	runVisualizeOnly bool
	runNoRecord      bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "handscene",
		Short:        "Drive a 3D scene with hand gestures",
		SilenceUsage: true,
		RunE:         runRunCmd,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	addRunFlags(rootCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the camera pipeline and control API",
		Args:  cobra.NoArgs,
		RunE:  runRunCmd,
	}
	addRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runAddr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&runStaticDir, "static", "", "directory of static web files to serve")
	cmd.Flags().BoolVar(&runTray, "tray", runtime.GOOS == "darwin", "show the menu bar icon")
	cmd.Flags().BoolVar(&runVisualizeOnly, "visualize-only", false, "recognize gestures without sending commands")
	cmd.Flags().BoolVar(&runNoRecord, "no-record", false, "do not record the session")
}

// setup loads the configuration and opens the logger and store shared by
// every subcommand.
func setup() (config.Config, *zap.Logger, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Sync()
		return config.Config{}, nil, nil, fmt.Errorf("failed to open db: %w", err)
	}
	return cfg, log, st, nil
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, log, st, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warn("failed to close db", zap.Error(cerr))
		}
	}()

	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = runAddr
	}
	if cmd.Flags().Changed("static") {
		cfg.Server.StaticDir = runStaticDir
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = findWebDir()
	}
	if runNoRecord {
		cfg.Store.Record = false
	}

	a, err := app.New(cfg, st, log, app.Options{VisualizeOnly: runVisualizeOnly})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.Warn("shutdown", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !runTray {
		return a.Run(ctx)
	}
	return runWithTray(ctx, stop, cfg, a, log)
}

// runWithTray runs the app in the background because the menu bar must own
// the main thread.
func runWithTray(ctx context.Context, stop context.CancelFunc, cfg config.Config, a *app.App, log *zap.Logger) error {
	t := tray.New(tray.Handlers{
		Toggle: func(enabled bool) {
			if err := a.SetDispatchEnabled(enabled); err != nil {
				log.Warn("failed to save dispatch setting", zap.Error(err))
			}
		},
		Settings: func() { openBrowser("http://" + cfg.Server.Addr) },
		Quit:     stop,
	})
	t.SetEnabled(a.Dispatcher().Enabled())

	a.Pipeline().WatchState(t.SetStatus)
	a.Pipeline().AddObserver(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()

	t.Run()
	stop()
	return <-errCh
}

func openBrowser(url string) {
	if runtime.GOOS != "darwin" {
		return
	}
	_ = exec.Command("open", url).Start()
}

// findWebDir looks for the control page next to the working directory and
// then under the data directory.
func findWebDir() string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(config.XDGDataHome(), "handscene", "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Re-run a recorded session through the current configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	cfg, log, st, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	results, err := app.Replay(cmd.Context(), cfg, st, args[0], log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var events, commands int
	for _, res := range results {
		for _, ev := range res.Events {
			events++
			fmt.Fprintf(out, "%10s  %-12s %v %.3f\n", formatMediaTime(res.Timestamp), ev.Kind, ev.HandIDs, ev.Magnitude)
		}
		for _, c := range res.Commands {
			commands++
			fmt.Fprintf(out, "%10s    -> %-8s delta=%.3f target=%s\n", formatMediaTime(res.Timestamp), c.Type, c.Payload.Delta, c.Payload.Target)
		}
	}
	fmt.Fprintf(out, "%d ticks, %d events, %d commands\n", len(results), events, commands)
	return nil
}

func formatMediaTime(d time.Duration) string {
	return d.Truncate(time.Millisecond).String()
}

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	_, log, st, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	sessions, err := st.Sessions().List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tTICKS\tSTARTED\tDURATION")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Truncate(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Source, s.Ticks, s.StartedAt.Local().Format(time.DateTime), duration)
	}
	return w.Flush()
}

func newConfigCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !write {
				return cfg.Encode(cmd.OutOrStdout())
			}
			return writeConfig(cmd, cfg)
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the effective configuration to the config file if it does not exist")
	return cmd
}

func writeConfig(cmd *cobra.Command, cfg config.Config) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := cfg.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configPath)
	return nil
}

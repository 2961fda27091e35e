// Package main provides the course-report binary entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"course-report/internal/canvas"
	"course-report/internal/config"
	"course-report/internal/pipeline"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "course-report"
)

var termPattern = regexp.MustCompile(`^[FSWUu]{1,2}[0-9]{2}$`)

// usageError is an argument problem reported with exit code 2.
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func main() {
	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, uerr.msg)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// checkTerm validates the single academic term argument.
func checkTerm(_ *cobra.Command, args []string) error {
	switch {
	case len(args) < 1:
		return usageError{`You must specify an academic term (i.e. "F16", "SU14", "W15")`}
	case len(args) > 1:
		return usageError{`Only one argument required: an academic term (i.e. "F16", "SU14", "W15")`}
	case !termPattern.MatchString(args[0]):
		return usageError{`Invalid academic term specified -- try something like "F16", "SU14" or "W15".`}
	}
	return nil
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           appName + " TERM",
		Short:         "Canvas course catalog reports",
		Long:          "Fetches the courses of one academic term from Canvas and writes course, department, division, sub-account and institution CSV reports.",
		Args:          checkTerm,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, verbose, args[0], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err.Error()}
	})

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (JSON or YAML)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, configPath string, verbose bool, term string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(stderr, cfg.Log.Level, verbose)
	slog.SetDefault(logger)

	tracker := pipeline.NewRunTracker(term, logger)
	client, err := canvas.New(cfg.Canvas.Instance, cfg.Canvas.Account, cfg.Canvas.Token,
		canvas.WithPerPage(cfg.Canvas.PerPage),
		canvas.WithLogger(tracker.Logger()),
		canvas.WithThrottleHook(tracker.RecordThrottle),
	)
	if err != nil {
		return err
	}

	runner := &pipeline.Runner{
		Config:   cfg,
		API:      client,
		Tracker:  tracker,
		Progress: stdout,
	}
	summary, err := runner.Run(ctx, term)
	if err != nil {
		return err
	}
	tracker.Logger().Info("run complete",
		"courses", summary.Courses,
		"details_ok", summary.DetailsOK,
		"anomalies", len(summary.Anomalies),
		"reports", len(summary.Exports),
		"duration", summary.EndTime.Sub(summary.StartTime))
	return nil
}

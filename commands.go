package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gidra39/lrsweep/charts"
	"github.com/gidra39/lrsweep/config"
	"github.com/gidra39/lrsweep/launcher"
	"github.com/gidra39/lrsweep/ledger"
	"github.com/gidra39/lrsweep/messaging"
	"github.com/gidra39/lrsweep/monitor"
	"github.com/gidra39/lrsweep/sweep"
	"github.com/gidra39/lrsweep/types"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func runSweep(ctx context.Context, args []string, cfg config.Config) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sweepFile := fs.String("sweep", cfg.SweepFile, "sweep table file (yaml or json)")
	dryRun := fs.Bool("dry-run", false, "print each run's environment and command without launching")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	table, err := sweep.Load(*sweepFile)
	if err != nil {
		log.Error().Err(err).Str("file", *sweepFile).Msg("invalid sweep table")
		return 1
	}

	l := launcher.New(table, launcher.Options{
		NprocPerNode:      cfg.NprocPerNode,
		LaunchCommand:     cfg.LaunchCommand,
		TrainScript:       cfg.TrainScript,
		LibraryPathPrefix: cfg.LibraryPathPrefix,
		DryRun:            *dryRun,
	}, launcher.ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}, os.Stdout)

	if cfg.LedgerPath != "" && !*dryRun {
		led, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.LedgerPath).Msg("ledger unavailable, runs will not be recorded")
		} else {
			defer led.Close()
			l.WithRecorder(led)
		}
	}

	log.Info().Str("file", *sweepFile).Int("runs", len(table.Runs)).Bool("dry_run", *dryRun).Msg("starting sweep")
	res, err := l.Run(ctx)
	notifyCtx := context.WithoutCancel(ctx)
	if err != nil {
		var runErr *launcher.RunError
		if errors.As(err, &runErr) {
			log.Error().Err(err).Str("sweep", res.SweepID).Msg("sweep aborted")
			messaging.Notify(notifyCtx, fmt.Sprintf("Sweep %s aborted: %s exited with code %d after %d completed runs",
				res.SweepID, runErr.Job.RunID, runErr.ExitCode(), len(res.Completed)), cfg)
			return runErr.ExitCode()
		}
		log.Error().Err(err).Str("sweep", res.SweepID).Msg("sweep stopped")
		return 1
	}

	fmt.Fprintf(os.Stdout, "Sweep %s complete: %d runs\n", res.SweepID, len(res.Completed))
	if !*dryRun {
		messaging.Notify(notifyCtx, fmt.Sprintf("Sweep %s complete: %d runs", res.SweepID, len(res.Completed)), cfg)
	}
	return 0
}

func runMonitor(ctx context.Context, args []string, cfg config.Config) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	dir := fs.String("dir", cfg.LogDir, "log directory to scan")
	once := fs.Bool("once", false, "print a single report and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := monitor.New(monitor.Options{
		LogDir:    *dir,
		Patterns:  cfg.RunPatterns(),
		ScanLimit: cfg.MonitorScanLimit,
		Target:    cfg.TargetStep,
		Interval:  cfg.PollEvery(),
	}, os.Stdout)

	if *once {
		if _, err := m.Once(); err != nil {
			log.Error().Err(err).Msg("monitor failed")
			return 1
		}
		return 0
	}

	m.OnComplete = func(ctx context.Context, statuses []types.RunStatus) {
		msg := fmt.Sprintf("All %d tracked runs reached step %d", len(statuses), cfg.TargetStep)
		if rows := monitor.Rank(statuses); len(rows) > 0 {
			msg += fmt.Sprintf("; best %s at %.4f", rows[0].Name, rows[0].ValLoss)
		}
		messaging.Notify(context.WithoutCancel(ctx), msg, cfg)
	}

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor stopped")
		return 1
	}
	return 0
}

func runPlot(args []string, cfg config.Config) int {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	dir := fs.String("dir", cfg.LogDir, "log directory used when no log is given")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	paths := fs.Args()
	if missing, ok := firstMissing(paths); ok {
		fmt.Fprintf(os.Stderr, "Error: Log file not found: %s\n", missing)
		return 1
	}

	switch len(paths) {
	case 0:
		latest, err := charts.MostRecentLog(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "No log files found in %s/ directory\n", *dir)
			return 1
		}
		paths = []string{latest}
		fmt.Fprintf(os.Stdout, "Using most recent log file: %s\n", latest)
	case 1:
		fmt.Fprintf(os.Stdout, "Plotting: %s\n", paths[0])
	default:
		fmt.Fprintf(os.Stdout, "Comparing %d runs:\n", len(paths))
		for _, p := range paths {
			fmt.Fprintf(os.Stdout, "  - %s\n", p)
		}
	}
	datasets, err := charts.LoadDatasets(paths)
	if errors.Is(err, charts.ErrNoData) {
		fmt.Fprintln(os.Stdout, "No data to plot")
		return 0
	}
	if err != nil {
		log.Error().Err(err).Msg("unable to read logs")
		return 1
	}

	out := charts.OutputPath(datasets, *dir)
	if err := charts.RenderLoss(datasets, cfg.TargetValLoss, out); err != nil {
		log.Error().Err(err).Msg("unable to render chart")
		return 1
	}
	fmt.Fprintf(os.Stdout, "Plot saved to: %s\n", out)

	for _, d := range datasets {
		charts.WriteSummary(os.Stdout, charts.Summarize(d, cfg.TargetValLoss))
	}
	return 0
}

// firstMissing returns the first path that does not exist.
func firstMissing(paths []string) (string, bool) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return p, true
		}
	}
	return "", false
}

func runSpectral(args []string, cfg config.Config) int {
	fs := flag.NewFlagSet("spectral", flag.ContinueOnError)
	dir := fs.String("dir", cfg.LogDir, "log directory to scan")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	runs, err := charts.FindSpectralRuns(*dir)
	if errors.Is(err, charts.ErrNoSpectralRuns) {
		fmt.Fprintln(os.Stdout, "No spectral_lr log files found")
		return 0
	}
	if err != nil {
		log.Error().Err(err).Msg("unable to collect spectral runs")
		return 1
	}
	charts.WriteSpectralRuns(os.Stdout, runs)

	out := charts.SpectralOutputPath(*dir, len(runs), time.Now())
	if err := charts.RenderSpectral(runs, cfg.TargetValLoss, out); err != nil {
		log.Error().Err(err).Msg("unable to render chart")
		return 1
	}
	fmt.Fprintf(os.Stdout, "\nPlot saved to: %s\n", out)
	charts.WriteSpectralSummary(os.Stdout, runs)
	return 0
}

func runHistory(ctx context.Context, args []string, cfg config.Config) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of runs to show")
	asYAML := fs.Bool("yaml", false, "export as YAML")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.LedgerPath == "" {
		fmt.Fprintln(os.Stderr, "LEDGER_PATH is not set; no runs are recorded")
		return 1
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Error().Err(err).Msg("unable to open ledger")
		return 1
	}
	defer led.Close()

	entries, err := led.Recent(ctx, *limit)
	if err != nil {
		log.Error().Err(err).Msg("unable to read ledger")
		return 1
	}

	if *asYAML {
		if err := ledger.WriteYAML(os.Stdout, entries); err != nil {
			log.Error().Err(err).Msg("unable to export ledger")
			return 1
		}
		return 0
	}
	ledger.WriteTable(os.Stdout, entries, time.Now())
	return 0
}

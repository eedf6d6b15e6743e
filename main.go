package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gidra39/lrsweep/config"
)

const usage = `usage: lrsweep <command> [flags]

commands:
  sweep     launch every run of the sweep table, one after another
  monitor   report progress of the tracked runs until they finish
  plot      chart one or more training logs
  spectral  chart the spectral learning-rate sweep
  history   list runs recorded in the ledger
`

func main() {
	configuration := config.LoadConfig(".env", "lrsweep.yaml", "lrsweep.json")
	config.SetupLogger(configuration)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1], os.Args[2:], configuration)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, command string, args []string, cfg config.Config) int {
	switch command {
	case "sweep":
		return runSweep(ctx, args, cfg)
	case "monitor":
		return runMonitor(ctx, args, cfg)
	case "plot":
		return runPlot(args, cfg)
	case "spectral":
		return runSpectral(args, cfg)
	case "history":
		return runHistory(ctx, args, cfg)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

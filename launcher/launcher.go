// Package launcher runs the sweep: one external training command per sweep
// member, strictly one after another, stopping at the first failure.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gidra39/lrsweep/sweep"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultLaunchCommand = "torchrun"

// Options are the launch settings shared by every run of a sweep.
type Options struct {
	NprocPerNode      int
	LaunchCommand     string
	TrainScript       string
	LibraryPathPrefix string
	DryRun            bool
}

// Recorder persists run lifecycle events.
type Recorder interface {
	Start(ctx context.Context, sweepID, runID, tag string, at time.Time) (int64, error)
	Finish(ctx context.Context, id int64, exitCode int, at time.Time) error
}

// Job is one planned run.
type Job struct {
	Index   int
	RunID   string
	Tag     string
	Vars    map[string]string
	Command Command
}

// RunError reports the run that stopped the sweep.
type RunError struct {
	Job Job
	Err error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %d (%s) failed: %v", e.Job.Index, e.Job.RunID, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func (e *RunError) ExitCode() int { return ExitCode(e.Err) }

// Result summarizes a completed or aborted sweep.
type Result struct {
	SweepID   string
	Completed []Job
	Failed    *Job
}

type Launcher struct {
	table    *sweep.Table
	opts     Options
	runner   Runner
	recorder Recorder
	out      io.Writer

	now     func() time.Time
	environ func() []string
}

func New(table *sweep.Table, opts Options, runner Runner, out io.Writer) *Launcher {
	return &Launcher{
		table:   table,
		opts:    opts,
		runner:  runner,
		out:     out,
		now:     time.Now,
		environ: os.Environ,
	}
}

// WithRecorder attaches a ledger; nil leaves the sweep unrecorded.
func (l *Launcher) WithRecorder(r Recorder) *Launcher {
	l.recorder = r
	return l
}

func (l *Launcher) command(c sweep.Config, env []string) Command {
	fields := strings.Fields(l.opts.LaunchCommand)
	if len(fields) == 0 {
		fields = []string{DefaultLaunchCommand}
	}
	args := append([]string{}, fields[1:]...)
	args = append(args,
		"--standalone",
		"--nproc_per_node", strconv.Itoa(l.opts.NprocPerNode),
		l.table.Script(c, l.opts.TrainScript),
	)
	return Command{Name: fields[0], Args: args, Env: env}
}

// Plan derives every job of the sweep for the given start stamp.
func (l *Launcher) Plan(stamp string) []Job {
	base := l.environ()
	jobs := make([]Job, 0, len(l.table.Runs))
	for i, c := range l.table.Runs {
		runID := sweep.RunID(c, stamp)
		vars := l.table.Vars(c, runID)
		jobs = append(jobs, Job{
			Index:   i + 1,
			RunID:   runID,
			Tag:     c.Tag,
			Vars:    vars,
			Command: l.command(c, sweep.Environ(base, vars, l.opts.LibraryPathPrefix)),
		})
	}
	return jobs
}

// Run launches the sweep. It returns a *RunError for the first run that
// fails; later runs are never started.
func (l *Launcher) Run(ctx context.Context) (Result, error) {
	stamp := sweep.Timestamp(l.now())
	jobs := l.Plan(stamp)
	res := Result{SweepID: stamp}

	for _, job := range jobs {
		fmt.Fprintf(l.out, "[%d/%d] RUN_ID=%s\n", job.Index, len(jobs), job.RunID)

		if l.opts.DryRun {
			l.printPlan(job)
			res.Completed = append(res.Completed, job)
			continue
		}

		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "sweep cancelled")
		}

		err := l.runOne(ctx, stamp, job)
		if err != nil {
			failed := job
			res.Failed = &failed
			return res, &RunError{Job: job, Err: err}
		}
		res.Completed = append(res.Completed, job)
	}
	return res, nil
}

func (l *Launcher) runOne(ctx context.Context, stamp string, job Job) error {
	logger := log.With().Str("run_id", job.RunID).Int("index", job.Index).Logger()

	var ledgerID int64
	if l.recorder != nil {
		id, err := l.recorder.Start(ctx, stamp, job.RunID, job.Tag, l.now())
		if err != nil {
			logger.Warn().Err(err).Msg("unable to record run start")
		}
		ledgerID = id
	}

	logger.Info().Str("cmd", job.Command.Name).Strs("args", job.Command.Args).Msg("launching run")
	started := l.now()
	err := l.runner.Run(ctx, job.Command)
	logger.Info().Dur("elapsed", l.now().Sub(started)).Int("exit_code", ExitCode(err)).Msg("run finished")

	if l.recorder != nil && ledgerID != 0 {
		// a cancelled ctx must not prevent closing the ledger row
		if ferr := l.recorder.Finish(context.WithoutCancel(ctx), ledgerID, ExitCode(err), l.now()); ferr != nil {
			logger.Warn().Err(ferr).Msg("unable to record run finish")
		}
	}
	return err
}

func (l *Launcher) printPlan(job Job) {
	keys := make([]string, 0, len(job.Vars))
	for k := range job.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(l.out, "    %s=%s\n", k, job.Vars[k])
	}
	fmt.Fprintf(l.out, "    $ %s %s\n", job.Command.Name, strings.Join(job.Command.Args, " "))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sharnoff/threadtree"
	"github.com/sharnoff/threadtree/causal"
	"github.com/sharnoff/threadtree/internal/config"
	"github.com/sharnoff/threadtree/internal/logflags"
	"github.com/sharnoff/threadtree/internal/shutdown"
	"github.com/sharnoff/threadtree/sink"
)

type options struct {
	// configPath is an optional YAML file, applied before any explicitly set flag.
	configPath string
	stages     int
	workers    int
	work       time.Duration
	policy     string
	timeout    time.Duration
	verbose    bool
	help       bool
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of layers that should produce debug output.
	logOutput string

	helpShown bool
}

const longDesc = `threadtree spawns a staged tree of workers, to produce a reproducible concurrency
pattern for tracing tools.

Stage i runs (workers - i) workers. The last worker of each stage to finish its work spawns the
next stage. Every worker start, exit, and spawn (fork) is recorded, and the critical path through
the stages is printed once all workers have been joined.`

type flagError struct {
	err error
}

func (e *flagError) Error() string { return e.err.Error() }
func (e *flagError) Unwrap() error { return e.err }

func bindFlags(fs *pflag.FlagSet, opts *options) {
	def := config.Default()

	fs.BoolVarP(&opts.help, "help", "h", false, "Print this help and exit.")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Print the configuration and task shape before running.")
	fs.StringVar(&opts.configPath, "config", "", "YAML file with run settings; explicit flags take precedence.")
	fs.IntVar(&opts.stages, "stages", def.Stages, "Number of stages.")
	fs.IntVar(&opts.workers, "workers", def.Workers, "Number of workers in the first stage.")
	fs.DurationVar(&opts.work, "work", def.Work, "How long each worker works before registering.")
	fs.StringVar(&opts.policy, "policy", def.Policy, "What to do with stages shrinking below one worker: reject, clamp, or allow-empty.")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Give up waiting for the task after this long (0 waits forever).")
	fs.BoolVar(&opts.log, "log", false, "Enable debug logging.")
	fs.StringVar(&opts.logOutput, "log-output", "", "Comma separated list of layers that should produce debug output: task, events.")
}

// newCommand returns the root command. Help goes to stderr and is reported through opts.helpShown,
// so that the caller can exit with a failure status.
func newCommand(opts *options, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "threadtree [flags]",
		Short:         "Spawn a staged tree of workers for tracing tools.",
		Long:          longDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), cmd.Flags(), opts, stdout)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	bindFlags(cmd.Flags(), opts)

	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		opts.helpShown = true
		fmt.Fprintf(stderr, "%s\n\n%s", c.Long, c.UsageString())
	})
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &flagError{err: err}
	})
	return cmd
}

func run(args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	cmd := newCommand(opts, stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	if opts.helpShown {
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)

		var fe *flagError
		if errors.As(err, &fe) {
			fmt.Fprint(stderr, cmd.UsageString())
		}

		var we *threadtree.WaitError
		if errors.As(err, &we) {
			fmt.Fprintf(stderr, "%d worker(s) still running\n", we.Running.Count())
		}
		return 1
	}
	return 0
}

// resolveConfig layers defaults, the config file, and explicitly set flags.
func resolveConfig(fs *pflag.FlagSet, opts *options) (config.Config, error) {
	conf := config.Default()
	if opts.configPath != "" {
		var err error
		if conf, err = config.Load(opts.configPath); err != nil {
			return conf, err
		}
	}

	if fs.Changed("stages") {
		conf.Stages = opts.stages
	}
	if fs.Changed("workers") {
		conf.Workers = opts.workers
	}
	if fs.Changed("work") {
		conf.Work = opts.work
	}
	if fs.Changed("policy") {
		conf.Policy = opts.policy
	}
	if fs.Changed("timeout") {
		conf.Timeout = opts.timeout
	}
	if fs.Changed("verbose") {
		conf.Verbose = opts.verbose
	}

	return conf, conf.Validate()
}

func execute(ctx context.Context, fs *pflag.FlagSet, opts *options, stdout io.Writer) error {
	if err := logflags.Setup(opts.log, opts.logOutput, nil); err != nil {
		return err
	}

	conf, err := resolveConfig(fs, opts)
	if err != nil {
		return err
	}
	policy, err := conf.CapacityPolicy()
	if err != nil {
		return err
	}

	mgr := shutdown.New()
	defer mgr.Stop()
	_ = mgr.On(syscall.SIGTERM, context.Background(), func(ctx context.Context) error {
		return mgr.Trigger(os.Interrupt, ctx)
	})

	// an interrupt cancels the wait
	interrupted := mgr.Context(os.Interrupt)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-interrupted.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	if conf.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, conf.Timeout)
		defer cancelTimeout()
	}

	recorder := sink.NewRecorder()
	var events threadtree.EventSink = recorder
	if logflags.Events() {
		events = sink.Multi(recorder, sink.NewLogger(logflags.EventLogger()))
	}

	var logger logrus.FieldLogger
	if logflags.Task() {
		logger = logflags.TaskLogger()
	}

	task, err := threadtree.NewTask(threadtree.Config{
		Stages:   conf.Stages,
		Workers:  conf.Workers,
		Policy:   policy,
		Workload: threadtree.Sleep(conf.Work),
		Sink:     events,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if conf.Verbose {
		conf.Dump(stdout)
		fmt.Fprint(stdout, task)
	}

	if err := task.Start(ctx); err != nil {
		return err
	}
	if err := task.Wait(ctx); err != nil {
		if conf.Verbose {
			printLineages(stdout, err)
		}
		if mgr.Triggered(os.Interrupt) {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}

	stages := make([]threadtree.StageInfo, 0, task.StageCount())
	for _, s := range task.Stages() {
		stages = append(stages, s.Snapshot())
	}
	if err := task.Close(); err != nil {
		return err
	}

	report, err := causal.Analyze(recorder.Events())
	if err != nil {
		return err
	}

	printSummary(stdout, task, stages, report, conf.Verbose)
	return nil
}

func printLineages(w io.Writer, err error) {
	var we *threadtree.WorkerError
	if errors.As(err, &we) && we.Lineage != nil {
		fmt.Fprint(w, we.Lineage)
	}
}

const (
	colorGreen = "\x1b[32m"
	colorBold  = "\x1b[1m"
	colorReset = "\x1b[0m"
)

// colorWriter returns a writer that understands ANSI escapes, if w is a terminal
func colorWriter(w io.Writer) (io.Writer, bool) {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return colorable.NewColorable(f), true
	}
	return w, false
}

func printSummary(w io.Writer, task *threadtree.Task, stages []threadtree.StageInfo, report *causal.Report, verbose bool) {
	out, color := colorWriter(w)
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + colorReset
	}

	fmt.Fprintf(out, "task %s: %d stages, %d workers, %d forks\n", task.ID, len(stages), report.Workers, report.Forks)
	if verbose {
		for _, s := range stages {
			fmt.Fprintf(out, "\tstage %d: capacity=%d registered=%d roster=%v\n", s.Index, s.Capacity, s.Registered, s.Roster)
		}
	}
	fmt.Fprintf(out, "critical path: %s\n", paint(colorBold, causal.FormatPath(report.CriticalPath)))
	fmt.Fprintln(out, paint(colorGreen, "done"))
}

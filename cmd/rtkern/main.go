package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sync/errgroup"

	"rtkern/internal/arch"
	"rtkern/internal/board"
	"rtkern/internal/job"
	"rtkern/internal/kernel"
	"rtkern/internal/trace"
)

// taskFlags collects repeated -task values.
type taskFlags []kernel.TaskConfig

func (f *taskFlags) String() string {
	names := make([]string, 0, len(*f))
	for _, t := range *f {
		names = append(names, t.Name)
	}
	return strings.Join(names, ",")
}

// Set parses `name priority program [peer [units]]`, shell-quoted.
func (f *taskFlags) Set(s string) error {
	t, err := parseTask(s)
	if err != nil {
		return err
	}
	*f = append(*f, t)
	return nil
}

func parseTask(s string) (kernel.TaskConfig, error) {
	fields, err := shlex.Split(s)
	if err != nil {
		return kernel.TaskConfig{}, fmt.Errorf("task %q: %w", s, err)
	}
	if len(fields) < 3 || len(fields) > 5 {
		return kernel.TaskConfig{}, fmt.Errorf("task %q: want name priority program [peer [units]]", s)
	}
	prio, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return kernel.TaskConfig{}, fmt.Errorf("task %q: priority: %w", s, err)
	}
	t := kernel.TaskConfig{Name: fields[0], Priority: uint32(prio), Program: fields[2], Units: 1000}
	if len(fields) > 3 {
		t.Peer = fields[3]
	}
	if len(fields) > 4 {
		if t.Units, err = strconv.Atoi(fields[4]); err != nil {
			return kernel.TaskConfig{}, fmt.Errorf("task %q: units: %w", s, err)
		}
	}
	return t, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func main() {
	var (
		cfgPath = flag.String("config", "config.yml", "path to the YAML configuration")
		steps   = flag.Uint64("steps", 0, "stop after this many scheduler iterations (overrides config)")
		csvPath = flag.String("csv", "", "write kernel events to this CSV file (overrides config)")
		quiet   = flag.Bool("quiet", false, "do not print kernel events")
		mute    = flag.String("mute", "", "comma-separated event kinds not to print, e.g. Yield,Preempt (overrides config)")
		tasks   taskFlags
	)
	flag.Var(&tasks, "task", "task to create as \"name priority program [peer [units]]\"; repeatable, replaces configured tasks")
	flag.Parse()

	if err := run(*cfgPath, *steps, *csvPath, *quiet, splitList(*mute), tasks); err != nil {
		fmt.Fprintln(os.Stderr, "rtkern:", err)
		os.Exit(1)
	}
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func run(cfgPath string, steps uint64, csvPath string, quiet bool, mute []string, tasks []kernel.TaskConfig) error {
	// Read the configuration
	cfg, err := kernel.Load(cfgPath)
	if err != nil {
		return err
	}
	if steps > 0 {
		cfg.MaxSteps = steps
	}
	if csvPath != "" {
		cfg.CSV = csvPath
	}
	if len(tasks) > 0 {
		cfg.Tasks = tasks
	}
	if len(mute) > 0 {
		cfg.Mute = mute
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	console, err := board.Open(cfg.Diag.Backend, cfg.Diag.Device, cfg.Diag.Baud)
	if err != nil {
		return err
	}
	defer console.Close()

	out := os.Stdout
	rec := trace.NewRecorder(out)
	if quiet {
		rec = trace.NewRecorder(nil)
	}
	for _, m := range cfg.Mute {
		kind, _ := kernel.ParseEventKind(m) // checked by Validate
		rec.Mute(kind)
	}
	if cfg.CSV != "" {
		if err := rec.EnableCSV(cfg.CSV); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	defer rec.Close()

	tick := arch.NewSysTick(cfg.Reload)
	opts := []kernel.Option{
		kernel.WithDiagnostics(console),
		kernel.WithSysTick(tick),
		kernel.WithObserver(rec.Observe),
		kernel.WithLogger(logger),
		kernel.WithDispatchBanner(cfg.DispatchBanner),
		kernel.WithStepLimit(cfg.MaxSteps),
	}
	if cfg.Clock == kernel.ClockRealtime {
		opts = append(opts, kernel.WithDelay(board.SpinDelay{Unit: time.Duration(cfg.UnitUS) * time.Microsecond}))
	}

	k := kernel.New(cfg.Capacity, opts...)
	defer k.Halt()

	for _, tc := range cfg.Tasks {
		fn, err := job.Build(tc.Program, job.Params{Peer: tc.Peer, Units: tc.Units})
		if err != nil {
			return fmt.Errorf("task %q: %w", tc.Name, err)
		}
		if _, err := k.Create(tc.Name, tc.Priority, fn); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if cfg.Clock == kernel.ClockRealtime {
		clock := arch.NewTickClock(tick)
		clock.Start(time.Duration(cfg.TickMS) * time.Millisecond)
		g.Go(func() error {
			<-runCtx.Done()
			clock.Stop()
			logger.Info("tick clock stopped", "edges", clock.Count())
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return k.Run(runCtx)
	})

	err = g.Wait()
	rec.Summary(out)
	if cerr := console.Err(); cerr != nil {
		logger.Warn("diagnostic channel write failed", "err", cerr)
	}
	return err
}

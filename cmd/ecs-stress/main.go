package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/plus3/strata/ecs"
	"github.com/plus3/strata/jobs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Optional toml or yaml configuration file.")
	duration := flag.Duration("duration", 0, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 0, "The initial number of entities to create.")
	componentCount := flag.Int("components", 0, "The number of generated component types.")
	systemCount := flag.Int("systems", 0, "The number of generated systems.")
	workers := flag.Int("workers", 0, "The number of executor workers; zero derives it from the cores.")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error).")
	logFormat := flag.String("log-format", "", "Log format (console or json).")
	profileMode := flag.String("profile", "", "Write a profile: cpu, mem, block, mutex, trace or goroutine.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	cfg := defaults()
	if *configPath != "" {
		loaded, err := Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			cfg.Duration = *duration
		case "entities":
			cfg.Entities = *entityCount
		case "components":
			cfg.Components = *componentCount
		case "systems":
			cfg.Systems = *systemCount
		case "workers":
			cfg.Jobs.Workers = *workers
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		case "profile":
			cfg.Profile = *profileMode
		case "gc-pause-metrics":
			cfg.GCPauseMetrics = *gcPauseMetrics
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Profile != "" {
		defer profile.Start(profileOption(cfg.Profile), profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	report, err := run(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("stress test failed", zap.Error(err))
	}

	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		log.Fatal("failed to generate report", zap.Error(err))
	}
	fmt.Println("--- End of Report ---")
}

func profileOption(mode string) func(*profile.Profile) {
	switch mode {
	case "mem":
		return profile.MemProfile
	case "block":
		return profile.BlockProfile
	case "mutex":
		return profile.MutexProfile
	case "trace":
		return profile.TraceProfile
	case "goroutine":
		return profile.GoroutineProfile
	default:
		return profile.CPUProfile
	}
}

// run builds the workload, ticks the runner until the configured duration has elapsed and collects
// the report.
func run(ctx context.Context, cfg *Config, log *zap.Logger) (*Report, error) {
	runID := uuid.New()
	log = log.With(zap.String("run_id", runID.String()))
	log.Info("starting ECS stress test",
		zap.Duration("duration", cfg.Duration),
		zap.Int("entities", cfg.Entities),
		zap.Int("components", cfg.Components),
		zap.Int("systems", cfg.Systems),
	)

	workload := NewWorkload(cfg, log)
	world := ecs.NewWorld(workload.Def, ecs.WithWorldLogger(log.Named("world")))
	defer world.Close()

	exec := jobs.NewExecutor(jobs.WithConfig(cfg.Jobs), jobs.WithLogger(log.Named("jobs")))
	defer exec.Close()
	runner := ecs.NewRunner(world, exec, ecs.WithRunnerLogger(log.Named("runner")))

	log.Info("populating world", zap.Int("entities", cfg.Entities))
	workload.Populate(world, cfg.Entities, cfg.Seed)

	report := &Report{
		RunID:          runID,
		Started:        time.Now(),
		Duration:       cfg.Duration,
		Entities:       cfg.Entities,
		Components:     cfg.Components,
		Systems:        cfg.Systems,
		Workers:        exec.WorkerCount(),
		GCPauseMetrics: cfg.GCPauseMetrics,
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var updates atomic.Int64
	done := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		lastFrameTime := time.Now()
		for ctx.Err() == nil {
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			runner.RunSync(deltaTime.Seconds())
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			updates.Add(1)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.ReportInterval)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				n := updates.Load()
				stats := runner.Stats()
				log.Info("progress",
					zap.Int64("updates", n),
					zap.Float64("updates_per_sec", float64(n-last)/cfg.ReportInterval.Seconds()),
					zap.Duration("critical_path", stats.CriticalPath),
					zap.Duration("flush_avg", stats.Flush.AvgDuration),
				)
				last = n
			}
		}
	})

	start := time.Now()
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("run workload: %w", err)
	}

	report.TotalTime = time.Since(start)
	report.TotalUpdates = updates.Load()
	report.Churned = workload.Churned()
	report.UpdateTime.Finalize()
	report.Runner = runner.Stats()
	report.World = world.CollectStats()
	runtime.ReadMemStats(&report.MemStatsEnd)

	log.Info("stress test complete",
		zap.Int64("updates", report.TotalUpdates),
		zap.Duration("avg_update", report.UpdateTime.Avg),
	)
	return report, nil
}

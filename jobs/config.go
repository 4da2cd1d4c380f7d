package jobs

import (
	"fmt"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// MaxQueueCapacity bounds the per-worker queue capacity; anything larger is a configuration error.
	MaxQueueCapacity = 1 << 16

	maxRunningJobs  = 256
	stealAttempts   = 25
	helpYieldLimit  = 100
)

// Config controls the size of the worker pool and its queues.
type Config struct {
	// Workers is the number of worker goroutines. Zero derives it from the visible cores.
	Workers       int `toml:"workers" yaml:"workers"`
	ReservedCores int `toml:"reserved_cores" yaml:"reserved_cores"`
	MinWorkers    int `toml:"min_workers" yaml:"min_workers"`
	MaxWorkers    int `toml:"max_workers" yaml:"max_workers"`

	// QueueCapacity is the fixed capacity of every worker's queue; must be a power of two.
	QueueCapacity         int `toml:"queue_capacity" yaml:"queue_capacity"`
	AffinityQueueCapacity int `toml:"affinity_queue_capacity" yaml:"affinity_queue_capacity"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ReservedCores:         1,
		MinWorkers:            1,
		MaxWorkers:            4,
		QueueCapacity:         4096,
		AffinityQueueCapacity: 512,
	}
}

// WorkerCount resolves the number of worker goroutines the configuration asks for.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return min(max(runtime.NumCPU()-c.ReservedCores, c.MinWorkers, 1), max(c.MaxWorkers, 1))
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var err error
	if c.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("workers must not be negative (got %d)", c.Workers))
	}
	if c.ReservedCores < 0 {
		err = multierr.Append(err, fmt.Errorf("reserved_cores must not be negative (got %d)", c.ReservedCores))
	}
	if c.MinWorkers > c.MaxWorkers {
		err = multierr.Append(err, fmt.Errorf("min_workers (%d) exceeds max_workers (%d)", c.MinWorkers, c.MaxWorkers))
	}
	err = multierr.Append(err, validateCapacity("queue_capacity", c.QueueCapacity))
	err = multierr.Append(err, validateCapacity("affinity_queue_capacity", c.AffinityQueueCapacity))
	return err
}

func validateCapacity(name string, capacity int) error {
	switch {
	case capacity <= 0 || capacity&(capacity-1) != 0:
		return fmt.Errorf("%s must be a power of two (got %d)", name, capacity)
	case capacity > MaxQueueCapacity:
		return fmt.Errorf("%s exceeds the maximum of %d (got %d)", name, MaxQueueCapacity, capacity)
	}
	return nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		e.cfg = cfg
	}
}

// WithWorkers overrides the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		e.cfg.Workers = n
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		e.log = log
	}
}

package ecs

import (
	"sync"
	"time"
)

// SystemStats provides execution statistics for a single system. A parallel system aggregates its
// tasks: durations are per task, the execution count is the number of completed ticks.
type SystemStats struct {
	Name           string
	Tasks          int
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration // Moving average.
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

// RunnerStats provides statistics about the runner's graph and its execution.
type RunnerStats struct {
	Ticks        int64
	TaskCount    int
	Span         uint64
	Parallelism  float64
	CriticalPath time.Duration // Longest chain of tasks by average duration.
	Flush        SystemStats
	Systems      []SystemStats
}

// ArchetypeStats describes the storage of one archetype.
type ArchetypeStats struct {
	ID               ArchetypeId
	Components       []string
	EntityCount      int
	ChunkCount       int
	EntitiesPerChunk int
}

// WorldStats provides a snapshot of the World's storage.
type WorldStats struct {
	TotalEntityCount   int
	ArchetypeCount     int
	PendingCount       int
	FlushCount         uint64
	ArchetypeBreakdown []ArchetypeStats
}

// CollectStats gathers storage statistics. It must not run concurrently with a flush.
func (w *World) CollectStats() WorldStats {
	stats := WorldStats{
		TotalEntityCount: w.EntityCount(),
		ArchetypeCount:   w.ArchetypeCount(),
		PendingCount:     w.PendingCount(),
		FlushCount:       w.flushes,
	}
	for _, a := range w.store.archetypes {
		names := make([]string, len(a.comps))
		for i, c := range a.comps {
			names[i] = w.def.CompName(c)
		}
		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			ID:               a.id,
			Components:       names,
			EntityCount:      a.count,
			ChunkCount:       a.ChunkCount(),
			EntitiesPerChunk: a.perChunk,
		})
	}
	return stats
}

// avgWindow is the weight of a new sample in the moving average.
const avgWindow = 15

// durationStats accumulates the durations of one task.
type durationStats struct {
	mu    sync.Mutex
	count int64
	min   time.Duration
	max   time.Duration
	avg   time.Duration
	last  time.Duration
	total time.Duration
}

func (s *durationStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		s.min, s.max, s.avg = d, d, d
	} else {
		s.min = min(s.min, d)
		s.max = max(s.max, d)
		s.avg += (d - s.avg) / avgWindow
	}
	s.count++
	s.last = d
	s.total += d
}

func (s *durationStats) average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avg
}

// merge folds the task's stats into a system's aggregate.
func (s *durationStats) merge(out *SystemStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if out.Tasks == 0 {
		out.ExecutionCount = s.count
		out.MinDuration = s.min
	} else {
		out.ExecutionCount = min(out.ExecutionCount, s.count)
		out.MinDuration = min(out.MinDuration, s.min)
	}
	out.Tasks++
	out.MaxDuration = max(out.MaxDuration, s.max)
	out.AvgDuration = max(out.AvgDuration, s.avg)
	out.LastDuration = max(out.LastDuration, s.last)
	out.TotalDuration += s.total
}

// durationCost converts an average duration to a graph cost, never zero so every task counts.
func durationCost(d time.Duration) uint64 {
	if d <= 0 {
		return 1
	}
	return uint64(d)
}

package main

import (
	"cmp"
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/plus3/strata/ecs"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Report struct {
	RunID   uuid.UUID
	Started time.Time

	// Configuration
	Duration   time.Duration
	Entities   int
	Components int
	Systems    int
	Workers    int

	// Results
	TotalUpdates   int64
	TotalTime      time.Duration
	Churned        int64
	UpdateTime     Stats
	Runner         *ecs.RunnerStats
	World          ecs.WorldStats
	GCPauseMetrics bool
	MemStatsStart  runtime.MemStats
	MemStatsEnd    runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P50     time.Duration
	P99     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	sorted := slices.Clone(s.Samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, sample := range sorted {
		total += sample
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Avg = total / time.Duration(len(sorted))
	s.P50 = sorted[len(sorted)/2]
	s.P99 = sorted[min(len(sorted)*99/100, len(sorted)-1)]
}

// UpdatesPerSecond returns the tick rate over the whole run.
func (r *Report) UpdatesPerSecond() float64 {
	if r.TotalTime <= 0 {
		return 0
	}
	return float64(r.TotalUpdates) / r.TotalTime.Seconds()
}

const reportTemplate = `
# ECS Stress Test Report

- **Run ID:** {{.RunID}}
- **Started:** {{.Started.Format "2006-01-02 15:04:05"}}

## Test Configuration
- **Run Duration:** {{.Duration}}
- **Initial Entities:** {{num .Entities}}
- **Generated Components:** {{.Components}}
- **Generated Systems:** {{.Systems}}
- **Workers:** {{.Workers}}

## Task Graph
- **Tasks:** {{.Runner.TaskCount}}
- **Span:** {{.Runner.Span}}
- **Parallelism:** {{printf "%.2f" .Runner.Parallelism}}
- **Critical Path (avg):** {{.Runner.CriticalPath}}

## Performance Results
- **Total Updates:** {{num .TotalUpdates}} ({{printf "%.1f" .UpdatesPerSecond}}/s)
- **Total Test Time:** {{.TotalTime}}
- **Churned Entities:** {{num .Churned}}
- **Update Time (Frame):**
  - **Avg:** {{.UpdateTime.Avg}}
  - **Min:** {{.UpdateTime.Min}}
  - **P50:** {{.UpdateTime.P50}}
  - **P99:** {{.UpdateTime.P99}}
  - **Max:** {{.UpdateTime.Max}}
- **Flush:** avg {{.Runner.Flush.AvgDuration}}, max {{.Runner.Flush.MaxDuration}}

## Slowest Systems
{{range slowest .Runner.Systems 5}}- {{.Name}} x{{.Tasks}}: avg {{.AvgDuration}}, max {{.MaxDuration}}
{{end}}
## World
- **Entities:** {{num .World.TotalEntityCount}}
- **Archetypes:** {{num .World.ArchetypeCount}}
- **Flushes:** {{num .World.FlushCount}}

## Memory Usage
- Heap Alloc:     {{mb .MemStatsStart.HeapAlloc}} MB (start) -> {{mb .MemStatsEnd.HeapAlloc}} MB (end) -> delta: {{num (bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc)}} bytes
- Total Alloc:    {{mb .MemStatsStart.TotalAlloc}} MB (start) -> {{mb .MemStatsEnd.TotalAlloc}} MB (end) -> delta: {{num (bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc)}} bytes
- Sys Memory:     {{mb .MemStatsStart.Sys}} MB (start) -> {{mb .MemStatsEnd.Sys}} MB (end) -> delta: {{num (bsub .MemStatsEnd.Sys .MemStatsStart.Sys)}} bytes
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{ns (usub64 .MemStatsEnd.PauseTotalNs .MemStatsStart.PauseTotalNs)}}
- **Num GC Cycles:** {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{end}}`

func (r *Report) Generate(w io.Writer) error {
	p := message.NewPrinter(language.English)

	fm := template.FuncMap{
		"num": func(v any) string {
			return p.Sprintf("%d", v)
		},
		"mb": func(v uint64) string {
			return p.Sprintf("%.2f", float64(v)/1024/1024)
		},
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"usub64": func(a, b uint64) uint64 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
		"slowest": slowestSystems,
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}
	if err := tmpl.Execute(w, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func slowestSystems(systems []ecs.SystemStats, n int) []ecs.SystemStats {
	sorted := slices.Clone(systems)
	slices.SortStableFunc(sorted, func(a, b ecs.SystemStats) int {
		return cmp.Compare(b.AvgDuration, a.AvgDuration)
	})
	return sorted[:min(n, len(sorted))]
}

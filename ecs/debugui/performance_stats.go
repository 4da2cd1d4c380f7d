package debugui

import (
	"fmt"
	"strings"
	"time"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/strata/ecs"
)

// PerformanceStats shows frame times, runner statistics and storage usage.
type PerformanceStats struct {
	frameHistory []float32 // Milliseconds, circular.
	frameIndex   int
	frames       int
}

func NewPerformanceStats(historyFrames int) *PerformanceStats {
	return &PerformanceStats{frameHistory: make([]float32, max(historyFrames, 1))}
}

// Record adds a frame time to the history.
func (ps *PerformanceStats) Record(deltaTime float64) {
	ps.frameHistory[ps.frameIndex] = float32(deltaTime * 1000.0)
	ps.frameIndex = (ps.frameIndex + 1) % len(ps.frameHistory)
	ps.frames = min(ps.frames+1, len(ps.frameHistory))
}

// AverageFrameTime returns the mean of the recorded frame times in milliseconds.
func (ps *PerformanceStats) AverageFrameTime() float32 {
	if ps.frames == 0 {
		return 0
	}
	var total float32
	for _, ft := range ps.frameHistory[:ps.frames] {
		total += ft
	}
	return total / float32(ps.frames)
}

// Render draws the panel. The runner may be nil.
func (ps *PerformanceStats) Render(w *ecs.World, runner *ecs.Runner) {
	if !imgui.BeginV("Performance Stats", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}
	defer imgui.End()

	stats := w.CollectStats()
	imgui.Text(fmt.Sprintf("Total Entities: %d", stats.TotalEntityCount))
	imgui.Text(fmt.Sprintf("Archetypes: %d", stats.ArchetypeCount))
	imgui.Text(fmt.Sprintf("Flushes: %d", stats.FlushCount))

	if avg := ps.AverageFrameTime(); avg > 0 {
		imgui.Text(fmt.Sprintf("Avg Frame Time: %.2f ms (%.0f FPS)", avg, 1000.0/avg))
	}

	imgui.Separator()
	imgui.Text("Frame Time Graph (ms)")
	imgui.PlotLinesFloatPtr("##frametime", &ps.frameHistory[0], int32(len(ps.frameHistory)))

	if runner != nil && imgui.TreeNodeStr("Systems") {
		renderRunnerStats(runner.Stats())
		imgui.TreePop()
	}

	if imgui.TreeNodeStr("Archetype Details") {
		const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg
		if imgui.BeginTableV("ArchStatsTable", 4, tableFlags, imgui.NewVec2(0, 0), 0) {
			imgui.TableSetupColumn("Archetype")
			imgui.TableSetupColumn("Components")
			imgui.TableSetupColumn("Entities")
			imgui.TableSetupColumn("Chunks")
			imgui.TableHeadersRow()

			for _, arch := range stats.ArchetypeBreakdown {
				imgui.TableNextRow()
				imgui.TableNextColumn()
				imgui.Text(fmt.Sprintf("%d", arch.ID))
				imgui.TableNextColumn()
				imgui.Text(strings.Join(arch.Components, ", "))
				imgui.TableNextColumn()
				imgui.Text(fmt.Sprintf("%d", arch.EntityCount))
				imgui.TableNextColumn()
				imgui.Text(fmt.Sprintf("%d", arch.ChunkCount))
			}
			imgui.EndTable()
		}
		imgui.TreePop()
	}
}

func renderRunnerStats(stats *ecs.RunnerStats) {
	imgui.Text(fmt.Sprintf("Ticks: %d", stats.Ticks))
	imgui.Text(fmt.Sprintf("Tasks: %d (span %d, parallelism %.2f)", stats.TaskCount, stats.Span, stats.Parallelism))
	imgui.Text(fmt.Sprintf("Critical Path: %s", stats.CriticalPath))

	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg | imgui.TableFlagsSizingFixedFit
	if !imgui.BeginTableV("SystemStatsTable", 6, tableFlags, imgui.NewVec2(0, 0), 0) {
		return
	}
	imgui.TableSetupColumn("System")
	imgui.TableSetupColumn("Tasks")
	imgui.TableSetupColumn("Runs")
	imgui.TableSetupColumn("Avg")
	imgui.TableSetupColumn("Min")
	imgui.TableSetupColumn("Max")
	imgui.TableHeadersRow()

	row := func(s *ecs.SystemStats) {
		imgui.TableNextRow()
		imgui.TableNextColumn()
		imgui.Text(s.Name)
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", s.Tasks))
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", s.ExecutionCount))
		imgui.TableNextColumn()
		imgui.Text(formatDuration(s.AvgDuration))
		imgui.TableNextColumn()
		imgui.Text(formatDuration(s.MinDuration))
		imgui.TableNextColumn()
		imgui.Text(formatDuration(s.MaxDuration))
	}
	for i := range stats.Systems {
		row(&stats.Systems[i])
	}
	row(&stats.Flush)
	imgui.EndTable()
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d)/float64(time.Millisecond))
}

// FrameTimer measures the time between frames.
type FrameTimer struct {
	lastFrameTime time.Time
}

func NewFrameTimer() *FrameTimer {
	return &FrameTimer{
		lastFrameTime: time.Now(),
	}
}

// DeltaTime returns the seconds elapsed since the previous call.
func (ft *FrameTimer) DeltaTime() float64 {
	now := time.Now()
	delta := now.Sub(ft.lastFrameTime).Seconds()
	ft.lastFrameTime = now
	return delta
}

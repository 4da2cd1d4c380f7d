package debugui

import (
	"github.com/plus3/strata/ecs"
)

// Inspector combines every panel. Render it on the ImGui goroutine between ticks, or from an
// ImguiItem so the RenderQueue defers it there.
type Inspector struct {
	world  *ecs.World
	runner *ecs.Runner

	Archetypes  *ArchetypeViewer
	Entities    *EntityBrowser
	Components  *ComponentInspector
	Views       *ViewDebugger
	Performance *PerformanceStats

	timer *FrameTimer
}

// NewInspector creates the panels for a world. The runner is optional.
func NewInspector(w *ecs.World, runner *ecs.Runner) *Inspector {
	return &Inspector{
		world:       w,
		runner:      runner,
		Archetypes:  NewArchetypeViewer(),
		Entities:    NewEntityBrowser(50),
		Components:  NewComponentInspector(),
		Views:       NewViewDebugger(),
		Performance: NewPerformanceStats(120),
		timer:       NewFrameTimer(),
	}
}

func (in *Inspector) Render() {
	in.Performance.Record(in.timer.DeltaTime())

	if clicked := in.Archetypes.Render(in.world); clicked != nil {
		in.Entities.FilterArchetype(clicked)
	}
	in.Entities.Render(in.world)
	in.Components.Render(in.world, in.Entities.Selected())
	in.Views.Render(in.world)
	in.Performance.Render(in.world, in.runner)
}

package debugui

import (
	"strings"
	"testing"

	"github.com/plus3/strata/ecs"
	"github.com/plus3/strata/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type position struct{ X, Y float32 }

type velocity struct{ X, Y float32 }

type testWorld struct {
	*ecs.World
	position ecs.Comp[position]
	velocity ecs.Comp[velocity]
	imgui    *Components
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	def := ecs.NewDef()
	tw := &testWorld{
		position: ecs.RegisterComponent(def, ecs.WithCompName[position]("Position")),
		velocity: ecs.RegisterComponent(def, ecs.WithCompName[velocity]("Velocity")),
		imgui:    Register(def),
	}
	tw.World = ecs.NewWorld(def, ecs.WithWorldLogger(zaptest.NewLogger(t)))
	t.Cleanup(tw.Close)
	tw.imgui.Attach(tw.World)
	return tw
}

// populate creates three entities with Position and two with Position and Velocity.
func (tw *testWorld) populate() {
	for i := range 5 {
		e := tw.CreateEntity()
		tw.position.Add(tw.World, e, position{X: float32(i)})
		if i%2 == 1 {
			tw.velocity.Add(tw.World, e, velocity{Y: 1})
		}
	}
	tw.Flush()
}

func TestImguiSystem(t *testing.T) {
	tw := newTestWorld(t)
	exec := jobs.NewExecutor(jobs.WithWorkers(2), jobs.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(exec.Close)
	runner := ecs.NewRunner(tw.World, exec)

	var rendered []string
	for _, name := range []string{"a", "b"} {
		e := tw.CreateEntity()
		tw.imgui.Item.Add(tw.World, e, ImguiItem{Render: func() { rendered = append(rendered, name) }})
	}
	tw.imgui.Item.Add(tw.World, tw.CreateEntity(), ImguiItem{})
	tw.Flush()

	tw.imgui.Queue.SetInput(ImguiInputState{WantCaptureMouse: true})
	runner.RunSync(0.016)

	assert.Empty(t, rendered, "render functions run on the host only")
	assert.Equal(t, 2, tw.imgui.Queue.Len())
	tw.imgui.Queue.Render()
	assert.ElementsMatch(t, []string{"a", "b"}, rendered)
	assert.Zero(t, tw.imgui.Queue.Len())

	input := ecs.NewSingleton(tw.World, tw.imgui.Input).Get()
	require.NotNil(t, input)
	assert.True(t, input.WantCaptureMouse)
	assert.False(t, input.WantCaptureKeyboard)
}

func TestBuildArchetypeInfos(t *testing.T) {
	tw := newTestWorld(t)
	tw.populate()

	infos := buildArchetypeInfos(tw.World)
	require.Len(t, infos, tw.ArchetypeCount())

	counts := map[string]int{}
	for _, info := range infos {
		counts[strings.Join(info.ComponentTypes, ",")] = info.EntityCount
		assert.Positive(t, info.EntitiesPerChunk)
	}
	assert.Equal(t, 3, counts["Position"])
	assert.Equal(t, 2, counts["Position,Velocity"])

	sortArchetypeInfos(infos, archColumnEntities, false)
	for i := 1; i < len(infos); i++ {
		assert.GreaterOrEqual(t, infos[i-1].EntityCount, infos[i].EntityCount)
	}
	sortArchetypeInfos(infos, archColumnId, true)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].ID, infos[i].ID)
	}
}

func TestEntityInfos(t *testing.T) {
	tw := newTestWorld(t)
	tw.populate()

	infos := buildEntityInfos(tw.World)
	require.Len(t, infos, tw.EntityCount())

	t.Run("sort by id", func(t *testing.T) {
		sortEntityInfos(infos, 0, true)
		for i := 1; i < len(infos); i++ {
			assert.Less(t, infos[i-1].ID.Index(), infos[i].ID.Index())
		}
	})

	t.Run("filter by component name", func(t *testing.T) {
		assert.Len(t, filterEntities(infos, "velo", nil), 2)
		assert.Len(t, filterEntities(infos, "POSITION", nil), 5)
		assert.Empty(t, filterEntities(infos, "health", nil))
		assert.Len(t, filterEntities(infos, "", nil), len(infos))
	})

	t.Run("filter by archetype", func(t *testing.T) {
		target := infos[len(infos)-1].ArchetypeID
		filtered := filterEntities(infos, "", &target)
		require.NotEmpty(t, filtered)
		for _, info := range filtered {
			assert.Equal(t, target, info.ArchetypeID)
		}
	})
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		total, page, perPage int
		start, end           int
	}{
		{total: 0, page: 0, perPage: 10, start: 0, end: 0},
		{total: 25, page: 0, perPage: 10, start: 0, end: 10},
		{total: 25, page: 2, perPage: 10, start: 20, end: 25},
		{total: 25, page: 5, perPage: 10, start: 25, end: 25},
	}
	for _, tt := range tests {
		start, end := pageBounds(tt.total, tt.page, tt.perPage)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestViewDebugger(t *testing.T) {
	tw := newTestWorld(t)
	tw.populate()

	t.Run("registered views", func(t *testing.T) {
		infos := buildViewInfos(tw.World)
		require.Len(t, infos, tw.Def().ViewCount())
		assert.Equal(t, "debugui.items", infos[0].Name)
		assert.Equal(t, "debugui.input", infos[1].Name)
		assert.Equal(t, 1, infos[1].EntityCount, "input state lives on the global entity")
	})

	t.Run("query", func(t *testing.T) {
		matches := matchArchetypes(tw.World, ecs.MaskOf(tw.position), ecs.CompMask{})
		total := 0
		for _, m := range matches {
			total += m.EntityCount
		}
		assert.Len(t, matches, 2)
		assert.Equal(t, 5, total)

		matches = matchArchetypes(tw.World, ecs.MaskOf(tw.position), ecs.MaskOf(tw.velocity))
		require.Len(t, matches, 1)
		assert.Equal(t, []string{"Position"}, matches[0].Components)
		assert.Equal(t, 3, matches[0].EntityCount)
	})
}

func TestComponentValue(t *testing.T) {
	tw := newTestWorld(t)
	e := tw.CreateEntity()
	tw.position.Add(tw.World, e, position{X: 1, Y: 2})
	tw.Flush()

	value, ok := componentValue(tw.World, e, tw.position.Id())
	require.True(t, ok)
	value.FieldByName("X").SetFloat(5)
	assert.Equal(t, position{X: 5, Y: 2}, *(*position)(tw.CompData(e, tw.position.Id())), "edits write to storage")

	_, ok = componentValue(tw.World, e, tw.velocity.Id())
	assert.False(t, ok)

	fields := inspectorFields.get(value.Type())
	require.Len(t, fields, 2)
	assert.Equal(t, "X", fields[0].Name)
	assert.Same(t, &fields[0], &inspectorFields.get(value.Type())[0], "fields are cached")
}

func TestPerformanceStats(t *testing.T) {
	ps := NewPerformanceStats(4)
	assert.Zero(t, ps.AverageFrameTime())

	ps.Record(0.010)
	ps.Record(0.020)
	assert.InDelta(t, 15.0, ps.AverageFrameTime(), 1e-4)

	for range 4 {
		ps.Record(0.005)
	}
	assert.InDelta(t, 5.0, ps.AverageFrameTime(), 1e-4, "old frames leave the history")
}

// Package debugui provides Dear ImGui panels for inspecting a running ecs.World.
//
// ImGui must only be called from the goroutine that owns the ImGui context. Systems therefore never
// call ImGui themselves: ImguiSystem collects the render functions of every ImguiItem into a
// RenderQueue, and the host draws the queue between ticks.
package debugui

import (
	"sync"

	"github.com/plus3/strata/ecs"
)

// ImguiItem is a component that holds a Dear ImGui render function.
// Attach this to entities that should render ImGui widgets each frame.
type ImguiItem struct {
	Render func()
}

// ImguiInputState tracks Dear ImGui's input capture state as a component of the global entity.
// Use this to determine if ImGui is consuming mouse or keyboard input.
type ImguiInputState struct {
	WantCaptureMouse    bool
	WantCaptureKeyboard bool
}

// RenderQueue hands render functions from ImguiSystem to the host goroutine.
type RenderQueue struct {
	mu      sync.Mutex
	pending []func()
	input   ImguiInputState
}

// SetInput records the input capture state reported by ImGui. Called by the host.
func (q *RenderQueue) SetInput(state ImguiInputState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.input = state
}

func (q *RenderQueue) push(fns []func()) ImguiInputState {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fns...)
	return q.input
}

// Render runs and clears every queued render function. It must be called on the ImGui goroutine.
func (q *RenderQueue) Render() {
	q.mu.Lock()
	fns := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len returns the number of queued render functions.
func (q *RenderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Components holds the handles registered by Register.
type Components struct {
	Item  ecs.Comp[ImguiItem]
	Input ecs.Comp[ImguiInputState]
	Queue *RenderQueue

	items ecs.ViewId
	state ecs.ViewId
}

// Register adds the ImGui components and ImguiSystem to a definition.
func Register(def *ecs.Def) *Components {
	c := &Components{
		Item:  ecs.RegisterComponent[ImguiItem](def),
		Input: ecs.RegisterComponent[ImguiInputState](def),
		Queue: &RenderQueue{},
	}
	c.items = def.RegisterView("debugui.items", func(b *ecs.ViewBuilder) { b.Read(c.Item) })
	c.state = def.RegisterView("debugui.input", func(b *ecs.ViewBuilder) { b.Write(c.Input) })
	def.RegisterSystem("ImguiSystem", &ImguiSystem{comps: c}, []ecs.ViewId{c.items, c.state}, ecs.WithThreadAffinity())
	return c
}

// Attach adds the input state to the world's global entity. Call it once after creating the World.
func (c *Components) Attach(w *ecs.World) {
	ecs.NewSingleton(w, c.Input)
}

// ImguiSystem queues the render functions of every ImguiItem and publishes the input capture state
// reported by the host.
type ImguiSystem struct {
	comps *Components
	buf   []func()
}

// Execute collects the render functions of this tick.
func (s *ImguiSystem) Execute(frame *ecs.UpdateFrame) {
	s.buf = s.buf[:0]
	for itr := frame.Iter(s.comps.items); itr.Walk(); {
		if fn := s.comps.Item.Read(itr).Render; fn != nil {
			s.buf = append(s.buf, fn)
		}
	}
	input := s.comps.Queue.push(s.buf)

	if itr := frame.View(s.comps.state).Iter(); itr.MaybeJump(frame.World.Global()) {
		*s.comps.Input.Write(itr) = input
	}
}

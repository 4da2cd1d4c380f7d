package ecs_test

import "github.com/plus3/strata/ecs"

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Name struct {
	Value string
}

type Health struct {
	Current int
	Max     int
}

type PlayerController struct{}

type Score int32

type Inventory struct {
	Items []string
}

type testDef struct {
	*ecs.Def
	position  ecs.Comp[Position]
	velocity  ecs.Comp[Velocity]
	name      ecs.Comp[Name]
	health    ecs.Comp[Health]
	player    ecs.Comp[PlayerController]
	score     ecs.Comp[Score]
	inventory ecs.Comp[Inventory]
}

func newTestDef() *testDef {
	def := ecs.NewDef()
	return &testDef{
		Def:       def,
		position:  ecs.RegisterComponent[Position](def),
		velocity:  ecs.RegisterComponent[Velocity](def),
		name:      ecs.RegisterComponent[Name](def),
		health:    ecs.RegisterComponent[Health](def),
		player:    ecs.RegisterComponent[PlayerController](def),
		score:     ecs.RegisterComponent[Score](def, ecs.WithCombinator(func(dst, src *Score) { *dst += *src })),
		inventory: ecs.RegisterComponent[Inventory](def),
	}
}

type compInit func(w *ecs.World, e ecs.EntityId)

func with[T any](c ecs.Comp[T], value T) compInit {
	return func(w *ecs.World, e ecs.EntityId) {
		c.Add(w, e, value)
	}
}

// spawn creates an entity with the given components and flushes the world.
func spawn(w *ecs.World, comps ...compInit) ecs.EntityId {
	e := w.CreateEntity()
	for _, add := range comps {
		add(w, e)
	}
	w.Flush()
	return e
}

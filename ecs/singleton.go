package ecs

// Singleton provides access to a component of the World's global entity. Use it for world-wide
// state such as configuration or accumulated time.
//
// Access through a Singleton bypasses view conflict detection. Systems that run in parallel should
// declare a view over the component and Jump to World.Global instead.
type Singleton[T any] struct {
	world *World
	comp  Comp[T]
}

// NewSingleton ensures the global entity has the component, initialized with initializer if given,
// and returns an accessor for it. It flushes the World when the component has to be added, so it
// must not be called while a Runner tick is in progress.
func NewSingleton[T any](w *World, comp Comp[T], initializer ...T) *Singleton[T] {
	s := &Singleton[T]{world: w, comp: comp}
	if !s.Exists() {
		var value T
		if len(initializer) > 0 {
			value = initializer[0]
		}
		comp.Add(w, w.global, value)
		w.Flush()
	}
	return s
}

// Get returns a pointer to the component, or nil if it has been removed from the global entity.
func (s *Singleton[T]) Get() *T {
	return (*T)(s.world.CompData(s.world.global, s.comp.id))
}

// Exists reports whether the global entity has the component.
func (s *Singleton[T]) Exists() bool {
	return s.world.HasComp(s.world.global, s.comp.id)
}

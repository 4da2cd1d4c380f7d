package ecs

// System is a behavior that operates on the views it declared at registration. Systems may keep
// state between ticks; a parallel system's Execute runs concurrently with itself, once per task.
type System interface {
	Execute(frame *UpdateFrame)
}

// SystemFunc adapts a function to the System interface.
type SystemFunc func(frame *UpdateFrame)

func (f SystemFunc) Execute(frame *UpdateFrame) { f(frame) }

package ecs

import (
	"fmt"
	"reflect"
	"unsafe"
)

// MaxCompSize is the largest component size, in bytes, a Def accepts.
const MaxCompSize = 1024

// CompId identifies a registered component type. Ids are assigned sequentially per Def.
type CompId uint16

// CompRef is anything that names a component: a CompId or a typed Comp handle.
type CompRef interface {
	Id() CompId
}

func (c CompId) Id() CompId { return c }

// CompConfig describes a component for untyped registration. When Type is nil the component is an
// opaque blob of Size bytes aligned to Align.
type CompConfig struct {
	Name  string
	Type  reflect.Type
	Size  uintptr
	Align uintptr

	// Destructor is invoked on the component data when the component is removed from an entity, the
	// entity is destroyed, or the world is closed.
	Destructor func(data unsafe.Pointer)
	// Combinator merges src into dst when the same component is added to an entity twice before a
	// flush. The combinator owns src afterwards; no destructor runs for it.
	Combinator func(dst, src unsafe.Pointer)
	// DestructOrder sorts destructor invocations; lower runs first.
	DestructOrder int
}

type compDef struct {
	name          string
	typ           reflect.Type
	size          uintptr
	align         uintptr
	destructor    func(unsafe.Pointer)
	combinator    func(dst, src unsafe.Pointer)
	destructOrder int

	alloc func() unsafe.Pointer
	copy  func(dst, src unsafe.Pointer)
	zero  func(p unsafe.Pointer)
}

// Comp is a typed handle to a registered component.
type Comp[T any] struct {
	id CompId
}

// CompOption customizes a typed component registration.
type CompOption[T any] func(*CompConfig)

// WithDestructor registers a destructor for the component.
func WithDestructor[T any](fn func(*T)) CompOption[T] {
	return func(cfg *CompConfig) {
		cfg.Destructor = func(p unsafe.Pointer) { fn((*T)(p)) }
	}
}

// WithCombinator registers a merge function for repeated adds before a flush.
func WithCombinator[T any](fn func(dst, src *T)) CompOption[T] {
	return func(cfg *CompConfig) {
		cfg.Combinator = func(dst, src unsafe.Pointer) { fn((*T)(dst), (*T)(src)) }
	}
}

func WithDestructOrder[T any](order int) CompOption[T] {
	return func(cfg *CompConfig) {
		cfg.DestructOrder = order
	}
}

// WithCompName overrides the default name, which is the Go type name.
func WithCompName[T any](name string) CompOption[T] {
	return func(cfg *CompConfig) {
		cfg.Name = name
	}
}

// RegisterComponent registers T as a component type and returns its handle.
// Registering after the Def has been frozen by a World panics.
func RegisterComponent[T any](d *Def, opts ...CompOption[T]) Comp[T] {
	typ := reflect.TypeFor[T]()
	cfg := CompConfig{
		Name:  typ.String(),
		Type:  typ,
		Size:  typ.Size(),
		Align: uintptr(typ.Align()),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	def := newCompDef(cfg)
	def.alloc = func() unsafe.Pointer { return unsafe.Pointer(new(T)) }
	def.copy = func(dst, src unsafe.Pointer) { *(*T)(dst) = *(*T)(src) }
	def.zero = func(p unsafe.Pointer) {
		var zero T
		*(*T)(p) = zero
	}
	return Comp[T]{id: d.addComp(def)}
}

// CompOf returns the handle of a previously registered component type.
func CompOf[T any](d *Def) Comp[T] {
	typ := reflect.TypeFor[T]()
	id, ok := d.compByType[typ]
	if !ok {
		panic("component type " + typ.String() + " not registered")
	}
	return Comp[T]{id: id}
}

// RegisterComp registers a component from an untyped configuration.
func (d *Def) RegisterComp(cfg CompConfig) CompId {
	if cfg.Type != nil {
		cfg.Size = cfg.Type.Size()
		cfg.Align = uintptr(cfg.Type.Align())
	}
	return d.addComp(newCompDef(cfg))
}

func newCompDef(cfg CompConfig) compDef {
	if cfg.Name == "" {
		panic("component name must not be empty")
	}
	if cfg.Align == 0 || cfg.Align&(cfg.Align-1) != 0 {
		panic(fmt.Sprintf("component '%s' alignment %d is not a power of two", cfg.Name, cfg.Align))
	}
	if cfg.Align > unsafe.Alignof(uint64(0)) {
		panic(fmt.Sprintf("component '%s' alignment %d exceeds the maximum of %d", cfg.Name, cfg.Align, unsafe.Alignof(uint64(0))))
	}
	if cfg.Size > MaxCompSize {
		panic(fmt.Sprintf("component '%s' size %d exceeds the maximum of %d", cfg.Name, cfg.Size, MaxCompSize))
	}
	if cfg.Size%cfg.Align != 0 {
		panic(fmt.Sprintf("component '%s' size %d is not a multiple of its alignment %d", cfg.Name, cfg.Size, cfg.Align))
	}
	if cfg.Size == 0 && (cfg.Destructor != nil || cfg.Combinator != nil) {
		panic(fmt.Sprintf("empty component '%s' cannot have a destructor or combinator", cfg.Name))
	}

	def := compDef{
		name:          cfg.Name,
		typ:           cfg.Type,
		size:          cfg.Size,
		align:         cfg.Align,
		destructor:    cfg.Destructor,
		combinator:    cfg.Combinator,
		destructOrder: cfg.DestructOrder,
	}
	if def.typ == nil {
		def.typ = blobType(cfg.Size, cfg.Align)
	}

	// Generic fallbacks; typed registrations replace them with direct assignments.
	typ, size := def.typ, def.size
	def.alloc = func() unsafe.Pointer { return reflect.New(typ).UnsafePointer() }
	def.copy = func(dst, src unsafe.Pointer) {
		reflect.NewAt(typ, dst).Elem().Set(reflect.NewAt(typ, src).Elem())
	}
	def.zero = func(p unsafe.Pointer) {
		if size != 0 {
			reflect.NewAt(typ, p).Elem().SetZero()
		}
	}
	return def
}

// blobType returns a pointer-free type with the given size and alignment.
func blobType(size, align uintptr) reflect.Type {
	if size == 0 {
		return reflect.TypeFor[struct{}]()
	}
	var word reflect.Type
	switch align {
	case 1:
		word = reflect.TypeFor[uint8]()
	case 2:
		word = reflect.TypeFor[uint16]()
	case 4:
		word = reflect.TypeFor[uint32]()
	default:
		word = reflect.TypeFor[uint64]()
	}
	return reflect.ArrayOf(int(size/align), word)
}

func (c Comp[T]) Id() CompId {
	return c.id
}

// Read returns the component at the iterator's position. The view must declare read access. The
// result is nil only for optional (maybe) access on an entity without the component.
func (c Comp[T]) Read(itr *Iterator) *T {
	return (*T)(itr.Read(c.id))
}

// Write returns the component at the iterator's position for modification. The view must declare
// write access.
func (c Comp[T]) Write(itr *Iterator) *T {
	return (*T)(itr.Write(c.id))
}

// Add queues adding the component with the given value; it takes effect at the next flush.
func (c Comp[T]) Add(w *World, e EntityId, value T) {
	w.AddComp(e, c.id, unsafe.Pointer(&value))
}

// Remove queues removing the component; it takes effect at the next flush.
func (c Comp[T]) Remove(w *World, e EntityId) {
	w.RemoveComp(e, c.id)
}

// Has reports whether the entity had the component at the last flush.
func (c Comp[T]) Has(w *World, e EntityId) bool {
	return w.HasComp(e, c.id)
}

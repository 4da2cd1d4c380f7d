package ecs

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
)

// ViewId identifies a registered view.
type ViewId uint16

// SystemId identifies a registered system.
type SystemId uint16

// SystemFlags modify how the runner schedules a system.
type SystemFlags uint8

const (
	SystemFlagsNone SystemFlags = 0

	// SystemThreadAffinity runs the system on the executor's affinity worker.
	SystemThreadAffinity SystemFlags = 1 << 0
	// SystemExclusive orders the system against every other system.
	SystemExclusive SystemFlags = 1 << 1
)

type viewDef struct {
	name     string
	required CompMask
	excluded CompMask
	read     CompMask // Includes every written component.
	write    CompMask
}

type systemDef struct {
	name     string
	system   System
	views    []ViewId
	flags    SystemFlags
	order    int
	parallel int
}

// Def holds the registered components, views and systems. It is frozen once a World is created
// from it; registering afterwards panics.
type Def struct {
	comps        []compDef
	compByName   map[string]CompId
	compByType   map[reflect.Type]CompId
	views        []viewDef
	viewByName   map[string]ViewId
	systems      []systemDef
	systemByName map[string]SystemId

	frozen        bool
	destructOrder []CompId // Components with destructors, in invocation order.
}

// NewDef creates an empty definition.
func NewDef() *Def {
	return &Def{
		compByName:   make(map[string]CompId),
		compByType:   make(map[reflect.Type]CompId),
		viewByName:   make(map[string]ViewId),
		systemByName: make(map[string]SystemId),
	}
}

func (d *Def) checkMutable(what, name string) {
	if d.frozen {
		panic(fmt.Sprintf("cannot register %s '%s': definition is frozen", what, name))
	}
}

func (d *Def) addComp(def compDef) CompId {
	d.checkMutable("component", def.name)
	if _, exists := d.compByName[def.name]; exists {
		panic(fmt.Sprintf("duplicate component registration: '%s'", def.name))
	}
	if len(d.comps) >= MaxComps {
		panic(fmt.Sprintf("cannot register component '%s': maximum of %d components reached", def.name, MaxComps))
	}

	id := CompId(len(d.comps))
	d.comps = append(d.comps, def)
	d.compByName[def.name] = id
	if _, exists := d.compByType[def.typ]; !exists {
		d.compByType[def.typ] = id
	}
	return id
}

// RegisterView registers a view whose access is declared by init.
func (d *Def) RegisterView(name string, init func(b *ViewBuilder)) ViewId {
	d.checkMutable("view", name)
	if _, exists := d.viewByName[name]; exists {
		panic(fmt.Sprintf("duplicate view registration: '%s'", name))
	}

	b := &ViewBuilder{def: d, view: viewDef{name: name}}
	init(b)
	b.validate()

	id := ViewId(len(d.views))
	d.views = append(d.views, b.view)
	d.viewByName[name] = id
	return id
}

// RegisterSystem registers a system operating on the given views.
func (d *Def) RegisterSystem(name string, system System, views []ViewId, opts ...SystemOption) SystemId {
	d.checkMutable("system", name)
	if _, exists := d.systemByName[name]; exists {
		panic(fmt.Sprintf("duplicate system registration: '%s'", name))
	}
	if system == nil {
		panic(fmt.Sprintf("system '%s' has no routine", name))
	}
	for _, v := range views {
		if int(v) >= len(d.views) {
			panic(fmt.Sprintf("system '%s' uses unknown view %d", name, v))
		}
	}

	def := systemDef{
		name:     name,
		system:   system,
		views:    slices.Clone(views),
		parallel: 1,
	}
	for _, opt := range opts {
		opt(&def)
	}
	if def.parallel < 1 {
		panic(fmt.Sprintf("system '%s' parallel count must be at least 1 (got %d)", name, def.parallel))
	}

	id := SystemId(len(d.systems))
	d.systems = append(d.systems, def)
	d.systemByName[name] = id
	return id
}

// freeze prevents further registration and prepares derived tables.
func (d *Def) freeze() {
	if d.frozen {
		return
	}
	d.frozen = true

	d.destructOrder = d.destructOrder[:0]
	for id, c := range d.comps {
		if c.destructor != nil {
			d.destructOrder = append(d.destructOrder, CompId(id))
		}
	}
	slices.SortStableFunc(d.destructOrder, func(a, b CompId) int {
		return cmp.Compare(d.comps[a].destructOrder, d.comps[b].destructOrder)
	})
}

// Frozen reports whether a World has been created from the definition.
func (d *Def) Frozen() bool {
	return d.frozen
}

func (d *Def) CompCount() int { return len(d.comps) }
func (d *Def) ViewCount() int { return len(d.views) }

func (d *Def) SystemCount() int { return len(d.systems) }

func (d *Def) comp(id CompId) *compDef {
	if int(id) >= len(d.comps) {
		panic(fmt.Sprintf("component %d not registered", id))
	}
	return &d.comps[id]
}

func (d *Def) CompName(id CompId) string {
	return d.comp(id).name
}

func (d *Def) CompSize(id CompId) uintptr {
	return d.comp(id).size
}

func (d *Def) CompAlign(id CompId) uintptr {
	return d.comp(id).align
}

// CompType returns the Go type of the component; opaque components report a byte-array type.
func (d *Def) CompType(id CompId) reflect.Type {
	return d.comp(id).typ
}

// CompByName looks up a component by its registered name.
func (d *Def) CompByName(name string) (CompId, bool) {
	id, ok := d.compByName[name]
	return id, ok
}

func (d *Def) ViewName(id ViewId) string {
	return d.views[id].name
}

func (d *Def) SystemName(id SystemId) string {
	return d.systems[id].name
}

// SystemViews returns the views the system declared.
func (d *Def) SystemViews(id SystemId) []ViewId {
	return slices.Clone(d.systems[id].views)
}

func (d *Def) SystemFlags(id SystemId) SystemFlags {
	return d.systems[id].flags
}

// ViewBuilder declares the access of a view.
type ViewBuilder struct {
	def  *Def
	view viewDef
}

// With requires the components without granting access to them.
func (b *ViewBuilder) With(comps ...CompRef) *ViewBuilder {
	for _, c := range comps {
		b.view.required.Set(b.check(c))
	}
	return b
}

// Without excludes entities that have any of the components.
func (b *ViewBuilder) Without(comps ...CompRef) *ViewBuilder {
	for _, c := range comps {
		b.view.excluded.Set(b.check(c))
	}
	return b
}

// Read requires the components and grants read access.
func (b *ViewBuilder) Read(comps ...CompRef) *ViewBuilder {
	for _, c := range comps {
		id := b.check(c)
		b.view.required.Set(id)
		b.view.read.Set(id)
	}
	return b
}

// Write requires the components and grants read and write access.
func (b *ViewBuilder) Write(comps ...CompRef) *ViewBuilder {
	for _, c := range comps {
		id := b.check(c)
		b.view.required.Set(id)
		b.view.read.Set(id)
		b.view.write.Set(id)
	}
	return b
}

// MaybeRead grants read access to the components if the entity has them.
func (b *ViewBuilder) MaybeRead(comps ...CompRef) *ViewBuilder {
	for _, c := range comps {
		b.view.read.Set(b.check(c))
	}
	return b
}

// MaybeWrite grants read and write access to the components if the entity has them.
func (b *ViewBuilder) MaybeWrite(comps ...CompRef) *ViewBuilder {
	for _, c := range comps {
		id := b.check(c)
		b.view.read.Set(id)
		b.view.write.Set(id)
	}
	return b
}

func (b *ViewBuilder) check(c CompRef) CompId {
	id := c.Id()
	if int(id) >= len(b.def.comps) {
		panic(fmt.Sprintf("view '%s' references unregistered component %d", b.view.name, id))
	}
	return id
}

func (b *ViewBuilder) validate() {
	v := &b.view
	if both := v.required.Intersect(v.excluded); !both.IsEmpty() {
		panic(fmt.Sprintf("view '%s' both requires and excludes %s", v.name, both.format(b.def)))
	}
	if both := v.read.Intersect(v.excluded); !both.IsEmpty() {
		panic(fmt.Sprintf("view '%s' accesses excluded %s", v.name, both.format(b.def)))
	}
}

// SystemOption customizes a system registration.
type SystemOption func(*systemDef)

// WithThreadAffinity runs the system on the executor's affinity worker.
func WithThreadAffinity() SystemOption {
	return func(s *systemDef) {
		s.flags |= SystemThreadAffinity
	}
}

// WithExclusive orders the system against every other system, regardless of its views.
func WithExclusive() SystemOption {
	return func(s *systemDef) {
		s.flags |= SystemExclusive
	}
}

// WithOrder sets the order hint; systems with a lower hint are declared first, which decides the
// direction of the dependency between conflicting systems.
func WithOrder(order int) SystemOption {
	return func(s *systemDef) {
		s.order = order
	}
}

// WithParallel splits the system into count tasks, each visiting a disjoint subset of chunks.
func WithParallel(count int) SystemOption {
	return func(s *systemDef) {
		s.parallel = count
	}
}

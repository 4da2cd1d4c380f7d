package debugui

import (
	"fmt"
	"reflect"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/strata/ecs"
)

// ComponentInspector shows, and allows editing, the components of one entity. Edits write straight
// into component storage, so render it between ticks.
type ComponentInspector struct{}

func NewComponentInspector() *ComponentInspector {
	return &ComponentInspector{}
}

func (ci *ComponentInspector) Render(w *ecs.World, entity ecs.EntityId) {
	if !imgui.BeginV("Component Inspector", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}
	defer imgui.End()

	if !entity.IsValid() {
		imgui.Text("No entity selected")
		return
	}
	if !w.Exists(entity) {
		imgui.Text(fmt.Sprintf("%s no longer exists", entity))
		return
	}

	imgui.Text(entity.String())
	imgui.Separator()

	def := w.Def()
	for c := range w.CompMask(entity).All() {
		value, ok := componentValue(w, entity, c)
		if !ok {
			imgui.BulletText(fmt.Sprintf("%s (%d bytes)", def.CompName(c), def.CompSize(c)))
			continue
		}
		if imgui.TreeNodeStr(def.CompName(c)) {
			ci.renderValue(def.CompName(c), value)
			imgui.TreePop()
		}
	}
}

// componentValue returns an addressable view of the component data. Opaque and empty components
// have nothing to show.
func componentValue(w *ecs.World, entity ecs.EntityId, c ecs.CompId) (reflect.Value, bool) {
	typ := w.Def().CompType(c)
	if typ.Size() == 0 || (typ.Kind() == reflect.Array && typ.Name() == "") {
		return reflect.Value{}, false
	}
	ptr := w.CompData(entity, c)
	if ptr == nil {
		return reflect.Value{}, false
	}
	return reflect.NewAt(typ, ptr).Elem(), true
}

func (ci *ComponentInspector) renderValue(name string, val reflect.Value) {
	if val.Kind() != reflect.Struct {
		ci.renderField(name, val)
		return
	}
	for _, field := range inspectorFields.get(val.Type()) {
		fieldVal := val.Field(field.Index)
		if field.IsPointer {
			if fieldVal.IsNil() {
				imgui.Text(fmt.Sprintf("%s: nil", field.Name))
				continue
			}
			fieldVal = fieldVal.Elem()
		}
		ci.renderField(field.Name, fieldVal)
	}
}

func (ci *ComponentInspector) renderField(name string, val reflect.Value) {
	if !val.IsValid() {
		imgui.Text(fmt.Sprintf("%s: <invalid>", name))
		return
	}
	label := fmt.Sprintf("##%s", name)

	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := int32(val.Int())
		imgui.Text(fmt.Sprintf("%s:", name))
		imgui.SameLine()
		imgui.SetNextItemWidth(150)
		if imgui.InputInt(label, &v) && val.CanSet() {
			val.SetInt(int64(v))
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v := int32(val.Uint())
		imgui.Text(fmt.Sprintf("%s:", name))
		imgui.SameLine()
		imgui.SetNextItemWidth(150)
		if imgui.InputInt(label, &v) && v >= 0 && val.CanSet() {
			val.SetUint(uint64(v))
		}

	case reflect.Float32, reflect.Float64:
		v := float32(val.Float())
		imgui.Text(fmt.Sprintf("%s:", name))
		imgui.SameLine()
		imgui.SetNextItemWidth(150)
		if imgui.InputFloat(label, &v) && val.CanSet() {
			val.SetFloat(float64(v))
		}

	case reflect.Bool:
		v := val.Bool()
		if imgui.Checkbox(name, &v) && val.CanSet() {
			val.SetBool(v)
		}

	case reflect.String:
		v := val.String()
		imgui.Text(fmt.Sprintf("%s:", name))
		imgui.SameLine()
		imgui.SetNextItemWidth(200)
		if imgui.InputTextWithHint(label, "", &v, imgui.InputTextFlagsNone, nil) && val.CanSet() {
			val.SetString(v)
		}

	case reflect.Struct:
		if imgui.TreeNodeStr(name) {
			ci.renderValue(name, val)
			imgui.TreePop()
		}

	case reflect.Slice:
		imgui.Text(fmt.Sprintf("%s: [%d items]", name, val.Len()))

	case reflect.Map:
		imgui.Text(fmt.Sprintf("%s: map[%d items]", name, val.Len()))

	case reflect.Func:
		imgui.Text(fmt.Sprintf("%s: func", name))

	default:
		imgui.Text(fmt.Sprintf("%s: %v", name, val))
	}
}

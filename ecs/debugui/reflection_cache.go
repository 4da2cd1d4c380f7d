package debugui

import (
	"reflect"
	"sync"
)

// FieldInfo describes an exported struct field the inspector can show.
type FieldInfo struct {
	Name      string
	Type      reflect.Type // Pointer fields report the element type.
	Index     int
	IsPointer bool
}

// fieldCache memoizes the exported fields per struct type; component types are inspected every
// frame.
type fieldCache struct {
	fields sync.Map // reflect.Type -> []FieldInfo
}

var inspectorFields fieldCache

func (c *fieldCache) get(t reflect.Type) []FieldInfo {
	if cached, ok := c.fields.Load(t); ok {
		return cached.([]FieldInfo)
	}

	var fields []FieldInfo
	if t.Kind() == reflect.Struct {
		for i := range t.NumField() {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			info := FieldInfo{Name: field.Name, Type: field.Type, Index: i}
			if field.Type.Kind() == reflect.Pointer {
				info.Type = field.Type.Elem()
				info.IsPointer = true
			}
			fields = append(fields, info)
		}
	}

	actual, _ := c.fields.LoadOrStore(t, fields)
	return actual.([]FieldInfo)
}

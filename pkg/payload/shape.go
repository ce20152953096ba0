package payload

import (
	"reflect"
	"strings"
)

// Field describes one member of a shared record.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Shape is a wire-level description of a shared record, served to clients
// that cannot import this package.
type Shape struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Describe returns the shape of QueryPayload as seen on the wire.
func Describe() Shape {
	return describe(reflect.TypeOf(QueryPayload{}))
}

func describe(t reflect.Type) Shape {
	shape := Shape{Name: t.Name()}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		shape.Fields = append(shape.Fields, Field{
			Name:     name,
			Type:     jsonType(f.Type.Kind()),
			Required: strings.Contains(f.Tag.Get("validate"), "required"),
		})
	}
	return shape
}

// jsonType maps a Go kind to the JSON type name a browser sees via typeof.
func jsonType(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

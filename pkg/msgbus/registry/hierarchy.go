// Copyright 2025 NetApp, Inc. All Rights Reserved.

package registry

import (
	"reflect"
	"sync"
)

// embeddedAncestors caches the embedded ancestors of each message type; they depend only
// on the type itself.
var embeddedAncestors sync.Map // map[reflect.Type][]reflect.Type

// EmbeddedAncestors returns every type embedded in t, transitively, in breadth-first order
// and without duplicates. For a pointer to a struct, a value-embedded field is reported both
// as declared and as a pointer, so a *Derived message reaches handlers declared for Base
// and for *Base.
func EmbeddedAncestors(t reflect.Type) []reflect.Type {
	if cached, ok := embeddedAncestors.Load(t); ok {
		return cached.([]reflect.Type)
	}
	ancestors := collectEmbedded(t)
	actual, _ := embeddedAncestors.LoadOrStore(t, ancestors)
	return actual.([]reflect.Type)
}

func collectEmbedded(t reflect.Type) []reflect.Type {
	var ancestors []reflect.Type
	seen := map[reflect.Type]struct{}{t: {}}
	queue := []reflect.Type{t}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, embedded := range embeddedFields(current) {
			if _, ok := seen[embedded]; ok {
				continue
			}
			seen[embedded] = struct{}{}
			ancestors = append(ancestors, embedded)
			queue = append(queue, embedded)
		}
	}
	return ancestors
}

func embeddedFields(t reflect.Type) []reflect.Type {
	pointer := false
	structType := t
	if t.Kind() == reflect.Pointer {
		pointer = true
		structType = t.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil
	}

	var fields []reflect.Type
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.Anonymous {
			continue
		}
		fields = append(fields, field.Type)
		if pointer && field.Type.Kind() == reflect.Struct {
			fields = append(fields, reflect.PointerTo(field.Type))
		}
	}
	return fields
}

// Ancestors returns t's embedded ancestors followed by every interface in interfaces that
// t implements. t itself is not included.
func Ancestors(t reflect.Type, interfaces []reflect.Type) []reflect.Type {
	embedded := EmbeddedAncestors(t)
	ancestors := make([]reflect.Type, 0, len(embedded)+len(interfaces))
	ancestors = append(ancestors, embedded...)
	for _, iface := range interfaces {
		if iface != t && t.Implements(iface) {
			ancestors = append(ancestors, iface)
		}
	}
	return ancestors
}

// Copyright 2025 NetApp, Inc. All Rights Reserved.

package types

import (
	"reflect"
	"unsafe"
)

// As returns message as M. If message is not assignable to M, the first value of type M
// embedded in message (breadth first) is returned, so a handler declared for an embedded
// ancestor receives that part of the message.
func As[M any](message any) (M, bool) {
	if m, ok := message.(M); ok {
		return m, true
	}
	var zero M
	v, ok := ConvertMessage(message, reflect.TypeFor[M]())
	if !ok {
		return zero, false
	}
	return v.Interface().(M), true
}

// ConvertMessage is the reflective form of As.
func ConvertMessage(message any, target reflect.Type) (reflect.Value, bool) {
	if message == nil || target == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(message)
	if v.Type().AssignableTo(target) {
		return v, true
	}

	// Embedded fields are read through their address, so values are copied somewhere addressable.
	if v.Kind() != reflect.Pointer {
		addressable := reflect.New(v.Type()).Elem()
		addressable.Set(v)
		v = addressable
	}

	queue := []reflect.Value{v}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		pointer := current.Kind() == reflect.Pointer
		structValue := current
		if pointer {
			if current.IsNil() {
				continue
			}
			structValue = current.Elem()
		}
		if structValue.Kind() != reflect.Struct {
			continue
		}

		for i := 0; i < structValue.NumField(); i++ {
			if !structValue.Type().Field(i).Anonymous {
				continue
			}
			field := exported(structValue.Field(i))
			if field.Type() == target {
				if field.Kind() == reflect.Interface {
					if field.IsNil() {
						continue
					}
					field = field.Elem()
				}
				return field, true
			}
			if pointer && field.Kind() == reflect.Struct {
				field = reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr()))
				if field.Type() == target {
					return field, true
				}
			}
			queue = append(queue, field)
		}
	}
	return reflect.Value{}, false
}

// exported returns an addressable field value that can be read even if the field is unexported.
func exported(field reflect.Value) reflect.Value {
	return reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem()
}

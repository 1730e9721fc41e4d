// Copyright 2025 NetApp, Inc. All Rights Reserved.

package convert

import (
	"fmt"
	"reflect"
)

// ToPtr converts any value into a pointer to that value.
func ToPtr[T any](v T) *T {
	return &v
}

// ToVal dereferences a pointer, returning the zero value for nil.
func ToVal[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// PtrToString converts any value into its string representation, or nil
func PtrToString[T any](v *T) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", *v)
}

// TruncateString returns the specified string, shortened by dropping characters on the right side to the given limit.
func TruncateString(s string, maxLength int) string {
	if len(s) > maxLength {
		return s[:maxLength]
	}
	return s
}

// TypeName returns a short, stable name for a type, suitable for logs and metric labels.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 && t.Name() == "" {
		return "any"
	}
	return t.String()
}

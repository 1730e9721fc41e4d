// Copyright 2025 NetApp, Inc. All Rights Reserved.

package types

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	header      struct{ Source string }
	Correlation struct{ ID string }
	created     struct {
		header
		*Correlation
		Name string
	}
	renamed struct {
		created
		OldName string
	}
	described struct {
		fmt.Stringer
	}
	label string
)

func (l label) String() string { return string(l) }

func TestAs(t *testing.T) {
	msg := renamed{
		created: created{header: header{Source: "api"}, Correlation: &Correlation{ID: "c-1"}, Name: "new"},
		OldName: "old",
	}

	t.Run("identity", func(t *testing.T) {
		got, ok := As[renamed](msg)
		require.True(t, ok)
		assert.Equal(t, msg, got)
	})

	t.Run("direct embedded value", func(t *testing.T) {
		got, ok := As[created](msg)
		require.True(t, ok)
		assert.Equal(t, "new", got.Name)
	})

	t.Run("transitive unexported embedded value", func(t *testing.T) {
		got, ok := As[header](msg)
		require.True(t, ok)
		assert.Equal(t, header{Source: "api"}, got)
	})

	t.Run("embedded pointer", func(t *testing.T) {
		got, ok := As[*Correlation](msg)
		require.True(t, ok)
		assert.Same(t, msg.Correlation, got)
	})

	t.Run("pointer message yields pointers into the message", func(t *testing.T) {
		ptr := &msg
		got, ok := As[*header](ptr)
		require.True(t, ok)
		assert.Same(t, &ptr.created.header, got)
	})

	t.Run("pointer message yields declared value ancestors", func(t *testing.T) {
		ptr := &msg
		got, ok := As[header](ptr)
		require.True(t, ok)
		assert.Equal(t, header{Source: "api"}, got)

		value, ok := ConvertMessage(ptr, reflect.TypeFor[created]())
		require.True(t, ok)
		assert.Equal(t, msg.created, value.Interface())
	})

	t.Run("interface", func(t *testing.T) {
		got, ok := As[any](msg)
		require.True(t, ok)
		assert.Equal(t, msg, got)
	})

	t.Run("embedded interface", func(t *testing.T) {
		got, ok := As[fmt.Stringer](described{Stringer: label("x")})
		require.True(t, ok)
		assert.Equal(t, "x", got.String())
	})

	t.Run("unrelated", func(t *testing.T) {
		_, ok := As[label](msg)
		assert.False(t, ok)
	})

	t.Run("nil embedded pointer", func(t *testing.T) {
		_, ok := As[*Correlation](renamed{})
		assert.True(t, ok, "a nil embedded pointer is still the embedded value")
	})

	t.Run("nil message", func(t *testing.T) {
		_, ok := As[header](nil)
		assert.False(t, ok)
	})
}

func TestConvertMessage(t *testing.T) {
	v, ok := ConvertMessage(created{Name: "n"}, reflect.TypeOf(header{}))
	require.True(t, ok)
	assert.Equal(t, header{}, v.Interface())

	_, ok = ConvertMessage(created{}, nil)
	assert.False(t, ok)
}

// Copyright 2025 NetApp, Inc. All Rights Reserved.

package metadata

import (
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/netapp/msgbus/pkg/convert"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/utils/errors"
)

// Catalog is a Describer backed by classes registered with the builder API. Classes that
// were not registered are handed to the fallback describer, if any.
type Catalog struct {
	mu       sync.RWMutex
	classes  map[reflect.Type][]types.HandlerDescriptor
	fallback types.Describer
}

var _ types.Describer = (*Catalog)(nil)

// NewCatalog creates an empty catalog. fallback may be nil.
func NewCatalog(fallback types.Describer) *Catalog {
	return &Catalog{
		classes:  make(map[reflect.Type][]types.HandlerDescriptor),
		fallback: fallback,
	}
}

func (c *Catalog) register(class reflect.Type, descriptors []types.HandlerDescriptor) error {
	if class.Kind() != reflect.Pointer {
		return errors.InvalidListenerError("listener class %s is not a pointer type", convert.TypeName(class))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[class] = descriptors
	return nil
}

// Describe implements types.Describer.
func (c *Catalog) Describe(class reflect.Type) ([]types.HandlerDescriptor, error) {
	c.mu.RLock()
	descriptors, ok := c.classes[class]
	c.mu.RUnlock()

	if ok {
		return slices.Clone(descriptors), nil
	}
	if c.fallback != nil {
		return c.fallback.Describe(class)
	}
	return nil, nil
}

// Classes returns the registered listener classes sorted by name.
func (c *Catalog) Classes() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()

	classes := make([]reflect.Type, 0, len(c.classes))
	for class := range c.classes {
		classes = append(classes, class)
	}
	slices.SortFunc(classes, func(a, b reflect.Type) int {
		return strings.Compare(convert.TypeName(a), convert.TypeName(b))
	})
	return classes
}

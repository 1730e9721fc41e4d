// Copyright 2025 NetApp, Inc. All Rights Reserved.

package metadata

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/convert"
	"github.com/netapp/msgbus/pkg/msgbus/types"
)

// DefaultPrefix is the method name prefix Reflective looks for when none is set.
const DefaultPrefix = "Handle"

// configurableMethod is never a handler even though it shares the default prefix.
const configurableMethod = "HandlerOptions"

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Configurable is implemented by listener classes that tune their reflectively discovered
// handlers. The returned map is keyed by method name. It is called on a zero value of the class.
type Configurable interface {
	HandlerOptions() map[string][]HandlerOption
}

// Reflective is a Describer that turns exported methods named Prefix* with the signature
// func(context.Context, M) error into handlers for M. Methods with the prefix but another
// signature are reported as malformed handlers.
type Reflective struct {
	Prefix string
}

var _ types.Describer = Reflective{}

// Describe implements types.Describer.
func (r Reflective) Describe(class reflect.Type) ([]types.HandlerDescriptor, error) {
	if class == nil || class.Kind() != reflect.Pointer {
		return nil, nil
	}
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	options := classOptions(class)
	className := strings.TrimPrefix(convert.TypeName(class), "*")
	if i := strings.LastIndex(className, "."); i >= 0 {
		className = className[i+1:]
	}

	var descriptors []types.HandlerDescriptor
	for i := 0; i < class.NumMethod(); i++ {
		method := class.Method(i)
		if !strings.HasPrefix(method.Name, prefix) || method.Name == configurableMethod {
			continue
		}

		d := newDescriptor(append([]HandlerOption{WithName(className + "." + method.Name)}, options[method.Name]...))
		d.ListenerType = class

		messageType, err := handlerMessageType(method)
		if err != nil {
			// Left without Invoke so the registry reports it as malformed.
			Logc(context.Background()).WithFields(LogFields{
				"handler": d.Name,
			}).WithError(err).Debug("Method has the handler prefix but not a handler signature.")
			descriptors = append(descriptors, d)
			continue
		}

		d.MessageTypes = []reflect.Type{messageType}
		d.Invoke = reflectiveInvoke(method.Func, messageType)
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func handlerMessageType(method reflect.Method) (reflect.Type, error) {
	fn := method.Type
	if fn.NumIn() != 3 || fn.NumOut() != 1 {
		return nil, fmt.Errorf("expected func(context.Context, M) error, got %s", fn)
	}
	if fn.In(1) != contextType {
		return nil, fmt.Errorf("first parameter must be context.Context, got %s", fn.In(1))
	}
	if fn.Out(0) != errorType {
		return nil, fmt.Errorf("result must be error, got %s", fn.Out(0))
	}
	return fn.In(2), nil
}

func reflectiveInvoke(fn reflect.Value, messageType reflect.Type) types.InvokeFunc {
	return func(ctx context.Context, listener, message any) error {
		m, ok := types.ConvertMessage(message, messageType)
		if !ok {
			return fmt.Errorf("message %s cannot be delivered as %s",
				types.MessageTypeName(message), convert.TypeName(messageType))
		}
		out := fn.Call([]reflect.Value{reflect.ValueOf(listener), reflect.ValueOf(&ctx).Elem(), m})
		err, _ := out[0].Interface().(error)
		return err
	}
}

func classOptions(class reflect.Type) map[string][]HandlerOption {
	if !class.Implements(reflect.TypeFor[Configurable]()) {
		return nil
	}
	zero := reflect.New(class.Elem()).Interface().(Configurable)
	return zero.HandlerOptions()
}

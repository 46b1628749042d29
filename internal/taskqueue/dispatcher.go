package taskqueue

import (
	"context"
	"fmt"
	"sort"
)

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, task Task) error

// Dispatcher routes tasks to the handler registered for their type.
type Dispatcher struct {
	handlers map[Type]HandlerFunc
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Type]HandlerFunc)}
}

// Register sets the handler for typ, replacing any previous one.
func (d *Dispatcher) Register(typ Type, h HandlerFunc) {
	d.handlers[typ] = h
}

// Types returns the registered task types in a stable order.
func (d *Dispatcher) Types() []Type {
	types := make([]Type, 0, len(d.handlers))
	for typ := range d.handlers {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Handle runs the handler for task.Type.
func (d *Dispatcher) Handle(ctx context.Context, task Task) error {
	h, ok := d.handlers[task.Type]
	if !ok {
		return fmt.Errorf("%w: no handler for type %q", ErrInvalidTask, task.Type)
	}
	return h(ctx, task)
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler runs tasks with a given name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type (
	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

type namedHandler struct {
	name string
	run  func(ctx context.Context, payload json.RawMessage) error
}

func (h namedHandler) Name() string { return h.name }

func (h namedHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	return h.run(ctx, payload)
}

// NewHandler binds fn to tasks named name, decoding the payload into T.
// A payload that cannot be decoded is a permanent failure.
func NewHandler[T any](name string, fn TaskHandlerFunc[T]) Handler {
	return namedHandler{name: name, run: func(ctx context.Context, raw json.RawMessage) error {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Permanent(fmt.Errorf("decode %s payload: %w", name, err))
		}
		return fn(ctx, payload)
	}}
}

// NewPeriodicTaskHandler binds fn to tasks named name and ignores their payload.
func NewPeriodicTaskHandler(name string, fn PeriodicTaskHandlerFunc) Handler {
	return namedHandler{name: name, run: func(ctx context.Context, _ json.RawMessage) error {
		return fn(ctx)
	}}
}

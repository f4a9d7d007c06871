// Package optimistic applies a local change before the remote operation that
// backs it and compensates when that operation fails.
package optimistic

import (
	"context"
	"sync"
)

// Cell holds a value shared between an optimistic mutation and readers.
type Cell[T any] struct {
	mu sync.Mutex
	v  T
}

// NewCell returns a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Store replaces the value.
func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

// Update replaces the value with fn applied to it.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = fn(c.v)
}

// Mutation computes the optimistic value and a compensation that undoes it.
// The compensation receives the value current at failure time, which may
// differ from the one the mutation produced. A nil compensation means there
// is nothing to undo.
type Mutation[T any] func(T) (next T, undo func(T) T)

// Do applies mutate to c, runs commit, and applies the compensation if commit
// fails. The commit error is returned unchanged.
func Do[T any](ctx context.Context, c *Cell[T], mutate Mutation[T], commit func(context.Context) error) error {
	var undo func(T) T
	c.Update(func(v T) T {
		next, u := mutate(v)
		undo = u
		return next
	})
	if err := commit(ctx); err != nil {
		if undo != nil {
			c.Update(undo)
		}
		return err
	}
	return nil
}

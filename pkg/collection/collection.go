// Package collection provides an in-memory, ordered, 1-indexed collection of
// named resources. Deleting position k shifts every later position down by one,
// matching the contract hosts expose for workbook connections.
package collection

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/dotcommander/refresher/internal/models"
)

// Hook intercepts a read or delete at a position. Returning an error fails
// the call without touching the collection.
type Hook func(position int, name string) error

type config struct {
	onRead   Hook
	onDelete Hook
}

// Option configures a Collection.
type Option func(*config)

// WithReadHook runs h before every successful position lookup.
func WithReadHook(h Hook) Option {
	return func(c *config) {
		c.onRead = h
	}
}

// WithDeleteHook runs h before every delete of an existing position.
func WithDeleteHook(h Hook) Option {
	return func(c *config) {
		c.onDelete = h
	}
}

// Collection is safe for concurrent use.
type Collection struct {
	mu    sync.Mutex
	cfg   config
	items *list.List // of string
}

// New returns a collection holding names in order.
func New(names []string, opts ...Option) *Collection {
	c := &Collection{items: list.New()}
	for _, opt := range opts {
		opt(&c.cfg)
	}
	for _, n := range names {
		c.items.PushBack(n)
	}
	return c
}

// Count returns the number of resources.
func (c *Collection) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len(), nil
}

// At returns the resource currently at position.
func (c *Collection) At(position int) (models.ResourceHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, err := c.element(position)
	if err != nil {
		return models.ResourceHandle{}, err
	}
	name := elem.Value.(string)
	if c.cfg.onRead != nil {
		if err := c.cfg.onRead(position, name); err != nil {
			return models.ResourceHandle{}, err
		}
	}
	return models.ResourceHandle{Name: name, Position: position}, nil
}

// Delete removes the resource at position.
func (c *Collection) Delete(position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, err := c.element(position)
	if err != nil {
		return err
	}
	if c.cfg.onDelete != nil {
		if err := c.cfg.onDelete(position, elem.Value.(string)); err != nil {
			return err
		}
	}
	c.items.Remove(elem)
	return nil
}

// Append adds name at the end and returns its position.
func (c *Collection) Append(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.PushBack(name)
	return c.items.Len()
}

// Names returns a snapshot of every name in position order.
func (c *Collection) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for e := c.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

func (c *Collection) element(position int) (*list.Element, error) {
	if position < 1 || position > c.items.Len() {
		return nil, fmt.Errorf("position %d of %d: %w", position, c.items.Len(), models.ErrPositionOutOfRange)
	}
	e := c.items.Front()
	for i := 1; i < position; i++ {
		e = e.Next()
	}
	return e, nil
}

package lib

import "sync"

type IModel interface {
	GetID() string
}

// Collection is a typed wrapper on top of sync.Map keyed by the item ID
type Collection[T IModel] struct {
	items sync.Map
}

func NewCollection[T IModel]() *Collection[T] {
	return &Collection[T]{
		items: sync.Map{},
	}
}

func (c *Collection[T]) Store(item T) {
	c.items.Store(item.GetID(), item)
}

// LoadOrStore returns the existing item for the ID if present, otherwise
// stores and returns the given item. Loaded is true if the item was
// already present.
func (c *Collection[T]) LoadOrStore(item T) (actual T, loaded bool) {
	val, loaded := c.items.LoadOrStore(item.GetID(), item)
	return val.(T), loaded
}

func (c *Collection[T]) Load(ID string) (item T, ok bool) {
	val, ok := c.items.Load(ID)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

func (c *Collection[T]) Delete(ID string) {
	c.items.Delete(ID)
}

func (c *Collection[T]) Range(f func(item T) bool) {
	c.items.Range(func(key, value interface{}) bool {
		return f(value.(T))
	})
}

func (c *Collection[T]) Len() int {
	count := 0
	c.items.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

package lib

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type collectionItem struct {
	id string
}

func (i *collectionItem) GetID() string {
	return i.id
}

func TestCollectionStoreLoadDelete(t *testing.T) {
	collection := NewCollection[*collectionItem]()
	require.NotNil(t, collection)

	collection.Store(&collectionItem{id: "a"})

	item, ok := collection.Load("a")
	require.True(t, ok)
	require.NotNil(t, item)

	collection.Delete("a")

	item, ok = collection.Load("a")
	require.False(t, ok)
	require.Nil(t, item)
}

func TestCollectionLoadOrStore(t *testing.T) {
	collection := NewCollection[*collectionItem]()

	first := &collectionItem{id: "a"}
	actual, loaded := collection.LoadOrStore(first)
	require.False(t, loaded)
	require.Same(t, first, actual)

	second := &collectionItem{id: "a"}
	actual, loaded = collection.LoadOrStore(second)
	require.True(t, loaded)
	require.Same(t, first, actual)
}

func TestCollectionRangeLen(t *testing.T) {
	collection := NewCollection[*collectionItem]()
	for i := 0; i < 5; i++ {
		collection.Store(&collectionItem{id: fmt.Sprint(i)})
	}

	require.Equal(t, 5, collection.Len())

	seen := 0
	collection.Range(func(item *collectionItem) bool {
		seen++
		return seen < 3
	})
	require.Equal(t, 3, seen)
}

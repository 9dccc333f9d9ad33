package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/hotswap/internal/domain"
)

type fakeComponent struct{ name string }

func (f *fakeComponent) Render(map[string]interface{}) (*domain.Node, error) {
	return &domain.Node{Type: f.name}, nil
}

func TestCache_GetPut(t *testing.T) {
	c := New()

	_, ok := c.Get("s1", "home")
	assert.False(t, ok)

	comp := &fakeComponent{"home"}
	modified := time.Date(2025, 12, 14, 22, 0, 0, 0, time.UTC)
	c.Put("s1", "home", comp, Metadata{Name: "Home", LastModified: modified})

	e, ok := c.Get("s1", "home")
	require.True(t, ok)
	assert.Same(t, comp, e.Component)
	assert.Equal(t, "Home", e.Metadata.Name)
	assert.Equal(t, modified, e.Metadata.LastModified)
	assert.False(t, e.Metadata.StoredAt.IsZero())

	assert.Equal(t, Stats{Hits: 1, Misses: 1, Size: 1}, c.Stats())
}

func TestCache_OneEntryPerKey(t *testing.T) {
	c := New()
	first := &fakeComponent{"v1"}
	second := &fakeComponent{"v2"}

	c.Put("s1", "home", first, Metadata{})
	c.Put("s1", "home", second, Metadata{})
	c.Put("s2", "home", first, Metadata{})

	e, ok := c.Get("s1", "home")
	require.True(t, ok)
	assert.Same(t, second, e.Component)
	assert.Equal(t, 2, c.Stats().Size)
}

func TestCache_Invalidate(t *testing.T) {
	c := New()
	c.Put("s1", "home", &fakeComponent{}, Metadata{})

	assert.True(t, c.Invalidate("s1", "home"))
	assert.False(t, c.Invalidate("s1", "home"))

	_, ok := c.Get("s1", "home")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCache_InvalidateSession(t *testing.T) {
	c := New()
	for _, id := range []string{"a", "b", "c"} {
		c.Put("s1", id, &fakeComponent{id}, Metadata{})
	}
	c.Put("s2", "a", &fakeComponent{"a"}, Metadata{})

	assert.Equal(t, 3, c.InvalidateSession("s1"))
	assert.Empty(t, c.Screens("s1"))
	assert.Equal(t, []string{"a"}, c.Screens("s2"))
	assert.Equal(t, 1, c.Stats().Size)
}

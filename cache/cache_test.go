package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(1024)
	ok := c.Put("id1", "hello", 5)
	assert.True(t, ok)

	v, ok := c.Get("id1")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(1024)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestPutRejectsOversizedValue(t *testing.T) {
	c := New(100)
	ok := c.Put("big", "x", 200)
	assert.False(t, ok)
	_, ok = c.Get("big")
	assert.False(t, ok)
}

func TestPutEvictsToMakeRoom(t *testing.T) {
	c := New(10)
	assert.True(t, c.Put("a", "a", 6))
	assert.True(t, c.Put("b", "b", 6))

	// "a" should have been evicted to admit "b"
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestRemove(t *testing.T) {
	c := New(1024)
	c.Put("id1", "hello", 5)
	c.Remove("id1")
	_, ok := c.Get("id1")
	assert.False(t, ok)
}

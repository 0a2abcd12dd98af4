package cacher

import (
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	c := NewMemory(time.Minute, 100)
	c.Set("posts.find:1", map[string]any{"id": 1})

	got, ok := c.Get("posts.find:1")
	if !ok {
		t.Fatalf("Get() missing key that was just Set")
	}
	if got.(map[string]any)["id"] != 1 {
		t.Errorf("Get() = %v, want id=1", got)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	c := NewMemory(time.Minute, 100)
	if _, ok := c.Get("nope"); ok {
		t.Fatalf("Get() on missing key returned ok=true")
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory(10*time.Millisecond, 100)
	c.Set("k", "v")
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("Get() returned an entry past its TTL")
	}
}

func TestMemoryDel(t *testing.T) {
	c := NewMemory(time.Minute, 100)
	c.Set("k", "v")
	c.Del("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("Get() after Del() still found the key")
	}
}

func TestMemoryClean(t *testing.T) {
	c := NewMemory(time.Minute, 100)
	c.Set("posts.find:1", "a")
	c.Set("posts.find:2", "b")
	c.Set("users.get:1", "c")

	c.Clean("posts.find:*")

	if _, ok := c.Get("posts.find:1"); ok {
		t.Errorf("Clean(posts.find:*) left posts.find:1 in place")
	}
	if _, ok := c.Get("posts.find:2"); ok {
		t.Errorf("Clean(posts.find:*) left posts.find:2 in place")
	}
	if _, ok := c.Get("users.get:1"); !ok {
		t.Errorf("Clean(posts.find:*) removed an unrelated key")
	}
}

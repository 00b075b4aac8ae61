package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/livetemplate/sandbox/internal/demo"
)

func sample() *demo.Definition {
	return &demo.Definition{
		Boxes: []demo.BoxEntry{{Type: "js", Box: demo.Box{Code: "console.log(1)"}}},
	}
}

func TestMemoryCacheBasic(t *testing.T) {
	c := NewMemoryCache()
	defer c.Stop()

	if _, found := c.Get("hello"); found {
		t.Error("expected cache miss for non-existent key")
	}

	c.Set("hello", sample(), time.Minute)

	def, found := c.Get("hello")
	if !found {
		t.Fatal("expected cache hit")
	}
	js, ok := def.Box("js")
	if !ok || js.Code != "console.log(1)" {
		t.Errorf("unexpected definition: %+v", def)
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	defer c.Stop()

	original := sample()
	c.Set("hello", original, time.Minute)
	original.SetBox("js", demo.Box{Code: "mutated after set"})

	got, _ := c.Get("hello")
	got.SetBox("js", demo.Box{Code: "mutated after get"})

	again, _ := c.Get("hello")
	if js, _ := again.Box("js"); js.Code != "console.log(1)" {
		t.Errorf("cached definition was aliased: %q", js.Code)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	defer c.Stop()

	c.Set("short", sample(), 50*time.Millisecond)
	if _, found := c.Get("short"); !found {
		t.Error("expected cache hit immediately after set")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected cache miss after TTL expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on read, Len() = %d", c.Len())
	}
}

func TestMemoryCacheZeroTTLIsNoop(t *testing.T) {
	c := NewMemoryCache()
	defer c.Stop()

	c.Set("never", sample(), 0)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache()
	defer c.Stop()

	c.Set("a", sample(), time.Minute)
	c.Set("b", sample(), time.Minute)

	c.Invalidate("a")
	if _, found := c.Get("a"); found {
		t.Error("expected miss after Invalidate")
	}
	if _, found := c.Get("b"); !found {
		t.Error("Invalidate removed the wrong entry")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after InvalidateAll", c.Len())
	}
}

func TestMemoryCacheCleanupLoop(t *testing.T) {
	c := newMemoryCache(10 * time.Millisecond)
	defer c.Stop()

	c.Set("short", sample(), 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Error("cleanup loop did not remove the expired entry")
	}
}

func TestMemoryCacheStopIdempotent(t *testing.T) {
	c := NewMemoryCache()
	c.Stop()
	c.Stop()
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Set("k", sample(), time.Minute)
				c.Get("k")
				c.Invalidate("k")
			}
		}()
	}
	wg.Wait()
}

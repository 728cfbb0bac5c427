package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTL[string](time.Minute, 0, func() time.Time { return now })

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, len=%d", c.Len())
	}
}

func TestSetEvictsWhenFull(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTL[int](time.Minute, 2, func() time.Time { return now })

	c.Set("a", 1)
	now = now.Add(time.Second)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestGetOrLoadCoalescesConcurrentCalls(t *testing.T) {
	c := NewTTL[string](time.Minute, 0, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "q", func(context.Context) (string, error) {
				calls.Add(1)
				<-release
				return "loaded", nil
			})
			if err != nil {
				t.Errorf("GetOrLoad error: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 load, got %d", calls.Load())
	}
	for i, v := range results {
		if v != "loaded" {
			t.Fatalf("result %d = %q", i, v)
		}
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewTTL[string](time.Minute, 0, nil)
	_, err := c.GetOrLoad(context.Background(), "q", func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	v, err := c.GetOrLoad(context.Background(), "q", func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected reload, got %q %v", v, err)
	}
}

func TestPurgeDuringLoadDiscardsStaleResult(t *testing.T) {
	c := NewTTL[string](time.Hour, 0, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "q", func(context.Context) (string, error) {
			close(started)
			<-release
			return "before ingest", nil
		})
		if err != nil {
			t.Errorf("GetOrLoad: %v", err)
		}
		done <- v
	}()

	<-started
	c.Purge()

	fresh, err := c.GetOrLoad(context.Background(), "q", func(context.Context) (string, error) {
		return "after ingest", nil
	})
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if fresh != "after ingest" {
		t.Fatalf("caller after purge joined the stale load: %q", fresh)
	}

	close(release)
	if got := <-done; got != "before ingest" {
		t.Fatalf("in-flight caller got %q", got)
	}
	if v, ok := c.Get("q"); !ok || v != "after ingest" {
		t.Fatalf("stale load overwrote the cache: %q %v", v, ok)
	}
}

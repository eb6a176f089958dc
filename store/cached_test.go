package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCachedStore(t *testing.T) {
	cs := NewCachedStore(NewMemoryStore(), time.Hour, zap.NewNop())
	defer cs.Close()
	testPageStore(t, cs, "")
}

func TestCachedStore_ReadThrough(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	// Pre-populate backing store.
	if err := backing.Create(ctx, "p1", testSchema("alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := backing.Save(ctx, "p1", testSchema("bob"), 1); err != nil {
		t.Fatal(err)
	}

	cs := NewCachedStore(backing, time.Hour, zap.NewNop()) // no auto flush
	defer cs.Close()

	// Load should read through to backing.
	p, err := cs.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Revision != 2 || p.Schema.Metadata.LastEditedBy != "bob" {
		t.Errorf("unexpected page: rev=%d by=%q", p.Revision, p.Schema.Metadata.LastEditedBy)
	}
}

func TestCachedStore_WriteBehind(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, 50*time.Millisecond, zap.NewNop())
	defer cs.Close()

	// Create page in cache.
	if err := cs.Create(ctx, "p1", testSchema("alice")); err != nil {
		t.Fatal(err)
	}

	// Backing should NOT have it yet.
	if _, err := backing.Load(ctx, "p1"); err == nil {
		t.Error("expected backing to not have page yet")
	}

	// Wait for flush.
	time.Sleep(150 * time.Millisecond)

	// Now backing should have it.
	p, err := backing.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Schema.Metadata.LastEditedBy != "alice" {
		t.Errorf("unexpected page: %+v", p.Schema.Metadata)
	}
}

func TestCachedStore_SaveFlushTracking(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, 50*time.Millisecond, zap.NewNop())
	defer cs.Close()

	if err := cs.Create(ctx, "p1", testSchema("v0")); err != nil {
		t.Fatal(err)
	}
	rev := int64(1)
	for _, by := range []string{"v1", "v2", "v3"} {
		var err error
		if rev, err = cs.Save(ctx, "p1", testSchema(by), rev); err != nil {
			t.Fatal(err)
		}
	}

	// Wait for first flush: creation carries the latest schema.
	time.Sleep(150 * time.Millisecond)

	p, err := backing.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Schema.Metadata.LastEditedBy != "v3" {
		t.Fatalf("after first flush: by=%q, want v3", p.Schema.Metadata.LastEditedBy)
	}

	if _, err := cs.Save(ctx, "p1", testSchema("v4"), rev); err != nil {
		t.Fatal(err)
	}

	// Wait for second flush.
	time.Sleep(150 * time.Millisecond)

	p, err = backing.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Schema.Metadata.LastEditedBy != "v4" || p.Revision != 2 {
		t.Fatalf("after second flush: by=%q rev=%d", p.Schema.Metadata.LastEditedBy, p.Revision)
	}
}

func TestCachedStore_CloseFlushes(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, time.Hour, zap.NewNop()) // very long interval

	if err := cs.Create(ctx, "p1", testSchema("alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Save(ctx, "p1", testSchema("bob"), 1); err != nil {
		t.Fatal(err)
	}

	// Close triggers final flush.
	cs.Close()

	p, err := backing.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Schema.Metadata.LastEditedBy != "bob" {
		t.Errorf("unexpected page: by=%q", p.Schema.Metadata.LastEditedBy)
	}
}

func TestCachedStore_PreLoadedPage(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	if err := backing.Create(ctx, "p1", testSchema("a")); err != nil {
		t.Fatal(err)
	}
	backing.Save(ctx, "p1", testSchema("b"), 1)
	backing.Save(ctx, "p1", testSchema("c"), 2)

	cs := NewCachedStore(backing, time.Hour, zap.NewNop())

	p, err := cs.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Save(ctx, "p1", testSchema("d"), p.Revision); err != nil {
		t.Fatal(err)
	}

	cs.Close()

	// The flush used the backing revision it loaded: exactly one more save.
	p, err = backing.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Revision != 4 || p.Schema.Metadata.LastEditedBy != "d" {
		t.Fatalf("backing rev=%d by=%q, want 4 d", p.Revision, p.Schema.Metadata.LastEditedBy)
	}
}

func TestCachedStore_BackingConflict(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()
	backing.Create(ctx, "p1", testSchema("a"))

	cs := NewCachedStore(backing, time.Hour, zap.NewNop())
	defer cs.Close()

	p, err := cs.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	rev, err := cs.Save(ctx, "p1", testSchema("local"), p.Revision)
	if err != nil {
		t.Fatal(err)
	}

	// Another process writes the backing store directly.
	if _, err := backing.Save(ctx, "p1", testSchema("remote"), 1); err != nil {
		t.Fatal(err)
	}

	cs.flush()

	// The cache now holds the remote copy under a fresh revision.
	if _, err := cs.Save(ctx, "p1", testSchema("local again"), rev); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	p, err = cs.Load(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Schema.Metadata.LastEditedBy != "remote" {
		t.Errorf("cache by=%q, want remote", p.Schema.Metadata.LastEditedBy)
	}

	// Saving at the reloaded revision flushes on top of the remote write.
	if _, err := cs.Save(ctx, "p1", testSchema("forced"), p.Revision); err != nil {
		t.Fatal(err)
	}
	cs.flush()
	bp, _ := backing.Load(ctx, "p1")
	if bp.Schema.Metadata.LastEditedBy != "forced" || bp.Revision != 3 {
		t.Errorf("backing rev=%d by=%q", bp.Revision, bp.Schema.Metadata.LastEditedBy)
	}
}

// A conflict resolution racing a local save must never hand the saved
// revision to the backing copy: a revision the caller got back either holds
// its schema or has been superseded.
func TestCachedStore_SaveDuringConflictResolution(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()
	backing.Create(ctx, "p1", testSchema("a"))

	cs := NewCachedStore(backing, time.Hour, zap.NewNop())
	defer cs.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if bp, err := backing.Load(ctx, "p1"); err == nil {
				backing.Save(ctx, "p1", testSchema("remote"), bp.Revision)
			}
			cs.flush()
		}
	}()

	for i := 0; i < 300; i++ {
		by := fmt.Sprintf("local-%d", i)
		p, err := cs.Load(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		rev, err := cs.Save(ctx, "p1", testSchema(by), p.Revision)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		got, err := cs.Load(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Revision == rev && got.Schema.Metadata.LastEditedBy != by {
			t.Fatalf("revision %d holds %q, want %q", rev, got.Schema.Metadata.LastEditedBy, by)
		}
	}
	close(done)
	wg.Wait()
}

func TestCachedStore_ListMergesCache(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	backing.Create(ctx, "a", testSchema("a"))
	backing.Create(ctx, "b", testSchema("b"))

	cs := NewCachedStore(backing, time.Hour, zap.NewNop())
	defer cs.Close()
	cs.Create(ctx, "c", testSchema("c"))

	pages, err := cs.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 3 {
		t.Errorf("got %d pages, want 3", len(pages))
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alimasry/go-page-editor/schema"
)

// dirtyState tracks what needs flushing for a single page.
type dirtyState struct {
	created bool   // page created locally but not yet in backing store
	seq     uint64 // bumped on every local save
}

// CachedStore wraps a backing PageStore with an in-memory cache.
// All reads and writes are served from the cache. Dirty pages are flushed to
// the backing store periodically in the background.
//
// Revisions returned by CachedStore are the cache's own. The backing
// revision of each page is tracked separately and used for the flush's
// compare-and-swap, so a second writer to the backing store is detected.
type CachedStore struct {
	cache         *MemoryStore
	backing       PageStore
	log           *zap.Logger
	mu            sync.Mutex
	dirty         map[string]*dirtyState
	backingRev    map[string]int64
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// NewCachedStore creates a CachedStore that caches in memory and flushes
// dirty pages to the backing store every flushInterval.
func NewCachedStore(backing PageStore, flushInterval time.Duration, log *zap.Logger) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		log:           log,
		dirty:         make(map[string]*dirtyState),
		backingRev:    make(map[string]int64),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id string, s schema.ContentSchema) error {
	if _, err := cs.backing.Load(ctx, id); err == nil {
		return fmt.Errorf("create %q: %w", id, ErrExists)
	}
	if err := cs.cache.Create(ctx, id, s); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.dirty[id] = &dirtyState{created: true, seq: 1}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Load(ctx context.Context, id string) (*Page, error) {
	p, err := cs.cache.Load(ctx, id)
	if err == nil {
		return p, nil
	}
	// Cache miss: load from backing store.
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Load(ctx, id)
}

// List merges the backing listing with pages known to the cache, which may
// be newer or not flushed yet.
func (cs *CachedStore) List(ctx context.Context) ([]PageInfo, error) {
	backing, err := cs.backing.List(ctx)
	if err != nil {
		return nil, err
	}
	cached, _ := cs.cache.List(ctx)
	byID := make(map[string]int, len(backing))
	for i, info := range backing {
		byID[info.ID] = i
	}
	for _, info := range cached {
		if i, ok := byID[info.ID]; ok {
			backing[i] = info
			continue
		}
		backing = append(backing, info)
	}
	return backing, nil
}

func (cs *CachedStore) Save(ctx context.Context, id string, s schema.ContentSchema, expectedRevision int64) (int64, error) {
	// Ensure page is in cache.
	if _, err := cs.Load(ctx, id); err != nil {
		return 0, err
	}
	// Held across the cache write so a conflict resolution cannot replace
	// the page between the write and its dirty mark.
	cs.mu.Lock()
	defer cs.mu.Unlock()
	rev, err := cs.cache.Save(ctx, id, s, expectedRevision)
	if err != nil {
		return 0, err
	}
	ds := cs.dirty[id]
	if ds == nil {
		ds = &dirtyState{}
		cs.dirty[id] = ds
	}
	ds.seq++
	return rev, nil
}

// loadFromBacking copies a page from the backing store into the cache and
// remembers its backing revision.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	p, err := cs.backing.Load(ctx, id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, err := cs.cache.Load(ctx, id); err == nil {
		// Another caller loaded it first; keep its state.
		return nil
	}
	cs.cache.put(*p)
	cs.backingRev[id] = p.Revision
	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

// flush writes all dirty pages to the backing store.
func (cs *CachedStore) flush() {
	cs.mu.Lock()
	ids := make([]string, 0, len(cs.dirty))
	for id := range cs.dirty {
		ids = append(ids, id)
	}
	cs.mu.Unlock()

	ctx := context.Background()
	for _, id := range ids {
		cs.flushPage(ctx, id)
	}
}

func (cs *CachedStore) flushPage(ctx context.Context, id string) {
	cs.mu.Lock()
	ds, ok := cs.dirty[id]
	if !ok {
		cs.mu.Unlock()
		return
	}
	state := *ds
	rev := cs.backingRev[id]
	cs.mu.Unlock()

	p, err := cs.cache.Load(ctx, id)
	if err != nil {
		return
	}

	if state.created {
		err := cs.backing.Create(ctx, id, p.Schema)
		if errors.Is(err, ErrExists) {
			cs.resolveConflict(ctx, id)
			return
		}
		if err != nil {
			cs.log.Error("cached store: create in backing store failed", zap.String("page", id), zap.Error(err))
			return
		}
		rev = 1
	} else {
		rev, err = cs.backing.Save(ctx, id, p.Schema, rev)
		if errors.Is(err, ErrConflict) {
			cs.resolveConflict(ctx, id)
			return
		}
		if err != nil {
			cs.log.Error("cached store: flush failed", zap.String("page", id), zap.Error(err))
			// Will retry next cycle.
			return
		}
	}

	cs.mu.Lock()
	cs.backingRev[id] = rev
	if cur := cs.dirty[id]; cur != nil {
		cur.created = false
		// Only clean if no new writes happened since the snapshot.
		if cur.seq == state.seq {
			delete(cs.dirty, id)
		}
	}
	cs.mu.Unlock()
}

// resolveConflict replaces the cached page with the backing copy after
// another writer changed it. The cache revision moves past every revision
// handed out, so sessions holding the old one get ErrConflict on their next
// save and must reload or force.
func (cs *CachedStore) resolveConflict(ctx context.Context, id string) {
	p, err := cs.backing.Load(ctx, id)
	if err != nil {
		cs.log.Error("cached store: reload after conflict failed", zap.String("page", id), zap.Error(err))
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	backingRev := p.Revision
	if cached, err := cs.cache.Load(ctx, id); err == nil {
		p.Revision = cached.Revision + 1
	}
	cs.cache.put(*p)
	cs.backingRev[id] = backingRev
	delete(cs.dirty, id)
	cs.log.Warn("cached store: backing page changed by another writer, local edits dropped",
		zap.String("page", id), zap.Int64("backingRevision", backingRev))
}

// Close signals the flush loop to perform a final flush and waits for it
// to complete.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}

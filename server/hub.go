package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alimasry/go-page-editor/editor"
	"github.com/alimasry/go-page-editor/metrics"
	"github.com/alimasry/go-page-editor/ratelimit"
	"github.com/alimasry/go-page-editor/schema"
	"github.com/alimasry/go-page-editor/store"
)

// storeTimeout bounds each store call made on behalf of a session.
const storeTimeout = 10 * time.Second

type joinRequest struct {
	client *Client
	pageID string
	name   string
}

// Hub manages page sessions and routes clients to the right session.
type Hub struct {
	store       store.PageStore
	limiter     ratelimit.Limiter
	log         *zap.Logger
	metrics     *metrics.Metrics
	historyOpts []editor.Option
	newID       schema.IDGenerator
	now         func() time.Time

	sessions map[string]*Session
	refs     map[string]int // joins routed to a session minus releases
	mu       sync.RWMutex

	joinPage chan joinRequest
	left     chan string
	done     chan struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLimiter admits client messages through l. Without one nothing is
// limited.
func WithLimiter(l ratelimit.Limiter) HubOption {
	return func(h *Hub) { h.limiter = l }
}

func WithLogger(log *zap.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithHistoryOptions is passed to every session's editor.History.
func WithHistoryOptions(opts ...editor.Option) HubOption {
	return func(h *Hub) { h.historyOpts = opts }
}

// WithIDGenerator replaces schema.NewID for new sections and elements.
func WithIDGenerator(gen schema.IDGenerator) HubOption {
	return func(h *Hub) { h.newID = gen }
}

func NewHub(st store.PageStore, opts ...HubOption) *Hub {
	h := &Hub{
		store:    st,
		log:      zap.NewNop(),
		newID:    schema.NewID,
		now:      time.Now,
		sessions: make(map[string]*Session),
		refs:     make(map[string]int),
		joinPage: make(chan joinRequest, 64),
		left:     make(chan string, 64),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's main loop. It returns when ctx is done, stopping every
// session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case req := <-h.joinPage:
			h.handleJoinPage(ctx, req)
		case id := <-h.left:
			h.handleLeft(id)
		case <-ctx.Done():
			h.stopAll()
			return
		}
	}
}

func (h *Hub) handleJoinPage(ctx context.Context, req joinRequest) {
	h.mu.Lock()
	s, ok := h.sessions[req.pageID]
	if !ok {
		page, err := h.loadOrCreate(ctx, req.pageID)
		if err != nil {
			h.mu.Unlock()
			h.log.Error("failed to open page", zap.String("page", req.pageID), zap.Error(err))
			req.client.sendError("failed to load page")
			return
		}
		s = newSession(req.pageID, page, h)
		h.sessions[req.pageID] = s
		h.metrics.SessionOpened()
		go s.Run()
	}
	h.refs[req.pageID]++
	h.mu.Unlock()

	s.join <- req
}

// loadOrCreate loads a page, creating an empty one on first use.
func (h *Hub) loadOrCreate(ctx context.Context, id string) (*store.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	page, err := h.store.Load(ctx, id)
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := h.store.Create(ctx, id, schema.New()); err != nil && !errors.Is(err, store.ErrExists) {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return h.store.Load(ctx, id)
}

func (h *Hub) handleLeft(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs[id]--
	if h.refs[id] > 0 {
		return
	}
	delete(h.refs, id)
	if s, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		close(s.stop)
		h.metrics.SessionClosed()
		h.log.Debug("session closed", zap.String("page", id))
	}
}

func (h *Hub) stopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		close(s.stop)
		h.metrics.SessionClosed()
		delete(h.sessions, id)
	}
	h.refs = make(map[string]int)
}

// release tells the hub one routed join for pageID is finished, either
// because the client left or because it never attached. It does not block the
// session.
func (h *Hub) release(pageID string) {
	go func() {
		select {
		case h.left <- pageID:
		case <-h.done:
		}
	}()
}

// GetSession returns the session for a page, if active.
func (h *Hub) GetSession(pageID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[pageID]
}

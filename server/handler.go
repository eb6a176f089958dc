package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alimasry/go-page-editor/schema"
	"github.com/alimasry/go-page-editor/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHandler creates the HTTP handler with all routes. A nil gatherer leaves
// /metrics unrouted.
func NewHandler(hub *Hub, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// WebSocket endpoint.
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := newClient(hub, conn, clientIP(r))
		hub.metrics.ClientConnected()
		go client.WritePump()
		go client.ReadPump()
	})

	r.Route("/api/pages", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			pages, err := hub.store.List(r.Context())
			if err != nil {
				hub.log.Error("list pages", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to list pages")
				return
			}
			writeJSON(w, http.StatusOK, pages)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			page, ok := loadPage(w, r, hub)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, page)
		})
		r.Get("/{id}/export", func(w http.ResponseWriter, r *http.Request) {
			page, ok := loadPage(w, r, hub)
			if !ok {
				return
			}
			export := schema.NewExport(page.Schema.Sections, page.Schema.GlobalStyles, hub.now())
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": page.ID + ".json"}))
			writeJSON(w, http.StatusOK, export)
		})
	})

	return r
}

func loadPage(w http.ResponseWriter, r *http.Request, hub *Hub) (*store.Page, bool) {
	id := chi.URLParam(r, "id")
	page, err := hub.store.Load(r.Context(), id)
	switch {
	case err == nil:
		return page, true
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "page not found")
	default:
		hub.log.Error("load page", zap.String("page", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load page")
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

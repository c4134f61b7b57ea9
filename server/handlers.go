package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-scribe/backend/archive"
	"github.com/onnwee/chat-scribe/backend/session"
)

// Deps are the domain dependencies the HTTP handlers call into.
type Deps struct {
	Store      archive.Store
	Controller *session.Controller
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db   *sql.DB
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, deps Deps) *Handlers {
	return &Handlers{db: db, deps: deps}
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.PingContext(r.Context()) != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests: database reachable and
// records table usable.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.db == nil {
				return errors.New("db not configured")
			}
			return h.db.PingContext(r.Context())
		}},
		{"records", func() error {
			_, err := h.deps.Store.ListPage(r.Context(), 0, 1)
			return err
		}},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not_ready",
				"check":  check.name,
				"error":  err.Error(),
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports live sessions and archive size.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type status struct {
		LiveSessions []session.Status `json:"live_sessions"`
		LiveCount    int              `json:"live_count"`
		ArchiveCount int64            `json:"archive_count"`
	}
	st := status{LiveSessions: h.deps.Controller.LiveSessions()}
	st.LiveCount = len(st.LiveSessions)
	if h.db != nil {
		if err := h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM records`).Scan(&st.ArchiveCount); err != nil {
			slog.Warn("archive count query failed", slog.Any("err", err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// HandleRecordsList returns a paginated list of archived records.
func (h *Handlers) HandleRecordsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Basic pagination: ?limit=50&offset=0
	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, err := h.deps.Store.ListPage(r.Context(), offset, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

// HandleRecordsDispatcher routes /records/{title} to detail or delete.
func (h *Handlers) HandleRecordsDispatcher(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimPrefix(r.URL.Path, "/records/")
	if title == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleRecordDetail(w, r, title)
	case http.MethodDelete:
		adminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.handleRecordDelete(w, r, title)
		}), loadAuthConfig()).ServeHTTP(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleRecordDetail(w http.ResponseWriter, r *http.Request, title string) {
	rec, err := h.deps.Store.GetByTitle(r.Context(), title)
	if errors.Is(err, archive.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries, err := archive.DecodeEntries(rec.Payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type detail struct {
		Title     string          `json:"title"`
		Owner     string          `json:"owner"`
		Targets   []string        `json:"targets"`
		CreatedAt time.Time       `json:"created_at"`
		Entries   []archive.Entry `json:"entries"`
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(detail{
		Title:     rec.Title,
		Owner:     rec.Owner,
		Targets:   rec.Targets,
		CreatedAt: rec.CreatedAt,
		Entries:   entries,
	})
}

func (h *Handlers) handleRecordDelete(w http.ResponseWriter, r *http.Request, title string) {
	err := h.deps.Store.Delete(r.Context(), title)
	if errors.Is(err, archive.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseIntQuery extracts an int parameter from the query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

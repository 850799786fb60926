// Package web exposes the UI-facing contract over a local HTTP JSON API:
// mutations return the resulting store snapshot so the presentation layer
// can re-render from the response alone.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"taskcal/internal/config"
	"taskcal/internal/feed"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/notify"
	"taskcal/internal/recur"
	"taskcal/internal/store"
)

// Server provides the HTTP API over one task store.
type Server struct {
	cfg   *config.Config
	store *store.Store
	loc   *time.Location
	mux   *http.ServeMux
}

// NewServer constructs a Server resolving due times in loc.
func NewServer(cfg *config.Config, st *store.Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:   cfg,
		store: st,
		loc:   loc,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password is treated as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="taskcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/tasks/move", s.handleMove)
	s.mux.HandleFunc("/api/recurring", s.handleRecurring)
	s.mux.HandleFunc("/api/due-soon", s.handleDueSoon)
	s.mux.HandleFunc("/calendar.ics", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// storeResponse is the shape of every successful mutation response.
type storeResponse struct {
	OK    bool                    `json:"ok"`
	Tasks map[string][]model.Task `json:"tasks"`
}

type listResponse struct {
	Date  string       `json:"date"`
	Tasks []model.Task `json:"tasks"`
}

type addRequest struct {
	Date string     `json:"date"`
	Task model.Task `json:"task"`
}

type editRequest struct {
	Date string     `json:"date"`
	ID   string     `json:"id"`
	Task model.Task `json:"task"`
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	ID   string `json:"id"`
}

type recurringRequest struct {
	Task  model.Task `json:"task"`
	Start string     `json:"start"`
	End   string     `json:"end"`
	Rule  string     `json:"rule"`
}

// handleTasks dispatches the CRUD operations on /api/tasks.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleAdd(w, r)
	case http.MethodPut:
		s.handleEdit(w, r)
	case http.MethodDelete:
		s.handleRemove(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleList returns the bucket for ?date=YYYY-MM-DD, or the full snapshot
// when no date is given. A date with no tasks yields an empty list.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	dateKey := r.URL.Query().Get("date")
	if dateKey == "" {
		writeJSON(w, http.StatusOK, storeResponse{OK: true, Tasks: s.store.Snapshot()})
		return
	}
	if _, err := model.ParseDateKey(dateKey, s.loc); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Date: dateKey, Tasks: s.store.List(dateKey)})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	added, err := s.store.Add(req.Date, req.Task)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	appLog.Info("task added", "date", req.Date, "id", added.ID, "name", added.Name)
	writeJSON(w, http.StatusOK, storeResponse{OK: true, Tasks: s.store.Snapshot()})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.store.Edit(req.Date, req.ID, req.Task); err != nil {
		s.writeDomainError(w, err)
		return
	}

	appLog.Info("task edited", "date", req.Date, "id", req.ID)
	writeJSON(w, http.StatusOK, storeResponse{OK: true, Tasks: s.store.Snapshot()})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dateKey := q.Get("date")
	id := q.Get("id")
	if dateKey == "" || id == "" {
		writeError(w, http.StatusBadRequest, "date and id are required")
		return
	}

	if err := s.store.Remove(dateKey, id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	appLog.Info("task removed", "date", dateKey, "id", id)
	writeJSON(w, http.StatusOK, storeResponse{OK: true, Tasks: s.store.Snapshot()})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.store.Move(req.From, req.ID, req.To); err != nil {
		s.writeDomainError(w, err)
		return
	}

	appLog.Info("task moved", "from", req.From, "to", req.To, "id", req.ID)
	writeJSON(w, http.StatusOK, storeResponse{OK: true, Tasks: s.store.Snapshot()})
}

// handleRecurring expands a recurrence rule into dated copies of the task
// and inserts them all with one save.
func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	rule, err := recur.ParseRule(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := model.ParseDateKey(req.Start, s.loc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	end, err := model.ParseDateKey(req.End, s.loc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	entries, err := recur.ExpandTask(req.Task, start, end, rule)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.store.AddBatch(entries); err != nil {
		s.writeDomainError(w, err)
		return
	}

	appLog.Info("recurring task added",
		"name", req.Task.Name, "rule", req.Rule,
		"start", req.Start, "end", req.End, "instances", len(entries))
	writeJSON(w, http.StatusOK, storeResponse{OK: true, Tasks: s.store.Snapshot()})
}

// dueSoonItem is one classified upcoming task.
type dueSoonItem struct {
	Date          string     `json:"date"`
	Task          model.Task `json:"task"`
	DueAt         time.Time  `json:"due_at"`
	IntervalHours int        `json:"interval_hours"`
}

// handleDueSoon previews which tasks fall inside a notification window
// right now. It classifies without touching the notifier's de-duplication
// state, so calling it never suppresses a real reminder.
func (s *Server) handleDueSoon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now().In(s.loc)
	items := make([]dueSoonItem, 0)

	for dateKey, bucket := range s.store.Snapshot() {
		for _, t := range bucket {
			dueAt, err := t.DueAt(dateKey, s.loc)
			if err != nil {
				appLog.Warn("due-soon: skipping task with unresolvable due time",
					"name", t.Name, "date", dateKey)
				continue
			}
			interval, ok := notify.Classify(dueAt.Sub(now))
			if !ok {
				continue
			}
			items = append(items, dueSoonItem{
				Date:          dateKey,
				Task:          t,
				DueAt:         dueAt,
				IntervalHours: interval,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "due_soon": items})
}

// handleFeed serves the whole store as an iCalendar VTODO document.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed.Serialize(s.store.Snapshot(), s.loc)))
}

// writeDomainError maps core errors onto HTTP statuses: validation 400,
// unknown id 404, impossible recurrence date 422, corruption and the rest
// 500. No error is swallowed.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	var cerr *store.CorruptError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, recur.ErrInvalidDateArithmetic):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &cerr):
		appLog.Error("store corruption surfaced to API caller", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

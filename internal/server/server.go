// Package server exposes the data hub operations over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/config"
	"github.com/sells-group/esg-hub/internal/ingest"
	"github.com/sells-group/esg-hub/internal/mapping"
	"github.com/sells-group/esg-hub/internal/missing"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/store"
)

// Deps are the services behind the routes.
type Deps struct {
	Ingest       *ingest.Service
	Materializer *ingest.Materializer
	Mapping      *mapping.Service
	Missing      *missing.Service
	Records      store.NormStore
	Tasks        store.TaskStore
	Stats        store.StatsStore

	// DB backs the health check; nil reports healthy.
	DB interface {
		Ping(ctx context.Context) error
	}
}

// Server routes HTTP requests to the services.
type Server struct {
	deps Deps
	cfg  config.ServerConfig
	now  func() time.Time
}

// New returns a server over deps.
func New(deps Deps, cfg config.ServerConfig) *Server {
	return &Server{deps: deps, cfg: cfg, now: time.Now}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/records", s.handleIngest)
		r.Post("/records/materialize", s.handleMaterializeBatch)
		r.Post("/records/{id}/materialize", s.handleMaterialize)
		r.Get("/records/{id}/observations", s.handleObservations)

		r.Post("/mappings/suggest", s.handleSuggest)
		r.Post("/mappings/approve", s.handleApprove)
		r.Get("/mappings", s.handleListRules)
		r.Patch("/mappings/{id}", s.handleSetValidated)

		r.Get("/missing-kpis", s.handleMissingKPIs)
		r.Post("/missing-kpis", s.handleMissingKPIAlert)
		r.Post("/missing-kpis/reminder", s.handleReminder)

		r.Get("/cron/missing-kpis", s.handleCron)

		r.Get("/tasks", s.handleListTasks)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			zap.L().Warn("server: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Records ---

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Ingest.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, err := s.deps.Materializer.Materialize(r.Context(), chi.URLParam(r, "id"), ingest.MaterializeOptions{Force: force})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMaterializeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs   []string `json:"ids"`
		Force bool     `json:"force"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeMessage(w, http.StatusBadRequest, "ids are required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Materializer.MaterializeBatch(r.Context(), req.IDs, ingest.MaterializeOptions{Force: req.Force}))
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.ListNormRecords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": recs, "count": len(recs)})
}

// --- Mappings ---

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Columns     []mapping.ColumnSample `json:"columns"`
		AutoApprove bool                   `json:"auto_approve"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Columns) == 0 {
		writeMessage(w, http.StatusBadRequest, "columns are required")
		return
	}

	results, err := s.deps.Mapping.Suggest(r.Context(), req.Columns)
	if err != nil {
		writeError(w, err)
		return
	}

	approved := 0
	if req.AutoApprove {
		approved, err = s.deps.Mapping.AutoApprove(r.Context(), suggestionsOf(results))
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": results, "auto_approved": approved})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approvals []mapping.Approval `json:"approvals"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Approvals) == 0 {
		writeMessage(w, http.StatusBadRequest, "approvals are required")
		return
	}
	rules, err := s.deps.Mapping.Approve(r.Context(), req.Approvals)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rules": rules})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RuleFilter{Alias: q.Get("alias"), KPIID: q.Get("kpi_id")}
	if v := q.Get("validated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "validated must be a boolean")
			return
		}
		filter.Validated = &b
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	rules, err := s.deps.Mapping.ListRules(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleSetValidated(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Validated *bool `json:"validated"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Validated == nil {
		writeMessage(w, http.StatusBadRequest, "validated is required")
		return
	}
	if err := s.deps.Mapping.SetValidated(r.Context(), chi.URLParam(r, "id"), *req.Validated); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Missing KPIs ---

func (s *Server) handleMissingKPIs(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = strconv.Itoa(s.now().Year())
	}
	send, _ := strconv.ParseBool(r.URL.Query().Get("send_alert"))

	rep, err := s.deps.Missing.Scan(r.Context(), period, send)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleMissingKPIAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period string `json:"period"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Period == "" {
		writeMessage(w, http.StatusBadRequest, "period is required")
		return
	}
	rep, err := s.deps.Missing.Scan(r.Context(), req.Period, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KPIID  string `json:"kpi_id"`
		Period string `json:"period"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.KPIID == "" || req.Period == "" {
		writeMessage(w, http.StatusBadRequest, "kpi_id and period are required")
		return
	}
	rem, err := s.deps.Missing.Remind(r.Context(), req.KPIID, req.Period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CronSecret == "" {
		writeMessage(w, http.StatusServiceUnavailable, "cron is not configured")
		return
	}
	want := "Bearer " + s.cfg.CronSecret
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := s.now()
	rep, err := s.deps.Missing.RunScheduled(r.Context(), now)
	if err != nil {
		zap.L().Error("server: scheduled missing-kpi scan failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"error":     err.Error(),
			"timestamp": now.UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"period":             rep.Period,
		"missing_kpis_count": rep.Count,
		"alert_sent":         rep.AlertSent,
		"timestamp":          now.UTC().Format(time.RFC3339),
	})
}

// --- Tasks and stats ---

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 100

	// pendingAlertThreshold is the number of unprocessed raw records above
	// which /api/stats raises a warning.
	pendingAlertThreshold = 5
	// consistencyAlertFloor is the validated-mapping percentage below which
	// /api/stats raises an error.
	consistencyAlertFloor = 80
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{Limit: defaultTaskLimit}

	if v := q.Get("status"); v != "" && v != "all" {
		filter.Status = model.TaskStatus(v)
		if !filter.Status.Valid() {
			writeMessage(w, http.StatusBadRequest, "unknown task status")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxTaskLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	tasks, err := s.deps.Tasks.ListTasks(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.WorkflowTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  tasks,
		"count":  len(tasks),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

type statsAlert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	alerts := []statsAlert{}
	if st.PendingRecords > pendingAlertThreshold {
		alerts = append(alerts, statsAlert{
			Level:   "warning",
			Message: strconv.Itoa(st.PendingRecords) + " raw records are waiting to be materialized",
		})
	}
	if st.TotalMappings > 0 && st.Consistency() < consistencyAlertFloor {
		alerts = append(alerts, statsAlert{
			Level:   "error",
			Message: "only " + strconv.Itoa(st.Consistency()) + "% of mapping rules are validated",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"overview": st,
		"quality": map[string]int{
			"completeness": st.Completeness(),
			"consistency":  st.Consistency(),
		},
		"alerts":    alerts,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// --- Helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to status codes. Input errors echo their
// message; anything else is logged and reported generically.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest), errors.Is(err, mapping.ErrInvalidApproval):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, ingest.ErrAlreadyProcessed):
		writeMessage(w, http.StatusConflict, "already processed")
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func suggestionsOf(results []mapping.SuggestResult) []model.Suggestion {
	out := make([]model.Suggestion, 0, len(results))
	for _, r := range results {
		if r.Suggestion != nil {
			out = append(out, *r.Suggestion)
		}
	}
	return out
}

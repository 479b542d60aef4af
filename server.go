package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"veilleboard/config"
	"veilleboard/internal/actions"
	"veilleboard/internal/metrics"
	"veilleboard/internal/models"
	"veilleboard/internal/register"
	"veilleboard/internal/render"
	"veilleboard/internal/store"
)

// Server exposes the dashboard and the control-sheet actions over HTTP.
type Server struct {
	cfg     *config.Config
	engine  *GenerationEngine
	actions *actions.Service
	store   *store.Store
	metrics *metrics.Collector
	now     func() time.Time
}

// NewServer wires the handlers around an engine and an action service.
func NewServer(cfg *config.Config, engine *GenerationEngine, svc *actions.Service, st *store.Store, mc *metrics.Collector) *Server {
	return &Server{cfg: cfg, engine: engine, actions: svc, store: st, metrics: mc, now: time.Now}
}

// Routes returns the HTTP handler of the server.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", corsMiddleware(healthCheckHandler))
	mux.HandleFunc("/api/snapshot", corsMiddleware(s.snapshotHandler))
	mux.HandleFunc("/api/tiles", corsMiddleware(s.tilesHandler))
	mux.HandleFunc("/api/history", corsMiddleware(s.historyHandler))
	mux.HandleFunc("/api/generate", corsMiddleware(s.generateHandler))
	mux.HandleFunc("/api/generate-stream", corsMiddleware(s.generateStreamHandler))
	mux.HandleFunc("/api/gaps", corsMiddleware(s.gapsHandler))
	mux.HandleFunc("/api/search", corsMiddleware(s.searchHandler))
	mux.HandleFunc("/api/execute-action", corsMiddleware(s.executeActionHandler))
	mux.HandleFunc("/api/sync-observation", corsMiddleware(s.syncObservationHandler))
	mux.HandleFunc("/checklist/", s.checklistHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	if dir := s.cfg.Server.StaticDir; dir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}
	mux.HandleFunc("/", s.dashboardHandler)
	return mux
}

// CORS middleware to handle cross-origin requests
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Cache-Control")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Could not encode response")
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// latest answers 404 when nothing has been generated yet.
func (s *Server) latest(w http.ResponseWriter, r *http.Request) (models.Snapshot, bool) {
	snap, err := s.engine.Latest(r.Context())
	switch {
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "No dashboard generated yet", http.StatusNotFound)
		return snap, false
	case err != nil:
		http.Error(w, fmt.Sprintf("Error reading dashboard: %v", err), http.StatusInternalServerError)
		return snap, false
	}
	return snap, true
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.latest(w, r); ok {
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) tilesHandler(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.latest(w, r); ok {
		writeJSON(w, http.StatusOK, render.Tiles(snap, render.DefaultCatalog))
	}
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.SnapshotRecord{})
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	recs, err := s.store.LatestSnapshots(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error reading history: %v", err), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.SnapshotRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// limitParam reads the optional positive "limit" query parameter, 20 by default.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 20, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		http.Error(w, "Invalid 'limit' parameter", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (s *Server) gapsHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.Gap{})
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	gaps, err := s.store.Gaps(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error reading gap audit: %v", err), http.StatusInternalServerError)
		return
	}
	if gaps == nil {
		gaps = []store.Gap{}
	}
	writeJSON(w, http.StatusOK, gaps)
}

func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := s.engine.Run(r.Context())
	if errors.Is(err, ErrInvalidSnapshot) {
		writeJSON(w, http.StatusUnprocessableEntity, res.Response())
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Error during generation: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res.Response())
}

func (s *Server) generateStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Only GET and POST methods are allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set headers for Server-Sent Events
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sendSSEEvent(w, models.ProgressEvent{Type: "progress", Step: "init", Message: "Starting generation..."})
	s.engine.RunStreaming(r.Context(), w)
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	hits, err := s.actions.Search(r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Error searching: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) executeActionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding JSON request", http.StatusBadRequest)
		return
	}
	s.execute(r.Context(), w, req)
}

func (s *Server) syncObservationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}
	var req models.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding JSON request", http.StatusBadRequest)
		return
	}
	req.Action = actions.Observation
	s.execute(r.Context(), w, req)
}

func (s *Server) execute(ctx context.Context, w http.ResponseWriter, req models.ActionRequest) {
	msg, err := s.actions.Execute(ctx, req)
	switch {
	case errors.Is(err, actions.ErrUnknownAction), errors.Is(err, actions.ErrUnknownRegister):
		writeJSON(w, http.StatusBadRequest, models.ActionResponse{Message: err.Error()})
	case errors.Is(err, register.ErrRowOutOfRange):
		writeJSON(w, http.StatusNotFound, models.ActionResponse{Message: err.Error()})
	case err != nil:
		logrus.WithError(err).Error("Action failed")
		writeJSON(w, http.StatusInternalServerError, models.ActionResponse{Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, models.ActionResponse{Success: true, Message: msg})
	}
}

// checklistHandler renders /checklist/news and /checklist/base from the current registers.
func (s *Server) checklistHandler(w http.ResponseWriter, r *http.Request) {
	var kind render.SheetKind
	switch strings.TrimPrefix(r.URL.Path, "/checklist/") {
	case "news":
		kind = render.SheetNews
	case "base":
		kind = render.SheetBase
	default:
		http.NotFound(w, r)
		return
	}
	var (
		reg *register.Register
		err error
	)
	if kind == render.SheetNews {
		reg, err = loadOptional(s.cfg.Sources.News, kind.Register())
	} else {
		reg, err = register.Load(s.cfg.Sources.BaseActive, kind.Register())
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Error loading register: %v", err), http.StatusInternalServerError)
		return
	}
	sheet := render.BuildSheet(reg.Records(), kind, s.now())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Checklist(w, sheet, ""); err != nil {
		logrus.WithError(err).Error("Could not render checklist")
	}
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap, ok := s.latest(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.HTML(w, snap, render.DefaultCatalog, s.cfg.Output.JSVariable, s.now()); err != nil {
		logrus.WithError(err).Error("Could not render dashboard")
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logrus.Infof("Starting server on port %s...", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/DeafMist/nse-radar/internal/config"
	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/search"
)

type reader interface {
	Ping(ctx context.Context) error
	ListAnnouncements(ctx context.Context, offset, limit int) ([]models.AnnouncementRecord, int64, error)
	ListLogs(ctx context.Context, limit int) ([]models.RunLogEntry, error)
	Stats(ctx context.Context, todayStart, weekStart time.Time) (models.Stats, error)
}

type searcher interface {
	SearchAnnouncements(ctx context.Context, params search.SearchParams) (*search.SearchResult, error)
}

type server struct {
	log    *slog.Logger
	cfg    *config.API
	store  reader
	search searcher
	loc    *time.Location
	now    func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type logsResponse struct {
	Logs []models.RunLogEntry `json:"logs"`
}

type pageResponse struct {
	Data         []models.AnnouncementRecord `json:"data"`
	Page         int                         `json:"page"`
	TotalPages   int64                       `json:"totalPages"`
	TotalRecords int64                       `json:"totalRecords"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", s.handleLogs)
		r.Get("/stats", s.handleStats)
		r.Get("/announcements", s.handleAnnouncements)
		r.Get("/announcements/search", s.handleSearch)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), 0, 10_000)
	logs, err := s.store.ListLogs(ctx, limit)
	if err != nil {
		s.log.Error("list logs", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch logs"})
		return
	}
	if logs == nil {
		logs = []models.RunLogEntry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: logs})
}

// handleStats counts "today" from local midnight at the exchange and "this
// week" as the trailing seven days.
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	week := now.Add(-7 * 24 * time.Hour)

	stats, err := s.store.Stats(ctx, today, week)
	if err != nil {
		s.log.Error("stats", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page := clampInt(r.URL.Query().Get("page"), 1, 1_000_000)
	size := clampInt(r.URL.Query().Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage)

	records, total, err := s.store.ListAnnouncements(ctx, (page-1)*size, size)
	if err != nil {
		s.log.Error("list announcements", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to fetch announcements"})
		return
	}
	if records == nil {
		records = []models.AnnouncementRecord{}
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Data:         records,
		Page:         page,
		TotalPages:   (total + int64(size) - 1) / int64(size),
		TotalRecords: total,
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "search is not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := search.SearchParams{
		Query:  strings.TrimSpace(q.Get("q")),
		Symbol: strings.TrimSpace(q.Get("symbol")),
		From:   clampInt(q.Get("from"), 0, 10_000),
		Size:   clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Start:  parseTime(q.Get("start")),
		End:    parseTime(q.Get("end")),
	}

	result, err := s.search.SearchAnnouncements(ctx, params)
	if err != nil {
		s.log.Error("search announcements", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

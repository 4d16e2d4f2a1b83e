// Package api exposes the query engine over HTTP and MCP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/versionsql/internal/query"
	"github.com/kalambet/versionsql/internal/web"
)

// Querier executes operator SQL.
type Querier interface {
	Execute(ctx context.Context, text string) ([]query.Row, error)
}

// Catalog reports and forces refreshes of the local mirror.
type Catalog interface {
	Load(ctx context.Context) error
	LastLoad() time.Time
}

type Deps struct {
	Engine  Querier
	Catalog Catalog
	// Assets serves /static/*.
	Assets http.Handler
	// Metrics serves /metrics; nil leaves the route unmounted.
	Metrics http.Handler
	Logger  *slog.Logger

	CORSOrigins []string
	// RateLimit is requests per second per client on /query.json; 0 disables.
	RateLimit float64
	// AdminToken guards /admin/refresh; empty leaves the route unmounted.
	AdminToken string
}

func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.NotFound(web.NotFound)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, web.IndexPath, http.StatusTemporaryRedirect)
	})
	r.Handle("/static/*", deps.Assets)
	r.Get("/health", handleHealth(deps.Catalog))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit > 0 {
			r.Use(newRateLimiter(deps.RateLimit).Middleware)
		}
		r.Post("/query.json", handleQuery(deps.Engine))
	})

	if deps.AdminToken != "" {
		r.With(BearerAuth(deps.AdminToken)).Post("/admin/refresh", handleRefresh(deps.Catalog))
	}

	return r
}

type healthResponse struct {
	Status      string     `json:"status"`
	LastRefresh *time.Time `json:"last_refresh"`
}

func health(c Catalog) healthResponse {
	resp := healthResponse{Status: "ok"}
	if c != nil {
		if last := c.LastLoad(); !last.IsZero() {
			last = last.UTC()
			resp.LastRefresh = &last
		}
	}
	return resp
}

func handleHealth(c Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, health(c))
	}
}

func handleRefresh(c Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Load(r.Context()); err != nil {
			slog.Error("forced refresh failed", "error", err)
			textError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, health(c))
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/go-approvisionnements/httpx"
	"github.com/diewo77/go-approvisionnements/i18n"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	db        *gorm.DB
	routerCfg *RouterConfig
	handler   http.Handler
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, routerCfg *RouterConfig) *App {
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		routerCfg: routerCfg,
	}
	app.setupRoutes()
	app.handler = withRequestID(withLogging(withPreferences(app.mux)))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	a.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
	})
	a.mux.HandleFunc("GET /healthz", a.health)
	a.mux.HandleFunc("GET /dashboard", a.routerCfg.DashboardHandler.Show)

	// ─────────────────────────────────────────────────────────────────────────
	// Orders
	// ─────────────────────────────────────────────────────────────────────────
	oh := a.routerCfg.OrderHandler
	a.mux.HandleFunc("GET /orders", oh.List)
	a.mux.HandleFunc("GET /orders/export", oh.Export)
	a.mux.HandleFunc("GET /orders/new", oh.New)
	a.mux.HandleFunc("POST /orders", oh.Create)
	a.mux.HandleFunc("GET /orders/{id}", oh.View)
	a.mux.HandleFunc("GET /orders/{id}/edit", oh.Edit)
	a.mux.HandleFunc("POST /orders/{id}", oh.Update)
	a.mux.HandleFunc("POST /orders/{id}/delete", oh.Delete)
	a.mux.HandleFunc("POST /orders/{id}/status", oh.SetStatus)

	// ─────────────────────────────────────────────────────────────────────────
	// Catalog
	// ─────────────────────────────────────────────────────────────────────────
	sh := a.routerCfg.SupplierHandler
	a.mux.HandleFunc("GET /suppliers", sh.List)
	a.mux.HandleFunc("GET /suppliers/new", sh.New)
	a.mux.HandleFunc("POST /suppliers", sh.Create)
	a.mux.HandleFunc("GET /suppliers/{id}", sh.View)
	a.mux.HandleFunc("GET /suppliers/{id}/edit", sh.Edit)
	a.mux.HandleFunc("POST /suppliers/{id}", sh.Update)
	a.mux.HandleFunc("POST /suppliers/{id}/delete", sh.Delete)

	ah := a.routerCfg.ArticleHandler
	a.mux.HandleFunc("GET /articles", ah.List)
	a.mux.HandleFunc("GET /articles/new", ah.New)
	a.mux.HandleFunc("POST /articles", ah.Create)
	a.mux.HandleFunc("GET /articles/{id}", ah.View)
	a.mux.HandleFunc("GET /articles/{id}/price", ah.Price)
	a.mux.HandleFunc("GET /articles/{id}/edit", ah.Edit)
	a.mux.HandleFunc("POST /articles/{id}", ah.Update)
	a.mux.HandleFunc("POST /articles/{id}/delete", ah.Delete)

	// ─────────────────────────────────────────────────────────────────────────
	// Static files
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("health check failed")
		httpx.JSONError(w, http.StatusServiceUnavailable, "database_unavailable", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

const requestIDHeader = "X-Request-ID"

// withRequestID propagates the caller's X-Request-ID or assigns a new one, and
// attaches a request-scoped logger to the context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		logger := log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withLogging logs one line per request.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// withPreferences injects the language preference from the query, cookie or Accept-Language header.
func withPreferences(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		if c, err := r.Cookie("lang"); err == nil && i18n.Supported(c.Value) {
			lang = c.Value
		}
		if q := r.URL.Query().Get("lang"); i18n.Supported(q) {
			lang = q
			http.SetCookie(w, &http.Cookie{
				Name:     "lang",
				Value:    lang,
				Path:     "/",
				MaxAge:   86400 * 365,
				HttpOnly: true,
			})
		}
		next.ServeHTTP(w, r.WithContext(i18n.WithLang(r.Context(), lang)))
	})
}

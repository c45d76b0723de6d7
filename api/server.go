/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. instrument: Prometheus request count and latency
  5. CORS:       Cross-origin requests from the browser client

ROUTES:
  /token, /voice        Call signaling
  /send-sms             Guarded, billed SMS
  /update-balance       Top-up
  /accounts/{id}        Account read
  /admin/reconcile      Drift check
  /health, /metrics     Operations
  /*                    Static files (browser client)

STATIC FILE SERVING:
  Serves the client from Options.StaticDir. Unknown paths fall back to
  index.html for client-side routing. When the directory is missing a short
  placeholder page is served instead.

SECURITY NOTE:
  No authentication middleware. /update-balance and /admin/* are open to any
  caller that can reach the service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	StaticDir      string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(origins, "*"),
	}))

	r.Get("/token", h.IssueToken)
	r.Post("/voice", h.Voice)
	r.Post("/send-sms", h.SendSMS)
	r.Post("/update-balance", h.UpdateBalance)
	r.Get("/accounts/{id}", h.GetAccount)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/reconcile", h.Reconcile)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/*", staticHandler(opts.StaticDir))

	return r
}

func staticHandler(staticDir string) http.HandlerFunc {
	if info, err := os.Stat(staticDir); staticDir == "" || err != nil || !info.IsDir() {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Voice Bridge</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Voice Bridge API</h1>
<p>No client build found. Set STATIC_DIR to the directory holding index.html.</p>
<ul>
<li><a href="/health">/health</a></li>
<li><a href="/metrics">/metrics</a></li>
</ul>
</body>
</html>`))
		}
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	return func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))

		// SPA routing: anything that is not a file gets index.html
		if info, err := os.Stat(fullPath); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}

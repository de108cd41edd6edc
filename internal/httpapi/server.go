package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"msgrelay/internal/domain"
	"msgrelay/internal/metrics"
	"msgrelay/internal/registry"
)

// Defaults for the REST surface.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxBodyBytes   = 1 << 20 // 1 MiB
	DefaultMaxBatch       = 100
)

// Config holds the REST surface limits.
type Config struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxBatch       int
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	return c
}

// API bundles the components the handlers read and write.
type API struct {
	cfg       Config
	directory domain.KeyDirectory
	queue     domain.MessageQueue
	registry  *registry.Registry
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewHandler builds the full process handler: the WebSocket endpoint at
// "/", the REST API under /api, health and metrics. ws is mounted
// outside the timeout and CORS middleware; the upgrade does its own
// origin check and a session outlives any request deadline.
func NewHandler(
	cfg Config,
	dir domain.KeyDirectory,
	q domain.MessageQueue,
	reg *registry.Registry,
	m *metrics.Metrics,
	ws http.Handler,
	gatherer prometheus.Gatherer,
	log zerolog.Logger,
) http.Handler {
	a := &API{
		cfg:       cfg.withDefaults(),
		directory: dir,
		queue:     q,
		registry:  reg,
		metrics:   m,
		log:       log.With().Str("component", "httpapi").Logger(),
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Handle("/", ws)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(corsHandler.Handler)
		r.Use(middleware.Timeout(a.cfg.RequestTimeout))

		r.Get("/health", a.handleHealth)

		r.Route("/api", func(r chi.Router) {
			r.Route("/public-keys", func(r chi.Router) {
				r.Post("/", a.handleStoreKey)
				r.Post("/batch", a.handleKeyBatch)
				r.Get("/{address}", a.handleGetKey)
				r.Delete("/{address}", a.handleDeleteKey)
			})
			r.Route("/messages", func(r chi.Router) {
				r.Get("/stats/all", a.handleMessageStats)
				r.Get("/{address}", a.handleGetMessages)
				r.Get("/{address}/queue-size", a.handleQueueSize)
				r.Delete("/{address}", a.handleClearMessages)
			})
			r.Route("/status", func(r chi.Router) {
				r.Post("/batch", a.handleStatusBatch)
				r.Get("/online/all", a.handleOnlineAll)
				r.Get("/{address}", a.handleStatus)
			})
		})
	})

	return r
}

// requestLogger emits one line per completed request.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The WebSocket endpoint logs its own lifecycle.
		if r.URL.Path == "/" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"msgrelay/internal/directory"
	"msgrelay/internal/httpapi"
	"msgrelay/internal/metrics"
	"msgrelay/internal/queue"
	"msgrelay/internal/registry"
	"msgrelay/internal/session"
)

// shutdownGrace bounds the whole teardown: listener close, session
// mailbox flush, connection close.
const shutdownGrace = 5 * time.Second

// App bundles the wired components of one relay process.
type App struct {
	cfg Config
	log zerolog.Logger

	Directory *directory.Directory
	Queue     *queue.Queue
	Registry  *registry.Registry
	Sessions  *session.Manager
	Metrics   *metrics.Metrics
	Handler   http.Handler
}

// New constructs the dependency graph from cfg.
func New(cfg Config, log zerolog.Logger) *App {
	prom := prometheus.NewRegistry()

	q := queue.New(cfg.MaxOfflineMessages, cfg.MessageRetention, cfg.PurgeInterval, log)
	m := metrics.New(prom, func() float64 {
		return float64(q.Stats().Messages)
	})
	q.OnExpired(m.MessagesExpired)
	reg := registry.New(log)

	sessions := session.NewManager(session.Config{
		AuthTimeout:     cfg.AuthTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		MailboxCapacity: cfg.MailboxCapacity,
	}, reg, q, m, log, originChecker(cfg.AllowedOrigins))

	dir := directory.New(cfg.MaxKeyLen, cfg.MaxBatch)

	handler := httpapi.NewHandler(httpapi.Config{
		MaxBatch:       cfg.MaxBatch,
		AllowedOrigins: cfg.AllowedOrigins,
	}, dir, q, reg, m, sessions, prom, log)

	return &App{
		cfg:       cfg,
		log:       log,
		Directory: dir,
		Queue:     q,
		Registry:  reg,
		Sessions:  sessions,
		Metrics:   m,
		Handler:   handler,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully: stop
// accepting, signal every session to close, flush within the grace
// window, exit. In-memory state is deliberately discarded.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Int("port", a.cfg.Port).Msg("relay listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.Queue.Run(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info().Msg("shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		// Shutdown stops the listener and waits for plain HTTP requests;
		// hijacked WebSocket connections are closed by the session
		// manager.
		if err := srv.Shutdown(stopCtx); err != nil {
			a.log.Warn().Err(err).Msg("listener shutdown")
		}
		a.Sessions.Shutdown(stopCtx)
		return nil
	})

	return g.Wait()
}

// originChecker builds the WebSocket upgrade origin check from the CORS
// origin list. Requests without an Origin header (non-browser clients)
// are always allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

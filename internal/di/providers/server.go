package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/tagyard/tagyard-server/internal/api"
	"github.com/tagyard/tagyard-server/internal/auth"
	"github.com/tagyard/tagyard-server/internal/config"
	"github.com/tagyard/tagyard-server/internal/logger"
	"github.com/tagyard/tagyard-server/internal/metrics"
	"github.com/tagyard/tagyard-server/internal/ratelimit"
	"github.com/tagyard/tagyard-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	writeLimiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer h.writeLimiter.Stop()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	relHandle := do.MustInvoke[*RelationshipsHandle](i)
	posts := do.MustInvoke[*service.PostService](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	writeLimiter := ratelimit.New(
		ratelimit.PerMinute(cfg.Server.WritesPerMinute),
		cfg.Server.WriteBurst,
		10*time.Minute,
	)

	services := &api.Services{
		Relationships: relHandle.Engine,
		Posts:         posts,
		WriteLimiter:  writeLimiter,
	}

	handler := api.NewServer(services, tokens, sseHandle.Manager, m, storeHandle.Store, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, writeLimiter: writeLimiter}, nil
}

package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bondable/internal/server"
	"github.com/alanyoungcy/bondable/internal/server/handler"
	"github.com/alanyoungcy/bondable/internal/server/ws"
	"github.com/alanyoungcy/bondable/internal/service"
)

// ServerMode runs the HTTP/WebSocket API and the event relay.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Relay.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs only the periodic event archival job. Intended for a
// standalone worker next to a server-mode instance.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering archive mode")

	archiver := service.NewArchiveService(deps.Archiver, a.cfg.S3.ArchiveInterval.Duration, a.logger)
	return archiver.Run(ctx)
}

// FullMode runs the API server, the event relay, and (when S3 is enabled)
// the archival job in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Relay.Run(ctx)
	})

	if deps.Archiver != nil {
		archiver := service.NewArchiveService(deps.Archiver, a.cfg.S3.ArchiveInterval.Duration, a.logger)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP server (and the WebSocket hub when the event
// bus is wired) to the errgroup. The server shuts down gracefully when the
// context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.Info("http server disabled by config")
		return
	}

	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, service.EventChannel, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	pingers := map[string]handler.Pinger{
		"postgres": pingFunc(deps.PostgresPing),
	}
	if deps.RedisPing != nil {
		pingers["redis"] = pingFunc(deps.RedisPing)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(pingers, a.logger),
		Markets: handler.NewMarketHandler(deps.Markets, a.logger),
		Bonds:   handler.NewBondHandler(deps.Bonds, a.logger),
		Admin:   handler.NewAdminHandler(deps.Admin, a.logger),
		Events:  handler.NewEventHandler(deps.EventStore, deps.EventBus, service.EventStream, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed",
				slog.String("error", err.Error()),
			)
		}
		return ctx.Err()
	})
}

// pingFunc adapts a ping closure to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"SignalScope/internal/handler/api"
	"SignalScope/pkg/config"
	xhttp "SignalScope/pkg/http"
	pkgkafka "SignalScope/pkg/kafka"
	applogger "SignalScope/pkg/logger"
	"SignalScope/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	queue      *queue.RedisQueue
	hub        *api.Hub
}

// New creates a new App. consumer, q and hub may be nil when disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	h xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	q *queue.RedisQueue,
	hub *api.Hub,
) *App {
	srv := xhttp.NewServer([]xhttp.ServerOption{
		xhttp.WithLogger(log),
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
	}, h)
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: srv,
		consumer:   consumer,
		kh:         kh,
		queue:      q,
		hub:        hub,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches the HTTP server, the scan request consumer and the scan
// job workers.
func (a *App) Start(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return err
		}
	}
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
		a.log.Info("scan request consumer started", applogger.String("topic", a.kh.Topic()))
	}
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, drains the consumer and disconnects
// websocket clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.queue != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.queue.Stop(stopCtx); err != nil {
			a.log.Warn("scan queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.hub != nil {
		a.hub.Close()
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

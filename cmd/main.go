package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"go-event-registry/internal/infrastructure/logger"
	"go-event-registry/internal/infrastructure/registry"
	"go-event-registry/internal/infrastructure/server"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	lCfg := logger.NewDefaultConfig()
	log := logger.NewLogrusLogger(lCfg)

	// One registry for the whole process; every handler shares it. It has
	// no shutdown of its own, the heartbeat loop runs until the process
	// exits.
	reg := registry.New(log, registry.DefaultHeartbeatPeriod)

	router := InitRouter(reg, log)
	httpSrv := server.NewHTTPServer(router)
	app := newApplication(log, httpSrv)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

type Application struct {
	logger  logger.Logger
	httpSrv server.Server
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
) *Application {
	return &Application{
		logger:  logger.WithField("app", "event-registry"),
		httpSrv: httpSrv,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}

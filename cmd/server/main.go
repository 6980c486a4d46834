package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/engine"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/httpapi"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/ledger"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/memstore"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/notify"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/pgstore"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	gateway := store.New(backend,
		store.WithLogger(logger),
		store.WithMaxAttempts(cfg.TxAttempts),
	)
	defer func() { err = multierr.Append(err, gateway.Close()) }()

	var dispatcher notify.Dispatcher = notify.Logger{Log: logger}
	if cfg.AMQPURL != "" {
		amqp, dialErr := notify.DialAMQP(cfg.AMQPURL, cfg.NudgeQueue, logger)
		if dialErr != nil {
			return dialErr
		}
		defer func() { err = multierr.Append(err, amqp.Close()) }()
		dispatcher = amqp
	}

	l := ledger.New(dispatcher, logger)
	e := engine.New(gateway,
		engine.WithSettleDelay(cfg.SettleDelay),
		engine.WithLogger(logger),
		engine.WithRecorder(l),
	)

	// Build the router *with* the gateway injected
	handler := httpapi.SetupRoutes(httpapi.NewServer(httpapi.Deps{
		Gateway:   gateway,
		Engine:    e,
		Ledger:    l,
		Metrics:   gateway.Metrics(),
		Logger:    logger,
		JWTSecret: cfg.JWTSecret,
	}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		return pgstore.Open(ctx, cfg.DatabaseURL, logger)
	default:
		// Lobbies live until the gateway is closed, after the server drains.
		return memstore.New(context.Background()), nil
	}
}

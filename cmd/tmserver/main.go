package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting translation memory service",
		"port", cfg.Server.Port,
		"rpc_port", cfg.RPC.Port,
		"backends", len(cfg.TM.Backends),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	a, err := app.New(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to initialise service", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("error releasing resources", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	a.Start(gctx, g)

	// WriteTimeout stays unset: imports stream for as long as the corpus
	// takes, and every other route is bounded by the Timeout middleware.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     a.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if m != nil {
		ms := metrics.NewServer(cfg.Metrics.Port, nil)
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", ms.Addr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if cfg.RPC.Enabled {
		rpc := a.RPCServer()
		g.Go(func() error {
			addr := fmt.Sprintf(":%d", cfg.RPC.Port)
			slog.Info("rpc server listening", "addr", addr)
			return rpc.Serve(addr)
		})
		g.Go(func() error {
			<-gctx.Done()
			rpc.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("translation memory service stopped")
}

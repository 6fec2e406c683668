package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// ServerConfig configures the scrape endpoint.
type ServerConfig struct {
	Addr     string
	Endpoint string
	Logger   *slog.Logger
}

// Serve exposes the collector on cfg.Addr until ctx is cancelled. A
// /healthz endpoint answers "ok" for liveness probes.
func Serve(ctx context.Context, c *Collector, cfg ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", cfg.Addr, err)
	}
	return serve(ctx, ln, c, cfg)
}

func serve(ctx context.Context, ln net.Listener, c *Collector, cfg ServerConfig) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/metrics"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+cfg.Endpoint, c.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	cfg.Logger.Info("metrics server started", "addr", "http://"+ln.Addr().String()+cfg.Endpoint)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	err := server.Serve(ln)
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// HTTPServer exposes the JSON-RPC handler on a single POST endpoint with
// ordinary per-request concurrency. Protocol errors stay in-band as
// JSON-RPC error envelopes; only non-POST methods and oversized bodies are
// rejected at the HTTP layer.
type HTTPServer struct {
	handler RequestHandler
	cfg     domain.HTTPConfig
	logger  *zap.Logger
}

func NewHTTPServer(handler RequestHandler, cfg domain.HTTPConfig, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = domain.DefaultHTTPListenAddress
	}
	return &HTTPServer{
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("http"),
	}
}

// Handler returns the bound http.Handler, exported so tests and embedders
// can mount it without a listener.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(domain.DefaultRPCPath, s.serveRPC)

	middleware := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return middleware.Handler(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully. A failure
// to bind is fatal and propagates to startup.
func (s *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.ListenAddress,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http transport listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http transport shutdown: %w", err)
		}
		s.logger.Info("http transport stopped")
		return nil
	}
}

func (s *HTTPServer) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, domain.DefaultMaxRequestBytes+1))
	if err != nil {
		http.Error(w, "read request", http.StatusBadRequest)
		return
	}
	if len(body) > domain.DefaultMaxRequestBytes {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	response := s.handler.Handle(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(response); err != nil {
		s.logger.Debug("write response failed", zap.Error(err))
	}
}

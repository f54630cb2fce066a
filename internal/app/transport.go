package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// RunStdio serves a single session over stdin/stdout until ctx is done.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("serving on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP endpoint. An `actors` query
// parameter on the request loads those actors before the request is served,
// so a client can select its tool set at connection time.
func (s *Server) HTTPHandler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.URL.Query().Get("actors"); raw != "" {
			s.ensureActors(r.Context(), strings.Split(raw, ","))
		}
		streamable.ServeHTTP(w, r)
	})
}

// RunHTTP serves the streamable HTTP transport until ctx is done.
func (s *Server) RunHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPListenAddress,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving streamable http", zap.String("address", s.cfg.HTTPListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ensureActors loads any of names not yet in the catalog, using the
// configured token. Failures log and continue; the endpoint stays up.
func (s *Server) ensureActors(ctx context.Context, names []string) {
	var missing []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := s.catalog.Resolve(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return
	}
	if _, err := s.LoadActors(ctx, s.cfg.Token, missing, nil); err != nil {
		s.logger.Warn("connection-time actor load failed", zap.Strings("actors", missing), zap.Error(err))
	}
}

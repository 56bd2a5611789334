// Package healthcheck serves a liveness endpoint next to the socket loop so
// a supervisor can tell a connected bot from a wedged one.
package healthcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// NormalizeListen turns a bare port like "9090" into ":9090" and trims
// whitespace; an empty value disables the server.
func NormalizeListen(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, ":") {
		return ":" + raw
	}
	return raw
}

type Server struct {
	httpServer *http.Server
}

// StartServer begins serving GET /healthz on addr. The returned server must
// be shut down by the caller.
func StartServer(ctx context.Context, logger *slog.Logger, addr, component string) (*Server, error) {
	addr = NormalizeListen(addr)
	if addr == "" {
		return nil, fmt.Errorf("health listen address is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	startedAt := time.Now().UTC()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"component":  component,
			"started_at": startedAt.Format(time.RFC3339),
		})
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Warn("health_server_error", "addr", addr, "error", serveErr.Error())
		}
	}()
	logger.Info("health_server_start", "addr", addr, "component", component)
	return &Server{httpServer: srv}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

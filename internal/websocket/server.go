package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/bruwatch/internal/types"
)

// Roots lists the watched collection roots for the status endpoint.
type Roots interface {
	WatchedRoots(ctx context.Context) ([]types.CollectionRoot, error)
}

// Routes mounts the hub and status endpoints on a chi mux.
func (h *Hub) Routes(roots Roots) http.Handler {
	r := chi.NewMux()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/ws", h.HandleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": h.ConnectedClients(),
			"evicted": h.Evicted(),
		})
	})
	r.Get("/collections", func(w http.ResponseWriter, req *http.Request) {
		list := []types.CollectionRoot{}
		if roots != nil {
			watched, err := roots.WatchedRoots(req.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			list = append(list, watched...)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"collections": list})
	})
	return r
}

// Serve listens on addr and blocks until ctx is cancelled, then shuts the
// hub and the server down.
func (h *Hub) Serve(ctx context.Context, addr string, roots Roots) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: h.Routes(roots),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.logger.Info(ctx, "Starting WebSocket server", "addr", "ws://"+addr+"/ws")

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Debug(shutdownCtx, "Shutting down WebSocket server")
		_ = h.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

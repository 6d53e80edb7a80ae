// README: API gateway; owns the HTTP server lifecycle and delegates to module services.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"travelflow/internal/log"
	"travelflow/internal/modules/chat"
	"travelflow/internal/modules/itinerary"
	"travelflow/internal/modules/location"
)

const shutdownTimeout = 10 * time.Second

type ServerDeps struct {
	Itinerary *itinerary.Service
	Chat      *chat.Service
	Location  *location.Service
	// APIToken guards /api when set.
	APIToken string
}

type Server struct {
	http *http.Server
}

func NewServer(addr string, deps ServerDeps) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Routes() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("http server listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

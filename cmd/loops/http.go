package loops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type HTTPSrv struct {
	l      *slog.Logger
	addr   string
	router http.Handler
}

func NewHTTPSrv(addr string, router http.Handler) *HTTPSrv {
	return &HTTPSrv{
		l:      slog.With("component", "httpsrv"),
		addr:   addr,
		router: router,
	}
}

func (s *HTTPSrv) log() *slog.Logger {
	if s.l != nil {
		return s.l
	}
	return slog.With("component", "httpsrv")
}

// Listen binds the configured address. A bind failure is returned to the
// caller before anything else is started.
func (s *HTTPSrv) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("cannot bind HTTP server to %s: %w", s.addr, err)
	}
	return ln, nil
}

// Serve blocks until ctx is done, then shuts the server down gracefully so
// in-flight requests complete.
func (s *HTTPSrv) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		// Context was cancelled, shut down the HTTP server gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log().Error("HTTP server shutdown error", slog.Any("err", err))
		} else {
			s.log().Debug("HTTP server shut down")
		}
	}()

	s.log().Info("starting HTTP server", slog.String("addr", ln.Addr().String()))

	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err // real error
	}
	<-shutdownDone
	return nil
}

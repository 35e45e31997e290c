package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Serve runs the admin HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h *Handler, logger *logrus.Logger) error {
	accessLog := logger.WriterLevel(logrus.DebugLevel)
	defer accessLog.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(accessLog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("admin http listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

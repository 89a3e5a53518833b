package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Start serves HTTP on the configured address in the background. Request
// contexts derive from ctx, so cancelling it ends open streams. The returned
// channel yields the error that stopped the server, if any.
func (app *App) Start(ctx context.Context) <-chan error {
	logger := app.Observability.Provider.Logger

	app.httpServer = &http.Server{
		Addr:              app.Config.HTTP.Address,
		Handler:           app.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("address", app.httpServer.Addr))
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func (app *App) shutdownHTTP() error {
	if app.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.httpServer.Shutdown(ctx)
}

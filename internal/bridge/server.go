// Package bridge exposes a Dialer to a presentation layer over HTTP: a small
// JSON API for the operations and a server-sent event stream for the
// notifications.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/autodialer/internal/dialer"
	"github.com/zulandar/autodialer/internal/models"
)

// Session is the part of a Dialer the bridge drives.
type Session interface {
	GetState() dialer.State
	StartCall(ctx context.Context, profile models.CallerProfile) error
	EndCall() error
	ResetToIdle()
	SendResponse(ctx context.Context, response string) error
}

// StartOpts holds configuration for the bridge server.
type StartOpts struct {
	Session Session
	Hub     *Hub
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Port    int
	Out     io.Writer
}

// Start launches the bridge HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Session == nil {
		return fmt.Errorf("bridge: session is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Bridge listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving the bridge routes.
func NewRouter(opts StartOpts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	registerRoutes(router, opts)
	return router
}

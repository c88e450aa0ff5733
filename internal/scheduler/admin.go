package scheduler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jacobdh/eventmq/internal/transport"
)

// adminServer is the administrative listener: the admin websocket
// endpoint carrying STATUS_CMD envelopes, a health probe, and the
// prometheus metrics.
type adminServer struct {
	addr   string
	echo   *echo.Echo
	logger zerolog.Logger
}

func newAdminServer(addr string, router *transport.Router, logger zerolog.Logger) *adminServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/", router.Handle)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &adminServer{
		addr:   addr,
		echo:   e,
		logger: logger.With().Str("component", "admin").Logger(),
	}
}

func (a *adminServer) start() {
	go func() {
		a.logger.Info().Str("addr", a.addr).Msg("Administrative listener starting")
		if err := a.echo.Start(a.addr); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("Administrative listener failed")
		}
	}()
}

func (a *adminServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Administrative listener shutdown failed")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/enrichman/httpgrace"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	route "github.com/coolnight20187/python-7ty-system/internal/api/route"
	"github.com/coolnight20187/python-7ty-system/internal/config"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// newServeCmd creates the "ty7-worker serve" subcommand.
func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker in front of the configured front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			logger.WithComponent("main").Infof("worker for %s will run on port: %d (origin %s, upstream %s)",
				cfg.Worker.Frontend, cfg.Server.Port, cfg.Worker.Origin, cfg.Worker.UpstreamURL)

			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if err := app.Bootstrap(app.BaseCtx); err != nil {
				// the worker still proxies; StartWatchers keeps retrying the install
				logger.WithComponent("main").Warnf("initial cache install failed: %v", err)
			}
			if err := app.StartWatchers(); err != nil {
				return err
			}

			gin.SetMode(cfg.Misc.GinMode)
			gin.DefaultWriter = logger.Logger.Writer()
			gin.DefaultErrorWriter = logger.Logger.Writer()

			r := route.SetupRoutes(app, logger.Logger)
			srv := createGraceHttpServer(app.BaseCtx, "worker", cfg.Server, r)
			if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, h http.Handler) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(h,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}

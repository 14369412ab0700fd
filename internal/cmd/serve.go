package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/app"
	"github.com/granito/portfolio/internal/handler"
	"github.com/granito/portfolio/internal/router"
	"github.com/granito/portfolio/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the HTTP server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				return runServer(cmd.Context(), a, addr)
			}
			return runServer(cmd.Context(), a, a.Config.Server.ListenAddr())
		},
	}
	serveCmd.Flags().String("addr", "", "Listen address, overrides server.host/server.port")
	return serveCmd
}

// NewHTTPHandler 按应用配置组装 Gin 引擎。
func NewHTTPHandler(a *app.App) *gin.Engine {
	cfg := a.Config
	gin.SetMode(cfg.Server.Mode)

	api := handler.NewAPI(a.Visitors, a.Contacts, a.Auth, a.Content, a.Logger, handler.Options{
		TrackedPaths:      cfg.Visitors.TrackedPaths,
		TrustProxyHeaders: cfg.Server.TrustedProxy,
		RetentionDays:     cfg.Visitors.RetentionDays,
		Ping:              a.Ping,
	})
	return router.SetupRouter(api, cfg.Server.SessionSecret, a.Logger)
}

func runServer(parent context.Context, a *app.App, addr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	interval, err := a.Config.Visitors.CleanupEvery()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("[Server] Listening", "addr", addr, "driver", a.Config.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Logger.Info("[Server] Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if interval > 0 {
		job := service.NewRetentionJob(a.Visitors, interval, a.Config.Visitors.RetentionDays, a.Logger)
		g.Go(func() error {
			return job.Start(gctx)
		})
	}

	return g.Wait()
}

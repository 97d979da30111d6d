package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crewline/internal/app"
	"crewline/internal/config"
	"crewline/internal/server"
	"crewline/internal/telemetry"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Init(ctx, "crewline", version, telemetry.Enabled(), os.Stderr)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					slog.Warn("tracing shutdown failed", slog.Any("error", err))
				}
			}()

			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				secret := jwtSecret()
				if secret == "" {
					return fmt.Errorf("CREWLINE_JWT_SECRET is required for bearer auth")
				}
				if allowHeader && cfg.Stage != config.StageLocal {
					return fmt.Errorf("--allow-brawler-header is only available in the Local stage (current: %s)", cfg.Stage)
				}
				logger := slog.Default()
				handler, err := server.New(server.Config{
					Engine:    rt.Engine,
					BasePath:  basePath,
					Stage:     cfg.Stage,
					Timeout:   cfg.RequestTimeout(),
					BodyLimit: cfg.Server.BodyLimitBytes,
					Logger:    logger.With("logger", "http"),
					Version:   version,
					Auth: server.AuthConfig{
						JWTSecret:          secret,
						TokenTTL:           cfg.TokenTTL(),
						AllowBrawlerHeader: allowHeader,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				dispatcher := server.NewWebhookDispatcher(rt.Repo, cfg.Webhooks, logger)

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				g.Go(func() error {
					return dispatcher.Run(gctx)
				})

				fmt.Printf("Serving Crewline API on http://%s%s (stage %s, OpenAPI at /openapi.json, metrics at /metrics)\n", addr, basePath, cfg.Stage)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&allowHeader, "allow-brawler-header", false, "trust X-Brawler-Id without a token (Local stage only)")
	return cmd
}

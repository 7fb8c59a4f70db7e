package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mujtabafurqan/podcastfy/internal/config"
	"github.com/mujtabafurqan/podcastfy/internal/repository/postgresql"
	"github.com/mujtabafurqan/podcastfy/internal/service"
	httptransport "github.com/mujtabafurqan/podcastfy/internal/transport/http"
)

func serveCmd(cfg config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabaseURL(cfg); err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := postgresql.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgresql.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("database ready", "dsn", redactDSN(cfg.DatabaseURL))

			repo := postgresql.NewPodcastRepository(pool)

			var queue service.Queue
			if cfg.RedisAddr != "" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.RedisAddr,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				})
				if err := rdb.Ping(ctx).Err(); err != nil {
					return err
				}
				queue = service.NewRedisQueue(rdb, cfg.QueueKey, cfg.QueueProcessingKey)
				log.Info("redis dispatch queue enabled", "addr", cfg.RedisAddr)
			} else {
				log.Info("no REDIS_ADDR set, workers will poll the database")
			}

			svc := service.NewPodcastService(repo, queue, log)
			h := httptransport.NewHandler(svc, cfg.R2PublicBaseURL, cfg.AudioDir)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           httptransport.Routes(h, log, cfg.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("web service listening", "port", cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("web service stopped")
			return nil
		},
	}
}

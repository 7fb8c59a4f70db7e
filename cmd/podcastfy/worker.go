package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mujtabafurqan/podcastfy/internal/config"
	"github.com/mujtabafurqan/podcastfy/internal/entity"
	"github.com/mujtabafurqan/podcastfy/internal/generator"
	"github.com/mujtabafurqan/podcastfy/internal/repository/postgresql"
	"github.com/mujtabafurqan/podcastfy/internal/service"
	"github.com/mujtabafurqan/podcastfy/internal/storage"
	"github.com/mujtabafurqan/podcastfy/internal/worker"
)

func workerCmd(cfg config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background generation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabaseURL(cfg); err != nil {
				return err
			}
			if cfg.GenerateCommand == "" {
				return errors.New("GENERATE_COMMAND is required for the worker")
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

			if counts, err := repo.CountByStatus(ctx); err == nil {
				log.Info("job backlog",
					"queued", counts[entity.StatusQueued],
					"processing", counts[entity.StatusProcessing],
					"completed", counts[entity.StatusCompleted],
					"failed", counts[entity.StatusFailed],
				)
			}

			gen, err := generator.NewCommandGenerator(cfg.GenerateCommand, generationEnv(cfg), log)
			if err != nil {
				return err
			}

			var store worker.Storage
			r2cfg := storage.R2Config{
				AccountID:       cfg.R2AccountID,
				AccessKeyID:     cfg.R2AccessKeyID,
				SecretAccessKey: cfg.R2SecretAccessKey,
				Bucket:          cfg.R2Bucket,
				PublicBaseURL:   cfg.R2PublicBaseURL,
			}
			if r2cfg.Configured() {
				r2, err := storage.NewR2(ctx, r2cfg, log)
				if err != nil {
					return err
				}
				store = r2
			} else {
				log.Info("R2 storage not configured, audio stays local", "dir", cfg.AudioDir)
			}

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

				// Reaper: ids claimed from Redis by a worker that died come
				// back to the queue. Redelivery is safe, the Postgres claim
				// rejects ids that are no longer queued.
				go func() {
					ticker := time.NewTicker(30 * time.Second)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							n, err := queue.RequeueStale(ctx, 100)
							if err != nil {
								log.Warn("requeue stale", "error", err)
								continue
							}
							if n > 0 {
								log.Info("requeued stale queue entries", "count", n)
							}
						}
					}
				}()
			}

			processor := worker.NewProcessor(repo, gen, store, cfg.MaxRetries, log)
			pool2 := worker.NewPool(repo, queue, processor, cfg.Workers, cfg.PollInterval, log)
			pool2.Run(ctx)
			return nil
		},
	}
}

// generationEnv passes the API keys through to the generation command.
func generationEnv(cfg config.Config) []string {
	var env []string
	if cfg.OpenAIAPIKey != "" {
		env = append(env, "OPENAI_API_KEY="+cfg.OpenAIAPIKey)
	}
	if cfg.GeminiAPIKey != "" {
		env = append(env, "GEMINI_API_KEY="+cfg.GeminiAPIKey)
	}
	return env
}

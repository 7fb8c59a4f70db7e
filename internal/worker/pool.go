package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mujtabafurqan/podcastfy/internal/entity"
	"github.com/mujtabafurqan/podcastfy/internal/repository/postgresql"
	"github.com/mujtabafurqan/podcastfy/internal/service"
)

// ClaimRepo is the claiming side of the repository.
type ClaimRepo interface {
	ClaimNext(ctx context.Context) (*entity.Podcast, error)
	ClaimByID(ctx context.Context, id uuid.UUID) (*entity.Podcast, error)
	ReclaimStale(ctx context.Context, age time.Duration) (int64, error)
}

// Pool runs N processing workers fed from two dispatch sources:
//
//   - the Redis queue (low latency wakeup carrying job ids), when configured;
//   - a poll ticker calling ClaimNext, which also picks up re-queued retries
//     and anything the queue missed.
//
// Each poll tick first reclaims processing rows that have been stuck past
// staleAge, so a job orphaned by a dead worker eventually runs again. Both
// dispatch sources funnel through the conditional claim in Postgres, so a
// job is processed by at most one worker regardless of how it was
// dispatched.
type Pool struct {
	repo         ClaimRepo
	queue        service.Queue // nil => poll-only
	processor    *Processor
	workers      int
	pollInterval time.Duration
	claimDelay   time.Duration
	staleAge     time.Duration
	log          *slog.Logger
}

func NewPool(repo ClaimRepo, queue service.Queue, processor *Processor, workers int, pollInterval time.Duration, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		repo:         repo,
		queue:        queue,
		processor:    processor,
		workers:      workers,
		pollInterval: pollInterval,
		claimDelay:   5 * time.Second,
		staleAge:     15 * time.Minute,
		log:          log,
	}
}

func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started", "workers", p.workers, "poll_interval", p.pollInterval, "queue", p.queue != nil)

	jobCh := make(chan *entity.Podcast)

	var workers sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workers.Add(1)
		go func(n int) {
			defer workers.Done()
			for job := range jobCh {
				if err := p.processor.Process(ctx, job); err != nil {
					p.log.Error("process job", "worker", n, "job_id", job.ID, "error", err)
				}
				// The job is already in a new state in Postgres (or will be
				// re-dispatched by the poller), so the queue entry is done.
				if p.queue != nil {
					if err := p.queue.Ack(ctx, job.ID.String()); err != nil {
						p.log.Warn("ack job", "worker", n, "job_id", job.ID, "error", err)
					}
				}
			}
		}(i + 1)
	}

	var producers sync.WaitGroup
	producers.Add(1)
	go func() {
		defer producers.Done()
		p.pollLoop(ctx, jobCh)
	}()
	if p.queue != nil {
		producers.Add(1)
		go func() {
			defer producers.Done()
			p.queueLoop(ctx, jobCh)
		}()
	}

	producers.Wait()
	close(jobCh)
	workers.Wait()
	p.log.Info("worker pool stopped")
}

// pollLoop reclaims stale processing rows and drains the queued backlog on
// every tick.
func (p *Pool) pollLoop(ctx context.Context, jobCh chan<- *entity.Podcast) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.repo.ReclaimStale(ctx, p.staleAge); err != nil {
				if ctx.Err() == nil {
					p.log.Error("reclaim stale jobs", "error", err)
				}
			} else if n > 0 {
				p.log.Warn("reclaimed stale processing jobs", "count", n)
			}
			for {
				job, err := p.repo.ClaimNext(ctx)
				if err != nil {
					if !errors.Is(err, postgresql.ErrNotFound) && ctx.Err() == nil {
						p.log.Error("claim next", "error", err)
					}
					break
				}
				select {
				case jobCh <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// queueLoop turns queued ids into claimed jobs. An id whose conditional
// claim fails was taken by another worker (or already resolved) and is
// simply acked away.
func (p *Pool) queueLoop(ctx context.Context, jobCh chan<- *entity.Podcast) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
		if err != nil {
			// timeout/redis.Nil/ctx cancel are all non-fatal here
			continue
		}

		id, err := uuid.Parse(jobID)
		if err != nil {
			p.log.Warn("discarding malformed queue entry", "entry", jobID)
			_ = p.queue.Ack(ctx, jobID)
			continue
		}

		job, err := p.repo.ClaimByID(ctx, id)
		if err != nil {
			if errors.Is(err, postgresql.ErrNotClaimable) {
				_ = p.queue.Ack(ctx, jobID)
			} else if ctx.Err() == nil {
				p.log.Error("claim by id", "job_id", id, "error", err)
			}
			continue
		}

		select {
		case jobCh <- job:
		case <-ctx.Done():
			return
		}
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/mujtabafurqan/podcastfy/internal/entity"
	"github.com/mujtabafurqan/podcastfy/internal/repository/postgresql"
)

var ErrInvalidURL = errors.New("url must be a valid http(s) URL")

// Repository port (implementation: postgresql.PodcastRepository).
type PodcastRepository interface {
	Create(ctx context.Context, url string) (*entity.Podcast, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Podcast, error)
	GetByURL(ctx context.Context, url string) (*entity.Podcast, error)
	List(ctx context.Context, limit int) ([]*entity.Podcast, error)
	ResetForRetry(ctx context.Context, id uuid.UUID) error
}

// JobQueue is the small enqueue-only port used on the submission path.
// (The full Queue interface lives in queue_service.go.)
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type PodcastService struct {
	repo  PodcastRepository
	queue JobQueue // nil => workers rely on DB polling only
	log   *slog.Logger
}

func NewPodcastService(repo PodcastRepository, queue JobQueue, log *slog.Logger) *PodcastService {
	if log == nil {
		log = slog.Default()
	}
	return &PodcastService{repo: repo, queue: queue, log: log}
}

// Submit enqueues a generation job for rawURL, deduplicating on the URL:
//   - completed       -> the existing podcast is returned as-is
//   - queued/processing -> the in-flight job is returned for polling
//   - failed          -> the row is reset to queued and dispatched again
//
// The returned bool reports whether a new row was created.
func (s *PodcastService) Submit(ctx context.Context, rawURL string) (*entity.Podcast, bool, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByURL(ctx, rawURL)
	switch {
	case err == nil:
		return s.resolveExisting(ctx, existing)
	case errors.Is(err, postgresql.ErrNotFound):
		// fall through to create
	default:
		return nil, false, err
	}

	p, err := s.repo.Create(ctx, rawURL)
	if err != nil {
		if errors.Is(err, postgresql.ErrDuplicateURL) {
			// lost a race with a concurrent submission of the same URL
			if existing, getErr := s.repo.GetByURL(ctx, rawURL); getErr == nil {
				return s.resolveExisting(ctx, existing)
			}
		}
		return nil, false, err
	}

	s.dispatch(ctx, p.ID)
	s.log.Info("created podcast job", "job_id", p.ID, "url", rawURL)
	return p, true, nil
}

func (s *PodcastService) resolveExisting(ctx context.Context, existing *entity.Podcast) (*entity.Podcast, bool, error) {
	if existing.Status != entity.StatusFailed {
		return existing, false, nil
	}

	// failed jobs may be retried on re-submission
	if err := s.repo.ResetForRetry(ctx, existing.ID); err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			// someone else reset or re-claimed it first; report current state
			current, getErr := s.repo.GetByID(ctx, existing.ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return current, false, nil
		}
		return nil, false, err
	}

	s.dispatch(ctx, existing.ID)
	s.log.Info("re-queued failed podcast job", "job_id", existing.ID, "url", existing.URL)

	requeued, err := s.repo.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, false, err
	}
	return requeued, false, nil
}

// dispatch notifies a worker through the queue. The row is already durably
// queued in Postgres, so a queue error only costs latency: the worker poll
// loop will find the job.
func (s *PodcastService) dispatch(ctx context.Context, id uuid.UUID) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, id.String()); err != nil {
		s.log.Warn("queue dispatch failed, job will be picked up by polling", "job_id", id, "error", err)
	}
}

func (s *PodcastService) Get(ctx context.Context, id uuid.UUID) (*entity.Podcast, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PodcastService) Library(ctx context.Context, limit int) ([]*entity.Podcast, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

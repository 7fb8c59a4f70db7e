package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mujtabafurqan/podcastfy/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateURL: the url column is unique, a second submission for the
	// same URL must resolve to the existing row instead.
	ErrDuplicateURL = errors.New("url already exists")

	// ErrNotClaimable: the job is not in a state the requested transition
	// accepts (e.g. claiming a job another worker already took).
	ErrNotClaimable = errors.New("job not claimable")
)

const podcastColumns = `id, url, title, audio_filename, status, created_at, started_at, completed_at, duration, error_message, retry_count`

type PodcastRepository struct {
	pool *pgxpool.Pool
}

func NewPodcastRepository(pool *pgxpool.Pool) *PodcastRepository {
	return &PodcastRepository{pool: pool}
}

func scanPodcast(row pgx.Row) (*entity.Podcast, error) {
	var p entity.Podcast
	var status string
	err := row.Scan(
		&p.ID,
		&p.URL,
		&p.Title,
		&p.AudioFilename,
		&status,
		&p.CreatedAt,
		&p.StartedAt,
		&p.CompletedAt,
		&p.Duration,
		&p.ErrorMessage,
		&p.RetryCount,
	)
	if err != nil {
		return nil, err
	}
	p.Status = entity.Status(status)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a new queued job for url. Returns ErrDuplicateURL when a
// row for the url already exists.
func (r *PodcastRepository) Create(ctx context.Context, url string) (*entity.Podcast, error) {
	const q = `
INSERT INTO podcasts (url, status)
VALUES ($1, 'queued')
RETURNING ` + podcastColumns + `;`

	p, err := scanPodcast(r.pool.QueryRow(ctx, q, url))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateURL
		}
		return nil, err
	}
	return p, nil
}

func (r *PodcastRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Podcast, error) {
	const q = `SELECT ` + podcastColumns + ` FROM podcasts WHERE id = $1;`

	p, err := scanPodcast(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PodcastRepository) GetByURL(ctx context.Context, url string) (*entity.Podcast, error) {
	const q = `SELECT ` + podcastColumns + ` FROM podcasts WHERE url = $1;`

	p, err := scanPodcast(r.pool.QueryRow(ctx, q, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns jobs ordered by creation time, newest first.
func (r *PodcastRepository) List(ctx context.Context, limit int) ([]*entity.Podcast, error) {
	const q = `SELECT ` + podcastColumns + ` FROM podcasts ORDER BY created_at DESC LIMIT $1;`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClaimNext atomically takes ownership of the oldest queued job, moving it
// to processing and stamping started_at. FOR UPDATE SKIP LOCKED guarantees
// at most one worker claims a given row. Returns ErrNotFound when the queue
// is empty.
func (r *PodcastRepository) ClaimNext(ctx context.Context) (*entity.Podcast, error) {
	const q = `
UPDATE podcasts SET status = 'processing', started_at = NOW()
WHERE id = (
	SELECT id FROM podcasts
	WHERE status = 'queued'
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + podcastColumns + `;`

	p, err := scanPodcast(r.pool.QueryRow(ctx, q))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ClaimByID is the conditional claim for queue-dispatched ids. Zero rows
// updated means another worker won the race (or the id is unknown):
// ErrNotClaimable.
func (r *PodcastRepository) ClaimByID(ctx context.Context, id uuid.UUID) (*entity.Podcast, error) {
	const q = `
UPDATE podcasts SET status = 'processing', started_at = NOW()
WHERE id = $1 AND status = 'queued'
RETURNING ` + podcastColumns + `;`

	p, err := scanPodcast(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotClaimable
		}
		return nil, err
	}
	return p, nil
}

// Complete finishes a processing job with its generated metadata.
func (r *PodcastRepository) Complete(ctx context.Context, id uuid.UUID, title, audioFilename string, duration int) error {
	const q = `
UPDATE podcasts
SET status = 'completed', title = $2, audio_filename = $3, duration = $4, completed_at = NOW()
WHERE id = $1 AND status = 'processing';`

	tag, err := r.pool.Exec(ctx, q, id, title, audioFilename, duration)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimable
	}
	return nil
}

// Fail records a processing failure. The attempt counter is always
// incremented; while it stays under maxRetries the job goes back to queued
// for another attempt, otherwise it lands in failed with completed_at set.
// Returns whether the job was re-queued.
func (r *PodcastRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) (bool, error) {
	const q = `
UPDATE podcasts
SET retry_count = retry_count + 1,
    error_message = $2,
    status = CASE WHEN retry_count + 1 < $3 THEN 'queued' ELSE 'failed' END,
    started_at = CASE WHEN retry_count + 1 < $3 THEN NULL ELSE started_at END,
    completed_at = CASE WHEN retry_count + 1 < $3 THEN NULL ELSE NOW() END
WHERE id = $1 AND status = 'processing'
RETURNING status;`

	var status string
	if err := r.pool.QueryRow(ctx, q, id, errMsg, maxRetries).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotClaimable
		}
		return false, err
	}
	return status == string(entity.StatusQueued), nil
}

// ReclaimStale returns processing rows whose started_at is older than age to
// queued. A worker that died mid-job never records an outcome; the next poll
// tick picks the row up again.
func (r *PodcastRepository) ReclaimStale(ctx context.Context, age time.Duration) (int64, error) {
	const q = `
UPDATE podcasts
SET status = 'queued', started_at = NULL
WHERE status = 'processing' AND started_at < NOW() - make_interval(secs => $1);`

	tag, err := r.pool.Exec(ctx, q, age.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ResetForRetry puts a failed job back in the queue, clearing the previous
// outcome. Used when a URL is re-submitted after a failure.
func (r *PodcastRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE podcasts
SET status = 'queued', error_message = NULL, started_at = NULL, completed_at = NULL
WHERE id = $1 AND status = 'failed';`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns a status -> count summary.
func (r *PodcastRepository) CountByStatus(ctx context.Context) (map[entity.Status]int, error) {
	const q = `SELECT status, COUNT(*) FROM podcasts GROUP BY status;`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[entity.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[entity.Status(status)] = n
	}
	return counts, rows.Err()
}

package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mujtabafurqan/podcastfy/internal/entity"
)

// maxErrorMessageLen bounds what lands in the error_message column.
const maxErrorMessageLen = 500

// JobRepo is the outcome-recording side of the repository.
type JobRepo interface {
	Complete(ctx context.Context, id uuid.UUID, title, audioFilename string, duration int) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) (requeued bool, err error)
}

// Generator produces the podcast audio file for a URL and returns its local
// path. The generation pipeline itself lives outside this service.
type Generator interface {
	Generate(ctx context.Context, url string) (audioPath string, err error)
}

// Storage uploads a finished audio file. nil Storage keeps files local and
// lets the web service stream them.
type Storage interface {
	Upload(ctx context.Context, localPath, objectKey string) (publicURL string, err error)
}

type Processor struct {
	repo       JobRepo
	gen        Generator
	storage    Storage
	maxRetries int
	log        *slog.Logger
}

func NewProcessor(repo JobRepo, gen Generator, storage Storage, maxRetries int, log *slog.Logger) *Processor {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{repo: repo, gen: gen, storage: storage, maxRetries: maxRetries, log: log}
}

// Process runs one already-claimed job to a terminal state (or back to
// queued when a failed attempt is still under the retry limit).
func (p *Processor) Process(ctx context.Context, job *entity.Podcast) error {
	start := time.Now()
	p.log.Info("processing job", "job_id", job.ID, "url", job.URL, "attempt", job.RetryCount+1)

	audioPath, err := p.gen.Generate(ctx, job.URL)
	if err != nil {
		return p.fail(ctx, job, "generation failed: "+err.Error())
	}
	if _, err := os.Stat(audioPath); err != nil {
		return p.fail(ctx, job, "generation produced no output file: "+audioPath)
	}

	filename := filepath.Base(audioPath)

	if p.storage != nil {
		publicURL, err := p.storage.Upload(ctx, audioPath, filename)
		if err != nil {
			return p.fail(ctx, job, "audio generated but upload failed: "+err.Error())
		}
		p.log.Info("audio uploaded", "job_id", job.ID, "url", publicURL)
	}

	duration, err := estimateDurationSeconds(audioPath)
	if err != nil {
		p.log.Warn("could not determine audio duration", "job_id", job.ID, "error", err)
		duration = 0
	}

	title := titleFromURL(job.URL)

	if err := p.repo.Complete(ctx, job.ID, title, filename, duration); err != nil {
		return err
	}

	p.log.Info("job completed",
		"job_id", job.ID,
		"title", title,
		"audio_filename", filename,
		"duration_s", duration,
		"took_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, job *entity.Podcast, msg string) error {
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}

	requeued, err := p.repo.Fail(ctx, job.ID, msg, p.maxRetries)
	if err != nil {
		return err
	}

	if requeued {
		p.log.Warn("job failed, re-queued for retry", "job_id", job.ID, "attempt", job.RetryCount+1, "error", msg)
	} else {
		p.log.Error("job failed permanently", "job_id", job.ID, "attempts", job.RetryCount+1, "error", msg)
	}
	return nil
}

// estimateDurationSeconds derives playback length from the file size,
// assuming the 128 kbps CBR MP3 the generation pipeline emits.
func estimateDurationSeconds(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	const bitrate = 128_000 // bits per second
	return int(info.Size() * 8 / bitrate), nil
}

package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mujtabafurqan/podcastfy/internal/entity"
	"github.com/mujtabafurqan/podcastfy/internal/repository/postgresql"
	"github.com/mujtabafurqan/podcastfy/internal/service"
)

type Handler struct {
	svc *service.PodcastService

	// audioBaseURL is the public object-storage base (R2). When empty,
	// completed audio is served from audioDir via /api/audio/{id}.
	audioBaseURL string
	audioDir     string
}

func NewHandler(svc *service.PodcastService, audioBaseURL, audioDir string) *Handler {
	return &Handler{
		svc:          svc,
		audioBaseURL: strings.TrimSuffix(audioBaseURL, "/"),
		audioDir:     audioDir,
	}
}

type generateAsyncDTO struct {
	URL string `json:"url"`
}

type generateAsyncResp struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	AudioURL string `json:"audio_url,omitempty"`
}

type statusResp struct {
	Status       string  `json:"status"`
	AudioURL     string  `json:"audio_url,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	CreatedAt    *string `json:"created_at,omitempty"`
	StartedAt    *string `json:"started_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type podcastResp struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Title     *string `json:"title,omitempty"`
	AudioURL  string  `json:"audio_url,omitempty"`
	Status    string  `json:"status"`
	CreatedAt *string `json:"created_at,omitempty"`
	Duration  *int    `json:"duration,omitempty"`
}

// audioURL resolves the playback URL for a podcast, empty until completed.
func (h *Handler) audioURL(p *entity.Podcast) string {
	if p.Status != entity.StatusCompleted {
		return ""
	}
	if h.audioBaseURL != "" && p.AudioFilename != nil {
		return h.audioBaseURL + "/" + *p.AudioFilename
	}
	return "/api/audio/" + p.ID.String()
}

func fmtTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// GenerateAsync godoc
// @Summary Submit a URL for async podcast generation
// @Description Creates a queued job and returns immediately with a job_id for status polling. Re-submitting a known URL returns the existing job instead of creating a duplicate.
// @Tags podcasts
// @Accept json
// @Produce json
// @Param request body generateAsyncDTO true "source URL"
// @Success 200 {object} generateAsyncResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/generate-async [post]
func (h *Handler) GenerateAsync(w http.ResponseWriter, r *http.Request) {
	var dto generateAsyncDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	p, _, err := h.svc.Submit(r.Context(), dto.URL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, generateAsyncResp{
		JobID:    p.ID.String(),
		Status:   string(p.Status),
		AudioURL: h.audioURL(p),
	})
}

// GetStatus godoc
// @Summary Get the status of a generation job
// @Tags podcasts
// @Produce json
// @Param job_id path string true "job id (uuid)"
// @Success 200 {object} statusResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/status/{job_id} [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid job id")
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statusResp{
		Status:       string(p.Status),
		AudioURL:     h.audioURL(p),
		ErrorMessage: p.ErrorMessage,
		CreatedAt:    fmtTime(&p.CreatedAt),
		StartedAt:    fmtTime(p.StartedAt),
		CompletedAt:  fmtTime(p.CompletedAt),
	})
}

// GetLibrary godoc
// @Summary List podcasts, newest first
// @Tags podcasts
// @Produce json
// @Success 200 {array} podcastResp
// @Failure 500 {object} apiError
// @Router /api/library [get]
func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	podcasts, err := h.svc.Library(r.Context(), 100)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]podcastResp, 0, len(podcasts))
	for _, p := range podcasts {
		out = append(out, podcastResp{
			ID:        p.ID.String(),
			URL:       p.URL,
			Title:     p.Title,
			AudioURL:  h.audioURL(p),
			Status:    string(p.Status),
			CreatedAt: fmtTime(&p.CreatedAt),
			Duration:  p.Duration,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAudio godoc
// @Summary Fetch the audio for a completed podcast
// @Description Redirects to object storage when configured, otherwise serves the local file.
// @Tags podcasts
// @Produce audio/mpeg
// @Param id path string true "podcast id (uuid)"
// @Success 302
// @Failure 404 {object} apiError
// @Router /api/audio/{id} [get]
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid podcast id")
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "podcast not found")
		return
	}
	if p.Status != entity.StatusCompleted || p.AudioFilename == nil {
		writeErr(w, http.StatusNotFound, "audio not ready")
		return
	}

	if h.audioBaseURL != "" {
		http.Redirect(w, r, h.audioBaseURL+"/"+*p.AudioFilename, http.StatusFound)
		return
	}

	path := filepath.Join(h.audioDir, filepath.Base(*p.AudioFilename))
	if _, err := os.Stat(path); err != nil {
		writeErr(w, http.StatusNotFound, "audio file not found")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

// Health godoc
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "podcastfy-async",
	})
}

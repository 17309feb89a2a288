package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/rahullym/GMBpro/internal/app"
	"github.com/rahullym/GMBpro/internal/domain"
	"github.com/rahullym/GMBpro/internal/jobs"
)

// Handlers owns the read side and the enqueue-only write side: mutating
// endpoints hand a job to the queue and answer 202 with the job id.
type Handlers struct {
	Q    *app.QueryService
	Jobs jobs.Queue
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/locations/{id}/sync", h.triggerSync)
	s.mux.Get("/v1/locations/{id}/reviews", h.listReviews)
	s.mux.Get("/v1/reviews/{id}", h.getReview)
	s.mux.Post("/v1/reviews/{id}/replies", h.generateReply)
	s.mux.Post("/v1/replies/{id}/publish", h.publishReply)

	s.mux.Get("/v1/admin/queues/{queue}/dead", h.listDead)
	s.mux.Post("/v1/admin/queues/{queue}/dead/{jobID}/replay", h.replayDead)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func actorID(r *http.Request) string {
	if a := r.Header.Get("X-Actor-ID"); a != "" {
		return a
	}
	return "api"
}

func (h *Handlers) enqueue(w http.ResponseWriter, r *http.Request, t jobs.Type, payload any) {
	env, err := jobs.NewEnvelope(t, payload)
	if err == nil {
		err = h.Jobs.Enqueue(r.Context(), env)
	}
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("enqueue failed")
		writeProblem(w, http.StatusServiceUnavailable, "Queue Unavailable", "could not accept the job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": env.ID,
		"queue":  env.Queue,
		"status": "queued",
	})
}

func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "location id is required")
		return
	}
	h.enqueue(w, r, jobs.TypePollLocation, jobs.PollLocation{
		LocationID: id,
		ActorID:    actorID(r),
	})
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	// Newest first; aligns with DB index on (location_id, created_at, id)
	page := domain.PageQuery{Limit: limit, Cursor: nil, Sort: "-created_at"}
	out, err := h.Q.ListReviews(r.Context(), id, page)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "reviews not found")
		return
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := h.Q.GetReview(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
		return
	}

	etag, body := calcETagAndBody(resp)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getReview body")
	}
}

type generateRequest struct {
	Voice string `json:"voice"`
}

func (h *Handlers) generateReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req generateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
			return
		}
	}
	voice := domain.Voice(req.Voice)
	switch voice {
	case "", domain.VoicePolite, domain.VoiceCasual, domain.VoiceProfessional:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid voice", "voice must be polite, casual, or professional")
		return
	}

	h.enqueue(w, r, jobs.TypeGenerateReply, jobs.GenerateReply{
		ReviewID: id,
		Voice:    voice,
		ActorID:  actorID(r),
	})
}

type publishRequest struct {
	FinalText string `json:"final_text"`
}

func (h *Handlers) publishReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req publishRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
			return
		}
	}

	h.enqueue(w, r, jobs.TypePublishReply, jobs.PublishReply{
		ReplyID:   id,
		FinalText: req.FinalText,
		ActorID:   actorID(r),
	})
}

func knownQueue(name string) bool {
	for _, q := range jobs.Queues() {
		if q == name {
			return true
		}
	}
	return false
}

func (h *Handlers) listDead(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if !knownQueue(queue) {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown queue")
		return
	}

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	dead, err := h.Jobs.ListDead(r.Context(), queue, limit)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("list dead jobs failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list dead jobs")
		return
	}
	if dead == nil {
		dead = []jobs.DeadJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue, "jobs": dead})
}

func (h *Handlers) replayDead(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	jobID := chi.URLParam(r, "jobID")
	if !knownQueue(queue) {
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown queue")
		return
	}

	if err := h.Jobs.ReplayDead(r.Context(), queue, jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "dead job not found")
			return
		}
		log.Error().Err(err).Str("queue", queue).Str("job_id", jobID).Msg("replay dead job failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not replay job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "requeued"})
}

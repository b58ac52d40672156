package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/router"
)

type dlqEntry struct {
	Consumer    string              `json:"consumer"`
	Stats       router.QueueStats   `json:"stats"`
	DeadLetters []router.DeadLetter `json:"deadLetters"`
}

type redriveResponse struct {
	Consumer string `json:"consumer"`
	Redriven int    `json:"redriven"`
}

func (s *server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Projections.Rebuild(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries := []dlqEntry{}
	for _, queue := range s.queues() {
		stats, err := queue.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		deadLetters, err := queue.DeadLetters(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if deadLetters == nil {
			deadLetters = []router.DeadLetter{}
		}

		entries = append(entries, dlqEntry{Consumer: queue.Name(), Stats: stats, DeadLetters: deadLetters})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string][]dlqEntry{"queues": entries})
}

func (s *server) handleRedrive(w http.ResponseWriter, r *http.Request) {
	consumer := chi.URLParam(r, "consumer")

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.deps.Queues == nil {
		s.writeError(w, r, errNoQueues)
		return
	}

	for _, queue := range s.queues() {
		if queue.Name() != consumer {
			continue
		}

		redriven, err := queue.Redrive(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.deps.Logger.InfoContext(r.Context(), "dead letters redriven",
			"consumer", consumer,
			"count", redriven,
			"request_id", httpx.RequestIDFromContext(r.Context()))

		httpx.WriteJSON(w, http.StatusOK, redriveResponse{Consumer: consumer, Redriven: redriven})
		return
	}

	s.writeError(w, r, errUnknownQueue)
}

func (s *server) queues() []router.Queue {
	if s.deps.Queues == nil {
		return nil
	}

	return s.deps.Queues()
}

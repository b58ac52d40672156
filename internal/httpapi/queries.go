package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/projection"
)

const maxListLimit = 500

type listResponse struct {
	Projection string              `json:"projection"`
	Records    []projection.Record `json:"records"`
}

type eventsResponse struct {
	AggregateID string             `json:"aggregateId"`
	Events      []eventstore.Event `json:"events"`
}

func (s *server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "projection")

	limit, err := intParam(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records, err := s.deps.Projections.List(r.Context(), name, projection.ListOptions{
		Prefix: r.URL.Query().Get("prefix"),
		Limit:  min(limit, maxListLimit),
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if records == nil {
		records = []projection.Record{}
	}

	httpx.WriteJSON(w, http.StatusOK, listResponse{Projection: name, Records: records})
}

func (s *server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.deps.Projections.Get(r.Context(), chi.URLParam(r, "projection"), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, record)
}

// handleAggregateEvents reads with eventual consistency, so a configured replica serves it.
func (s *server) handleAggregateEvents(w http.ResponseWriter, r *http.Request) {
	aggregateID := chi.URLParam(r, "aggregateId")

	from, err := intParam(r, "from", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	options := []eventstore.ReadOption{eventstore.FromVersion(uint64(max(from, 1)))}

	if r.URL.Query().Has("to") {
		to, err := intParam(r, "to", 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		options = append(options, eventstore.ToVersion(uint64(to)))
	}

	ctx := eventstore.WithEventualConsistency(r.Context())

	events, err := eventstore.Collect(s.deps.Events.ReadEvents(ctx, aggregateID, options...))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if events == nil {
		events = []eventstore.Event{}
	}

	httpx.WriteJSON(w, http.StatusOK, eventsResponse{AggregateID: aggregateID, Events: events})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errInvalidQuery, name)
	}

	return value, nil
}

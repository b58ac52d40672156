package httpapi

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// handleCommand answers 201 with the committed result. The request id becomes the
// correlation id when the client did not send one.
func (s *server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cmd command.Command
	if err := codec.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeError(w, r, errors.Join(errInvalidBody, err))
		return
	}

	if cmd.Metadata.CorrelationID == "" {
		cmd.Metadata.CorrelationID = httpx.RequestIDFromContext(ctx)
	}

	result, err := s.deps.Commands.Handle(ctx, cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, result)
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

type schemaRequest struct {
	Definition *jsonschema.Schema `json:"definition"`
	Mode       string             `json:"mode,omitempty"`
}

type registeredResponse struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

type versionsResponse struct {
	Subject  string           `json:"subject"`
	Versions []schema.Version `json:"versions"`
}

func (s *server) handleListSchemas(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string][]string{"subjects": s.deps.Schemas.Subjects()})
}

func (s *server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	versions, err := s.deps.Schemas.Versions(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, versionsResponse{Subject: name, Versions: versions})
}

func (s *server) handleRegisterSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	req, mode, err := decodeSchemaRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	version, err := s.deps.Schemas.RegisterSchema(name, req.Definition, mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registeredResponse{Subject: name, Version: version})
}

func (s *server) handleCheckCompatibility(w http.ResponseWriter, r *http.Request) {
	req, mode, err := decodeSchemaRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, s.deps.Schemas.CheckCompatibility(chi.URLParam(r, "name"), req.Definition, mode))
}

// decodeSchemaRequest leaves an empty mode to the registry default.
func decodeSchemaRequest(r *http.Request) (schemaRequest, schema.CompatibilityMode, error) {
	var req schemaRequest
	if err := codec.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "", errors.Join(errInvalidBody, err)
	}

	if req.Definition == nil {
		return req, "", errors.Join(schema.ErrInvalidSchema, errors.New("definition is required"))
	}

	if req.Mode == "" {
		return req, "", nil
	}

	mode, err := schema.ParseMode(req.Mode)
	if err != nil {
		return req, "", err
	}

	return req, mode, nil
}

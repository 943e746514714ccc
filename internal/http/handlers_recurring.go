package http

import (
	"net/http"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/services"
)

type processRequest struct {
	AsOf    *core.Date `json:"asOf"`
	CatchUp *bool      `json:"catchUp"`
}

type processResponse struct {
	services.ProcessReport
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// handleProcessDue materializes every due template of the owner. Per
// template failures are reported in the body; the request itself succeeds.
func (s *Server) handleProcessDue(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	var req processRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, "process_due", err)
		return
	}
	asOf := s.today()
	if req.AsOf != nil && !req.AsOf.IsZero() {
		asOf = *req.AsOf
	}
	opts := services.ProcessOptions{CatchUp: true}
	if req.CatchUp != nil {
		opts.CatchUp = *req.CatchUp
	}

	report, err := s.processor.ProcessDue(r.Context(), owner, asOf, opts)
	if err != nil {
		writeError(w, r, "process_due", err)
		return
	}
	s.countCreated(report.Created())
	s.countFailed(report.Failed())

	if report.Results == nil {
		report.Results = []services.ProcessResult{}
	}
	NewJSONResponse().Body(processResponse{
		ProcessReport: report,
		Created:       report.Created(),
		Failed:        report.Failed(),
	}).Write(w)
}

func (s *Server) handleListDue(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	asOf, err := ParseAsOf(r.URL.Query(), s.today())
	if err != nil {
		writeError(w, r, "list_due", err)
		return
	}
	due, err := s.processor.FindDueTemplates(r.Context(), owner, asOf)
	if err != nil {
		writeError(w, r, "list_due", err)
		return
	}
	NewJSONResponse().Body(map[string]any{"asOf": asOf, "templates": nonNil(due)}).Write(w)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	templates, err := s.templates.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_templates", err)
		return
	}
	NewJSONResponse().Body(nonNil(templates)).Write(w)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "get_template", err)
		return
	}
	rt, err := s.templates.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, "get_template", err)
		return
	}
	NewJSONResponse().Body(rt).Write(w)
}

// handleProcessOne runs a single occurrence of one template, due or not.
func (s *Server) handleProcessOne(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "process_template", err)
		return
	}
	res, err := s.processor.ProcessOne(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, "process_template", err)
		return
	}
	if res.Transaction != nil {
		s.countCreated(1)
	}
	if !res.OK() {
		s.countFailed(1)
		// the template exists; the occurrence itself failed
		status := StatusForError(res.Err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		NewJSONResponse().Status(status).Body(res).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(res).Write(w)
}

func (s *Server) handleSetTemplateActive(active bool) ownedHandler {
	op := "pause_template"
	if active {
		op = "resume_template"
	}
	return func(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		rt, err := s.templates.SetActive(r.Context(), owner, id, active)
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		NewJSONResponse().Body(rt).Write(w)
	}
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "delete_template", err)
		return
	}
	if err := s.templates.Delete(r.Context(), owner, id); err != nil {
		writeError(w, r, "delete_template", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// nonNil keeps empty lists encoded as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package http

import (
	"net/http"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/services"
)

// categoryResponse pairs a category with the dependent rows its change touched.
type categoryResponse struct {
	Category core.Category          `json:"category"`
	Cascade  services.CascadeReport `json:"cascade"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type typeRequest struct {
	Type core.TransactionType `json:"type"`
}

type tagRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	cats, err := s.categories.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_categories", err)
		return
	}
	if t := core.TransactionType(r.URL.Query().Get("type")); t != "" {
		if err := t.Validate(); err != nil {
			writeError(w, r, "list_categories", badRequest("%v", err))
			return
		}
		filtered := cats[:0:0]
		for _, c := range cats {
			if c.Type == t {
				filtered = append(filtered, c)
			}
		}
		cats = filtered
	}
	NewJSONResponse().Body(nonNil(cats)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	var in services.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, "create_category", err)
		return
	}
	in.Name = sanitizeInput(in.Name)

	c, report, err := s.categories.Create(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, "create_category", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(categoryResponse{Category: c, Cascade: report}).Write(w)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "get_category", err)
		return
	}
	c, err := s.categories.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, "get_category", err)
		return
	}
	NewJSONResponse().Body(c).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "update_category", err)
		return
	}
	var in services.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, "update_category", err)
		return
	}
	in.Name = sanitizeInput(in.Name)

	c, report, err := s.categories.Update(r.Context(), owner, id, in)
	s.writeCascade(w, r, "update_category", c, report, err)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "rename_category", err)
		return
	}
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "rename_category", err)
		return
	}

	c, report, err := s.categories.Rename(r.Context(), owner, id, sanitizeInput(req.Name))
	s.writeCascade(w, r, "rename_category", c, report, err)
}

func (s *Server) handleChangeCategoryType(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "change_category_type", err)
		return
	}
	var req typeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "change_category_type", err)
		return
	}

	c, report, err := s.categories.ChangeType(r.Context(), owner, id, req.Type)
	s.writeCascade(w, r, "change_category_type", c, report, err)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "delete_category", err)
		return
	}
	report, err := s.categories.Delete(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, "delete_category", err)
		return
	}
	NewJSONResponse().Body(report).Write(w)
}

// writeCascade writes the result of a category change. Propagation warnings
// do not fail the request: the primary write already happened.
func (s *Server) writeCascade(w http.ResponseWriter, r *http.Request, op string, c core.Category, report services.CascadeReport, err error) {
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().Body(categoryResponse{Category: c, Cascade: report}).Write(w)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	tags, err := s.tags.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_tags", err)
		return
	}
	NewJSONResponse().Body(nonNil(tags)).Write(w)
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create_tag", err)
		return
	}
	tag, err := s.tags.Create(r.Context(), owner, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, "create_tag", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(tag).Write(w)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "delete_tag", err)
		return
	}
	report, err := s.tags.Delete(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, "delete_tag", err)
		return
	}
	NewJSONResponse().Body(report).Write(w)
}

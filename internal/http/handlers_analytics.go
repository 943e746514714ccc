package http

import (
	"net/http"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/services"
)

type goalRequest struct {
	TargetAmount core.Money `json:"targetAmount"`
	Color        string     `json:"color,omitempty"`
}

type limitRequest struct {
	Amount core.Money `json:"amount"`
}

type computeRequest struct {
	services.Snapshot
	Month int `json:"month"`
	Year  int `json:"year"`
}

// handleListGoals returns the owner's goals with CurrentAmount projected for
// the requested month, the current one by default.
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "list_goals", err)
		return
	}
	d, err := s.analytics.Dashboard(r.Context(), owner, p.Month, p.Year)
	if err != nil {
		writeError(w, r, "list_goals", err)
		return
	}
	NewJSONResponse().Body(nonNil(d.Goals)).Write(w)
}

func (s *Server) handleUpsertGoal(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	category, err := pathName(r, "category")
	if err != nil {
		writeError(w, r, "upsert_goal", err)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "upsert_goal", err)
		return
	}

	g, err := s.goals.UpsertGoal(r.Context(), owner, core.BudgetGoal{
		Category:     category,
		TargetAmount: req.TargetAmount,
		Color:        sanitizeInput(req.Color),
	})
	if err != nil {
		writeError(w, r, "upsert_goal", err)
		return
	}
	NewJSONResponse().Body(g).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	category, err := pathName(r, "category")
	if err != nil {
		writeError(w, r, "delete_goal", err)
		return
	}
	if err := s.goals.DeleteGoal(r.Context(), owner, category); err != nil {
		writeError(w, r, "delete_goal", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListLimits(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	budgets, err := s.goals.ListExpenseBudgets(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_limits", err)
		return
	}
	NewJSONResponse().Body(nonNil(budgets)).Write(w)
}

func (s *Server) handleUpsertLimit(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	category, err := pathName(r, "category")
	if err != nil {
		writeError(w, r, "upsert_limit", err)
		return
	}
	var req limitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "upsert_limit", err)
		return
	}

	b, err := s.goals.UpsertExpenseBudget(r.Context(), owner, core.ExpenseBudget{
		Category: category,
		Amount:   req.Amount,
	})
	if err != nil {
		writeError(w, r, "upsert_limit", err)
		return
	}
	NewJSONResponse().Body(b).Write(w)
}

func (s *Server) handleDeleteLimit(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	category, err := pathName(r, "category")
	if err != nil {
		writeError(w, r, "delete_limit", err)
		return
	}
	if err := s.goals.DeleteExpenseBudget(r.Context(), owner, category); err != nil {
		writeError(w, r, "delete_limit", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	d, err := s.analytics.Dashboard(r.Context(), owner, p.Month, p.Year)
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

// handleCompute runs the dashboard projections over the posted data. Nothing
// is read from or written to storage, so no owner is required.
func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "compute", err)
		return
	}
	d, err := s.analytics.Compute(req.Snapshot, req.Month, req.Year)
	if err != nil {
		writeError(w, r, "compute", err)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

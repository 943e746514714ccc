package http

import (
	"net/http"

	"github.com/google/uuid"

	"tresorerie/internal/core"
)

// transactionRequest is a transaction plus an optional recurrence that turns
// it into the first occurrence of a recurring template.
type transactionRequest struct {
	core.Transaction
	Recurrence *core.Frequency `json:"recurrence"`
}

// handleListTransactions lists the owner's transactions. With year and month
// set, only that month is returned.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	q := r.URL.Query()
	var period *MonthParams
	if q.Has("year") || q.Has("month") {
		p, err := ParseMonthParams(q, s.now())
		if err != nil {
			writeError(w, r, "list_transactions", err)
			return
		}
		period = &p
	}

	txs, err := s.transactions.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	if period != nil {
		filtered := txs[:0:0]
		for _, tx := range txs {
			if tx.Date.InMonth(period.Month, period.Year) {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	NewJSONResponse().Body(nonNil(txs)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}
	req.EntityName = sanitizeInput(req.EntityName)
	req.Category = sanitizeInput(req.Category)
	req.Tag = sanitizeInput(req.Tag)

	res, err := s.transactions.Create(r.Context(), owner, req.Transaction, req.Recurrence)
	if err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}
	s.countCreated(1)
	NewJSONResponse().Status(http.StatusCreated).Body(res).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "get_transaction", err)
		return
	}
	tx, err := s.transactions.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, "get_transaction", err)
		return
	}
	NewJSONResponse().Body(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "update_transaction", err)
		return
	}
	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, r, "update_transaction", err)
		return
	}
	tx.ID = id
	tx.EntityName = sanitizeInput(tx.EntityName)
	tx.Category = sanitizeInput(tx.Category)
	tx.Tag = sanitizeInput(tx.Tag)

	updated, err := s.transactions.Update(r.Context(), owner, tx)
	if err != nil {
		writeError(w, r, "update_transaction", err)
		return
	}
	NewJSONResponse().Body(updated).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, owner uuid.UUID) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, "delete_transaction", err)
		return
	}
	if err := s.transactions.Delete(r.Context(), owner, id); err != nil {
		writeError(w, r, "delete_transaction", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

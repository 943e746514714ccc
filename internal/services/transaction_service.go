package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tresorerie/internal/amqp"
	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
	"tresorerie/internal/storage"
)

// TransactionService handles manual transaction entry, optionally
// registering a recurring template for future occurrences.
type TransactionService struct {
	gw        storage.Gateway
	publisher EventPublisher
}

func NewTransactionService(gw storage.Gateway, publisher EventPublisher) *TransactionService {
	return &TransactionService{gw: gw, publisher: publisher}
}

// CreateResult is returned by Create. Template is set when a recurrence
// was requested and stored; Warnings lists non-fatal failures.
type CreateResult struct {
	Transaction core.Transaction        `json:"transaction"`
	Template    *core.RecurringTemplate `json:"template,omitempty"`
	Warnings    []string                `json:"warnings,omitempty"`
}

// Create stores tx for owner. An empty status defaults to the type's
// initial status. The category must exist with the same type.
// When recurrence is set a template starting at tx.Date is registered; its
// first generated occurrence is one period later. A template failure does
// not undo the transaction.
func (s *TransactionService) Create(ctx context.Context, owner uuid.UUID, tx core.Transaction, recurrence *core.Frequency) (CreateResult, error) {
	tx.ID = 0
	tx.OwnerID = owner
	if tx.Status == "" {
		tx.Status = tx.Type.InitialStatus()
	}
	if err := tx.Validate(); err != nil {
		return CreateResult{}, err
	}
	var next core.Date
	if recurrence != nil {
		var err error
		if next, err = NextRunDate(tx.Date, *recurrence); err != nil {
			return CreateResult{}, err
		}
	}
	if err := s.requireCategory(ctx, owner, tx.Category, tx.Type); err != nil {
		return CreateResult{}, err
	}

	created, err := s.gw.InsertTransaction(ctx, tx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("save transaction: %w", err)
	}
	res := CreateResult{Transaction: created}

	if recurrence != nil {
		rt, err := s.gw.InsertTemplate(ctx, core.RecurringTemplate{
			OwnerID:     owner,
			EntityName:  created.EntityName,
			Category:    created.Category,
			Amount:      created.Amount,
			Type:        created.Type,
			Frequency:   *recurrence,
			StartDate:   created.Date,
			NextRunDate: next,
			Active:      true,
		})
		if err != nil {
			slog.WarnContext(ctx, "Transaction saved but recurring template was not",
				"transaction_id", created.ID,
				"frequency", *recurrence,
				"error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("recurring template not saved: %v", err))
		} else {
			res.Template = &rt
		}
	}

	s.publish(ctx, created)
	return res, nil
}

// Get returns one transaction of owner.
func (s *TransactionService) Get(ctx context.Context, owner uuid.UUID, id int64) (core.Transaction, error) {
	return s.gw.GetTransaction(ctx, owner, id)
}

// Update replaces every field of an existing transaction.
func (s *TransactionService) Update(ctx context.Context, owner uuid.UUID, tx core.Transaction) (core.Transaction, error) {
	tx.OwnerID = owner
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.requireCategory(ctx, owner, tx.Category, tx.Type); err != nil {
		return core.Transaction{}, err
	}
	updated, err := s.gw.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", tx.ID, err)
	}
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	if err := s.gw.DeleteTransaction(ctx, owner, id); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return nil
}

// List returns owner's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, owner uuid.UUID) ([]core.Transaction, error) {
	return s.gw.ListTransactions(ctx, owner)
}

func (s *TransactionService) requireCategory(ctx context.Context, owner uuid.UUID, name string, t core.TransactionType) error {
	_, err := s.gw.FindCategory(ctx, owner, name, t)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: no %s category named %q", core.ErrNotFound, t, name)
	}
	return err
}

func (s *TransactionService) publish(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, amqp.NewTransactionCreated(tx, 0)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldOperation, applog.OpCreate,
			applog.FieldTransactionID, tx.ID,
			applog.FieldError, err)
	}
}

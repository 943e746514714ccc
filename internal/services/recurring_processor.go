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

// DefaultMaxCatchUp bounds how many occurrences a catch-up run creates per template.
const DefaultMaxCatchUp = 24

// Stage names the step a template reached while being processed.
type Stage string

const (
	StageMaterialize Stage = "materialize"
	StageInsert      Stage = "insert"
	StageAdvance     Stage = "advance"
	StageDone        Stage = "done"
)

// ProcessResult is the outcome of one occurrence of one template.
// When Stage is StageAdvance and Err is set, Transaction was stored but the
// schedule was not moved: the template is still due and a retry will create
// the same transaction again.
type ProcessResult struct {
	TemplateID  int64             `json:"template_id"`
	Stage       Stage             `json:"stage"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	Err         error             `json:"-"`
	Error       string            `json:"error,omitempty"`
}

func (r ProcessResult) OK() bool { return r.Err == nil }

func (r *ProcessResult) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// ProcessReport summarizes a ProcessDue run.
type ProcessReport struct {
	Owner   uuid.UUID       `json:"user_id"`
	AsOf    core.Date       `json:"as_of"`
	Results []ProcessResult `json:"results"`
}

// Created counts the transactions that were durably stored.
func (r ProcessReport) Created() int {
	n := 0
	for _, res := range r.Results {
		if res.Transaction != nil {
			n++
		}
	}
	return n
}

func (r ProcessReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// ProcessOptions tunes a ProcessDue run.
type ProcessOptions struct {
	// CatchUp keeps materializing a template until it is no longer due.
	CatchUp bool
}

// EventPublisher receives transaction.created events. amqp.Client implements it.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// RecurringProcessor turns due recurring templates into transactions.
type RecurringProcessor struct {
	gw         storage.Gateway
	publisher  EventPublisher
	maxCatchUp int
}

type ProcessorOption func(*RecurringProcessor)

// WithPublisher announces every created transaction.
func WithPublisher(p EventPublisher) ProcessorOption {
	return func(rp *RecurringProcessor) { rp.publisher = p }
}

func WithMaxCatchUp(n int) ProcessorOption {
	return func(rp *RecurringProcessor) {
		if n > 0 {
			rp.maxCatchUp = n
		}
	}
}

// NewRecurringProcessor creates a new recurring transaction processor
func NewRecurringProcessor(gw storage.Gateway, opts ...ProcessorOption) *RecurringProcessor {
	p := &RecurringProcessor{gw: gw, maxCatchUp: DefaultMaxCatchUp}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Materialize builds the transaction for the template's current occurrence.
// The date is the scheduled NextRunDate, never the processing date.
func Materialize(rt core.RecurringTemplate) (core.Transaction, error) {
	tx := core.Transaction{
		OwnerID:    rt.OwnerID,
		Date:       rt.NextRunDate,
		EntityName: rt.EntityName,
		Category:   rt.Category,
		Status:     rt.Type.InitialStatus(),
		Amount:     rt.Amount,
		Type:       rt.Type,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("materialize template %d: %w", rt.ID, err)
	}
	return tx, nil
}

// Advance moves the template one occurrence forward.
func Advance(rt core.RecurringTemplate) (core.RecurringTemplate, error) {
	next, err := NextRunDate(rt.NextRunDate, rt.Frequency)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("advance template %d: %w", rt.ID, err)
	}
	last := rt.NextRunDate
	rt.LastRunDate = &last
	rt.NextRunDate = next
	return rt, nil
}

// FindDueTemplates lists the owner's due templates.
func (p *RecurringProcessor) FindDueTemplates(ctx context.Context, owner uuid.UUID, asOf core.Date) ([]core.RecurringTemplate, error) {
	return FindDueTemplates(ctx, p.gw, owner, asOf)
}

// ProcessAll materializes one occurrence per template. A failing template
// never stops the others.
func (p *RecurringProcessor) ProcessAll(ctx context.Context, templates []core.RecurringTemplate) []ProcessResult {
	results := make([]ProcessResult, 0, len(templates))
	for _, rt := range templates {
		res, _ := p.processOccurrence(ctx, rt)
		results = append(results, res)
	}
	return results
}

// ProcessDue processes every due template of owner. The error is non-nil
// only when the due templates could not be listed.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, owner uuid.UUID, asOf core.Date, opts ProcessOptions) (ProcessReport, error) {
	report := ProcessReport{Owner: owner, AsOf: asOf, Results: []ProcessResult{}}

	due, err := p.FindDueTemplates(ctx, owner, asOf)
	if err != nil {
		return report, err
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"user_id", owner,
		"due", len(due),
		"as_of", asOf.String(),
		"catch_up", opts.CatchUp)

	if !opts.CatchUp {
		report.Results = p.ProcessAll(ctx, due)
	} else {
		for _, rt := range due {
			report.Results = append(report.Results, p.catchUp(ctx, rt, asOf)...)
		}
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"user_id", owner,
		"created", report.Created(),
		"failed", report.Failed(),
		"templates", len(due))

	return report, nil
}

func (p *RecurringProcessor) catchUp(ctx context.Context, rt core.RecurringTemplate, asOf core.Date) []ProcessResult {
	var results []ProcessResult
	for i := 0; i < p.maxCatchUp && IsDue(rt, asOf); i++ {
		res, advanced := p.processOccurrence(ctx, rt)
		results = append(results, res)
		if !res.OK() {
			break
		}
		rt = advanced
	}
	if IsDue(rt, asOf) && len(results) == p.maxCatchUp {
		slog.WarnContext(ctx, "Catch-up limit reached, template still due",
			"template_id", rt.ID,
			"next_run_date", rt.NextRunDate.String(),
			"limit", p.maxCatchUp)
	}
	return results
}

// ProcessOne materializes the current occurrence of a single template,
// whether or not it is due yet. Paused templates are rejected.
func (p *RecurringProcessor) ProcessOne(ctx context.Context, owner uuid.UUID, id int64) (ProcessResult, error) {
	rt, err := p.gw.GetTemplate(ctx, owner, id)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("get template: %w", err)
	}
	if !rt.Active {
		return ProcessResult{}, fmt.Errorf("%w: template %d is paused", core.ErrValidation, id)
	}
	res, _ := p.processOccurrence(ctx, rt)
	return res, nil
}

// processOccurrence stores one transaction for rt and advances its schedule.
// It returns the advanced template when everything succeeded.
func (p *RecurringProcessor) processOccurrence(ctx context.Context, rt core.RecurringTemplate) (ProcessResult, core.RecurringTemplate) {
	res := ProcessResult{TemplateID: rt.ID, Stage: StageMaterialize}

	tx, err := Materialize(rt)
	if err != nil {
		res.fail(err)
		p.logFailure(ctx, rt, res)
		return res, rt
	}
	advanced, err := Advance(rt)
	if err != nil {
		res.fail(err)
		p.logFailure(ctx, rt, res)
		return res, rt
	}

	var created *core.Transaction
	run := func(gw storage.Gateway) error {
		res.Stage = StageInsert
		stored, err := gw.InsertTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		created = &stored

		res.Stage = StageAdvance
		if err := gw.UpdateTemplateSchedule(ctx, rt.OwnerID, rt.ID, *advanced.LastRunDate, advanced.NextRunDate); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		res.Stage = StageDone
		return nil
	}

	if runner, ok := p.gw.(storage.TxRunner); ok {
		err = runner.RunInTx(ctx, run)
		if err != nil {
			// rolled back together with the schedule
			created = nil
		}
	} else {
		err = run(p.gw)
	}
	res.Transaction = created

	if err != nil {
		res.fail(err)
		p.logFailure(ctx, rt, res)
		return res, rt
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentRecurring).
		WithOperation(applog.OpProcess).
		WithTransaction(created.ID, created.EntityName, created.Category, created.Amount.Cents)
	slog.InfoContext(ctx, "Created transaction from recurring template",
		append(fields.ToSlice(),
			applog.FieldTemplateID, rt.ID,
			"date", created.Date.String(),
			"next_run_date", advanced.NextRunDate.String())...)

	p.publish(ctx, *created, rt.ID)
	return res, advanced
}

func (p *RecurringProcessor) logFailure(ctx context.Context, rt core.RecurringTemplate, res ProcessResult) {
	attrs := []any{
		applog.FieldComponent, applog.ComponentRecurring,
		applog.FieldTemplateID, rt.ID,
		"stage", res.Stage,
		"next_run_date", rt.NextRunDate.String(),
		"error", res.Err,
	}
	if res.Stage == StageAdvance && res.Transaction != nil {
		slog.ErrorContext(ctx, "Transaction stored but schedule not advanced, template remains due",
			append(attrs, "transaction_id", res.Transaction.ID)...)
		return
	}
	slog.ErrorContext(ctx, "Failed to process recurring template", attrs...)
}

func (p *RecurringProcessor) publish(ctx context.Context, tx core.Transaction, templateID int64) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishTransactionEvent(ctx, amqp.NewTransactionCreated(tx, templateID)); err != nil {
		level := slog.LevelError
		if errors.Is(err, amqp.ErrCircuitOpen) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Failed to publish transaction event",
			"transaction_id", tx.ID,
			"template_id", templateID,
			"error", err)
	}
}

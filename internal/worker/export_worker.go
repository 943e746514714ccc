package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tresorerie/internal/amqp"
	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
	"tresorerie/internal/sheets"
)

// ExportWorker mirrors created transactions into a spreadsheet.
type ExportWorker struct {
	writer sheets.TransactionWriter
}

func NewExportWorker(writer sheets.TransactionWriter) *ExportWorker {
	return &ExportWorker{writer: writer}
}

// HandleTransactionEvent appends the event's transaction. Returning an error
// requeues the message, so malformed transactions are logged and dropped
// instead.
func (w *ExportWorker) HandleTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"transaction_id", ev.Transaction.ID,
		"template_id", ev.TemplateID,
		"timestamp", ev.Timestamp)

	ref, err := w.writer.Append(ctx, ev.Transaction, ev.TemplateID)
	if errors.Is(err, core.ErrValidation) {
		slog.ErrorContext(ctx, "Dropping invalid transaction event",
			"transaction_id", ev.Transaction.ID,
			"error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("append transaction %d: %w", ev.Transaction.ID, err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldOperation, applog.OpExport,
		applog.FieldTransactionID, ev.Transaction.ID,
		applog.FieldYear, ev.Transaction.Date.Year(),
		applog.FieldMonth, ev.Transaction.Date.Month(),
		applog.FieldSheetsRef, ref,
		applog.FieldAmountCents, ev.Transaction.Amount.Cents)
	return nil
}

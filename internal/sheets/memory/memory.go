// Package memory is an in-process TransactionWriter, used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tresorerie/internal/core"
	ports "tresorerie/internal/sheets"
)

// Row is one exported transaction.
type Row struct {
	Transaction core.Transaction
	TemplateID  int64
}

type Writer struct {
	mu   sync.Mutex
	rows []Row
	byID map[int64]int
}

var _ ports.TransactionWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{byID: map[int64]int{}}
}

// Append stores the transaction and returns a synthetic row reference.
func (w *Writer) Append(_ context.Context, tx core.Transaction, templateID int64) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if n, ok := w.byID[tx.ID]; ok {
		return fmt.Sprintf("mem:%d", n), nil
	}
	w.rows = append(w.rows, Row{Transaction: tx, TemplateID: templateID})
	w.byID[tx.ID] = len(w.rows)
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Row(nil), w.rows...)
}

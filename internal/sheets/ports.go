package sheets

import (
	"context"

	"tresorerie/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionWriter appends one transaction per row. Appending a
	// transaction that is already present returns the existing row and
	// writes nothing.
	TransactionWriter interface {
		Append(ctx context.Context, tx core.Transaction, templateID int64) (rowRef string, err error)
	}
)

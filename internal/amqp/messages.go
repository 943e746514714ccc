package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"tresorerie/internal/core"
)

// EventTransactionCreated is the only event kind published today.
const EventTransactionCreated = "transaction.created"

// TransactionEvent carries a full transaction so consumers never need to
// read the originating store.
type TransactionEvent struct {
	Kind        string           `json:"kind"`
	Transaction core.Transaction `json:"transaction"`
	// TemplateID is set when the transaction was materialized from a recurring template.
	TemplateID int64     `json:"template_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTransactionCreated builds a transaction.created event. Pass templateID 0
// for manually entered transactions.
func NewTransactionCreated(tx core.Transaction, templateID int64) *TransactionEvent {
	return &TransactionEvent{
		Kind:        EventTransactionCreated,
		Transaction: tx,
		TemplateID:  templateID,
		Timestamp:   time.Now().UTC(),
	}
}

// Recurring reports whether the transaction came from a template.
func (e *TransactionEvent) Recurring() bool {
	return e.TemplateID != 0
}

// ToJSON converts the event to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes an event and rejects unknown kinds.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Kind != EventTransactionCreated {
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return &ev, nil
}

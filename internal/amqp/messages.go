package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wealthywise/internal/core"
)

// Message kinds carried in Envelope.Kind.
const (
	KindTransactionCommitted = "transaction.committed"
	KindReconcileRequested   = "reconcile.requested"
)

// Envelope wraps every message on the ledger queue. Payload is decoded
// according to Kind.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TransactionCommitted announces a committed transaction. Amounts are
// decimal strings with two places.
type TransactionCommitted struct {
	TransactionID string `json:"transaction_id"`
	OwnerID       string `json:"owner_id"`
	Type          string `json:"transaction_type"`
	AccountID     string `json:"account_id"`
	ToAccountID   string `json:"to_account_id,omitempty"`
	Amount        string `json:"amount"`
	BalanceAfter  string `json:"balance_after"`
	Date          string `json:"date"`
}

// ReconcileRequested asks the worker to check or recalculate accounts.
type ReconcileRequested struct {
	AccountIDs  []string `json:"account_ids"`
	Correct     bool     `json:"correct"`
	RequestedBy string   `json:"requested_by,omitempty"`
}

// NewEnvelope marshals payload into a new envelope of the given kind.
func NewEnvelope(kind string, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}, nil
}

// TransactionCommittedFrom builds the event for t.
func TransactionCommittedFrom(t core.Transaction) TransactionCommitted {
	return TransactionCommitted{
		TransactionID: t.ID,
		OwnerID:       t.OwnerID,
		Type:          string(t.Type),
		AccountID:     t.AccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount.String(),
		BalanceAfter:  t.BalanceAfter.String(),
		Date:          t.Date.String(),
	}
}

// ToJSON converts the envelope to JSON bytes
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// EnvelopeFromJSON parses an envelope. Kind is required.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("envelope %q has no kind", env.ID)
	}
	return &env, nil
}

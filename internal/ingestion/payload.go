package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
)

// TransferEvent is one confirmed token transfer as delivered by the webhook
// provider. The provider batches events and redelivers on timeout, so the
// same event may arrive any number of times (at-least-once).
type TransferEvent struct {
	Signature   string `json:"signature"`
	Sender      string `json:"sender"`
	Destination string `json:"destination"`
	Mint        string `json:"mint"`
	RawAmount   uint64 `json:"rawAmount"`
	Decimals    int    `json:"decimals"`
	Memo        string `json:"memo"`
	Timestamp   int64  `json:"timestamp"` // confirmation time, unix seconds
}

// DecodeBatch decodes a provider webhook body into transfer events.
func DecodeBatch(r io.Reader) ([]TransferEvent, error) {
	var events []TransferEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode webhook batch: %w", err)
	}
	return events, nil
}

// EventStatus is the per-event processing outcome.
type EventStatus string

const (
	StatusAccepted  EventStatus = "accepted"  // new ledger row written
	StatusDuplicate EventStatus = "duplicate" // signature already ledgered
	StatusRejected  EventStatus = "rejected"  // wrong mint or destination, no side effect
	StatusMalformed EventStatus = "malformed" // unparseable event, no side effect
	StatusFailed    EventStatus = "failed"    // ledger write error, safe to redeliver
)

// EventResult pairs an event signature with its outcome.
type EventResult struct {
	Signature string      `json:"signature"`
	Status    EventStatus `json:"status"`
}

// BatchResult summarizes one webhook delivery.
type BatchResult struct {
	Accepted  int           `json:"accepted"`
	Duplicate int           `json:"duplicate"`
	Rejected  int           `json:"rejected"`
	Malformed int           `json:"malformed"`
	Failed    int           `json:"failed"`
	Events    []EventResult `json:"events"`
}

// Package payment talks to the payment gateway used for admission fees.
package payment

import (
	"context"
	"errors"
	"strings"
)

// Status is the normalised payment signal.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPending Status = "PENDING"
	StatusFailed  Status = "FAILED"
)

// ParseStatus accepts the normalised names case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusSuccess:
		return StatusSuccess, true
	case StatusPending:
		return StatusPending, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// RefundInstruction asks the gateway to return money for a transaction.
type RefundInstruction struct {
	TransactionID string
	Amount        int64
	Reason        string
	// Key makes repeated submissions of the same refund idempotent at the gateway.
	Key string
}

// ErrNotConfigured is returned when no gateway credentials are set.
var ErrNotConfigured = errors.New("payment gateway not configured")

// Gateway is the capability the admission workflow consumes.
type Gateway interface {
	Status(ctx context.Context, transactionID string) (Status, error)
	Refund(ctx context.Context, instruction RefundInstruction) error
}

// Disabled is used when the deployment has no gateway credentials.
type Disabled struct{}

func (Disabled) Status(context.Context, string) (Status, error) {
	return "", ErrNotConfigured
}

func (Disabled) Refund(context.Context, RefundInstruction) error {
	return ErrNotConfigured
}

// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"

	"github.com/unclebandit/smsconsole-backend/internal/model"
)

// ErrGatewayAuth means the provider rejected our credentials. A batch in
// flight must abort: every remaining send would fail the same way.
var ErrGatewayAuth = errors.New("gateway rejected credentials")

// ErrGatewayUnreachable means the provider could not be reached at the
// transport level. Also batch-fatal.
var ErrGatewayUnreachable = errors.New("gateway unreachable")

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError reports bad input caught before any dispatch begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfirmationRequiredError is returned when recipients would be excluded
// from a bulk send and the operator has not yet confirmed proceeding.
type ConfirmationRequiredError struct {
	Stats model.ExclusionStats
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("%d of %d recipients excluded, confirmation required", e.Stats.Excluded, e.Stats.Total)
}

// BatchAbortedError reports a dispatch pass that stopped early. Successes up
// to the abort point are kept; NotAttempted lists the recipients skipped.
type BatchAbortedError struct {
	Cause        error
	NotAttempted []string
}

func (e *BatchAbortedError) Error() string {
	return fmt.Sprintf("bulk send aborted with %d recipients not attempted: %v", len(e.NotAttempted), e.Cause)
}

func (e *BatchAbortedError) Unwrap() error { return e.Cause }

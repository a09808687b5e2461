package experiment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

// ErrNoVariants is returned by Propose when ideation produced nothing usable.
var ErrNoVariants = errors.New("no usable variants")

// ImplementationError means the content system rejected the new value.
// The experiment stays proposed and is retried on the next run.
type ImplementationError struct {
	ExperimentID uuid.UUID
	URL          string
	Cause        error
}

func (e *ImplementationError) Error() string {
	return fmt.Sprintf("failed to implement experiment %s on %s: %v", e.ExperimentID, e.URL, e.Cause)
}

func (e *ImplementationError) Unwrap() error {
	return e.Cause
}

// RevertError means the original value could not be written back.
// The experiment keeps its prior status.
type RevertError struct {
	ExperimentID uuid.UUID
	URL          string
	Cause        error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("failed to revert experiment %s on %s: %v", e.ExperimentID, e.URL, e.Cause)
}

func (e *RevertError) Unwrap() error {
	return e.Cause
}

// TransitionError is returned for an operation the experiment's status does not allow.
type TransitionError struct {
	ExperimentID uuid.UUID
	From         types.Status
	To           types.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("experiment %s cannot move from %s to %s", e.ExperimentID, e.From, e.To)
}

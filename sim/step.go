package sim

import (
	"time"

	"github.com/rustyeddy/predictsim/decision"
)

type StepStatus string

const (
	Traded  StepStatus = "traded"
	Held    StepStatus = "held"
	Skipped StepStatus = "skipped"
)

type SkipReason string

const (
	InsufficientHistory SkipReason = "insufficient_history"
	ModelFailure        SkipReason = "model_failure"
	MissingPrice        SkipReason = "missing_price"
)

// StepResult is the outcome of one (date, asset) step.
type StepResult struct {
	Date      time.Time
	Asset     string
	Status    StepStatus
	Reason    SkipReason // set when Status is Skipped
	Err       error      // model error behind a ModelFailure
	Predicted float64
	Price     float64
	Action    decision.Action
}

func skipped(date time.Time, asset string, reason SkipReason, err error) StepResult {
	return StepResult{Date: date, Asset: asset, Status: Skipped, Reason: reason, Err: err}
}

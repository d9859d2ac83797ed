package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Every kind is scoped to the single
// event being processed.
type ErrorKind string

const (
	KindAuthenticity      ErrorKind = "authenticity"
	KindMissingData       ErrorKind = "missing_data"
	KindNotFound          ErrorKind = "not_found"
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindPartial           ErrorKind = "partial"
	KindSideEffect        ErrorKind = "side_effect"
	KindInternal          ErrorKind = "internal"
)

// Outcome is what a handler did with an event.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, KindInternal for unclassified errors
// and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Result is returned by every handler. Err is set when the event could not be
// handled; Warnings carry best-effort failures (partial ticket writes, email,
// metadata write-back) that did not change the outcome.
type Result struct {
	Outcome  Outcome
	OrderID  string
	Err      error
	Warnings []error
}

func (r *Result) warn(kind ErrorKind, op string, err error) {
	r.Warnings = append(r.Warnings, newError(kind, op, err))
}

func fail(outcome Outcome, orderID string, err error) Result {
	return Result{Outcome: outcome, OrderID: orderID, Err: err}
}

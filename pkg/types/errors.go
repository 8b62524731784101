package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAgentNotFound is returned from reads on unknown agent identifiers.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrGraphNotFound is returned when a graph version cannot be located.
	ErrGraphNotFound = errors.New("graph not found")
	// ErrAdapterNotFound is returned when no adapter is registered for a framework.
	ErrAdapterNotFound = errors.New("adapter not found")
	// ErrEmptyAgentID is returned when an operation is missing the agent identifier.
	ErrEmptyAgentID = errors.New("agent id must not be empty")
	// ErrNoStatements is returned when a write carries an empty statement set.
	ErrNoStatements = errors.New("statement set must not be empty")
	// ErrStoreClosed is returned from operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// ConstraintKind classifies temporal constraint violations.
type ConstraintKind string

const (
	ConstraintMalformedInterval  ConstraintKind = "malformed_interval"
	ConstraintFutureTransaction  ConstraintKind = "future_transaction_time"
	ConstraintReopenedInterval   ConstraintKind = "reopened_interval"
	ConstraintDoubleSupersession ConstraintKind = "double_supersession"
)

// ConstraintError reports a temporal constraint violation. Writes failing
// this gate are rejected before anything is appended; nothing is ever
// partially applied.
type ConstraintError struct {
	Kind    ConstraintKind
	Message string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("temporal constraint violation (%s): %s", e.Kind, e.Message)
}

// OrderingError reports a late-arriving insert whose valid start does not
// precede its discovery time.
type OrderingError struct {
	ValidFrom    time.Time
	DiscoveredAt time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("temporal ordering error: valid_from %s is not before discovered_at %s",
		e.ValidFrom.Format(time.RFC3339), e.DiscoveredAt.Format(time.RFC3339))
}

// ConflictError reports a concurrent modification that could not be merged.
// It carries both competing statement sets so the caller can resolve the
// collision; same-field collisions are never auto-resolved.
type ConflictError struct {
	AgentID         string
	ExpectedVersion int64
	ActualVersion   int64
	// TheirGraphID is the committed graph that won the race, when one exists.
	TheirGraphID string
	Ours         []Statement
	Theirs       []Statement
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification conflict on agent %s: expected version %d, found %d",
		e.AgentID, e.ExpectedVersion, e.ActualVersion)
}

// FidelityWarning is attached, non-fatally, to translation results when
// native fields had no canonical predicate or an extension was missing on
// the way back.
type FidelityWarning struct {
	Framework Framework
	Field     string
	Reason    string
}

func (w FidelityWarning) String() string {
	return fmt.Sprintf("fidelity warning (%s): field %q %s", w.Framework, w.Field, w.Reason)
}

package types

import (
	"fmt"
	"time"
)

// Dimension selects one of the two temporal axes of a record.
type Dimension string

const (
	// ValidTime is when a fact was, is, or will be true in reality.
	ValidTime Dimension = "valid"
	// TransactionTime is when a fact was recorded by the system.
	TransactionTime Dimension = "transaction"
)

// Interval is a half-open time interval [From, To). A nil To means the
// interval is open: the fact is current on that dimension.
type Interval struct {
	From time.Time  `json:"from"`
	To   *time.Time `json:"to,omitempty"`
}

// NewInterval returns a closed interval when to is non-zero, otherwise an
// open one.
func NewInterval(from time.Time, to *time.Time) Interval {
	return Interval{From: from, To: to}
}

// OpenInterval returns an interval starting at from with no upper bound.
func OpenInterval(from time.Time) Interval {
	return Interval{From: from}
}

// IsOpen reports whether the interval has no upper bound.
func (i Interval) IsOpen() bool {
	return i.To == nil
}

// Contains reports whether t falls inside the half-open interval.
// An open upper bound is treated as +infinity.
func (i Interval) Contains(t time.Time) bool {
	if t.Before(i.From) {
		return false
	}
	if i.To == nil {
		return true
	}
	return t.Before(*i.To)
}

// Overlaps reports whether the interval intersects [from, to).
func (i Interval) Overlaps(from, to time.Time) bool {
	if i.To != nil && !from.Before(*i.To) {
		return false
	}
	return i.From.Before(to)
}

// Adjacent reports whether other starts exactly where this interval ends
// or vice versa. Open intervals are never adjacent to anything.
func (i Interval) Adjacent(other Interval) bool {
	if i.To != nil && i.To.Equal(other.From) {
		return true
	}
	if other.To != nil && other.To.Equal(i.From) {
		return true
	}
	return false
}

// Validate checks the lower bound precedes the upper bound when both are
// present. Equal bounds are rejected: a half-open interval [t, t) is empty.
func (i Interval) Validate() error {
	if i.To != nil && !i.From.Before(*i.To) {
		return &ConstraintError{
			Kind:    ConstraintMalformedInterval,
			Message: fmt.Sprintf("interval lower bound %s is not before upper bound %s", i.From.Format(time.RFC3339), i.To.Format(time.RFC3339)),
		}
	}
	return nil
}

// Coordinates is the bi-temporal position of one graph version: a valid-time
// interval tracked independently of a transaction-time interval.
//
// Transaction.From is immutable after assignment. Transaction.To may be set
// exactly once, by the store, when the graph is superseded; it is never
// reopened or reassigned.
type Coordinates struct {
	Valid       Interval `json:"valid"`
	Transaction Interval `json:"transaction"`
}

// NewCoordinates stamps a graph recorded now, valid over [validFrom, validTo).
// A zero validFrom defaults to the transaction start.
func NewCoordinates(now time.Time, validFrom time.Time, validTo *time.Time) Coordinates {
	if validFrom.IsZero() {
		validFrom = now
	}
	return Coordinates{
		Valid:       Interval{From: validFrom, To: validTo},
		Transaction: OpenInterval(now),
	}
}

// Validate applies the pre-write gate of the conflict resolver: both
// intervals well-formed and the transaction start not in the future.
func (c Coordinates) Validate(now time.Time) error {
	if err := c.Valid.Validate(); err != nil {
		return err
	}
	if err := c.Transaction.Validate(); err != nil {
		return err
	}
	if c.Transaction.From.After(now) {
		return &ConstraintError{
			Kind:    ConstraintFutureTransaction,
			Message: fmt.Sprintf("transaction time %s is in the future", c.Transaction.From.Format(time.RFC3339)),
		}
	}
	return nil
}

// IsCurrent reports whether the transaction interval is still open, meaning
// this version is the system's present belief.
func (c Coordinates) IsCurrent() bool {
	return c.Transaction.IsOpen()
}

// On returns the interval for the requested dimension.
func (c Coordinates) On(dim Dimension) Interval {
	if dim == TransactionTime {
		return c.Transaction
	}
	return c.Valid
}

package dto

import (
	"time"

	"github.com/imago-ai/imago/pkg/types"
)

// Statement is the wire form of one canonical triple.
type Statement struct {
	Subject   string `json:"subject" binding:"required"`
	Predicate string `json:"predicate" binding:"required"`
	Object    string `json:"object" binding:"required"`
}

// Statements converts wire triples into the domain form.
func Statements(in []Statement) []types.Statement {
	out := make([]types.Statement, len(in))
	for i, s := range in {
		out[i] = types.Statement{Subject: s.Subject, Predicate: s.Predicate, Object: s.Object}
	}
	return out
}

// SnapshotRequest is the body of a createSnapshot call.
type SnapshotRequest struct {
	Statements      []Statement `json:"statements" binding:"required"`
	ValidFrom       *time.Time  `json:"valid_from,omitempty"`
	ValidTo         *time.Time  `json:"valid_to,omitempty"`
	ExpectedVersion *int64      `json:"expected_version,omitempty"`
}

// CorrectionRequest is the body of a recordCorrection call.
type CorrectionRequest struct {
	Statements     []Statement `json:"statements" binding:"required"`
	CorrectionType string      `json:"correction_type,omitempty"`
	Reason         string      `json:"reason" binding:"required"`
	ValidFrom      *time.Time  `json:"valid_from,omitempty"`
	ValidTo        *time.Time  `json:"valid_to,omitempty"`
}

// LateArrivingRequest is the body of an insertLateArriving call.
type LateArrivingRequest struct {
	Statements   []Statement `json:"statements" binding:"required"`
	ValidFrom    time.Time   `json:"valid_from" binding:"required"`
	ValidTo      *time.Time  `json:"valid_to,omitempty"`
	DiscoveredAt *time.Time  `json:"discovered_at,omitempty"`
}

// TranslateRequest is the body of a translate call.
type TranslateRequest struct {
	Native map[string]any `json:"native" binding:"required"`
	Source string         `json:"source" binding:"required"`
	Target string         `json:"target" binding:"required"`
}

// MorphRequest is the body of a morph call.
type MorphRequest struct {
	Native map[string]any `json:"native" binding:"required"`
	Source string         `json:"source" binding:"required"`
}

// ValidateRequest is the body of a validate call.
type ValidateRequest struct {
	Native    map[string]any `json:"native" binding:"required"`
	Framework string         `json:"framework" binding:"required"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ConflictResponse carries both competing statement sets of an unmergeable
// concurrent modification.
type ConflictResponse struct {
	Error           string            `json:"error"`
	AgentID         string            `json:"agent_id"`
	ExpectedVersion int64             `json:"expected_version"`
	ActualVersion   int64             `json:"actual_version"`
	Ours            []types.Statement `json:"ours"`
	Theirs          []types.Statement `json:"theirs"`
}

package skillgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the kind of a validation issue.
type Code string

const (
	CodeMissingField       Code = "missing_field"
	CodeInvalidValue       Code = "invalid_value"
	CodeDuplicateID        Code = "duplicate_id"
	CodeUnknownSpec        Code = "unknown_specialization"
	CodeInvalidColor       Code = "invalid_color"
	CodeDanglingConnection Code = "dangling_connection"
	CodeSelfLoop           Code = "self_loop"
	CodeConnectionMismatch Code = "connection_mismatch"
	CodeCycle              Code = "cycle"
	CodeMissingRoot        Code = "missing_root"

	// Warnings.
	CodeOrphan             Code = "orphan"
	CodeDuplicatePosition  Code = "duplicate_position"
	CodeExcessiveCost      Code = "excessive_cost"
	CodeDuplicateEdge      Code = "duplicate_edge"
	CodeUnknownEffect      Code = "unknown_effect"
	CodeMalformedCondition Code = "malformed_condition"
	CodeTierOrder          Code = "tier_order"
	CodeMissingVersion     Code = "missing_version"
	CodeThresholdOrder     Code = "threshold_order"
)

// Issue is a single finding of tree validation.
type Issue struct {
	Code       Code   `json:"code" yaml:"code"`
	NodeID     string `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	Field      string `json:"field,omitempty" yaml:"field,omitempty"`
	Message    string `json:"message" yaml:"message"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

func (i Issue) Error() string {
	var b strings.Builder
	b.WriteString(string(i.Code))
	if i.NodeID != "" {
		fmt.Fprintf(&b, " [%s]", i.NodeID)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, " %s", i.Field)
	}
	b.WriteString(": ")
	b.WriteString(i.Message)
	if i.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", i.Suggestion)
	}
	return b.String()
}

// Unwrap maps structural codes to their sentinel errors.
func (i Issue) Unwrap() error {
	switch i.Code {
	case CodeCycle:
		return ErrCycleDetected
	case CodeDanglingConnection:
		return ErrDanglingReference
	case CodeDuplicateID:
		return ErrDuplicateID
	default:
		return nil
	}
}

// Report is the developer-facing result of validating a tree.
type Report struct {
	TreeVersion string  `json:"tree_version" yaml:"tree_version"`
	NodeCount   int     `json:"node_count" yaml:"node_count"`
	Errors      []Issue `json:"errors" yaml:"errors"`
	Warnings    []Issue `json:"warnings" yaml:"warnings"`
}

func newReport(version string, nodes int) *Report {
	return &Report{TreeVersion: version, NodeCount: nodes, Errors: []Issue{}, Warnings: []Issue{}}
}

func (r *Report) errorf(code Code, nodeID, field, format string, args ...any) *Issue {
	r.Errors = append(r.Errors, Issue{Code: code, NodeID: nodeID, Field: field, Message: fmt.Sprintf(format, args...)})
	return &r.Errors[len(r.Errors)-1]
}

func (r *Report) warnf(code Code, nodeID, field, format string, args ...any) *Issue {
	r.Warnings = append(r.Warnings, Issue{Code: code, NodeID: nodeID, Field: field, Message: fmt.Sprintf(format, args...)})
	return &r.Warnings[len(r.Warnings)-1]
}

// Valid reports whether the tree is usable.
func (r *Report) Valid() bool { return len(r.Errors) == 0 }

// Err joins all errors under ErrInvalidTree, or returns nil for a usable tree.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, issue := range r.Errors {
		errs = append(errs, issue)
	}
	return fmt.Errorf("%w: %d error(s): %w", ErrInvalidTree, len(r.Errors), errors.Join(errs...))
}

// HasCode reports whether any error or warning carries code.
func (r *Report) HasCode(code Code) bool {
	for _, i := range r.Errors {
		if i.Code == code {
			return true
		}
	}
	for _, i := range r.Warnings {
		if i.Code == code {
			return true
		}
	}
	return false
}

package rewrite

import (
	"errors"
	"fmt"
)

// Error represents a compile-time failure reported by the rewriter.
//
// Rewrite errors are deterministic: the same input tree always produces the
// same error, so callers never retry.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Expr is the formatted tree handed to Rewrite.
	Expr string

	// Node is the formatted subtree where the failure was detected.
	Node string

	// Err is the underlying cause (usually an *expr.TypeError).
	Err error
}

// ErrorCode categorizes rewrite errors.
type ErrorCode string

const (
	// ErrCodeIncompatibleBranchTypes indicates a pushed-down branch call does
	// not type-check, or the two branch results have different types.
	ErrCodeIncompatibleBranchTypes ErrorCode = "INCOMPATIBLE_BRANCH_TYPES"

	// ErrCodeExpressionTooDeep indicates the recursion depth guard tripped.
	ErrCodeExpressionTooDeep ErrorCode = "EXPRESSION_TOO_DEEP"

	// ErrCodeUnsupportedNodeShape indicates a node the rewriter cannot
	// transform or pass through (nil or a foreign type).
	ErrCodeUnsupportedNodeShape ErrorCode = "UNSUPPORTED_NODE_SHAPE"

	// ErrCodeIllTyped indicates that typed rewriting could not resolve the
	// receiver of a lambda argument outside any conditional branch.
	ErrCodeIllTyped ErrorCode = "ILL_TYPED_EXPRESSION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (at %s)", e.Node)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsIncompatibleBranchTypes returns true if err is a branch type mismatch.
// Uses errors.As to handle wrapped errors.
func IsIncompatibleBranchTypes(err error) bool {
	return hasCode(err, ErrCodeIncompatibleBranchTypes)
}

// IsExpressionTooDeep returns true if err is a depth guard failure.
func IsExpressionTooDeep(err error) bool {
	return hasCode(err, ErrCodeExpressionTooDeep)
}

// IsUnsupportedNodeShape returns true if err reports an unknown node.
func IsUnsupportedNodeShape(err error) bool {
	return hasCode(err, ErrCodeUnsupportedNodeShape)
}

// IsIllTyped returns true if err reports an untypable receiver outside any
// conditional branch.
func IsIllTyped(err error) bool {
	return hasCode(err, ErrCodeIllTyped)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewTooDeepError creates an Error for a tripped depth guard.
func NewTooDeepError(node string, maxDepth int) *Error {
	return &Error{
		Code:    ErrCodeExpressionTooDeep,
		Message: fmt.Sprintf("expression nesting exceeds maximum depth %d", maxDepth),
		Node:    node,
	}
}

// NewIncompatibleBranchError creates an Error for a branch that cannot take
// the pushed-down call.
func NewIncompatibleBranchError(node, message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeIncompatibleBranchTypes,
		Message: message,
		Node:    node,
		Err:     cause,
	}
}

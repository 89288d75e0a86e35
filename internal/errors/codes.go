// Package errors provides the engine's structured error taxonomy.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Protocol errors
	CodeInvalidSchedule    Code = "INVALID_SCHEDULE"
	CodeProtocolArchived   Code = "PROTOCOL_ARCHIVED"
	CodeTitleEmpty         Code = "PROTOCOL_TITLE_EMPTY"
	CodeOwnerEmpty         Code = "OWNER_ID_EMPTY"
	CodeGracePeriodInvalid Code = "GRACE_PERIOD_INVALID"

	// Cycle errors
	CodeCycleNotPending  Code = "CYCLE_NOT_PENDING"
	CodeDeadlineExceeded Code = "DEADLINE_EXCEEDED"

	// Lockout errors
	CodeLockedOut Code = "LOCKED_OUT"

	// Proof errors
	CodeProofStoreUnavailable Code = "PROOF_STORE_UNAVAILABLE"
	CodeProofEmpty            Code = "PROOF_EMPTY"
	CodeProofTooLarge         Code = "PROOF_TOO_LARGE"
	CodeProofUnsupportedType  Code = "PROOF_UNSUPPORTED_TYPE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeInvalidSchedule,
		CodeTitleEmpty,
		CodeOwnerEmpty,
		CodeGracePeriodInvalid,
		CodeProofEmpty,
		CodeProofTooLarge,
		CodeProofUnsupportedType:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodeCycleNotPending,
		CodeDeadlineExceeded,
		CodeProtocolArchived:
		return http.StatusConflict

	// Locked - accountability lockout is active
	case CodeLockedOut:
		return http.StatusLocked

	case CodeNotFound:
		return http.StatusNotFound

	case CodeProofStoreUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

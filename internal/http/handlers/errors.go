// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics.
//   - Verification codes mirror the challenge outcomes so that callers of the
//     verify endpoint can branch on them without parsing messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "challenge_expired",
//	  "message": "challenge expired, a new code can be requested"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeValidation   = "validation_failed"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Verification outcomes:
	ErrCodeForbiddenApprover = "forbidden_approver"
	ErrCodeNoActiveChallenge = "no_active_challenge"
	ErrCodeChallengeExpired  = "challenge_expired"
	ErrCodeAttemptsExceeded  = "attempts_exceeded"
	ErrCodeInvalidCode       = "invalid_code"

	// Upstream and processing:
	ErrCodeProvider         = "provider_error"
	ErrCodeSubmitFailed     = "submit_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeWebhookFailed    = "webhook_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

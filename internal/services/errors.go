// Package services defines the business logic of the approval gateway: the
// approval store, the OTP verification engine, the notification dispatcher
// and the webhook router. This file centralizes service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Request errors.
var (
	// ErrApprovalNotFound indicates that the referenced approval request does
	// not exist.
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrInvalidRequest wraps validation failures on a submitted request.
	ErrInvalidRequest = errors.New("invalid approval request")

	// ErrConflict is returned when an optimistic update still conflicts after
	// its single retry.
	ErrConflict = errors.New("concurrent update conflict")
)

// Verification errors.
var (
	// ErrForbiddenApprover is returned when the phone answering a challenge is
	// not listed as an approver on the owning request.
	ErrForbiddenApprover = errors.New("phone is not an approver for this request")

	// ErrNoActiveChallenge is returned when a code arrives for a phone with no
	// pending challenge.
	ErrNoActiveChallenge = errors.New("no active challenge for this phone")

	// ErrChallengeExpired is returned when the newest pending challenge has
	// passed its window. A fresh resend prompt has been dispatched.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrAttemptsExceeded is returned when the invalid-attempt limit was passed
	// and the challenge is now denied.
	ErrAttemptsExceeded = errors.New("too many invalid attempts")

	// ErrInvalidCode is returned when a code was wrong but retries remain.
	ErrInvalidCode = errors.New("invalid code")

	// ErrLinkExpired is returned when a resend button is pressed after its
	// link has lapsed.
	ErrLinkExpired = errors.New("resend link expired")
)

// Integration errors.
var (
	// ErrProvider wraps failures of the OTP provider or messaging gateway.
	ErrProvider = errors.New("upstream provider error")

	// ErrInvalidPayload is returned for webhook bodies that cannot be routed.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

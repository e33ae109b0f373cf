package domain

import (
	"errors"
	"fmt"
)

// Sentinel error classes. The transport layer maps these to HTTP statuses:
// ErrValidation -> 400, ErrNotFound -> 404, ErrConflict -> 409.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Business-rule errors raised by the payment state engine. Each wraps one of
// the sentinel classes above so callers can match either the specific rule or
// the class.
var (
	ErrInvalidTransition           = fmt.Errorf("%w: invalid status transition", ErrValidation)
	ErrAlreadyCaptured             = fmt.Errorf("%w: payment attempt already captured", ErrConflict)
	ErrNotCaptured                 = fmt.Errorf("%w: payment attempt is not captured", ErrValidation)
	ErrCaptureExceedsAuthorization = fmt.Errorf("%w: capture amount exceeds authorized amount", ErrValidation)
	ErrRefundExceedsBalance        = fmt.Errorf("%w: refund amount exceeds refundable balance", ErrValidation)
	ErrIdempotencyKeyConflict      = fmt.Errorf("%w: idempotency key belongs to another store", ErrConflict)
	ErrWebhookDisabled             = fmt.Errorf("%w: webhook is disabled", ErrConflict)
)

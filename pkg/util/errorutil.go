package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the ticket engine.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyClaimed     = "ALREADY_CLAIMED"
	CodeDuplicateOpen      = "DUPLICATE_OPEN_TICKET"
	CodePersistence        = "PERSISTENCE_FAILED"
	CodeCategoryResolution = "CATEGORY_RESOLUTION_FAILED"
	CodePermission         = "PERMISSION_DENIED"
	CodeOutOfOrder         = "OUT_OF_ORDER"
	CodeValidation         = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewAlreadyClaimed signals a ticket whose claim slot is already taken.
func NewAlreadyClaimed(claimedBy string) error {
	return NewDomainError(CodeAlreadyClaimed, "ticket already claimed", http.StatusConflict, map[string]any{
		"claimed_by": claimedBy,
	})
}

// NewDuplicateOpenTicket signals the one-open-ticket-per-owner invariant.
func NewDuplicateOpenTicket(existingID string) error {
	return NewDomainError(CodeDuplicateOpen, "owner already has an open ticket", http.StatusConflict, map[string]any{
		"existing_ticket_id": existingID,
	})
}

// NewPersistence wraps a failed store write or verification.
func NewPersistence(err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "persistence failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewCategoryResolution wraps a container resolution or creation failure.
func NewCategoryResolution(message string, err error) error {
	return &DomainError{
		Code:       CodeCategoryResolution,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPermission signals that the caller lacks the required role or ownership.
func NewPermission(message string) error {
	return NewDomainError(CodePermission, message, http.StatusForbidden, nil)
}

// NewOutOfOrder signals a rating submitted out of sequence.
func NewOutOfOrder(message string) error {
	return NewDomainError(CodeOutOfOrder, message, http.StatusConflict, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

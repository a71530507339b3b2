package app

import (
	"errors"
	"fmt"
	"net/http"

	"qbank/api/internal/question"
	"qbank/api/internal/store"
	"qbank/api/internal/workflow"
)

// Error codes surfaced to callers. Every failure the engine can produce maps
// to exactly one of these; none are swallowed.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMalformedEdit      = "MALFORMED_EDIT"
	CodeInvalidChangeList  = "INVALID_CHANGE_LIST"
	CodeVersionConflict    = "VERSION_CONFLICT"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeAlreadyPublished   = "ALREADY_PUBLISHED"
	CodeAlreadyUnpublished = "ALREADY_UNPUBLISHED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeValidationError    = "VALIDATION_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, what+" not found", nil)
}

func errPermissionDenied(message string) *DomainError {
	return domainError(http.StatusForbidden, CodePermissionDenied, message, nil)
}

func errInvalidChangeList(message string) *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidChangeList, message, nil)
}

// mapDomainErr translates sentinel errors from the domain, workflow, and
// storage layers into typed DomainErrors. Unexpected errors pass through
// unchanged for the caller to log and propagate.
func mapDomainErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return errNotFound("question")
	case errors.Is(err, store.ErrVersionConflict):
		return domainError(http.StatusConflict, CodeVersionConflict, "a concurrent commit won the race; recompute against the new version", nil)
	case errors.Is(err, question.ErrMalformedEdit):
		return domainError(http.StatusBadRequest, CodeMalformedEdit, err.Error(), nil)
	case errors.Is(err, question.ErrInvalidSnapshot):
		return domainError(http.StatusBadRequest, CodeValidationError, err.Error(), nil)
	case errors.Is(err, workflow.ErrAlreadyPublished):
		return domainError(http.StatusConflict, CodeAlreadyPublished, workflow.ErrAlreadyPublished.Error(), nil)
	case errors.Is(err, workflow.ErrAlreadyUnpublished):
		return domainError(http.StatusConflict, CodeAlreadyUnpublished, workflow.ErrAlreadyUnpublished.Error(), nil)
	case errors.Is(err, workflow.ErrInvalidTransition):
		return domainError(http.StatusConflict, CodeInvalidTransition, workflow.ErrInvalidTransition.Error(), nil)
	default:
		return err
	}
}

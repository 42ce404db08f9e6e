package app

import (
	"errors"
	"fmt"
	"net/http"

	"factcheck/api/internal/dossier"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/receipt"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "VALIDATION_FAILED", validationErr.Error(), validationErr.Fields
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict, "DUPLICATE", "Already exists", nil
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", "Status can no longer change", nil
	case errors.Is(err, dossier.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, ledger.ErrChainContention):
		return http.StatusServiceUnavailable, "CHAIN_CONTENTION", "Revision head is contended, retry later", nil
	case errors.Is(err, receipt.ErrNoHead):
		return http.StatusConflict, "NO_HEAD", "Dossier has no chain head yet", nil
	case errors.Is(err, receipt.ErrNoSecret):
		return http.StatusNotImplemented, "RECEIPTS_DISABLED", "Head receipts are not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

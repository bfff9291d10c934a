package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to callers. Transient fetch failures never appear
// here; the log cache swallows and counts them instead.
const (
	CodeNoWallet           = "NO_WALLET"
	CodeNoActiveIdentity   = "NO_ACTIVE_IDENTITY"
	CodeUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUpload             = "UPLOAD_ERROR"
	CodeWrite              = "WRITE_ERROR"
	CodeBusy               = "BUSY"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

type AppError struct {
	HTTPStatus int
	Code       string
	Message    string
	Retryable  bool
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(status int, code, msg string, retryable bool, cause error) *AppError {
	return &AppError{
		HTTPStatus: status,
		Code:       code,
		Message:    msg,
		Retryable:  retryable,
		Cause:      cause,
	}
}

func IsCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

func NoWallet(cause error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeNoWallet, "wallet provider unavailable", true, cause)
}

func NoActiveIdentity() *AppError {
	return NewAppError(http.StatusConflict, CodeNoActiveIdentity, "no authorized wallet account", false, nil)
}

func UnsupportedNetwork(networkID string) *AppError {
	return NewAppError(http.StatusConflict, CodeUnsupportedNetwork,
		fmt.Sprintf("no contract deployment known for network %s", networkID), false, nil)
}

func Validation(msg string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeValidation, msg, false, nil)
}

func Upload(cause error) *AppError {
	return NewAppError(http.StatusBadGateway, CodeUpload, "file upload to pinning service failed", true, cause)
}

func Write(msg string, cause error) *AppError {
	return NewAppError(http.StatusBadGateway, CodeWrite, msg, true, cause)
}

func Busy() *AppError {
	return NewAppError(http.StatusConflict, CodeBusy, "a submission is already in progress", true, nil)
}

func Internal(msg string, cause error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternal, msg, true, cause)
}

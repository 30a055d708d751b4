package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable code carried in error responses
type ErrorCode string

const (
	// Client input
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"

	// Unknown resources
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound ErrorCode = "CALL_NOT_FOUND"

	// State conflicts
	ErrCodeCallEnded ErrorCode = "CALL_ENDED"
	ErrCodeRoomFull  ErrorCode = "ROOM_FULL"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Server side
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCodeMediaService   ErrorCode = "MEDIA_SERVICE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError is an error that knows its response status and client message.
// Err holds the cause and is never shown to clients.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func withStatus(code ErrorCode, message string, statusCode int, cause error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        cause,
	}
}

func ValidationError(message string) *AppError {
	return withStatus(ErrCodeValidation, message, http.StatusBadRequest, nil)
}

func InvalidInputError(message string) *AppError {
	return withStatus(ErrCodeInvalidInput, message, http.StatusBadRequest, nil)
}

func MissingFieldError(field string) *AppError {
	return withStatus(ErrCodeMissingField, fmt.Sprintf("%s required", field), http.StatusBadRequest, nil)
}

// InvalidSignatureError is returned for webhook payloads that fail verification
func InvalidSignatureError(err error) *AppError {
	return withStatus(ErrCodeInvalidSignature, "Invalid webhook signature", http.StatusUnauthorized, err)
}

func NotFoundError(resource string) *AppError {
	return withStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, nil)
}

func CallNotFoundError() *AppError {
	return withStatus(ErrCodeCallNotFound, "Call not found", http.StatusNotFound, nil)
}

// CallEndedError reports an operation against a call in a terminal state
func CallEndedError() *AppError {
	return withStatus(ErrCodeCallEnded, "Call has ended", http.StatusBadRequest, nil)
}

// RoomFullError reports a rejected admission because the room is at capacity
func RoomFullError() *AppError {
	return withStatus(ErrCodeRoomFull, "Room is full", http.StatusServiceUnavailable, nil)
}

func RateLimitExceededError() *AppError {
	return withStatus(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests, nil)
}

func DatabaseError(err error) *AppError {
	return withStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

// MediaServiceError wraps a failure of the external media-routing service.
// These are never retried here; the caller decides.
func MediaServiceError(operation string, err error) *AppError {
	return withStatus(ErrCodeMediaService, fmt.Sprintf("Media service %s failed", operation), http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return withStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable, nil)
}

// GetAppError extracts the AppError from err's chain. Anything else becomes
// an opaque 500 that keeps err as its cause.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return withStatus(ErrCodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

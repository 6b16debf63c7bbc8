package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation       ErrorCategory = "validation"
	CategoryNotFound         ErrorCategory = "not_found"
	CategoryConflict         ErrorCategory = "conflict"
	CategoryProviderDegraded ErrorCategory = "provider_degraded"
	CategoryProviderFatal    ErrorCategory = "provider_fatal"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryInternal         ErrorCategory = "internal"
	CategoryConfiguration    ErrorCategory = "configuration"
)

var displayCodes = map[ErrorCategory]string{
	CategoryValidation:       "VALIDATION_ERROR",
	CategoryNotFound:         "NOT_FOUND",
	CategoryConflict:         "CONFLICT",
	CategoryProviderDegraded: "PROVIDER_DEGRADED",
	CategoryProviderFatal:    "PROVIDER_FATAL",
	CategoryTimeout:          "TIMEOUT_ERROR",
	CategoryInternal:         "INTERNAL_ERROR",
	CategoryConfiguration:    "CONFIGURATION_ERROR",
}

// AppError wraps an errbuilder error with claim context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	ClaimID    string        `json:"claim_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	code, ok := displayCodes[e.Category]
	if !ok {
		code = "UNKNOWN_ERROR"
	}
	if cause := e.ErrBuilder.Unwrap(); cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, e.ErrBuilder.Msg, cause)
	}
	return fmt.Sprintf("[%s] %s", code, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Response is the JSON body rendered for HTTP callers
func (e *AppError) Response() gin.H {
	body := gin.H{
		"category":  e.Category,
		"code":      displayCodes[e.Category],
		"message":   e.ErrBuilder.Msg,
		"timestamp": e.Timestamp.Format(time.RFC3339),
	}
	if e.ClaimID != "" {
		body["claim_id"] = e.ClaimID
	}
	if details := e.ErrBuilder.Details; len(details.Errors) > 0 {
		fields := make(map[string]string, len(details.Errors))
		for key, err := range details.Errors {
			fields[key] = err.Error()
		}
		body["details"] = fields
	}
	return body
}

// WithClaim tags the error with the claim it belongs to
func (e *AppError) WithClaim(claimID string) *AppError {
	e.ClaimID = claimID
	return e
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now().UTC(),
	}
}

func withDetail(builder *errbuilder.ErrBuilder, key, value string) *errbuilder.ErrBuilder {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set(key, errors.New(value))
	return builder.WithDetails(errbuilder.NewErrDetails(errorMap))
}

// NewValidationError rejects caller input before the pipeline starts
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		builder = withDetail(builder, "validation_details", fmt.Sprintf("%v", details[0]))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewValidationErrorWithMap collects several field problems into one error
func NewValidationErrorWithMap(validationErrors map[string]string) *AppError {
	errMap := errbuilder.ErrorMap{}
	for field, message := range validationErrors {
		errMap.Set(field, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(message))
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Multiple validation errors").
		WithDetails(errbuilder.NewErrDetails(errMap))

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewNotFoundError reports a missing claim or owner
func NewNotFoundError(resource, id string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s not found", resource))
	builder = withDetail(builder, "id", id)

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewConflictError reports a run that cannot start from the current status
func NewConflictError(claimID, status string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("claim cannot be processed from status %q", status))
	builder = withDetail(builder, "status", status)

	return NewAppError(builder, CategoryConflict, http.StatusConflict).WithClaim(claimID)
}

// NewProviderDegradedError marks an optional provider as unavailable
func NewProviderDegradedError(provider string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s provider degraded", provider))
	builder = withDetail(builder, "provider", provider)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryProviderDegraded, http.StatusServiceUnavailable)
}

// NewProviderFatalError aborts a run because a mandatory provider failed
func NewProviderFatalError(provider string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s provider unavailable", provider))
	builder = withDetail(builder, "provider", provider)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryProviderFatal, http.StatusBadGateway)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error")
	builder = withDetail(builder, "config_details", message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// CategoryOf returns the category of the first AppError in the chain, or
// internal when there is none
func CategoryOf(err error) ErrorCategory {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return CategoryInternal
}

func hasCategory(err error, category ErrorCategory) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Category == category
}

func IsConflict(err error) bool      { return hasCategory(err, CategoryConflict) }
func IsNotFound(err error) bool      { return hasCategory(err, CategoryNotFound) }
func IsValidation(err error) bool    { return hasCategory(err, CategoryValidation) }
func IsProviderFatal(err error) bool { return hasCategory(err, CategoryProviderFatal) }

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var ebErr *errbuilder.ErrBuilder
	if errors.As(err, &ebErr) {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			appErr := ToAppError(c.Errors.Last().Err)
			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr.Response())
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
	})
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)
	if err.ClaimID != "" {
		logEntry = logEntry.With("claim_id", err.ClaimID)
	}

	errorMsg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryNotFound, CategoryConflict:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(errorMsg, "details", details.Errors)
		} else {
			logEntry.Warn(errorMsg)
		}
	case CategoryProviderDegraded, CategoryTimeout:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Info(errorMsg, "cause", cause)
		} else {
			logEntry.Info(errorMsg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	if err.StackTrace != "" && gin.Mode() == gin.DebugMode {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether a provider call is worth retrying
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch ToAppError(err).Category {
	case CategoryProviderDegraded, CategoryTimeout:
		return true
	default:
		return false
	}
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}

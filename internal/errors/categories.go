package errors

import "maps"

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// CategoryValidation represents malformed payloads and schema violations.
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuth represents signature verification failures.
	CategoryAuth ErrorCategory = "auth"
	// CategoryReplay represents stale-timestamp requests that are soft-rejected.
	CategoryReplay ErrorCategory = "replay"
	// CategoryDuplicate represents idempotency hits (success no-op).
	CategoryDuplicate ErrorCategory = "duplicate"
	// CategoryNormalization represents per-item provider payload parsing failures.
	CategoryNormalization ErrorCategory = "normalization"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryConflict      ErrorCategory = "conflict"

	// CategoryStore represents durable-store failures.
	CategoryStore ErrorCategory = "store"
	// CategoryPublish represents event publishing failures.
	CategoryPublish ErrorCategory = "publish"
	// CategoryBuild represents build-service invocation failures.
	CategoryBuild     ErrorCategory = "build"
	CategoryScheduler ErrorCategory = "scheduler"

	CategoryConfig   ErrorCategory = "config"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// RetryStrategy indicates how an error should be handled in retry scenarios.
type RetryStrategy string

const (
	RetryNever     RetryStrategy = "never"     // Permanent failure, don't retry
	RetryImmediate RetryStrategy = "immediate" // Retry immediately
	RetryBackoff   RetryStrategy = "backoff"   // Retry with exponential backoff
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// Merge combines two contexts, with values from other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	maps.Copy(c, other)
	return c
}

package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
// This makes error creation consistent and discoverable throughout buildrelay.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		cause:    err,
		context:  make(ErrorContext),
	}
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithRetry sets the retry strategy.
func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.retry = strategy
	return b
}

// WithContext adds a context key-value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.context = b.context.Set(key, value)
	return b
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable sets the retry strategy to backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	return b.WithRetry(RetryBackoff)
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for common error patterns

// ValidationError creates a validation error (malformed payload, schema violation).
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message)
}

// AuthError creates a signature verification error.
func AuthError(message string) *ErrorBuilder {
	return NewError(CategoryAuth, message)
}

// ReplayError creates a stale-timestamp replay error.
func ReplayError(message string) *ErrorBuilder {
	return NewError(CategoryReplay, message).Warning()
}

// DuplicateError creates an idempotency-hit error (callers treat it as a no-op).
func DuplicateError(message string) *ErrorBuilder {
	return NewError(CategoryDuplicate, message).WithSeverity(SeverityInfo)
}

// NormalizationError creates a per-item payload parsing error.
func NormalizationError(message string) *ErrorBuilder {
	return NewError(CategoryNormalization, message)
}

// NotFoundError creates a not-found error.
func NotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryNotFound, message)
}

// ConflictError creates an optimistic-concurrency conflict error.
func ConflictError(message string) *ErrorBuilder {
	return NewError(CategoryConflict, message).WithRetry(RetryImmediate)
}

// StoreError creates a durable-store error.
func StoreError(message string) *ErrorBuilder {
	return NewError(CategoryStore, message).Retryable()
}

// PublishError creates an event publishing error.
func PublishError(message string) *ErrorBuilder {
	return NewError(CategoryPublish, message).Retryable()
}

// BuildError creates a build-service invocation error.
func BuildError(message string) *ErrorBuilder {
	return NewError(CategoryBuild, message)
}

// SchedulerError creates a trigger scheduling error.
func SchedulerError(message string) *ErrorBuilder {
	return NewError(CategoryScheduler, message)
}

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).WithSeverity(SeverityFatal)
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message)
}

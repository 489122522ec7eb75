package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
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
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithCause sets the underlying error.
func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.cause = err
	return b
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

func (b *ErrorBuilder) Fatal() *ErrorBuilder      { return b.WithSeverity(SeverityFatal) }
func (b *ErrorBuilder) Warning() *ErrorBuilder    { return b.WithSeverity(SeverityWarning) }
func (b *ErrorBuilder) Retryable() *ErrorBuilder  { return b.WithRetry(RetryBackoff) }
func (b *ErrorBuilder) UserAction() *ErrorBuilder { return b.WithRetry(RetryUserAction) }

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

// ConfigError creates a configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal().UserAction()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal().UserAction()
}

// RuleMatchAmbiguity reports a rule table in which a rule can never be selected.
func RuleMatchAmbiguity(rule, shadowedBy string) *ErrorBuilder {
	return NewError(CategoryRules, "rule is shadowed by an identical earlier rule").
		Fatal().
		WithContext("rule", rule).
		WithContext("shadowed_by", shadowedBy)
}

// DiscoveryError reports a module that could not be read or resolved.
func DiscoveryError(module string, cause error) *ErrorBuilder {
	return WrapError(cause, CategoryDiscovery, "module discovery failed").
		Fatal().
		WithContext("module", module)
}

// TransformFailure reports a transform capability failure for one module.
// It is fatal and never retried.
func TransformFailure(module string, cause error) *ErrorBuilder {
	return WrapError(cause, CategoryTransform, "transform failed for "+module).
		Fatal().
		WithContext("module", module)
}

// EmissionCollision reports two artifacts resolving to the same output path.
func EmissionCollision(path, first, second string) *ErrorBuilder {
	return NewError(CategoryEmission, "output path collision at "+path).
		Fatal().
		WithContext("path", path).
		WithContext("first", first).
		WithContext("second", second)
}

// TemplateRenderFailure reports an HTML template that could not be rendered.
func TemplateRenderFailure(template string, cause error) *ErrorBuilder {
	return WrapError(cause, CategoryTemplate, "html template render failed").
		Fatal().
		WithContext("template", template)
}

// MinifyFailure is recoverable: the artifact keeps its unminified content.
func MinifyFailure(artifact string, cause error) *ErrorBuilder {
	return WrapError(cause, CategoryMinify, "minification failed, keeping original content").
		Warning().
		WithContext("artifact", artifact)
}

// CleanupFailure reports an output directory that could not be cleared.
func CleanupFailure(path string, cause error) *ErrorBuilder {
	return WrapError(cause, CategoryCleanup, "output cleanup failed").
		Fatal().
		WithContext("path", path)
}

// FileSystemError creates a filesystem error.
func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Fatal().Retryable()
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}

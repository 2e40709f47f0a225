package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *HotpatchError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *HotpatchError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *HotpatchError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Fetch and cache errors

// ColdFetchFailed reports a fetch failure while no cached artifact exists.
// Nothing can be materialized for the run.
func ColdFetchFailed(url string, cause error) *HotpatchError {
	return Wrap(cause, CategoryNetwork, SeverityFatal, "no cached artifact and fetch failed").
		WithContext("url", url)
}

func NetworkTimeout(url string, cause error) *HotpatchError {
	return WrapRetryable(cause, CategoryNetwork, SeverityWarning, "network timeout").
		WithContext("url", url)
}

func CacheUnavailable(operation string, cause error) *HotpatchError {
	return Wrap(cause, CategoryCache, SeverityFatal, "cache store operation failed").
		WithContext("operation", operation)
}

// Extension point errors

func InjectorFailed(name string, cause error) *HotpatchError {
	return Wrap(cause, CategoryInject, SeverityError, "injector failed").
		WithContext("injector", name)
}

func RunnerFailed(name string, cause error) *HotpatchError {
	return Wrap(cause, CategoryRun, SeverityError, "runner failed").
		WithContext("runner", name)
}

func PluginInitFailed(name string, cause error) *HotpatchError {
	return Wrap(cause, CategoryPlugin, SeverityError, "plugin init failed").
		WithContext("plugin", name)
}

func MaterializeFailed(target string, cause error) *HotpatchError {
	return Wrap(cause, CategoryMaterialize, SeverityFatal, "materialization failed").
		WithContext("target", target)
}

// Internal errors

func InternalError(message string, cause error) *HotpatchError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}

package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Build-time errors: detected while planning, before any object is constructed.
const (
	// ErrCodeMissingDependency indicates a required dependency has no satisfying export and no default.
	ErrCodeMissingDependency ErrorCode = "MISSING_DEPENDENCY"
	// ErrCodeAmbiguousExport indicates two unkeyed exports tie on priority while strict mode is enabled.
	ErrCodeAmbiguousExport ErrorCode = "AMBIGUOUS_EXPORT"
	// ErrCodeRecursionTooDeep indicates the dependency chain exceeded the configured maximum depth.
	ErrCodeRecursionTooDeep ErrorCode = "RECURSION_TOO_DEEP"
	// ErrCodeGenericConstraintUnsatisfied indicates a type argument violates a generic parameter constraint.
	ErrCodeGenericConstraintUnsatisfied ErrorCode = "GENERIC_CONSTRAINT_UNSATISFIED"
)

// Run-time errors: raised while executing a compiled construction function.
const (
	// ErrCodeNamedScopeNotFound indicates no ancestor scope carries the name a lifestyle requires.
	ErrCodeNamedScopeNotFound ErrorCode = "NAMED_SCOPE_NOT_FOUND"
	// ErrCodeScopeDisposed indicates the scope was disposed before the operation.
	ErrCodeScopeDisposed ErrorCode = "SCOPE_DISPOSED"
	// ErrCodeConstructionFailed indicates a constructor or factory returned an error or panicked.
	ErrCodeConstructionFailed ErrorCode = "CONSTRUCTION_FAILED"
	// ErrCodeDisposalFailed indicates one or more cleanups failed during teardown.
	ErrCodeDisposalFailed ErrorCode = "DISPOSAL_FAILED"
)

// Configuration errors
const (
	// ErrCodeInvalidExport indicates an export descriptor could not be built or registered.
	ErrCodeInvalidExport ErrorCode = "INVALID_EXPORT"
	// ErrCodeInvalidConfig indicates the engine configuration failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

var buildTimeCodes = map[ErrorCode]bool{
	ErrCodeMissingDependency:            true,
	ErrCodeAmbiguousExport:              true,
	ErrCodeRecursionTooDeep:             true,
	ErrCodeGenericConstraintUnsatisfied: true,
	ErrCodeInvalidExport:                false,
}

// IsBuildTimeCode returns true if the code is raised during planning, which
// guarantees that no instance was constructed by the failing call.
func IsBuildTimeCode(code ErrorCode) bool {
	return buildTimeCodes[code]
}

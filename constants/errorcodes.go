package constants

// Provider error codes form the known vocabulary the error classifier maps
// from. Remote providers translate their own codes into these before the
// result leaves the provider boundary.
const (
	// Transient: retry up to the ceiling.
	ErrCodeThrottling         = "ThrottlingException"
	ErrCodeProvisionedLimit   = "ProvisionedThroughputExceededException"
	ErrCodeInternalError      = "InternalServerError"
	ErrCodeServiceUnavailable = "ServiceUnavailableException"
	ErrCodeTimeout            = "TimeoutError"
	ErrCodeNetwork            = "NetworkError"

	// Permanent, per-document: fail fast.
	ErrCodeBadDocument         = "BadDocumentException"
	ErrCodeDocumentTooLarge    = "DocumentTooLargeException"
	ErrCodeUnsupportedDocument = "UnsupportedDocumentException"
	ErrCodePoorQuality         = "PoorImageQualityException"

	// Permanent, configuration: fail fast and alert.
	ErrCodeAccessDenied   = "AccessDeniedException"
	ErrCodeExpiredToken   = "ExpiredTokenException"
	ErrCodeInvalidKey     = "InvalidSignatureException"
	ErrCodeRetryExhausted = "RetryCeilingExceeded"
)

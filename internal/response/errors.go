package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Job-specific ──────────────────────────────────────────────────
	ErrJobBusy           ErrCode = "JOB_BUSY"
	ErrIllegalState      ErrCode = "ILLEGAL_STATE"
	ErrNoAnswers         ErrCode = "NO_ANSWERS"
	ErrReportNotReady    ErrCode = "REPORT_NOT_READY"
	ErrReferenceNotReady ErrCode = "REFERENCE_NOT_READY"

	// ─── Uploads ───────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Providers ─────────────────────────────────────────────────────
	ErrProviderFailure ErrCode = "PROVIDER_FAILURE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Job-specific ──────────────────────────────────────────────────
	case ErrJobBusy:
		return "Another operation is already running for this job."
	case ErrIllegalState:
		return "The job is not in a state that allows this operation."
	case ErrNoAnswers:
		return "The job has no structured answers yet."
	case ErrReportNotReady:
		return "No report has been rendered for this job yet."
	case ErrReferenceNotReady:
		return "The reference answer key has not been processed yet."

	// ─── Uploads ───────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	// ─── Providers ─────────────────────────────────────────────────────
	case ErrProviderFailure:
		return "An external processing service failed. Please retry later."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrLoginRevoked       ErrCode = "LOGIN_REVOKED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"
	ErrNotSessionOwner   ErrCode = "NOT_SESSION_OWNER"
	ErrNotEnrolled       ErrCode = "NOT_ENROLLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Session invariants ────────────────────────────────────────────
	ErrAccessCodeTaken       ErrCode = "ACCESS_CODE_TAKEN"
	ErrInvalidAccessCode     ErrCode = "INVALID_ACCESS_CODE"
	ErrSessionInactive       ErrCode = "SESSION_INACTIVE"
	ErrOrderSetMismatch      ErrCode = "ORDER_SET_MISMATCH"
	ErrForeignDefaultOption  ErrCode = "FOREIGN_DEFAULT_OPTION"
	ErrDeleteDefaultOption   ErrCode = "DELETE_DEFAULT_OPTION"
	ErrIllegalRoleTransition ErrCode = "ILLEGAL_ROLE_TRANSITION"
	ErrUnknownField          ErrCode = "UNKNOWN_FIELD"
	ErrOptionMismatch        ErrCode = "OPTION_MISMATCH"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect email or password."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrEmailTaken:
		return "This email address is already registered."
	case ErrLoginRevoked:
		return "This login has been replaced by a newer one. Please log in again."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrTeacherAccessOnly:
		return "This resource is limited to teachers."
	case ErrAdminAccessOnly:
		return "This resource is limited to administrators."
	case ErrNotSessionOwner:
		return "You are not the owner of this session."
	case ErrNotEnrolled:
		return "You have not joined this session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Session invariants ────────────────────────────────────────────
	case ErrAccessCodeTaken:
		return "This access code is already in use."
	case ErrInvalidAccessCode:
		return "No active session uses this access code."
	case ErrSessionInactive:
		return "This session is not active."
	case ErrOrderSetMismatch:
		return "The order must list every sibling exactly once."
	case ErrForeignDefaultOption:
		return "The default option must belong to the question."
	case ErrDeleteDefaultOption:
		return "The default option cannot be deleted."
	case ErrIllegalRoleTransition:
		return "This role change is not allowed."
	case ErrUnknownField:
		return "This field cannot be updated."
	case ErrOptionMismatch:
		return "The option does not belong to this question."

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

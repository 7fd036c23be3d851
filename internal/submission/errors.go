package submission

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAbuseCheck
	KindStorageUpload
	KindNotification
	KindUnknownSubmission
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAbuseCheck:
		return "AbuseCheckFailed"
	case KindStorageUpload:
		return "StorageUploadFailed"
	case KindNotification:
		return "NotificationFailed"
	case KindUnknownSubmission:
		return "UnknownSubmission"
	case KindConflict:
		return "Conflict"
	default:
		return "InternalError"
	}
}

// HTTPStatus maps the kind to the response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindAbuseCheck:
		return http.StatusBadRequest
	case KindUnknownSubmission:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FieldError is one violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the single error type the pipeline returns to its callers.
// Msg is safe to show to the submitter.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError joins all field messages into one display string.
func NewValidationError(fields []FieldError) *Error {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f.Message)
	}
	return &Error{Kind: KindValidation, Msg: strings.Join(msgs, "; "), Fields: fields}
}

// AbuseCheckFailed wraps a verification failure.
func AbuseCheckFailed(err error) *Error {
	return &Error{Kind: KindAbuseCheck, Msg: "reCAPTCHA verification failed", Err: err}
}

// StorageUploadFailed wraps a backend failure.
func StorageUploadFailed(err error) *Error {
	return &Error{Kind: KindStorageUpload, Msg: "Upload to storage failed", Err: err}
}

// NotificationFailed wraps a failed operator notification.
func NotificationFailed(err error) *Error {
	return &Error{Kind: KindNotification, Msg: "Failed to notify the operator", Err: err}
}

// UnknownSubmission is returned when a link names no claimable submission.
func UnknownSubmission(err error) *Error {
	return &Error{Kind: KindUnknownSubmission, Msg: "Unknown or expired submission id", Err: err}
}

// Conflict is returned when a link arrives for a submission that already has one.
func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Msg: msg, Err: err}
}

// Internal wraps anything else.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// AsError extracts a *Error from err, classifying unknown errors as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("Internal server error", err)
}

// Package apierr defines the stable error-kind strings the core surfaces,
// and their mapping to control-plane HTTP status codes.
package apierr

import "fmt"

type Kind string

const (
	InvalidRequest                 Kind = "invalid_request"
	Unauthorized                   Kind = "unauthorized"
	LaneForbidden                  Kind = "lane_forbidden"
	ForbiddenMutation              Kind = "forbidden_mutation"
	NotFound                       Kind = "not_found"
	StateConflict                  Kind = "state_conflict"
	MissingChat                    Kind = "missing_chat"
	InvalidFilePath                Kind = "invalid_file_path"
	FileTooLarge                   Kind = "file_too_large"
	InvalidTaskPayload             Kind = "invalid_task_payload"
	InvalidWatchdogPayload         Kind = "invalid_watchdog_payload"
	InvalidResultJSON              Kind = "invalid_result_json"
	InvalidResultSchema            Kind = "invalid_result_schema"
	TaskExecutionError             Kind = "task_execution_error"
	WatchdogNotificationUnavailable Kind = "watchdog_notification_unavailable"
	TaskError                      Kind = "task_error"
	TaskFailed                     Kind = "task_failed"
	InternalError                  Kind = "internal_error"
)

// Error is a core error carrying a stable kind string plus detail.
type Error struct {
	Kind    Kind
	Message string
	Details any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WithDetails(kind Kind, message string, details any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// HTTPStatus maps a Kind to the control-plane's HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidRequest, InvalidTaskPayload, InvalidWatchdogPayload, InvalidFilePath, FileTooLarge, MissingChat:
		return 400
	case Unauthorized:
		return 401
	case LaneForbidden, ForbiddenMutation:
		return 403
	case NotFound:
		return 404
	case StateConflict:
		return 409
	default:
		return 500
	}
}

// AsAPIError unwraps err into an *Error if possible, else maps it to a
// generic internal_error so every failure surfaces a structured response.
func AsAPIError(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return New(InternalError, err.Error())
}

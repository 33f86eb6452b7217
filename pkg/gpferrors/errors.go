// Package gpferrors defines the error taxonomy shared by every layer of the
// SDK: the request layer, the entity wrappers, the action runtime and the
// workflow driver. Every exported error type implements error and, where it
// wraps a lower-level cause, supports errors.Unwrap.
package gpferrors

import (
	"fmt"
)

// ProblemDetail is an RFC 7807-flavored payload every SDK error can expose,
// so an external CLI or UI layer can render it without the SDK itself doing
// any HTTP response writing.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func newProblem(kind, title, detail string, status int) ProblemDetail {
	return ProblemDetail{
		Type:   "https://geoplateforme.ign.fr/errors/" + kind,
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// AuthentificationError indicates token acquisition exhausted its retries or
// the account credentials are no longer valid. Fatal to the current action.
type AuthentificationError struct {
	ProblemDetail
	Cause error
}

func NewAuthentificationError(message string, cause error) *AuthentificationError {
	return &AuthentificationError{
		ProblemDetail: newProblem("authentification", "Authentification error", message, 0),
		Cause:         cause,
	}
}

func (e *AuthentificationError) Error() string { return e.Detail }
func (e *AuthentificationError) Unwrap() error { return e.Cause }

// RouteNotFoundError indicates the route table does not define the
// requested route name. Always a programming error, always fatal.
type RouteNotFoundError struct {
	ProblemDetail
	RouteName string
}

func NewRouteNotFoundError(routeName string) *RouteNotFoundError {
	return &RouteNotFoundError{
		ProblemDetail: newProblem("route-not-found", "Route not found",
			fmt.Sprintf("la route %q n'est pas définie dans la table de routage", routeName), 0),
		RouteName: routeName,
	}
}

func (e *RouteNotFoundError) Error() string { return e.Detail }

// httpStatusError is the shared shape of the three direct HTTP-status
// translations (404, 409, 400).
type httpStatusError struct {
	ProblemDetail
	Body []byte
}

func (e *httpStatusError) Error() string { return e.Detail }

// NotFoundError wraps an HTTP 404 response.
type NotFoundError struct{ httpStatusError }

func NewNotFoundError(detail string, body []byte) *NotFoundError {
	return &NotFoundError{httpStatusError{
		ProblemDetail: newProblem("not-found", "Not found", detail, 404),
		Body:          body,
	}}
}

// ConflictError wraps an HTTP 409 response. Carries the raw response body so
// callers (e.g. the offering action) can inspect the server's reason.
type ConflictError struct{ httpStatusError }

func NewConflictError(detail string, body []byte) *ConflictError {
	return &ConflictError{httpStatusError{
		ProblemDetail: newProblem("conflict", "Conflict", detail, 409),
		Body:          body,
	}}
}

// BadRequestError wraps an HTTP 400 response.
type BadRequestError struct{ httpStatusError }

func NewBadRequestError(detail string, body []byte) *BadRequestError {
	return &BadRequestError{httpStatusError{
		ProblemDetail: newProblem("bad-request", "Bad request", detail, 400),
		Body:          body,
	}}
}

// GpfSdkError is the catch-all for request-layer problems that are not one
// of the direct HTTP-status translations: retry exhaustion, unreachable
// server, malformed URL, or an unexpected server shape.
type GpfSdkError struct {
	ProblemDetail
	Cause error
}

func NewGpfSdkError(message string, cause error) *GpfSdkError {
	return &GpfSdkError{
		ProblemDetail: newProblem("sdk-error", "SDK error", message, 0),
		Cause:         cause,
	}
}

func (e *GpfSdkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Cause)
	}
	return e.Detail
}
func (e *GpfSdkError) Unwrap() error { return e.Cause }

// StepActionError indicates an action's precondition failed, or the
// reconciliation state machine rejected the selected behavior policy.
// Fatal to the action.
type StepActionError struct {
	ProblemDetail
	ActionType string
}

func NewStepActionError(actionType, message string) *StepActionError {
	return &StepActionError{
		ProblemDetail: newProblem("step-action-error", "Step action error", message, 0),
		ActionType:    actionType,
	}
}

func (e *StepActionError) Error() string { return e.Detail }

// WorkflowError indicates the workflow document is malformed or references
// unknown steps or actions.
type WorkflowError struct {
	ProblemDetail
	StepName   string
	ActionType string
	Cause      error
}

func NewWorkflowError(stepName, actionType, message string, cause error) *WorkflowError {
	return &WorkflowError{
		ProblemDetail: newProblem("workflow-error", "Workflow error", message, 0),
		StepName:      stepName,
		ActionType:    actionType,
		Cause:         cause,
	}
}

func (e *WorkflowError) Error() string {
	msg := e.Detail
	if e.StepName != "" {
		msg = fmt.Sprintf("étape %q : %s", e.StepName, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}
func (e *WorkflowError) Unwrap() error { return e.Cause }

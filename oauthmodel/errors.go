package oauthmodel

import "net/http"

// ErrorCode is a protocol error code as registered by RFC 6749 and RFC 8628.
// The code is what goes on the wire; the description is free text for humans.
type ErrorCode string

const (
	ErrorCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrorCodeInvalidClient           ErrorCode = "invalid_client"
	ErrorCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrorCodeUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrorCodeAccessDenied            ErrorCode = "access_denied"
	ErrorCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrorCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrorCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrorCodeServerError             ErrorCode = "server_error"
)

// Error is the protocol error returned by the authorization and token
// endpoints. It marshals directly to the RFC 6749 error response body and
// doubles as a Go error so services can return it through normal error paths.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}

// HTTPStatus maps the error code to the status the token endpoint responds
// with: 401 for failed client authentication, 500 for internal faults and 400
// for everything else.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrorCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// NewError builds a protocol error from a code and description.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

func InvalidRequest(description string) *Error {
	return NewError(ErrorCodeInvalidRequest, description)
}

func InvalidClient(description string) *Error {
	return NewError(ErrorCodeInvalidClient, description)
}

func InvalidGrant(description string) *Error {
	return NewError(ErrorCodeInvalidGrant, description)
}

func UnauthorizedClient(description string) *Error {
	return NewError(ErrorCodeUnauthorizedClient, description)
}

func AccessDenied(description string) *Error {
	return NewError(ErrorCodeAccessDenied, description)
}

func UnsupportedResponseType(description string) *Error {
	return NewError(ErrorCodeUnsupportedResponseType, description)
}

func UnsupportedGrantType(description string) *Error {
	return NewError(ErrorCodeUnsupportedGrantType, description)
}

func InvalidScope(description string) *Error {
	return NewError(ErrorCodeInvalidScope, description)
}

func ServerError(description string) *Error {
	return NewError(ErrorCodeServerError, description)
}

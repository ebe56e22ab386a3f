package oidc

import (
	"errors"
	"fmt"
)

type errorType string

const (
	InvalidRequest          errorType = "invalid_request"
	InvalidScope            errorType = "invalid_scope"
	InvalidClient           errorType = "invalid_client"
	InvalidGrant            errorType = "invalid_grant"
	UnauthorizedClient      errorType = "unauthorized_client"
	UnsupportedGrantType    errorType = "unsupported_grant_type"
	UnsupportedResponseType errorType = "unsupported_response_type"
	ServerError             errorType = "server_error"
	RequestNotSupported     errorType = "request_not_supported"
	RequestURINotSupported  errorType = "request_uri_not_supported"
	AccessDenied            errorType = "access_denied"
)

var (
	ErrInvalidRequest = func() *Error {
		return &Error{
			ErrorType: InvalidRequest,
		}
	}
	ErrInvalidRequestRedirectURI = func() *Error {
		return &Error{
			ErrorType:        InvalidRequest,
			redirectDisabled: true,
		}
	}
	ErrInvalidScope = func() *Error {
		return &Error{
			ErrorType: InvalidScope,
		}
	}
	ErrInvalidClient = func() *Error {
		return &Error{
			ErrorType: InvalidClient,
		}
	}
	ErrInvalidGrant = func() *Error {
		return &Error{
			ErrorType: InvalidGrant,
		}
	}
	ErrUnauthorizedClient = func() *Error {
		return &Error{
			ErrorType: UnauthorizedClient,
		}
	}
	ErrUnsupportedGrantType = func() *Error {
		return &Error{
			ErrorType: UnsupportedGrantType,
		}
	}
	ErrUnsupportedResponseType = func() *Error {
		return &Error{
			ErrorType: UnsupportedResponseType,
		}
	}
	ErrServerError = func() *Error {
		return &Error{
			ErrorType: ServerError,
		}
	}
	ErrRequestNotSupported = func() *Error {
		return &Error{
			ErrorType: RequestNotSupported,
		}
	}
	ErrRequestURINotSupported = func() *Error {
		return &Error{
			ErrorType: RequestURINotSupported,
		}
	}
	ErrAccessDenied = func() *Error {
		return &Error{
			ErrorType: AccessDenied,
		}
	}
)

type Error struct {
	Parent           error     `json:"-" schema:"-"`
	ErrorType        errorType `json:"error" schema:"error"`
	Description      string    `json:"error_description,omitempty" schema:"error_description,omitempty"`
	State            string    `json:"state,omitempty" schema:"state,omitempty"`
	redirectDisabled bool      `schema:"-"`
}

func (e *Error) Error() string {
	message := "ErrorType=" + string(e.ErrorType)
	if e.Description != "" {
		message += " Description=" + e.Description
	}
	if e.Parent != nil {
		message += " Parent=" + e.Parent.Error()
	}
	return message
}

func (e *Error) Unwrap() error {
	return e.Parent
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.ErrorType == t.ErrorType &&
		(e.Description == t.Description || t.Description == "") &&
		(e.State == t.State || t.State == "")
}

func (e *Error) WithParent(err error) *Error {
	e.Parent = err
	return e
}

func (e *Error) WithDescription(desc string, args ...any) *Error {
	e.Description = fmt.Sprintf(desc, args...)
	return e
}

func (e *Error) IsRedirectDisabled() bool {
	return e.redirectDisabled
}

// DisableRedirect marks the error for delivery as a plain HTTP error. Used
// when a request fails before its redirect_uri could be validated, so the
// error is never sent to an unverified target.
func (e *Error) DisableRedirect() *Error {
	e.redirectDisabled = true
	return e
}

// DefaultToServerError checks if the error is an Error
// if not the provided error will be wrapped into a ServerError
func DefaultToServerError(err error, description string) *Error {
	oauth := new(Error)
	if ok := errors.As(err, &oauth); !ok {
		oauth.ErrorType = ServerError
		oauth.Description = description
		oauth.Parent = err
	}
	return oauth
}

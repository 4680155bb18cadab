// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIErrorCode is the closed set of error codes that can appear in type
// APIError. Each code corresponds to exactly one failure kind of the
// directory core: authentication, lookup, authorization, client error, or
// backend failure.
type APIErrorCode string

// Possible values for APIErrorCode.
const (
	ErrUnauthenticated APIErrorCode = "UNAUTHENTICATED"
	ErrNotFound        APIErrorCode = "NOT_FOUND"
	ErrDenied          APIErrorCode = "DENIED"
	ErrInvalidRequest  APIErrorCode = "INVALID_REQUEST"
	ErrInternal        APIErrorCode = "INTERNAL"
)

var apiErrorMessages = map[APIErrorCode]string{
	ErrUnauthenticated: "authentication required",
	ErrNotFound:        "resource not found",
	ErrDenied:          "requested access to the resource is denied",
	ErrInvalidRequest:  "invalid request",
	ErrInternal:        "internal server error",
}

var apiErrorStatusCodes = map[APIErrorCode]int{
	ErrUnauthenticated: http.StatusUnauthorized,
	ErrNotFound:        http.StatusNotFound,
	ErrDenied:          http.StatusForbidden,
	ErrInvalidRequest:  http.StatusBadRequest,
	ErrInternal:        http.StatusInternalServerError,
}

// With is a convenience function for constructing type APIError.
func (c APIErrorCode) With(msg string, args ...any) *APIError {
	var err error
	if msg != "" {
		if len(args) > 0 {
			err = fmt.Errorf(msg, args...)
		} else {
			err = errors.New(msg)
		}
	}
	return &APIError{Code: c, Inner: err}
}

// APIError is the error type that all operations of the directory core
// report. The error kind is identified by the Code; Inner carries the
// specific cause, if any.
type APIError struct {
	Code   APIErrorCode
	Inner  error // optional
	Status int   // optional, overrides the default status code for this Code
}

// AsAPIError casts err into an *APIError if possible, and otherwise wraps it
// into an ErrInternal. Backend failures that are not one of the classified
// kinds therefore propagate to the API boundary unchanged, as an internal
// error, without any retry or silent recovery.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Code: ErrInternal, Inner: err}
}

// WithStatus returns a copy of this error with the given HTTP status code.
func (e *APIError) WithStatus(status int) *APIError {
	return &APIError{Code: e.Code, Inner: e.Inner, Status: status}
}

// StatusCode returns the HTTP status code for this error.
func (e *APIError) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return apiErrorStatusCodes[e.Code]
}

// MarshalJSON implements the json.Marshaler interface.
func (e *APIError) MarshalJSON() ([]byte, error) {
	data := struct {
		Code    string  `json:"code"`
		Message string  `json:"message"`
		Detail  *string `json:"detail,omitempty"`
	}{
		Code:    string(e.Code),
		Message: apiErrorMessages[e.Code],
	}
	if e.Inner != nil {
		detail := e.Inner.Error()
		data.Detail = &detail
	}
	return json.Marshal(data)
}

// WriteAsJSONTo reports this error in the format used by the Gatehouse API.
func (e *APIError) WriteAsJSONTo(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode())
	buf, _ := json.Marshal(struct {
		Error *APIError `json:"error"`
	}{
		Error: e,
	})
	w.Write(append(buf, '\n'))
}

// WriteAsTextTo reports this error in a plain text format.
func (e *APIError) WriteAsTextTo(w http.ResponseWriter) {
	w.WriteHeader(e.StatusCode())
	w.Write([]byte(e.Error() + "\n"))
}

// Error implements the builtin/error interface.
func (e *APIError) Error() string {
	text := apiErrorMessages[e.Code]
	if e.Inner != nil {
		text += ": " + e.Inner.Error()
	}
	return text
}

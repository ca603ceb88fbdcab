package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// StatusCoder is implemented by errors that carry their own HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a handler failure with a defined HTTP status and a message
// that is safe to show to clients.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

// NewStatusError creates a StatusError. An empty message means the status
// text.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, msg)
}

// Errorf returns a StatusError whose formatted message is shown to clients.
func Errorf(status int, format string, args ...any) error {
	return &StatusError{Code: status, Message: fmt.Sprintf(format, args...)}
}

// StatusCode implements StatusCoder.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// Error is the record handed to the error handler for one failed request.
// Message is always safe to send to the client; Err and Stack are for
// server-side use.
type Error struct {
	Status  int
	Message string
	Err     error
	Debug   bool
	Stack   []byte
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
}

// Unwrap returns the original failure.
func (e *Error) Unwrap() error {
	return e.Err
}

// Trace returns the captured stack, or an empty string.
func (e *Error) Trace() string {
	return string(e.Stack)
}

// PanicError is the failure recorded when a handler panics.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NewError classifies err into an Error record. The status is 500 unless
// err carries one. Without debug the message is the status-defined safe
// message; with debug it is err's text.
func NewError(err error, debug bool) *Error {
	status := http.StatusInternalServerError
	safe := ""

	var se *StatusError
	var sc StatusCoder
	switch {
	case errors.As(err, &se):
		status = se.Code
		safe = se.Message
	case errors.As(err, &sc):
		status = sc.StatusCode()
	}
	if status < 100 || status > 999 {
		status = http.StatusInternalServerError
	}
	if safe == "" {
		safe = http.StatusText(status)
	}

	msg := safe
	if debug && err != nil {
		msg = err.Error()
	}

	return &Error{
		Status:  status,
		Message: msg,
		Err:     err,
		Debug:   debug,
	}
}

// IsDisconnect reports whether err means the client went away.
func IsDisconnect(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed):
		return true
	}
	return false
}

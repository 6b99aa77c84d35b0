package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a request failure. It is not part of the JSON body; the
// transports use it to pick a status code.
type ErrorKind string

const (
	KindUninitialized ErrorKind = "uninitialized"
	KindValidation    ErrorKind = "validation"
	KindInference     ErrorKind = "inference"
	KindParse         ErrorKind = "parse"
)

// Error is a classified request failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// MissingInputMessage is returned when a payload has neither "text" nor "texts".
const MissingInputMessage = "Payload must contain 'text' or 'texts'."

var (
	// ErrUninitialized is returned for embedding requests served before Initialize completed.
	ErrUninitialized = &Error{Kind: KindUninitialized, Msg: "Model not initialised: did the host call init()?"}
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("service already initialised")
	// ErrClosed is returned by Initialize after Close.
	ErrClosed = errors.New("service closed")
	// ErrMissingInput is the validation failure for a payload without text or texts.
	ErrMissingInput = &Error{Kind: KindValidation, Msg: MissingInputMessage}
)

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func parseError(err error) *Error {
	return &Error{Kind: KindParse, Msg: "invalid JSON payload", Err: err}
}

func inferenceError(msg string, err error) *Error {
	return &Error{Kind: KindInference, Msg: msg, Err: err}
}

// KindOf returns the kind of err; unclassified errors count as inference failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInference
}

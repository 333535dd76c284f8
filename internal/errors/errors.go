package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

type codedError struct {
	code  ErrorCode
	msg   string
	data  any
	cause error
}

// Error renders "message[: data][: cause]". The message defaults to the
// registered text for the code.
func (e *codedError) Error() string {
	parts := make([]string, 0, 3)

	if e.msg != "" {
		parts = append(parts, e.msg)
	} else {
		parts = append(parts, GetErrorMessage(e.code))
	}
	if e.data != nil {
		parts = append(parts, fmt.Sprint(e.data))
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *codedError) Code() ErrorCode { return e.code }
func (e *codedError) Data() any       { return e.data }
func (e *codedError) Unwrap() error   { return e.cause }

// Is matches any coded error with the same code, so a bare
// Factory.New(code) works as a sentinel.
func (e *codedError) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code() == e.code
}

type factory struct{}

func (factory) New(code ErrorCode) Error {
	return &codedError{code: code}
}

func (factory) Wrap(code ErrorCode, err error) Error {
	return &codedError{code: code, cause: err}
}

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return &codedError{code: code, msg: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return &codedError{code: code, data: data}
}

func New() Factory {
	return factory{}
}

// CodeOf returns the outermost code in err's chain, or "" when err
// carries none.
func CodeOf(err error) ErrorCode {
	var e Error
	if As(err, &e) {
		return e.Code()
	}

	return ""
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return Is(err, &codedError{code: code})
}

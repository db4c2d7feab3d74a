// Package errors vends the application error type shared by dogbox components.
package errors

import (
	"errors"
	"net/http"
	"strings"
)

type ErrCode string

const (
	ErrCodeNotFound       ErrCode = "NotFound"
	ErrCodeServiceFailure ErrCode = "ServiceFailure"
	ErrCodeBadRequest     ErrCode = "BadRequest"
	ErrCodeTooLarge       ErrCode = "TooLarge"
	ErrCodeUnauthorized   ErrCode = "Unauthorized"
	ErrCodeConfig         ErrCode = "Config"
	ErrCodeExisted        ErrCode = "Existed"
)

// Err is the error type returned by dogbox components. Its message is safe to log but never to send to
// clients; handlers reply with the status text of StatusCode() only.
type Err struct {
	Code  ErrCode
	msg   string
	cause error
}

func (e *Err) Error() string {
	return e.msg
}

// Trace returns the message of e followed by the chain of its causes
func (e *Err) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	indent := "\n"
	err := errors.Unwrap(e)
	for err != nil {
		indent += "\t"
		b.WriteString(indent)
		b.WriteString("Caused by: ")
		b.WriteString(err.Error())
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *Err) Unwrap() error {
	return e.cause
}

func (e *Err) WithCause(c error) *Err {
	e.cause = c
	return e
}

// prefer NewX(msg).WithCause(err) over NewX(msg, err) since the latter's signature reads worse at call sites
func NewServiceFailure(m string) *Err {
	return &Err{Code: ErrCodeServiceFailure, msg: m}
}

func NewNotFound(m string) *Err {
	return &Err{Code: ErrCodeNotFound, msg: m}
}

func NewBadInput(m string) *Err {
	return &Err{Code: ErrCodeBadRequest, msg: m}
}

func NewTooLarge(m string) *Err {
	return &Err{Code: ErrCodeTooLarge, msg: m}
}

func NewUnauthorized(m string) *Err {
	return &Err{Code: ErrCodeUnauthorized, msg: m}
}

// NewConfig marks errors in process configuration. They are fatal at startup.
func NewConfig(m string) *Err {
	return &Err{Code: ErrCodeConfig, msg: m}
}

func NewExisted(m string) *Err {
	return &Err{Code: ErrCodeExisted, msg: m}
}

// HasCode reports whether err or any error it wraps is an *Err of code c
func HasCode(err error, c ErrCode) bool {
	var e *Err
	for err != nil {
		if !errors.As(err, &e) || e == nil {
			return false
		}
		if e.Code == c {
			return true
		}
		err = e.cause
	}
	return false
}

// StatusCode returns the http response status code associated with the Err value
func (e *Err) StatusCode() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeExisted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

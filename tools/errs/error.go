package errs

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type Error interface {
	Is(err error) bool
	Wrap() error
	WrapMsg(msg string, kv ...any) error
	error
}

type ErrWrapper interface {
	Is(err error) bool
	Wrap() error
	Unwrap() error
	WrapMsg(msg string, kv ...any) error
	error
}

// New 无错误码的普通错误，kv 追加在消息尾部
func New(s string, kv ...any) Error {
	return &errorString{s: toString(s, kv)}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string { return e.s }

func (e *errorString) Is(err error) bool {
	if err == nil {
		return false
	}
	var t *errorString
	if ok := asErrorString(err, &t); !ok {
		return false
	}
	return e.s == t.s
}

func (e *errorString) Wrap() error {
	return pkgerrors.WithStack(e)
}

func (e *errorString) WrapMsg(msg string, kv ...any) error {
	if msg == "" && len(kv) == 0 {
		return e.Wrap()
	}
	return WrapMsg(e, msg, kv...)
}

func asErrorString(err error, target **errorString) bool {
	for err != nil {
		if s, ok := err.(*errorString); ok {
			*target = s
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func NewErrorWrapper(err error, s string) ErrWrapper {
	return &errorWrapper{error: err, s: s}
}

type errorWrapper struct {
	error
	s string
}

func (e *errorWrapper) Is(err error) bool {
	if err == nil {
		return false
	}
	if t, ok := err.(*errorWrapper); ok {
		return e.s == t.s
	}
	return false
}

func (e *errorWrapper) Error() string {
	if e.s == "" {
		return e.error.Error()
	}
	return e.s + ": " + e.error.Error()
}

func (e *errorWrapper) Unwrap() error { return e.error }

func (e *errorWrapper) Wrap() error { return pkgerrors.WithStack(e) }

func (e *errorWrapper) WrapMsg(msg string, kv ...any) error {
	return WrapMsg(e, msg, kv...)
}

func toString(s string, kv []any) string {
	if len(kv) == 0 {
		return s
	}
	var sb strings.Builder
	sb.WriteString(s)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}

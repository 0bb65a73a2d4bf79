package errs

import (
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var relation = newCodeRelation()

func NewCodeError(code int, msg string) CodeError {
	return CodeError{Code: code, Msg: msg}
}

// CodeError 带错误码的业务错误，Detail 为追加的上下文
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) Wrap() error {
	return pkgerrors.WithStack(e.clone())
}

func (e *CodeError) clone() *CodeError {
	c := *e
	return &c
}

func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e.clone()
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(retErr)
}

// Is 判断 err 链上的 CodeError 是否与 e 同码，或属于 e 的子码
func (e *CodeError) Is(err error) bool {
	codeErr, ok := AsCode(err)
	if !ok {
		return err == nil && e == nil
	}
	if e == nil {
		return false
	}
	if e.Code == codeErr.Code {
		return true
	}
	return relation.Is(e.Code, codeErr.Code)
}

// Error 形如 "1101 RoomNotFound room_id=xxx"
func (e *CodeError) Error() string {
	v := []string{strconv.Itoa(e.Code), e.Msg}
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// AsCode 取出错误链上的第一个 CodeError
func AsCode(err error) (*CodeError, bool) {
	if err == nil {
		return nil, false
	}
	var codeErr *CodeError
	if errors.As(err, &codeErr) && codeErr != nil {
		return codeErr, true
	}
	return nil, false
}

// WrapMsg 给普通错误附加上下文，保留 CodeError 以便 AsCode 取出
func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	err = NewErrorWrapper(err, toString(msg, kv))
	return pkgerrors.WithStack(err)
}

// codeRelation 父码 -> 子码集合，如 AuthFailed 包含 InvalidToken、ExpiredToken
type codeRelation struct {
	m map[int]map[int]struct{}
}

func newCodeRelation() *codeRelation {
	return &codeRelation{m: make(map[int]map[int]struct{})}
}

// Add codes 依次为父、子、孙...
func (r *codeRelation) Add(codes ...int) error {
	if len(codes) < 2 {
		return New("at least two codes required", "codes", codes).Wrap()
	}
	for i := 1; i < len(codes); i++ {
		parent := codes[i-1]
		s, ok := r.m[parent]
		if !ok {
			s = make(map[int]struct{})
			r.m[parent] = s
		}
		for _, code := range codes[i:] {
			s[code] = struct{}{}
		}
	}
	return nil
}

func (r *codeRelation) Is(parent, child int) bool {
	if parent == child {
		return true
	}
	s, ok := r.m[parent]
	if !ok {
		return false
	}
	_, ok = s[child]
	return ok
}

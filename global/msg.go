package global

import (
	"PPChat/tools/errs"
	"net/http"
)

// Msg HTTP 统一响应
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{
		Code: 200,
		Msg:  "",
		Data: data,
	}
}

// Fail 非 CodeError 按 ServerInternalError 返回，不暴露内部细节
func Fail(err error) *Msg {
	ce, ok := errs.AsCode(err)
	if !ok {
		return &Msg{Code: errs.ServerInternalError, Msg: errs.ErrInternalServer.Msg}
	}
	m := &Msg{Code: ce.Code, Msg: ce.Msg}
	if ce.Detail != "" {
		m.Data = ce.Detail
	}
	return m
}

// HTTPStatus 错误码 -> HTTP 状态码
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errs.ErrAuthFailed.Is(err):
		return http.StatusUnauthorized
	case errs.ErrForbidden.Is(err):
		return http.StatusForbidden
	case errs.ErrRoomNotFound.Is(err):
		return http.StatusNotFound
	case errs.ErrRoomInactive.Is(err):
		return http.StatusConflict
	case errs.ErrProtocol.Is(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

package safe

import (
	"fmt"
	"reflect"

	"PPChat/logger"
	"PPChat/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil 构造时检查必需依赖，nil 指针等同 nil
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// SafeGo 启动 goroutine，panic 只记录日志
func SafeGo(where string, f func()) {
	go func() {
		defer Recover(where, nil)
		f()
	}()
}

// Recover 用于 defer；捕获 panic 后记录日志，并通过 onPanic 回传包装后的错误
func Recover(where string, onPanic func(err error)) {
	r := recover()
	if r == nil {
		return
	}
	err := errs.ErrPanic(r)
	logger.Error("[Safe] panic recovered", zap.String("where", where), zap.Error(err))
	if onPanic != nil {
		onPanic(err)
	}
}

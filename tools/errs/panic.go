package errs

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrPanic recover 得到的值转为 ServerInternalError
func ErrPanic(r any) error {
	if r == nil {
		return nil
	}
	return pkgerrors.WithStack(&CodeError{
		Code:   ServerInternalError,
		Msg:    "panic error",
		Detail: fmt.Sprint(r),
	})
}

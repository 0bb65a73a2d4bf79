package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeErrorWrapMsg(t *testing.T) {
	err := ErrRoomNotFound.WrapMsg("lookup", "room_id", "r1")
	assert.Equal(t, "1101 RoomNotFound lookup, room_id=r1", err.Error())
	assert.Empty(t, ErrRoomNotFound.Detail, "predefined error is not mutated")

	ce, ok := AsCode(err)
	require.True(t, ok)
	assert.Equal(t, RoomNotFound, ce.Code)
	assert.Equal(t, "lookup, room_id=r1", ce.Detail)
}

func TestCodeErrorIsParent(t *testing.T) {
	invalid := ErrInvalidToken.WrapMsg("bad signature")
	assert.True(t, ErrAuthFailed.Is(invalid))
	assert.True(t, ErrAuthFailed.Is(ErrTokenExpired.Wrap()))
	assert.True(t, ErrInvalidToken.Is(invalid))
	assert.False(t, ErrInvalidToken.Is(ErrAuthFailed.Wrap()))
	assert.False(t, ErrRoomNotFound.Is(invalid))
	assert.False(t, ErrRoomNotFound.Is(errors.New("plain")))
}

func TestWrapMsgKeepsCode(t *testing.T) {
	assert.NoError(t, WrapMsg(nil, "ignored"))

	err := WrapMsg(ErrRoomInactive.WrapMsg("room r1"), "connect", "user", 7)
	assert.Contains(t, err.Error(), "connect, user=7")
	assert.True(t, ErrRoomInactive.Is(err))

	plain := WrapMsg(errors.New("io"), "read")
	_, ok := AsCode(plain)
	assert.False(t, ok)
	assert.Equal(t, "read: io", plain.Error())
}

func TestNewError(t *testing.T) {
	e := New("route not found", "biz", "chat")
	assert.Equal(t, "route not found, biz=chat", e.Error())
	assert.True(t, errors.Is(e.Wrap(), e))
	assert.Equal(t, "odd, k=MISSING", New("odd", "k").Error())
}

func TestErrPanic(t *testing.T) {
	assert.NoError(t, ErrPanic(nil))
	ce, ok := AsCode(ErrPanic("boom"))
	require.True(t, ok)
	assert.Equal(t, ServerInternalError, ce.Code)
	assert.Equal(t, "boom", ce.Detail)
}

func TestCodeRelation(t *testing.T) {
	r := newCodeRelation()
	assert.Error(t, r.Add(1))
	require.NoError(t, r.Add(1, 2, 3))
	assert.True(t, r.Is(1, 3))
	assert.True(t, r.Is(2, 3))
	assert.False(t, r.Is(3, 1))
}

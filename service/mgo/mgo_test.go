package mgo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReadyHonoursContext(t *testing.T) {
	m := newManager()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WaitReady(ctx, m)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Error(t, WaitReady(ctx, nil))
}

func TestWaitReadyAfterSignal(t *testing.T) {
	m := newManager()
	m.readyOnce.Do(func() { close(m.readyCh) })
	assert.NoError(t, WaitReady(context.Background(), m))
}

func TestTryGetDBBeforeConnect(t *testing.T) {
	_, ok := TryGetDB()
	assert.False(t, ok)
}

func TestOnStatus(t *testing.T) {
	m := newManager()
	var got []bool
	m.OnStatus(func(up bool) { got = append(got, up) })
	assert.Empty(t, got, "not connected yet")

	// 无连接时 drop 不回调
	m.drop()
	assert.Empty(t, got)
}

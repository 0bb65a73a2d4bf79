package chat

import (
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, f *fixture, roomID string, sender int64) *chatmodel.Message {
	t.Helper()
	m, err := chatmodel.NewMessage(roomID, sender, "hi", chatmodel.MessageTypeText, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), m))
	return m
}

func TestPresenceReplacesPreviousConnection(t *testing.T) {
	f := newFixture(t)
	old := newFakeConn(1)
	oldSess := f.hub.NewPresence(old)
	oldSess.Connect()
	cur := newFakeConn(1)
	f.hub.NewPresence(cur).Connect()

	closed, code, _ := old.closeState()
	assert.True(t, closed)
	assert.Equal(t, CloseReplaced, code)

	assert.False(t, oldSess.Disconnect())
	got, ok := f.registry.Lookup(1)
	require.True(t, ok)
	assert.Same(t, cur, got)
}

func TestPresenceStatusPushedPerSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r1 := f.room(chatmodel.RoomTypeFriend, true, 1, 9)
	r2 := f.room(chatmodel.RoomTypeFriend, true, 2, 9)
	m1 := seedMessage(t, f, r1, 1)
	m2 := seedMessage(t, f, r2, 2)
	m3 := seedMessage(t, f, r1, 1)

	s1, s2 := newFakeConn(1), newFakeConn(2)
	f.hub.NewPresence(s1).Connect()
	f.hub.NewPresence(s2).Connect()
	reader := newFakeConn(9)
	p := f.hub.NewPresence(reader)
	p.Connect()

	require.NoError(t, p.HandleFrame(ctx, statusFrame(9, "delivered", m1.ID.Hex(), m2.ID.Hex(), m3.ID.Hex())))

	to1 := s1.decoded(t)
	require.Len(t, to1, 1)
	assert.Equal(t, EventChangeMessageStatus, to1[0].Event)
	ids := []string{}
	for _, m := range to1[0].messages(t) {
		assert.Equal(t, chatmodel.StatusDelivered, m.Status)
		ids = append(ids, m.ID.Hex())
	}
	assert.ElementsMatch(t, []string{m1.ID.Hex(), m3.ID.Hex()}, ids)

	to2 := s2.decoded(t)
	require.Len(t, to2, 1)
	require.Len(t, to2[0].messages(t), 1)
	assert.Equal(t, m2.ID, to2[0].messages(t)[0].ID)

	assert.Empty(t, reader.events(t))
	require.Len(t, f.publisher.status, 1)
	assert.Len(t, f.publisher.status[0], 3)
}

func TestPresenceOfflineSenderIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := seedMessage(t, f, f.room(chatmodel.RoomTypeFriend, true, 1, 2), 1)
	reader := newFakeConn(2)
	p := f.hub.NewPresence(reader)
	p.Connect()

	require.NoError(t, p.HandleFrame(ctx, statusFrame(2, "seen", m.ID.Hex())))
	stored, _ := f.store.Get(m.ID.Hex())
	assert.Equal(t, chatmodel.StatusSeen, stored.Status)
	assert.Equal(t, []int64{2}, stored.SeenBy)
}

func TestPresenceStatusRequiresMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.room(chatmodel.RoomTypeFriend, true, 1, 2)
	other := f.room(chatmodel.RoomTypeFriend, true, 3, 4)
	own := seedMessage(t, f, mine, 1)
	foreign := seedMessage(t, f, other, 3)
	orphan := seedMessage(t, f, "ffffffffffffffffffffffff", 3)

	sender1, sender3 := newFakeConn(1), newFakeConn(3)
	f.hub.NewPresence(sender1).Connect()
	f.hub.NewPresence(sender3).Connect()
	p := f.hub.NewPresence(newFakeConn(2))
	p.Connect()

	require.NoError(t, p.HandleFrame(ctx, statusFrame(2, "seen", own.ID.Hex(), foreign.ID.Hex(), orphan.ID.Hex())))

	stored, _ := f.store.Get(own.ID.Hex())
	assert.Equal(t, chatmodel.StatusSeen, stored.Status)
	for _, m := range []*chatmodel.Message{foreign, orphan} {
		stored, _ = f.store.Get(m.ID.Hex())
		assert.Equal(t, chatmodel.StatusSent, stored.Status)
		assert.Empty(t, stored.SeenBy)
	}
	assert.Equal(t, []string{EventChangeMessageStatus}, sender1.events(t))
	assert.Empty(t, sender3.events(t))
	require.Len(t, f.publisher.status, 1)
	assert.Len(t, f.publisher.status[0], 1)
}

func TestPresenceRejectsOtherEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := newFakeConn(1)
	p := f.hub.NewPresence(c)
	p.Connect()

	err := p.HandleFrame(ctx, newMessageFrame("r1", 1, "hi"))
	assert.True(t, errs.ErrProtocol.Is(err), "got %v", err)

	err = p.HandleFrame(ctx, statusFrame(2, "seen", "ffffffffffffffffffffffff"))
	assert.True(t, errs.ErrProtocol.Is(err), "got %v", err)

	assert.Equal(t, []string{EventError, EventError}, c.events(t))
	_, ok := f.registry.Lookup(1)
	assert.True(t, ok)
}

func TestGroupBySenderKeepsOrder(t *testing.T) {
	msgs := []*chatmodel.Message{{SenderID: 2}, {SenderID: 1}, {SenderID: 2}}
	groups := groupBySender(msgs)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(2), groups[0][0].SenderID)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, int64(1), groups[1][0].SenderID)
}

func TestHubPushNotification(t *testing.T) {
	f := newFixture(t)
	c := newFakeConn(5)
	f.hub.NewPresence(c).Connect()

	assert.True(t, f.hub.PushNotification(5, []byte(`{"kind":"friend_request"}`), &SenderUser{ID: 3}))
	assert.False(t, f.hub.PushNotification(6, []byte(`{}`), nil))

	frames := c.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, EventNotification, frames[0].Event)
	assert.JSONEq(t, `[{"kind":"friend_request"}]`, string(frames[0].Data))
	assert.Equal(t, int64(3), frames[0].SenderUser.ID)
}

package chat

import (
	"PPChat/module/chat/message"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomMessageReachesPresenceOfUnattachedMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.room(chatmodel.RoomTypeFriend, true, 1, 2)

	u1Presence := newFakeConn(1)
	f.hub.NewPresence(u1Presence).Connect()
	u2Presence := newFakeConn(2)
	f.hub.NewPresence(u2Presence).Connect()

	// U1 在房间内发送
	s, u1Room := f.connect(t, room, 1)
	require.NoError(t, s.HandleFrame(ctx, u1Room, newMessageFrame(room, 1, "hi")))

	require.Equal(t, []string{EventNewMessage}, u1Room.events(t))
	require.Equal(t, []string{EventNewMessage}, u2Presence.events(t))
	assert.Empty(t, u1Presence.events(t), "attached members are not pushed twice")

	msgs := u2Presence.decoded(t)[0].messages(t)
	require.Len(t, msgs, 1)
	sent := msgs[0]
	assert.Equal(t, chatmodel.StatusSent, sent.Status)
	assert.Equal(t, int64(1), sent.SenderID)
	assert.Equal(t, "hi", sent.MessageText)
	stored, ok := f.store.Get(sent.ID.Hex())
	require.True(t, ok)
	assert.Equal(t, chatmodel.StatusSent, stored.Status)
	require.Len(t, f.publisher.created, 1)

	// U1 离开房间，U2 进入并回执 delivered
	f.hub.Sessions().Disconnect(room, 1, u1Room)
	s2, u2Room := f.connect(t, room, 2)
	require.NoError(t, s2.HandleFrame(ctx, u2Room, statusFrame(2, "delivered", sent.ID.Hex())))

	stored, _ = f.store.Get(sent.ID.Hex())
	assert.Equal(t, chatmodel.StatusDelivered, stored.Status)
	require.Equal(t, []string{EventChangeMessageStatus}, u1Presence.events(t))
	pushed := u1Presence.decoded(t)[0].messages(t)
	require.Len(t, pushed, 1)
	assert.Equal(t, sent.ID, pushed[0].ID)
	assert.Equal(t, chatmodel.StatusDelivered, pushed[0].Status)
	assert.Equal(t, []string{EventChangeMessageStatus}, u2Room.events(t))
	require.Len(t, f.publisher.status, 1)
}

func TestSenderCannotMarkOwnMessageSeen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.room(chatmodel.RoomTypeFriend, true, 1, 2)
	s, u1 := f.connect(t, room, 1)

	require.NoError(t, s.HandleFrame(ctx, u1, newMessageFrame(room, 1, "mine")))
	m := u1.decoded(t)[0].messages(t)[0]

	require.NoError(t, s.HandleFrame(ctx, u1, statusFrame(1, "seen", m.ID.Hex())))
	stored, _ := f.store.Get(m.ID.Hex())
	assert.Equal(t, chatmodel.StatusSent, stored.Status)
	assert.Len(t, u1.events(t), 1, "no status broadcast when nothing changed")

	// delivered 不受发送者限制
	require.NoError(t, s.HandleFrame(ctx, u1, statusFrame(1, "delivered", m.ID.Hex())))
	stored, _ = f.store.Get(m.ID.Hex())
	assert.Equal(t, chatmodel.StatusDelivered, stored.Status)
	assert.Equal(t, []string{EventNewMessage, EventChangeMessageStatus}, u1.events(t))
}

func TestSeenRecordsActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.room(chatmodel.RoomTypeGroup, true, 1, 2, 3)
	s, u1 := f.connect(t, room, 1)
	_, u2 := f.connect(t, room, 2)

	require.NoError(t, s.HandleFrame(ctx, u1, newMessageFrame(room, 1, "hello")))
	m := u2.decoded(t)[0].messages(t)[0]

	require.NoError(t, s.HandleFrame(ctx, u2, statusFrame(2, "seen", m.ID.Hex(), m.ID.Hex())))
	stored, _ := f.store.Get(m.ID.Hex())
	assert.Equal(t, chatmodel.StatusSeen, stored.Status)
	assert.Equal(t, []int64{2}, stored.SeenBy)

	// 已是 seen，不会回退或重复广播
	require.NoError(t, s.HandleFrame(ctx, u2, statusFrame(2, "delivered", m.ID.Hex())))
	stored, _ = f.store.Get(m.ID.Hex())
	assert.Equal(t, chatmodel.StatusSeen, stored.Status)
	assert.Equal(t, []string{EventNewMessage, EventChangeMessageStatus}, u1.events(t))
}

func TestStatusUpdateIgnoresOtherRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	roomB := f.room(chatmodel.RoomTypeFriend, true, 1, 2)
	roomA := f.room(chatmodel.RoomTypeFriend, true, 3, 4)

	sb, u1 := f.connect(t, roomB, 1)
	require.NoError(t, sb.HandleFrame(ctx, u1, newMessageFrame(roomB, 1, "secret for u2")))
	secret := u1.decoded(t)[0].messages(t)[0]

	u4Presence := newFakeConn(4)
	f.hub.NewPresence(u4Presence).Connect()
	sa, u3 := f.connect(t, roomA, 3)
	require.NoError(t, sa.HandleFrame(ctx, u3, statusFrame(3, "seen", secret.ID.Hex())))

	stored, _ := f.store.Get(secret.ID.Hex())
	assert.Equal(t, chatmodel.StatusSent, stored.Status)
	assert.Empty(t, stored.SeenBy)
	assert.Empty(t, u3.events(t))
	assert.Empty(t, u4Presence.events(t))
	assert.Equal(t, []string{EventNewMessage}, u1.events(t))
	assert.Empty(t, f.publisher.status)
}

func TestDeactivateRoomForceClosesAttachedSockets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.room(chatmodel.RoomTypeFriend, true, 3, 4)
	_, u3 := f.connect(t, room, 3)
	_, u4 := f.connect(t, room, 4)

	closed, err := f.hub.DeactivateRoom(ctx, room)
	require.NoError(t, err)
	assert.True(t, closed)
	for _, c := range []*fakeConn{u3, u4} {
		ok, code, _ := c.closeState()
		assert.True(t, ok)
		assert.Equal(t, CloseRoomDeactivated, code)
	}
	assert.False(t, f.hub.IsSessionOpen(room))

	_, err = f.hub.Sessions().Connect(ctx, room, newFakeConn(3))
	assert.True(t, errs.ErrRoomInactive.Is(err), "got %v", err)

	require.NoError(t, f.hub.ActivateRoom(ctx, room))
	f.connect(t, room, 3)
}

func TestDeactivateUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.hub.DeactivateRoom(context.Background(), "ffffffffffffffffffffffff")
	assert.True(t, errs.ErrRoomNotFound.Is(err), "got %v", err)
}

func TestFrameErrorsGoBackToSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.room(chatmodel.RoomTypeFriend, true, 1, 2)
	s, u1 := f.connect(t, room, 1)
	_, u2 := f.connect(t, room, 2)

	cases := []struct {
		name string
		raw  []byte
	}{
		{"malformed", []byte(`{oops`)},
		{"spoofed sender", newMessageFrame(room, 2, "as bob")},
		{"other room", newMessageFrame("ffffffffffffffffffffffff", 1, "x")},
		{"bad type", []byte(`{"event":"new_message","message_text":"x","message_type":"gif"}`)},
	}
	for _, tc := range cases {
		err := s.HandleFrame(ctx, u1, tc.raw)
		assert.True(t, errs.ErrProtocol.Is(err), "%s: got %v", tc.name, err)
	}

	frames := u1.decoded(t)
	require.Len(t, frames, len(cases))
	for _, fr := range frames {
		assert.Equal(t, EventError, fr.Event)
		assert.Equal(t, errs.ProtocolError, fr.errorCode(t))
	}
	assert.Empty(t, u2.events(t))
	assert.True(t, f.hub.IsSessionOpen(room))
}

func TestPersistenceFailureNotBroadcast(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemStore: message.NewMemStore(), failSave: true}
	pub := &recordingPublisher{}
	hub := NewHub(store, nil, pub)
	r := chatmodel.NewChatRoom(chatmodel.RoomTypeFriend, true, 1, 2)
	store.PutRoom(r)
	room := r.ID.Hex()

	u1, u2 := newFakeConn(1), newFakeConn(2)
	s, err := hub.Sessions().Connect(ctx, room, u1)
	require.NoError(t, err)
	_, err = hub.Sessions().Connect(ctx, room, u2)
	require.NoError(t, err)

	err = s.HandleFrame(ctx, u1, newMessageFrame(room, 1, "lost"))
	assert.True(t, errs.ErrPersistenceFailure.Is(err), "got %v", err)
	assert.Equal(t, []string{EventError}, u1.events(t))
	assert.Empty(t, u2.events(t))
	assert.Empty(t, pub.created)
}

func TestBroadcastDetachesFailedConn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	room := f.room(chatmodel.RoomTypeGroup, true, 1, 2, 3)
	s, u1 := f.connect(t, room, 1)
	_, u2 := f.connect(t, room, 2)
	_, u3 := f.connect(t, room, 3)
	u2.setFailSend(true)

	require.NoError(t, s.HandleFrame(ctx, u1, newMessageFrame(room, 1, "hi")))

	assert.Equal(t, []string{EventNewMessage}, u1.events(t))
	assert.Equal(t, []string{EventNewMessage}, u3.events(t))
	closed, code, _ := u2.closeState()
	assert.True(t, closed)
	assert.Equal(t, CloseDeliveryFailure, code)
	assert.Equal(t, []int64{1, 3}, s.ConnectedUsers())
}

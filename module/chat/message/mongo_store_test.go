package message

import (
	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoStoreNotReady(t *testing.T) {
	s := NewMongoStore(nil)
	err := s.Save(context.Background(), &chatmodel.Message{})
	assert.True(t, errs.ErrPersistenceFailure.Is(err), "got %v", err)

	applied, err := s.BulkUpdateStatus(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, applied)
}

// 需要真实 Mongo：PPCHAT_TEST_MONGO_URI=mongodb://127.0.0.1:27017
func newTestMongoStore(t *testing.T) (*MongoStore, *mongo.Database) {
	t.Helper()
	uri := os.Getenv("PPCHAT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PPCHAT_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, cli.Ping(ctx, nil))

	db := cli.Database("ppchat_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = cli.Disconnect(context.Background())
	})
	s := NewMongoStore(db)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s, db
}

func mongoSeed(t *testing.T, s *MongoStore, roomID string, sender int64) *chatmodel.Message {
	t.Helper()
	m, err := chatmodel.NewMessage(roomID, sender, "hi", chatmodel.MessageTypeText, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), m))
	return m
}

func TestMongoStoreFindByIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMongoStore(t)
	m1 := mongoSeed(t, s, "r1", 1)
	m2 := mongoSeed(t, s, "r1", 2)

	got, err := s.FindByIDs(ctx, []string{m2.ID.Hex(), "bad-hex", m1.ID.Hex(), primitive.NewObjectID().Hex()})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, m1.ID, got[0].ID)
	assert.Equal(t, m2.ID, got[1].ID)
	assert.Equal(t, chatmodel.StatusSent, got[0].Status)
	assert.Equal(t, []int64{}, got[0].SeenBy)
}

func TestMongoStoreStatusForwardOnly(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMongoStore(t)
	m := mongoSeed(t, s, "r1", 1)
	ids := []string{m.ID.Hex()}

	changed, err := AdvanceStatus(ctx, s, StatusUpdate{MessageIDs: ids, Target: chatmodel.StatusSeen, Actor: 2})
	require.NoError(t, err)
	require.Len(t, changed, 1)

	// 过期批次：读到的是 sent，写入时已是 seen
	stale := m.Clone()
	stale.Status = chatmodel.StatusDelivered
	applied, err := s.BulkUpdateStatus(ctx, []*chatmodel.Message{stale})
	require.NoError(t, err)
	assert.Empty(t, applied)

	// 另一个成员再次 seen：状态不变，seen_by 不重复
	seenAgain := m.Clone()
	seenAgain.Status = chatmodel.StatusSeen
	seenAgain.SeenBy = []int64{2, 3}
	applied, err = s.BulkUpdateStatus(ctx, []*chatmodel.Message{seenAgain})
	require.NoError(t, err)
	assert.Empty(t, applied)

	got, err := s.FindByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chatmodel.StatusSeen, got[0].Status)
	assert.Equal(t, []int64{2}, got[0].SeenBy)
}

func TestMongoStoreBulkAppliedSubset(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMongoStore(t)
	fresh := mongoSeed(t, s, "r1", 1)
	ahead := mongoSeed(t, s, "r1", 1)

	_, err := AdvanceStatus(ctx, s, StatusUpdate{MessageIDs: []string{ahead.ID.Hex()}, Target: chatmodel.StatusSeen, Actor: 2})
	require.NoError(t, err)

	a, b := fresh.Clone(), ahead.Clone()
	a.Status, b.Status = chatmodel.StatusDelivered, chatmodel.StatusDelivered
	applied, err := s.BulkUpdateStatus(ctx, []*chatmodel.Message{a, b})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{fresh.ID}, applied)
}

func TestMongoStoreRooms(t *testing.T) {
	ctx := context.Background()
	s, db := newTestMongoStore(t)
	r := chatmodel.NewChatRoom(chatmodel.RoomTypeGroup, true, 1, 2, 3)
	_, err := database.Collection(db, r).InsertOne(ctx, r)
	require.NoError(t, err)

	got, err := s.Room(ctx, r.ID.Hex())
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.True(t, got.IsMember(3))

	require.NoError(t, s.SetActive(ctx, r.ID.Hex(), false))
	got, err = s.Room(ctx, r.ID.Hex())
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = s.Room(ctx, primitive.NewObjectID().Hex())
	assert.True(t, errs.ErrRoomNotFound.Is(err))
	assert.True(t, errs.ErrRoomNotFound.Is(s.SetActive(ctx, "bad-hex", true)))
}

package message

import (
	"PPChat/data/database"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore message / chat_room 两个集合；每次调用取当前连接，断线重连后自动切换
type MongoStore struct {
	db func() (*mongo.Database, bool)
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: func() (*mongo.Database, bool) { return db, db != nil }}
}

// NewManagedMongoStore 连接由 service/mgo 管理
func NewManagedMongoStore(get func() (*mongo.Database, bool)) *MongoStore {
	return &MongoStore{db: get}
}

func (s *MongoStore) coll(t database.Table) (*mongo.Collection, error) {
	db, ok := s.db()
	if !ok {
		return nil, errs.ErrPersistenceFailure.WrapMsg("mongo not ready", "table", t.GetTableName())
	}
	return database.Collection(db, t), nil
}

func (s *MongoStore) msgColl() (*mongo.Collection, error) { return s.coll(&chatmodel.Message{}) }

func (s *MongoStore) roomColl() (*mongo.Collection, error) { return s.coll(&chatmodel.ChatRoom{}) }

// EnsureIndexes 历史拉取按 room_id + created_at
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	coll, err := s.msgColl()
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: chatmodel.MessageFieldRoomID, Value: 1},
			{Key: chatmodel.MessageFieldCreatedAt, Value: 1},
		},
		Options: options.Index().SetName("idx_room_created"),
	})
	if err != nil {
		return errs.WrapMsg(err, "create message index")
	}
	return nil
}

func (s *MongoStore) Save(ctx context.Context, m *chatmodel.Message) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = chatmodel.MonotonicNow()
	}
	if m.SeenBy == nil {
		m.SeenBy = []int64{}
	}
	coll, err := s.msgColl()
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, m); err != nil {
		return errs.WrapMsg(err, "insert message", "room_id", m.RoomID)
	}
	return nil
}

func (s *MongoStore) FindByIDs(ctx context.Context, ids []string) ([]*chatmodel.Message, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return nil, nil
	}
	coll, err := s.msgColl()
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx,
		bson.M{chatmodel.MessageFieldID: bson.M{"$in": oids}},
		options.Find().SetSort(bson.D{{Key: chatmodel.MessageFieldCreatedAt, Value: 1}}),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages")
	}
	defer cur.Close(ctx)

	var out []*chatmodel.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages")
	}
	return out, nil
}

// BulkUpdateStatus 过滤条件带上前序状态，并发推进时不会回退。
// 每批写入一个 status_rev，写完按它回查实际命中的消息
func (s *MongoStore) BulkUpdateStatus(ctx context.Context, msgs []*chatmodel.Message) ([]primitive.ObjectID, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	rev := primitive.NewObjectID()
	ids := make([]primitive.ObjectID, 0, len(msgs))
	models := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		filter := bson.M{
			chatmodel.MessageFieldID:     m.ID,
			chatmodel.MessageFieldStatus: bson.M{"$in": m.Status.StatusesBefore()},
		}
		update := bson.M{"$set": bson.M{
			chatmodel.MessageFieldStatus:    m.Status,
			chatmodel.MessageFieldStatusRev: rev,
		}}
		if len(m.SeenBy) > 0 {
			update["$addToSet"] = bson.M{chatmodel.MessageFieldSeenBy: bson.M{"$each": m.SeenBy}}
		}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update))
		ids = append(ids, m.ID)
	}
	coll, err := s.msgColl()
	if err != nil {
		return nil, err
	}
	res, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, errs.WrapMsg(err, "bulk update status", "count", len(models))
	}
	if res.ModifiedCount == 0 {
		return nil, nil
	}

	cur, err := coll.Find(ctx,
		bson.M{chatmodel.MessageFieldID: bson.M{"$in": ids}, chatmodel.MessageFieldStatusRev: rev},
		options.Find().SetProjection(bson.M{chatmodel.MessageFieldID: 1}),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "find applied status")
	}
	defer cur.Close(ctx)
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.WrapMsg(err, "decode applied status")
	}
	applied := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		applied = append(applied, r.ID)
	}
	return applied, nil
}

func (s *MongoStore) Room(ctx context.Context, roomID string) (*chatmodel.ChatRoom, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, errs.ErrRoomNotFound.WrapMsg("invalid room id", "room_id", roomID)
	}
	coll, err := s.roomColl()
	if err != nil {
		return nil, err
	}
	var room chatmodel.ChatRoom
	err = coll.FindOne(ctx, bson.M{chatmodel.ChatRoomFieldID: oid}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRoomNotFound.WrapMsg("room not found", "room_id", roomID)
	}
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("find room", "room_id", roomID, "err", err)
	}
	return &room, nil
}

func (s *MongoStore) SetActive(ctx context.Context, roomID string, active bool) error {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return errs.ErrRoomNotFound.WrapMsg("invalid room id", "room_id", roomID)
	}
	coll, err := s.roomColl()
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{chatmodel.ChatRoomFieldID: oid},
		bson.M{"$set": bson.M{chatmodel.ChatRoomFieldIsActive: active}},
	)
	if err != nil {
		return errs.ErrPersistenceFailure.WrapMsg("update room", "room_id", roomID, "err", err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRoomNotFound.WrapMsg("room not found", "room_id", roomID)
	}
	return nil
}

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colConversations = "conversations"
	colMessages      = "messages"
	colIndex         = "conversation_index"
	colAccounts      = "accounts"
)

// MongoStore is the native document-store backend: pending lists are arrays
// on the conversation document, mutated with $addToSet, $pull and $set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type messageDoc struct {
	Message `bson:",inline"`
	Seq     int64 `bson:"seq"`
}

type indexDoc struct {
	UserID          string   `bson:"_id"`
	ConversationIDs []string `bson:"conversationIds"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.Connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongoStore.Ping")
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colConversations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userA", Value: 1}, {Key: "userB", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_pair"),
	})
	if err != nil {
		return errors.Wrap(err, "mongoStore.ensureIndexes.conversations")
	}
	_, err = s.db.Collection(colMessages).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "seq", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "senderId", Value: 1}, {Key: "conversationId", Value: 1}, {Key: "clientMsgId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_client_msg_conversation").
				SetPartialFilterExpression(bson.M{"clientMsgId": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return errors.Wrap(err, "mongoStore.ensureIndexes.messages")
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Conversation methods

func (s *MongoStore) UpsertConversation(ctx context.Context, a, b string) (*Conversation, bool, error) {
	newID := uuid.NewString()
	filter := bson.M{"userA": a, "userB": b}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":         newID,
		"pendingForA": bson.A{},
		"pendingForB": bson.A{},
		"createdAt":   time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv Conversation
	err := s.db.Collection(colConversations).FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert won the insert; the pair now exists
		c, ferr := s.FindConversation(ctx, a, b)
		return c, false, ferr
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "mongoStore.UpsertConversation")
	}
	return &conv, conv.ID == newID, nil
}

func (s *MongoStore) FindConversation(ctx context.Context, a, b string) (*Conversation, error) {
	return s.findConversation(ctx, bson.M{"userA": a, "userB": b})
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.findConversation(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findConversation(ctx context.Context, filter bson.M) (*Conversation, error) {
	var conv Conversation
	err := s.db.Collection(colConversations).FindOne(ctx, filter).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.findConversation")
	}
	return &conv, nil
}

func pendingField(slot Slot) string {
	if slot == SlotA {
		return "pendingForA"
	}
	return "pendingForB"
}

func (s *MongoStore) AppendPending(ctx context.Context, conversationID string, slot Slot, messageID string) error {
	res, err := s.db.Collection(colConversations).UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$addToSet": bson.M{pendingField(slot): messageID}})
	if err != nil {
		return errors.Wrap(err, "mongoStore.AppendPending")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RemovePending(ctx context.Context, conversationID string, slot Slot, messageID string) error {
	res, err := s.db.Collection(colConversations).UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$pull": bson.M{pendingField(slot): messageID}})
	if err != nil {
		return errors.Wrap(err, "mongoStore.RemovePending")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ClearPending(ctx context.Context, conversationID string, slot Slot) error {
	res, err := s.db.Collection(colConversations).UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{pendingField(slot): bson.A{}}})
	if err != nil {
		return errors.Wrap(err, "mongoStore.ClearPending")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Message methods

func (s *MongoStore) InsertMessage(ctx context.Context, msg *Message) (*Message, bool, error) {
	now := time.Now().UTC()
	doc := messageDoc{Message: *msg, Seq: now.UnixNano()}
	doc.ID = uuid.NewString()
	doc.CreatedAt = now

	_, err := s.db.Collection(colMessages).InsertOne(ctx, doc)
	if err == nil {
		m := doc.Message
		return &m, false, nil
	}
	if !mongo.IsDuplicateKeyError(err) || msg.ClientMsgID == "" {
		return nil, false, errors.Wrap(err, "mongoStore.InsertMessage")
	}

	var existing messageDoc
	err = s.db.Collection(colMessages).FindOne(ctx, bson.M{
		"senderId":       msg.SenderID,
		"conversationId": msg.ConversationID,
		"clientMsgId":    msg.ClientMsgID,
	}).Decode(&existing)
	if err != nil {
		return nil, false, errors.Wrap(err, "mongoStore.InsertMessage.FindDuplicate")
	}
	m := existing.Message
	return &m, true, nil
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Message, error) {
	cur, err := s.db.Collection(colMessages).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.findMessages")
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongoStore.findMessages.All")
	}
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Message)
	}
	return out, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return s.findMessages(ctx, bson.M{"conversationId": conversationID}, opts)
}

func (s *MongoStore) GetMessages(ctx context.Context, ids []string) ([]Message, error) {
	if len(ids) == 0 {
		return []Message{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	return s.findMessages(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
}

func (s *MongoStore) LastMessage(ctx context.Context, conversationID string) (*Message, error) {
	msgs, err := s.ListMessages(ctx, conversationID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

// Index methods

func (s *MongoStore) AddToIndex(ctx context.Context, userID, conversationID string) error {
	update := func() error {
		_, err := s.db.Collection(colIndex).UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$addToSet": bson.M{"conversationIds": conversationID}},
			options.Update().SetUpsert(true))
		return err
	}
	err := update()
	if mongo.IsDuplicateKeyError(err) {
		// lost an upsert race on _id; the document exists now
		err = update()
	}
	if err != nil {
		return errors.Wrap(err, "mongoStore.AddToIndex")
	}
	return nil
}

func (s *MongoStore) ListIndex(ctx context.Context, userID string) ([]string, error) {
	var doc indexDoc
	err := s.db.Collection(colIndex).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListIndex")
	}
	return doc.ConversationIDs, nil
}

// Account methods

func (s *MongoStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	var acc Account
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": userID}).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.GetAccount")
	}
	return &acc, nil
}

func (s *MongoStore) UpsertAccount(ctx context.Context, acc *Account) error {
	doc := *acc
	if doc.Status == "" {
		doc.Status = StatusActive
	}
	_, err := s.db.Collection(colAccounts).ReplaceOne(ctx, bson.M{"_id": doc.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "mongoStore.UpsertAccount")
	}
	return nil
}

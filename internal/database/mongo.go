package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageCollection = "messages"

var _ domain.MessageRepository = (*MongoMessageStore)(nil)

// mongoMessage is the document shape of the messages collection. User IDs are
// ObjectIDs referencing the users collection.
type mongoMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	SenderID   primitive.ObjectID `bson:"senderId"`
	ReceiverID primitive.ObjectID `bson:"receiverId"`
	Text       string             `bson:"text"`
	Read       bool               `bson:"read"`
	Timestamp  time.Time          `bson:"timestamp"`
}

func (m mongoMessage) toDomain() *domain.Message {
	return &domain.Message{
		ID:         m.ID.Hex(),
		SenderID:   m.SenderID.Hex(),
		ReceiverID: m.ReceiverID.Hex(),
		Text:       m.Text,
		Read:       m.Read,
		Timestamp:  m.Timestamp.UTC(),
	}
}

// NewMongoClient connects to uri and pings the primary, retrying with backoff.
func NewMongoClient(ctx context.Context, uri string, retryer *Retryer) (*mongo.Client, error) {
	if retryer == nil {
		retryer = DefaultRetryer()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, NewDBError(err, "connect mongodb")
	}

	err = retryer.Retry(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, NewDBError(fmt.Errorf("%w: %v", ErrNotConnected, err), "ping mongodb")
	}

	slog.Info("Connected to MongoDB", "uri", redactURL(uri))
	return client, nil
}

// MongoMessageStore persists messages in MongoDB.
type MongoMessageStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoMessageStore uses the messages collection of database.
func NewMongoMessageStore(client *mongo.Client, database string, timeout time.Duration) *MongoMessageStore {
	return &MongoMessageStore{
		client:  client,
		coll:    client.Database(database).Collection(messageCollection),
		timeout: timeout,
	}
}

// EnsureIndexes creates the compound index conversation reads rely on.
func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "senderId", Value: 1},
			{Key: "receiverId", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})
	if err != nil {
		return WrapError(err, "create message index")
	}
	return nil
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// Create implements domain.MessageRepository.
func (s *MongoMessageStore) Create(ctx context.Context, msg *domain.Message) (string, error) {
	if msg == nil {
		return "", errors.New("message to create cannot be nil")
	}
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("validation failed for message: %w", err)
	}

	sender, err := parseObjectID(msg.SenderID)
	if err != nil {
		return "", NewDBError(err, "create message")
	}
	receiver, err := parseObjectID(msg.ReceiverID)
	if err != nil {
		return "", NewDBError(err, "create message")
	}

	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, mongoMessage{
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       msg.Text,
		Read:       false,
		Timestamp:  msg.Timestamp.UTC(),
	})
	if err != nil {
		return "", WrapError(err, "insert message")
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", NewDBError(ErrQueryFailed, fmt.Sprintf("unexpected inserted id type %T", res.InsertedID))
	}
	return oid.Hex(), nil
}

// History implements domain.MessageRepository.
func (s *MongoMessageStore) History(ctx context.Context, userA, userB string, q domain.HistoryQuery) ([]*domain.Message, error) {
	a, err := parseObjectID(userA)
	if err != nil {
		return nil, NewDBError(err, "load history")
	}
	b, err := parseObjectID(userB)
	if err != nil {
		return nil, NewDBError(err, "load history")
	}

	filter := bson.M{
		"$or": bson.A{
			bson.M{"senderId": a, "receiverId": b},
			bson.M{"senderId": b, "receiverId": a},
		},
	}
	if !q.Before.IsZero() {
		filter["timestamp"] = bson.M{"$lt": q.Before.UTC()}
	}

	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(q.EffectiveLimit()))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, WrapError(err, "load history")
	}
	defer cur.Close(ctx)

	var docs []mongoMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, WrapError(err, "decode history")
	}

	out := make([]*domain.Message, len(docs))
	for i, doc := range docs {
		out[len(docs)-1-i] = doc.toDomain()
	}
	return out, nil
}

// MarkRead implements domain.MessageRepository.
func (s *MongoMessageStore) MarkRead(ctx context.Context, readerID, senderID string) (int, error) {
	reader, err := parseObjectID(readerID)
	if err != nil {
		return 0, NewDBError(err, "mark messages read")
	}
	sender, err := parseObjectID(senderID)
	if err != nil {
		return 0, NewDBError(err, "mark messages read")
	}

	ctx, cancel := getTimeoutFromContext(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.UpdateMany(ctx,
		bson.M{"senderId": sender, "receiverId": reader, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, WrapError(err, "mark messages read")
	}
	return int(res.ModifiedCount), nil
}

// Close disconnects the client.
func (s *MongoMessageStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

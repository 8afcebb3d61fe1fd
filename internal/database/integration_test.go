package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nfrund/relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// exerciseRepository runs the same conversation against any driver.
func exerciseRepository(t *testing.T, repo domain.MessageRepository, alice, bob string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, err := repo.Create(ctx, &domain.Message{SenderID: alice, ReceiverID: bob, Text: "hi bob", Timestamp: now})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := repo.Create(ctx, &domain.Message{SenderID: bob, ReceiverID: alice, Text: "hi alice", Timestamp: now.Add(time.Second)})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	history, err := repo.History(ctx, alice, bob, domain.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first, history[0].ID)
	assert.Equal(t, "hi bob", history[0].Text)
	assert.True(t, history[0].Timestamp.Equal(now))
	assert.Equal(t, second, history[1].ID)

	n, err := repo.MarkRead(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err = repo.History(ctx, alice, bob, domain.HistoryQuery{Before: now.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Read)
}

func TestSurrealMessageStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping surrealdb integration test in short mode")
	}
	url := os.Getenv("SURREAL_URL")
	if url == "" {
		t.Skip("SURREAL_URL not set")
	}

	ctx := context.Background()
	db, err := NewSurrealDB(ctx, SurrealConfig{
		URL:       url,
		Namespace: "relay_test",
		Database:  "relay_test",
		Username:  os.Getenv("SURREAL_USER"),
		Password:  os.Getenv("SURREAL_PASS"),
	}, NewRetryer(1, 100*time.Millisecond, time.Second))
	require.NoError(t, err)

	store := NewSurrealMessageStore(db, 5*time.Second)
	t.Cleanup(func() {
		_ = Execute(context.Background(), db, "DELETE message", nil)
		_ = store.Close(context.Background())
	})
	require.NoError(t, store.EnsureSchema(ctx))

	exerciseRepository(t, store, "alice", "bob")
}

func TestMongoMessageStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx := context.Background()
	client, err := NewMongoClient(ctx, uri, NewRetryer(1, 100*time.Millisecond, time.Second))
	require.NoError(t, err)

	store := NewMongoMessageStore(client, "relay_test", 5*time.Second)
	t.Cleanup(func() {
		_ = client.Database("relay_test").Drop(context.Background())
		_ = store.Close(context.Background())
	})
	require.NoError(t, store.EnsureIndexes(ctx))

	exerciseRepository(t, store, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex())

	_, err = store.Create(ctx, &domain.Message{SenderID: "alice", ReceiverID: primitive.NewObjectID().Hex(), Text: "x", Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
}

func TestMemoryMessageStore_Conversation(t *testing.T) {
	exerciseRepository(t, NewMemoryMessageStore(), "alice", "bob")
}

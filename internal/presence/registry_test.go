package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn implements Conn with an inspectable queue.
type fakeConn struct {
	id     string
	userID string
	full   bool

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(frame []byte) bool {
	if c.full {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

type notification struct {
	status Status
	origin string
}

// recordingNotifier implements Notifier for testing.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, status Status, originConnID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{status: status, origin: originConnID})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification, len(n.events))
	copy(out, n.events)
	return out
}

// gatedNotifier records like recordingNotifier but holds offline
// notifications until release is closed.
type gatedNotifier struct {
	recordingNotifier
	stalled chan struct{}
	release chan struct{}
}

func (n *gatedNotifier) Notify(ctx context.Context, status Status, originConnID string) {
	if !status.Online {
		close(n.stalled)
		<-n.release
	}
	n.recordingNotifier.Notify(ctx, status, originConnID)
}

func TestRegistry_NotificationsFollowMapOrder(t *testing.T) {
	notifier := &gatedNotifier{stalled: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(notifier, nil)
	ctx := context.Background()

	first := newFakeConn("c1", "u1")
	second := newFakeConn("c2", "u1")
	r.Register(ctx, first)

	unregistered := make(chan bool)
	go func() { unregistered <- r.Unregister(ctx, first) }()
	<-notifier.stalled

	// Reads are not blocked while a notification is in flight.
	assert.False(t, r.IsOnline("u1"))

	registered := make(chan struct{})
	go func() {
		r.Register(ctx, second)
		close(registered)
	}()

	select {
	case <-registered:
		t.Fatal("register finished while an earlier offline notification was pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(notifier.release)
	require.True(t, <-unregistered)
	<-registered

	events := notifier.all()
	require.Len(t, events, 3)
	assert.Equal(t, []Status{
		{UserID: "u1", Online: true},
		{UserID: "u1", Online: false},
		{UserID: "u1", Online: true},
	}, []Status{events[0].status, events[1].status, events[2].status})

	assert.True(t, r.IsOnline("u1"))
	assert.Equal(t, r.IsOnline("u1"), events[len(events)-1].status.Online)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	notifier := &recordingNotifier{}
	r := NewRegistry(notifier, nil)
	ctx := context.Background()

	alice := newFakeConn("c1", "alice")
	r.Register(ctx, alice)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())

	_, ok = r.Lookup("bob")
	assert.False(t, ok)

	assert.Equal(t, []notification{{status: Status{UserID: "alice", Online: true}, origin: "c1"}}, notifier.all())
	assert.Equal(t, []string{"alice"}, r.OnlineUsers())
	assert.True(t, r.IsOnline("alice"))
	assert.False(t, r.IsOnline("bob"))
}

func TestRegistry_LastAdmittedWins(t *testing.T) {
	r := NewRegistry(&recordingNotifier{}, nil)
	ctx := context.Background()

	first := newFakeConn("c1", "alice")
	second := newFakeConn("c2", "alice")
	r.Register(ctx, first)
	r.Register(ctx, second)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
	assert.Equal(t, []string{"alice"}, r.OnlineUsers())

	// The superseded connection is still admitted.
	assert.Len(t, r.Connections(), 2)
}

func TestRegistry_StaleUnregisterKeepsNewerEntry(t *testing.T) {
	notifier := &recordingNotifier{}
	r := NewRegistry(notifier, nil)
	ctx := context.Background()

	first := newFakeConn("c1", "alice")
	second := newFakeConn("c2", "alice")
	r.Register(ctx, first)
	r.Register(ctx, second)

	removed := r.Unregister(ctx, first)
	assert.False(t, removed)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
	assert.Len(t, r.Connections(), 1)

	for _, n := range notifier.all() {
		assert.True(t, n.status.Online, "stale disconnect must not announce offline")
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	notifier := &recordingNotifier{}
	r := NewRegistry(notifier, nil)
	ctx := context.Background()

	alice := newFakeConn("c1", "alice")
	r.Register(ctx, alice)

	assert.True(t, r.Unregister(ctx, alice))
	assert.False(t, r.Unregister(ctx, alice))

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.Empty(t, r.OnlineUsers())

	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, notification{status: Status{UserID: "alice", Online: false}, origin: "c1"}, events[1])
}

func TestRegistry_UnregisterUnknownConnection(t *testing.T) {
	notifier := &recordingNotifier{}
	r := NewRegistry(notifier, nil)

	assert.False(t, r.Unregister(context.Background(), newFakeConn("ghost", "nobody")))
	assert.Empty(t, notifier.all())
}

func TestRegistry_BroadcastSkipsOrigin(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	carol := newFakeConn("c3", "carol")
	carol.full = true
	r.Register(ctx, alice)
	r.Register(ctx, bob)
	r.Register(ctx, carol)

	sent := r.Broadcast([]byte("hello"), "c1")

	assert.Equal(t, 1, sent)
	assert.Empty(t, alice.received())
	assert.Equal(t, [][]byte{[]byte("hello")}, bob.received())
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(&recordingNotifier{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i%5))
			r.Register(ctx, conn)
			r.Lookup(conn.UserID())
			r.Unregister(ctx, conn)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, r.Connections())
	// Every identity has at most one entry at all times; after all
	// connections leave none remain.
	assert.Empty(t, r.OnlineUsers())
}

package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/owner"
)

type fakeCarts struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCarts) GetCart(_ context.Context, o owner.Owner) (*cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, o.Key())
	if f.err != nil {
		return nil, f.err
	}
	return &cart.Cart{Owner: o.Key(), Items: []cart.Item{}}, nil
}

func headerOwner(r *http.Request) owner.Owner {
	return owner.User(r.Header.Get("X-User"))
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(NewHub(), WithOrigin("instance-a"))
	d.Start()
	return d
}

func newTestServer(t *testing.T, carts CartSource) (*Hub, *httptest.Server) {
	t.Helper()
	_, hub, srv := newTestServerWith(t, newTestDispatcher(t), carts)
	return hub, srv
}

func newTestServerWith(t *testing.T, d *Dispatcher, carts CartSource) (*Dispatcher, *Hub, *httptest.Server) {
	t.Helper()
	hub := d.Hub()
	srv := httptest.NewServer(NewServer(d, carts, headerOwner))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
		stopDispatcher(t, d)
	})
	return d, hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if userID != "" {
		header.Set("X-User", userID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := Decode(data)
	require.NoError(t, err)
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestServer_PushesSnapshotOnConnect(t *testing.T) {
	carts := &fakeCarts{}
	hub, srv := newTestServer(t, carts)

	conn := dial(t, srv, "alice")
	msg := readMessage(t, conn)

	assert.Equal(t, KindCartUpdate, msg.Kind)
	assert.Equal(t, "user:alice", msg.Owner)
	assert.Equal(t, "instance-a", msg.Origin)
	waitFor(t, func() bool { return hub.CountFor("user:alice") == 1 })
}

func TestServer_AnonymousConnection(t *testing.T) {
	_, srv := newTestServer(t, &fakeCarts{})

	conn := dial(t, srv, "")
	msg := readMessage(t, conn)

	assert.Equal(t, "anonymous", msg.Owner)
}

func TestServer_RefreshCart(t *testing.T) {
	carts := &fakeCarts{}
	_, srv := newTestServer(t, carts)
	conn := dial(t, srv, "alice")
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"refresh_cart"}`)))
	msg := readMessage(t, conn)

	assert.Equal(t, KindCartUpdate, msg.Kind)
	carts.mu.Lock()
	assert.Equal(t, []string{"user:alice", "user:alice"}, carts.calls)
	carts.mu.Unlock()
}

func TestServer_UnknownMessageAnswersWithError(t *testing.T) {
	_, srv := newTestServer(t, &fakeCarts{})
	conn := dial(t, srv, "alice")
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"checkout"}`)))
	msg := readMessage(t, conn)

	assert.Equal(t, KindError, msg.Kind)
}

func TestServer_SnapshotFailureSendsError(t *testing.T) {
	_, srv := newTestServer(t, &fakeCarts{err: errors.New("db down")})

	conn := dial(t, srv, "alice")
	msg := readMessage(t, conn)

	assert.Equal(t, KindError, msg.Kind)
}

func TestServer_FanOutAcrossConnections(t *testing.T) {
	hub, srv := newTestServer(t, &fakeCarts{})
	aliceA := dial(t, srv, "alice")
	aliceB := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	readMessage(t, aliceA)
	readMessage(t, aliceB)
	readMessage(t, bob)
	waitFor(t, func() bool { return hub.Count() == 3 })

	hub.Deliver(cartUpdate(t, "user:alice"))
	inv, err := NewInventoryUpdate(5, false, "instance-a")
	require.NoError(t, err)
	hub.Deliver(inv)

	assert.Equal(t, KindCartUpdate, readMessage(t, aliceA).Kind)
	assert.Equal(t, KindCartUpdate, readMessage(t, aliceB).Kind)
	assert.Equal(t, KindInventoryUpdate, readMessage(t, aliceA).Kind)
	assert.Equal(t, KindInventoryUpdate, readMessage(t, aliceB).Kind)
	// bob sees the inventory update but never alice's cart
	assert.Equal(t, KindInventoryUpdate, readMessage(t, bob).Kind)
}

func TestServer_DisconnectUnregisters(t *testing.T) {
	hub, srv := newTestServer(t, &fakeCarts{})
	conn := dial(t, srv, "alice")
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.Count() == 1 })

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	_, srv := newTestServer(t, &fakeCarts{})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// staleCarts returns the cart as it was when the read started, while a
// newer state commits and is published before the read returns.
type staleCarts struct {
	d    *Dispatcher
	once sync.Once
}

func (f *staleCarts) GetCart(_ context.Context, o owner.Owner) (*cart.Cart, error) {
	stale := &cart.Cart{Owner: o.Key(), Items: []cart.Item{}}
	f.once.Do(func() {
		f.d.CartChanged(context.Background(), &cart.Cart{
			Owner: o.Key(),
			Items: []cart.Item{{Line: cart.Line{ID: 1, ProductID: 1, Quantity: 1}}},
		})
	})
	return stale, nil
}

func TestServer_SnapshotNeverOverwritesNewerUpdate(t *testing.T) {
	d := newTestDispatcher(t)
	carts := &staleCarts{d: d}
	_, _, srv := newTestServerWith(t, d, carts)

	conn := dial(t, srv, "alice")

	var last cart.Cart
	for i := 0; i < 2; i++ {
		msg := readMessage(t, conn)
		require.Equal(t, KindCartUpdate, msg.Kind)
		require.NoError(t, decodePayload(msg, &last))
	}
	assert.Len(t, last.Items, 1)
}

package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/platform/broker"
	"github.com/parley-chat/parley/internal/platform/httpx"
	"github.com/parley-chat/parley/internal/ws"
)

// In-memory collaborators so the transport is tested end to end without
// Postgres or Redis.

type memRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*chat.Room
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{rooms: make(map[string]*chat.Room)}
}

func (m *memRoomRepo) Exists(ctx context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID]
	return ok, nil
}

func (m *memRoomRepo) FindByID(ctx context.Context, roomID string) (*chat.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, httpx.ErrNotFound)
	}
	copied := *room
	copied.Members = make(map[string]struct{}, len(room.Members))
	for member := range room.Members {
		copied.Members[member] = struct{}{}
	}
	return &copied, nil
}

func (m *memRoomRepo) Create(ctx context.Context, room *chat.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.RoomID]; ok {
		return fmt.Errorf("room %s: %w", room.RoomID, httpx.ErrConflict)
	}
	m.rooms[room.RoomID] = room
	return nil
}

func (m *memRoomRepo) Save(ctx context.Context, room *chat.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.RoomID] = room
	return nil
}

func (m *memRoomRepo) ListPublic(ctx context.Context) ([]chat.Room, error) {
	return nil, nil
}

func (m *memRoomRepo) ListForSubject(ctx context.Context, subject string) ([]chat.Room, error) {
	return nil, nil
}

type memMessageRepo struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (m *memMessageRepo) Save(ctx context.Context, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *memMessageRepo) ListByRoom(ctx context.Context, roomID string) ([]chat.Message, error) {
	return nil, nil
}

type memBroker struct {
	mu   sync.Mutex
	subs map[string][]*memSub
}

func newMemBroker() *memBroker {
	return &memBroker{subs: make(map[string][]*memSub)}
}

type memSub struct {
	broker *memBroker
	topic  string
	ch     chan []byte
	once   sync.Once
}

func (b *memBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

func (b *memBroker) Subscribe(ctx context.Context, topic string) (broker.Subscription, error) {
	sub := &memSub{broker: b, topic: topic, ch: make(chan []byte, 16)}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return sub, nil
}

func (s *memSub) C() <-chan []byte { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		subs := s.broker.subs[s.topic]
		for i, sub := range subs {
			if sub == s {
				s.broker.subs[s.topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.broker.mu.Unlock()
		close(s.ch)
	})
	return nil
}

type frame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Content string          `json:"content,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

func newTestStack(t *testing.T) (*httptest.Server, *auth.Codec, *chat.RoomService) {
	t.Helper()
	logger := slog.Default()
	codec := auth.NewCodec("test-secret", time.Hour)
	b := newMemBroker()

	rooms := chat.NewRoomService(newMemRoomRepo(), nil, logger)
	messages := chat.NewMessageService(rooms, &memMessageRepo{}, b, logger)
	handler := ws.NewHandler(logger, auth.NewExtractor(codec), rooms, messages, b)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, codec, rooms
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if token != "" {
		header.Set(auth.HeaderName, auth.BearerPrefix+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func TestSubscribeAndReceive(t *testing.T) {
	srv, codec, rooms := newTestStack(t)

	_, err := rooms.Create(context.Background(), chat.CreateRoomInput{RoomID: "lobby", Name: "Lobby"}, "alice")
	require.NoError(t, err)

	token, err := codec.Issue("alice", []string{"USER"}, time.Now())
	require.NoError(t, err)

	conn := dial(t, srv, token)
	require.NoError(t, conn.WriteJSON(frame{Type: "subscribe", RoomID: "lobby"}))
	require.NoError(t, conn.WriteJSON(frame{Type: "send", RoomID: "lobby", Content: "hello"}))

	var received frame
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "message", received.Type)
	assert.Equal(t, "lobby", received.RoomID)

	var payload chat.BroadcastPayload
	require.NoError(t, json.Unmarshal(received.Payload, &payload))
	assert.Equal(t, "hello", payload.Content)
	assert.Equal(t, "alice", payload.SenderSubject)
}

func TestAnonymousConnectionProceedsButCannotSend(t *testing.T) {
	srv, _, _ := newTestStack(t)

	// No token at all: the handshake still succeeds.
	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteJSON(frame{Type: "send", RoomID: "lobby", Content: "hi"}))

	var received frame
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "error", received.Type)
	assert.Equal(t, "authentication required", received.Message)
}

func TestInvalidTokenDegradesToAnonymous(t *testing.T) {
	srv, _, _ := newTestStack(t)

	// A garbage token does not close the socket; the connection is simply
	// unauthenticated.
	conn := dial(t, srv, "garbage.token.value")
	require.NoError(t, conn.WriteJSON(frame{Type: "send", RoomID: "lobby", Content: "hi"}))

	var received frame
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "error", received.Type)
	assert.Equal(t, "authentication required", received.Message)
}

func TestSubscribePrivateRoomDenied(t *testing.T) {
	srv, codec, rooms := newTestStack(t)

	_, err := rooms.Create(context.Background(), chat.CreateRoomInput{RoomID: "back", Name: "Back room", IsPrivate: true}, "alice")
	require.NoError(t, err)

	token, err := codec.Issue("bob", []string{"USER"}, time.Now())
	require.NoError(t, err)

	conn := dial(t, srv, token)
	require.NoError(t, conn.WriteJSON(frame{Type: "subscribe", RoomID: "back"}))

	var received frame
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "error", received.Type)
	assert.Equal(t, "subscription denied", received.Message)
}

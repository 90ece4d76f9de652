package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/shared"
)

func newTestRouter(t *testing.T) (chi.Router, *RoomService, *MessageService) {
	t.Helper()
	rooms, messages, _, _, _, _ := newTestServices()
	handler := NewHandler(slog.Default(), rooms, messages)

	r := chi.NewRouter()
	r.Route("/api/rooms", handler.MountRoutes)
	return r, rooms, messages
}

func doJSON(t *testing.T, router http.Handler, method, path, body, subject string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if subject != "" {
		ctx := shared.ContextWithPrincipal(req.Context(), &shared.Principal{Subject: subject})
		req = req.WithContext(ctx)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestCreateRoomEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	res := doJSON(t, router, http.MethodPost, "/api/rooms",
		`{"roomId":"r1","name":"General","isPrivate":false}`, "alice")
	require.Equal(t, http.StatusCreated, res.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "r1", body["roomId"])
	assert.Equal(t, "alice", body["owner"])

	// Duplicate id maps to 409.
	res = doJSON(t, router, http.MethodPost, "/api/rooms",
		`{"roomId":"r1","name":"Other"}`, "bob")
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestCreateRoomAnonymousRejected(t *testing.T) {
	router, _, _ := newTestRouter(t)

	res := doJSON(t, router, http.MethodPost, "/api/rooms",
		`{"roomId":"r1","name":"General"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	res := doJSON(t, router, http.MethodPost, "/api/rooms", `{"name":"no id"}`, "alice")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = doJSON(t, router, http.MethodPost, "/api/rooms", `not json`, "alice")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMembershipEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	res := doJSON(t, router, http.MethodPost, "/api/rooms",
		`{"roomId":"r1","name":"General","isPrivate":true}`, "alice")
	require.Equal(t, http.StatusCreated, res.Code)

	// Non-member cannot add.
	res = doJSON(t, router, http.MethodPost, "/api/rooms/r1/members",
		`{"username":"carol"}`, "bob")
	assert.Equal(t, http.StatusForbidden, res.Code)

	// The owner can.
	res = doJSON(t, router, http.MethodPost, "/api/rooms/r1/members",
		`{"username":"bob"}`, "alice")
	assert.Equal(t, http.StatusNoContent, res.Code)

	// Self-leave.
	res = doJSON(t, router, http.MethodDelete, "/api/rooms/r1/members/bob", "", "bob")
	assert.Equal(t, http.StatusNoContent, res.Code)

	// Unknown room maps to 404.
	res = doJSON(t, router, http.MethodPost, "/api/rooms/missing/members",
		`{"username":"bob"}`, "alice")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestMessageEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// Posting to an unknown room provisions it.
	res := doJSON(t, router, http.MethodPost, "/api/rooms/r9/messages",
		`{"content":"hello"}`, "alice")
	require.Equal(t, http.StatusCreated, res.Code)

	// Another subject reads the public history.
	res = doJSON(t, router, http.MethodGet, "/api/rooms/r9/messages", "", "bob")
	require.Equal(t, http.StatusOK, res.Code)

	var history []map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0]["content"])
	assert.Equal(t, "alice", history[0]["sender"])
}

func TestListEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	res := doJSON(t, router, http.MethodPost, "/api/rooms",
		`{"roomId":"pub","name":"Town square"}`, "alice")
	require.Equal(t, http.StatusCreated, res.Code)
	res = doJSON(t, router, http.MethodPost, "/api/rooms",
		`{"roomId":"priv","name":"Back room","isPrivate":true}`, "alice")
	require.Equal(t, http.StatusCreated, res.Code)

	res = doJSON(t, router, http.MethodGet, "/api/rooms/public", "", "bob")
	require.Equal(t, http.StatusOK, res.Code)
	var rooms []map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "pub", rooms[0]["roomId"])

	res = doJSON(t, router, http.MethodGet, "/api/rooms/mine", "", "alice")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rooms))
	assert.Len(t, rooms, 2)

	// Private room metadata stays hidden from outsiders.
	res = doJSON(t, router, http.MethodGet, "/api/rooms/priv", "", "bob")
	assert.Equal(t, http.StatusForbidden, res.Code)
}

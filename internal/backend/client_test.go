package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"spacechat/backend/internal/backend"
	"spacechat/backend/internal/models"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// fakeBackend answers every request with the body returned by respond.
func fakeBackend(t *testing.T, respond func(req gqlRequest) (int, string)) (*backend.Client, func() []gqlRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []gqlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req gqlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		status, body := respond(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	requests := func() []gqlRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]gqlRequest(nil), seen...)
	}
	return backend.New(backend.Options{URL: srv.URL, Token: "secret", Timeout: time.Second}), requests
}

func TestClient_Messages(t *testing.T) {
	client, seen := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"chat_message":[
			{"id":10,"chat_room_id":3,"sender_profile_id":2,"text":"hi","created_at":"2024-03-01T12:10:00.123456+00:00","deleted":false},
			{"id":9,"chat_room_id":3,"sender_profile_id":null,"text":"welcome","created_at":"2024-03-01T12:09:00+00:00","deleted":false,"is_system_message":true}
		]}}`
	})

	msgs, err := client.Messages(context.Background(), 3, 2147483647, 25)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	id, ok := msgs[0].ID.ServerID()
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
	assert.Nil(t, msgs[1].SenderProfileID)
	assert.True(t, msgs[1].IsSystemMessage)

	req := seen()[0]
	assert.Equal(t, "GetMessagesByChatRoom", req.OperationName)
	assert.Contains(t, req.Query, "_lte: $id_cap")
	assert.Contains(t, req.Query, "order_by: {created_at: desc}")
	assert.Equal(t, float64(2147483647), req.Variables["id_cap"])
	assert.Equal(t, float64(25), req.Variables["limit"])
}

func TestClient_ChatRoomCollapsesMessageArrays(t *testing.T) {
	client, _ := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"chat_room_by_pk":{
			"id":3,"chat_intro_id":null,
			"profile_to_chat_rooms":[{"id":1,"profile_id":1,"chat_room_id":3,"latest_read_chat_message_id":5,
				"profile":{"id":1,"space_id":9,"headline":"Builder","user":{"id":"u1","first_name":"Ada","last_name":"L","full_name":"Ada L","type":"User"}}}],
			"latest_chat_message":[{"id":10,"chat_room_id":3,"sender_profile_id":2,"text":"x","created_at":"2024-03-01T12:10:00Z","deleted":false}],
			"first_chat_message":[]
		}}}`
	})

	room, err := client.ChatRoom(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Nil(t, room.FirstChatMessage)
	if assert.NotNil(t, room.LatestMessageID()) {
		assert.Equal(t, int64(10), *room.LatestMessageID())
	}
	assert.Equal(t, "Ada L", room.Memberships[0].Profile.User.FullName)
	assert.Equal(t, int64(5), *room.Memberships[0].LatestReadChatMessageID)
}

func TestClient_ChatRoomMissing(t *testing.T) {
	client, _ := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"chat_room_by_pk":null}}`
	})
	room, err := client.ChatRoom(context.Background(), 404)
	assert.NoError(t, err)
	assert.Nil(t, room)
}

func TestClient_SendMessage(t *testing.T) {
	client, seen := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"insert_chat_message_one":{"id":11,"chat_room_id":3,"sender_profile_id":1,"text":"hello","created_at":"2024-03-01T13:00:00Z","deleted":false}}}`
	})

	msg, err := client.SendMessage(context.Background(), models.NewMessage{ChatRoomID: 3, SenderProfileID: 1, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "11", msg.ID.String())
	assert.Equal(t, "hello", seen()[0].Variables["text"])
}

func TestClient_UpdateLatestReadCarriesGuard(t *testing.T) {
	client, seen := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"update_profile_to_chat_room":{"affected_rows":0}}}`
	})

	require.NoError(t, client.UpdateLatestRead(context.Background(), 1, 3, 6), "a guarded no-op is not an error")
	req := seen()[0]
	assert.Contains(t, req.Query, "_lt: $message_id")
	assert.Equal(t, float64(6), req.Variables["message_id"])
}

func TestClient_GraphQLError(t *testing.T) {
	client, _ := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"errors":[{"message":"field not found","extensions":{"code":"validation-failed"}}]}`
	})

	_, err := client.Messages(context.Background(), 3, 10, 5)
	require.Error(t, err)
	var gqlErr *backend.GraphQLError
	require.True(t, errors.As(err, &gqlErr))
	assert.Equal(t, "validation-failed", gqlErr.Code())
	assert.Contains(t, err.Error(), "GetMessagesByChatRoom")
}

func TestClient_HTTPError(t *testing.T) {
	client, _ := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusBadGateway, strings.Repeat("x", 500)
	})

	err := client.RecordProfileView(context.Background(), 1, 2)
	var httpErr *backend.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
	assert.True(t, httpErr.Temporary())
	assert.Less(t, len(httpErr.Body), 300)
}

func TestClient_ChatRoomsForProfile(t *testing.T) {
	client, seen := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"chat_room":[{"id":1,"profile_to_chat_rooms":[],"latest_chat_message":[],"first_chat_message":[]},{"id":2,"chat_intro_id":4,"profile_to_chat_rooms":[],"latest_chat_message":[],"first_chat_message":[]}]}}`
	})

	rooms, err := client.ChatRoomsForProfile(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.True(t, rooms[1].IsIntro())
	assert.Equal(t, float64(7), seen()[0].Variables["profile_id"])
}

func TestClient_UpdateProfileLastActive(t *testing.T) {
	client, seen := fakeBackend(t, func(req gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"update_profile_by_pk":{"id":7}}}`
	})

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, client.UpdateProfileLastActive(context.Background(), 7, at))
	assert.Equal(t, "2024-03-01T12:00:00Z", seen()[0].Variables["at"])
}

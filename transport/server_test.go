package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quantum-relay/domain"
	"quantum-relay/moderation"
	"quantum-relay/observability"
	"quantum-relay/projection"
	"quantum-relay/repositories"
	"quantum-relay/runtime"
	"quantum-relay/runtime/workers"
	"quantum-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "transport-test-secret"
	testPassword = "Str0ng!Password#42"
)

type harness struct {
	server *httptest.Server
	rooms  *runtime.Rooms
	health *observability.HealthManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	supervisor := workers.NewSupervisor(log, 50*time.Millisecond)
	registry := runtime.NewRegistry(log, 64)
	rooms := runtime.NewRooms()
	health := observability.NewHealthManager()
	timeline := projection.NewTimeline(16)
	messages := repositories.NewMessageRepository(db, log, nil)

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	require.NoError(t, err)

	relay := runtime.NewRelay(log, registry, rooms, supervisor, messages, &moderator, timeline, health, 16)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	relay.Start(ctx)

	presence := workers.NewPresenceWorker(registry.Events(), registry, rooms, noCache{},
		time.Second, time.Minute, log)
	go func() { _ = presence.Run(ctx) }()

	authService := services.NewAuthService(repositories.NewUserRepository(db), []byte(testSecret), time.Hour)
	searchRepository := fakeSearch{}

	server := NewServer(ctx, log, relay, presence, searchRepository, authService,
		health, []byte(testSecret), 64)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return &harness{server: ts, rooms: rooms, health: health}
}

type noCache struct{}

func (noCache) Get(context.Context, string) (string, error) { return "", fmt.Errorf("miss") }
func (noCache) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (noCache) Delete(context.Context, string) error { return nil }

type fakeSearch struct{}

func (fakeSearch) IndexMessage(domain.Message) error { return nil }
func (fakeSearch) Search(context.Context, domain.RoomID, string, int) ([]repositories.SearchHit, error) {
	return nil, nil
}

func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": testPassword})
	resp, err := http.Post(h.server.URL+"/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Token
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, eventName string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: eventName, Data: raw}))
}

// awaitFrame reads frames until one with the wanted event name arrives.
func awaitFrame(t *testing.T, conn *websocket.Conn, eventName string) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var frame Frame
		err := conn.ReadJSON(&frame)
		require.NoError(t, err, "waiting for %q", eventName)
		if frame.Event == eventName {
			return frame
		}
	}
}

func TestServer_MessageRoundTrip(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given alice and bob registered, connected and in the same room
	aliceToken := h.register(t, "alice@example.com")
	bobToken := h.register(t, "bob@example.com")
	alice := h.dial(t, aliceToken)
	bob := h.dial(t, bobToken)

	sendFrame(t, alice, "join_chat", map[string]string{"room_id": "room-1"})
	sendFrame(t, bob, "join_chat", map[string]string{"room_id": "room-1"})

	req.Eventually(func() bool {
		return len(h.rooms.Members("room-1")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// When alice sends a text message
	sendFrame(t, alice, "send_message", map[string]any{
		"room_id": "room-1",
		"type":    "text",
		"content": map[string]string{"text": "hello"},
	})

	// Then bob receives it
	delivery := awaitFrame(t, bob, "new_message")
	var wrapped struct {
		Message domain.Message `json:"message"`
	}
	req.NoError(json.Unmarshal(delivery.Data, &wrapped))
	req.Equal("hello", wrapped.Message.Content.Text)

	// And alice receives her delivery ack with the matching id
	ack := awaitFrame(t, alice, "message_delivered")
	var ackPayload struct {
		MessageID string `json:"messageId"`
	}
	req.NoError(json.Unmarshal(ack.Data, &ackPayload))
	req.Equal(wrapped.Message.ID.String(), ackPayload.MessageID)
}

func TestServer_RejectsBadToken(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/ws?token=garbage")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_HealthEndpoint(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var snapshot observability.HealthSnapshot
	req.NoError(json.NewDecoder(resp.Body).Decode(&snapshot))
	req.Equal("ok", snapshot.Status)
}

func TestServer_HistoryRequiresAuth(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/rooms/room-1/history")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_HistoryReturnsMessages(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	aliceToken := h.register(t, "alice@example.com")
	alice := h.dial(t, aliceToken)
	sendFrame(t, alice, "join_chat", map[string]string{"room_id": "room-1"})
	req.Eventually(func() bool {
		return len(h.rooms.Members("room-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sendFrame(t, alice, "send_message", map[string]any{
		"room_id": "room-1",
		"type":    "text",
		"content": map[string]string{"text": "for the record"},
	})
	awaitFrame(t, alice, "message_delivered")

	request, _ := http.NewRequest(http.MethodGet, h.server.URL+"/rooms/room-1/history", nil)
	request.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&out))
	req.Len(out.Messages, 1)
	req.Equal("for the record", out.Messages[0].Content.Text)
}

func TestServer_SupersededConnectionIsClosed(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	aliceToken := h.register(t, "alice@example.com")
	first := h.dial(t, aliceToken)

	// When alice opens a second connection
	second := h.dial(t, aliceToken)
	sendFrame(t, second, "join_chat", map[string]string{"room_id": "room-1"})

	// Then the first socket is closed by the server
	req.NoError(first.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure) ||
				!websocket.IsUnexpectedCloseError(err))
			break
		}
	}

	// And the second connection still works
	sendFrame(t, second, "send_message", map[string]any{
		"room_id": "room-1",
		"type":    "text",
		"content": map[string]string{"text": "still here"},
	})
	awaitFrame(t, second, "message_delivered")
}

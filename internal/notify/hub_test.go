package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestClient(t *testing.T, hub *Hub, department string) (client, server *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Subscribe(department, conn)
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, <-serverConns
}

func TestPublishRoutesByDepartment(t *testing.T) {
	hub := NewHub()
	surgery, _ := dialTestClient(t, hub, "Surgery")
	paediatrics, _ := dialTestClient(t, hub, "Paediatrics")

	require.Equal(t, 1, hub.Subscribers("Surgery"))
	require.Equal(t, 1, hub.Subscribers("Paediatrics"))

	hub.Publish(EventRequestUpdate, "Surgery", "Paediatrics")

	for name, conn := range map[string]*websocket.Conn{"Surgery": surgery, "Paediatrics": paediatrics} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err, name)

		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, EventRequestUpdate, event.Type)
		assert.Equal(t, name, event.Department)
		assert.NotEmpty(t, event.ID)
		assert.NotEmpty(t, event.At)
	}
}

func TestPublishSkipsOtherDepartments(t *testing.T) {
	hub := NewHub()
	gynaecology, _ := dialTestClient(t, hub, "Gynaecology")

	hub.Publish(EventNewCheckout, "Surgery")

	gynaecology.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := gynaecology.ReadMessage()
	assert.Error(t, err, "no event may reach an unrelated department")
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	// Fire-and-forget: publishing into the void must not panic or block.
	hub.Publish(EventNewMessage, "Surgery", "Paediatrics")
	assert.Zero(t, hub.Subscribers("Surgery"))
}

func TestOnline(t *testing.T) {
	hub := NewHub()
	assert.Empty(t, hub.Online())

	_, surgery := dialTestClient(t, hub, "Surgery")
	dialTestClient(t, hub, "Paediatrics")
	assert.Equal(t, []string{"Paediatrics", "Surgery"}, hub.Online())

	hub.Unsubscribe("Surgery", surgery)
	assert.Equal(t, []string{"Paediatrics"}, hub.Online())
}

func TestPublishConcurrentToOneConnection(t *testing.T) {
	hub := NewHub()
	conn, _ := dialTestClient(t, hub, "Surgery")

	// Concurrent handlers (approve, checkout, message) all publish to the
	// same department socket; every write must be serialized.
	const publishers = 50
	var wg sync.WaitGroup
	wg.Add(publishers)
	for i := 0; i < publishers; i++ {
		go func() {
			defer wg.Done()
			hub.Publish(EventRequestUpdate, "Surgery")
		}()
	}
	wg.Wait()

	for i := 0; i < publishers; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var event Event
		require.NoError(t, json.Unmarshal(payload, &event), "frame %d must be intact", i)
		assert.Equal(t, EventRequestUpdate, event.Type)
	}
	assert.Equal(t, 1, hub.Subscribers("Surgery"))
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub()
	_, server := dialTestClient(t, hub, "Surgery")
	require.Equal(t, 1, hub.Subscribers("Surgery"))

	hub.Unsubscribe("Surgery", nil) // unknown conn is a no-op
	require.Equal(t, 1, hub.Subscribers("Surgery"))

	hub.Unsubscribe("Surgery", server)
	assert.Zero(t, hub.Subscribers("Surgery"))
}

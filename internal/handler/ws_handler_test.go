package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "github.com/gradelab/scriptgrade-backend/internal/websocket"
)

// wsPair upgrades a loopback connection and returns both ends.
func wsPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-serverCh
	t.Cleanup(func() { server.Close() })
	return server, client
}

// Pings arriving while events are being forwarded must not produce a
// second writer on the connection; every write goes through the event
// loop.
func TestStreamJobEventsSingleWriterUnderPingLoad(t *testing.T) {
	serverConn, clientConn := wsPair(t)

	events := make(chan *redis.Message)
	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go drainClient(serverConn, pings, done)

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		streamJobEvents(serverConn, events, pings, done, zerolog.Nop())
	}()

	const eventCount = 50

	// Client pings as fast as it can while events are in flight.
	go func() {
		for i := 0; i < eventCount; i++ {
			if err := clientConn.WriteJSON(ws.RequestEnvelope{Action: ws.ActionPing}); err != nil {
				return
			}
		}
	}()

	go func() {
		for i := 0; i < eventCount; i++ {
			payload := fmt.Sprintf(`{"job_id":"j1","state":"GRADING","progress":%d}`, i)
			events <- &redis.Message{Payload: payload}
		}
		events <- &redis.Message{Payload: `{"job_id":"j1","state":"COMPLETED","progress":100}`}
	}()

	var progressSeen int
	sawDone := false
	for !sawDone {
		clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := clientConn.ReadMessage()
		require.NoError(t, err, "stream stalled or connection broke mid-flight")

		var msg struct {
			Event ws.Event `json:"event"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		switch msg.Event {
		case ws.EventProgress:
			progressSeen++
		case ws.EventDone:
			sawDone = true
		}
	}

	assert.Equal(t, eventCount+1, progressSeen, "every event reaches the client exactly once")

	select {
	case <-streamDone:
	case <-time.After(2 * time.Second):
		t.Fatal("stream loop did not exit after the terminal event")
	}
}

func TestStreamJobEventsStopsWhenClientCloses(t *testing.T) {
	serverConn, clientConn := wsPair(t)

	events := make(chan *redis.Message)
	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go drainClient(serverConn, pings, done)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		streamJobEvents(serverConn, events, pings, done, zerolog.Nop())
	}()

	clientConn.Close()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after the client closed")
	}
}

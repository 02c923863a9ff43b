package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/station"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.DefaultConfig())
	require.NoError(t, err)
	return l
}

// echoServer upgrades every request and echoes back whatever text frame it
// receives, recording the final path segment (the dialed station id).
func echoServer(t *testing.T, stationIDs chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if stationIDs != nil {
			stationIDs <- parts[len(parts)-1]
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestClientConnectsAndEchoesFrame(t *testing.T) {
	ids := make(chan string, 1)
	srv := echoServer(t, ids)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SupervisionURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ocpp"
	cfg.StationID = "CP-42"
	cfg.PingInterval = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := New(cfg, testLogger(t))
	client.Start(ctx)
	defer client.Close(1000, "test done")

	select {
	case id := <-ids:
		assert.Equal(t, "CP-42", id)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received a connection")
	}

	require.Eventually(t, client.IsOpen, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Send([]byte("hello")))

	select {
	case ev := <-client.Events():
		require.Equal(t, station.TransportOpened, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("did not receive opened event")
	}

	select {
	case ev := <-client.Events():
		require.Equal(t, station.TransportMessage, ev.Kind)
		assert.Equal(t, "hello", string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive echoed message")
	}
}

func TestClientSendFailsWhenNotOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SupervisionURL = "ws://127.0.0.1:1/ocpp"
	cfg.StationID = "CP-1"
	client := New(cfg, testLogger(t))

	err := client.Send([]byte("x"))
	assert.Error(t, err)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SupervisionURL = "ws://127.0.0.1:1/ocpp"
	client := New(cfg, testLogger(t))

	assert.NoError(t, client.Close(1000, "bye"))
	assert.NoError(t, client.Close(1000, "bye"))
}

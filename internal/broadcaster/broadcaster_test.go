package broadcaster

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, upgrader websocket.Upgrader, onConn func(*Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		onConn(NewConn(ws))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendDeliversMessageToClient(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := newTestServer(t, upgrader, func(c *Conn) {
		require.NoError(t, c.Send(Message{Kind: KindSkipComplete, Payload: map[string]int{"count": 1}}))
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, client.ReadJSON(&got))
	require.Equal(t, KindSkipComplete, got.Kind)
}

func TestSendAfterCloseReturnsError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connCh := make(chan *Conn, 1)
	srv := newTestServer(t, upgrader, func(c *Conn) { connCh <- c })

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	c := <-connCh
	c.Close()
	time.Sleep(50 * time.Millisecond)
	require.Error(t, c.Send(Message{Kind: KindSkipComplete}))
}

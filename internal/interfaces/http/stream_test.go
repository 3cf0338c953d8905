package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wijeratne-a/PriceCanary/internal/alerts"
)

func TestAlertStream_DeliversCreatedAlerts(t *testing.T) {
	s := testServer(t, nil)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/alerts/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.handlers.Stream.Subscribers() == 1
	}, time.Second, 10*time.Millisecond)

	body := strings.Replace(ingestBody("SKU-0010", 49.99), `"stock": 100`, `"stock": -4`, 1)
	resp, err := nethttp.Post(ts.URL+"/ingest", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var a alerts.Alert
	require.NoError(t, conn.ReadJSON(&a))
	assert.Equal(t, alerts.TypeContractViolation, a.Type)
	assert.Equal(t, "SKU-0010", a.SKU)
	assert.Regexp(t, `^ALERT-\d{8}-\d{6}$`, a.ID)
}

func TestAlertStream_DisconnectDropsSubscriber(t *testing.T) {
	s := testServer(t, nil)
	ts := httptest.NewServer(s.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/alerts/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.handlers.Stream.Subscribers() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return s.handlers.Stream.Subscribers() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStreamHub_SlowClientIsDropped(t *testing.T) {
	h := NewStreamHub()
	c := &streamClient{send: make(chan alerts.Alert, 1)}
	h.clients[c] = struct{}{}

	// Fill the buffer, then broadcast once more; the hub must evict rather
	// than block.
	h.Broadcast(alerts.Alert{ID: "a"})
	h.Broadcast(alerts.Alert{ID: "b"})

	assert.Equal(t, 0, h.Subscribers())
}

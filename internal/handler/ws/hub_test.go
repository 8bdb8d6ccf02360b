package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/internal/service/ratelimit"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts ...Option) (*Hub, string) {
	t.Helper()
	h := NewHub(ratelimit.New(), opts...)
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		_ = h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) renderFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var f renderFrame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestHubBroadcastsRender(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Render([]models.Candle{{Time: 300, Close: 1.5}, {Time: 600, Close: 2}})

	f := readFrame(t, conn)
	assert.Equal(t, "candles", f.Type)
	require.Len(t, f.Candles, 2)
	assert.Equal(t, int64(600), f.Candles[1].Time)
}

func TestHubSendsLastFrameOnConnect(t *testing.T) {
	h, url := newTestHub(t)
	h.Render(nil)
	h.Render([]models.Candle{{Time: 900, Close: 3}})

	conn := dial(t, url)
	f := readFrame(t, conn)
	require.Len(t, f.Candles, 1)
	assert.Equal(t, int64(900), f.Candles[0].Time)
}

func TestHubEmptyRenderIsEmptyArray(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Render(nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"candles","candles":[]}`, string(b))
}

func TestHubForwardsViewportFrames(t *testing.T) {
	h, url := newTestHub(t)

	var mu sync.Mutex
	var got []models.VisibleRange
	unsubscribe := h.SubscribeViewport(func(r models.VisibleRange) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "hello"}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "viewport", "from": 100, "to": 200}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, models.VisibleRange{From: 100, To: 200}, got[0])
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "viewport", "from": 300, "to": 400}))
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestHubRateLimitsViewportFrames(t *testing.T) {
	h, url := newTestHub(t, WithViewportRate(2, 0))

	var mu sync.Mutex
	count := 0
	h.SubscribeViewport(func(models.VisibleRange) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	conn := dial(t, url)
	for i := 1; i <= 5; i++ {
		require.NoError(t, conn.WriteJSON(inboundFrame{Type: "viewport", From: int64(i), To: int64(i + 10)}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count > 2
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Close())
	assert.Equal(t, 0, h.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

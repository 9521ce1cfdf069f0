package apihttp

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedServer(t *testing.T) (*Feed, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	feed := NewFeed()
	r := gin.New()
	r.GET("/api/stream", feed.serve)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		feed.Close()
		srv.Close()
	})
	return feed, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
}

func TestFeedBroadcast(t *testing.T) {
	feed, url := newFeedServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	feed.Publish(EventAlertTriggered, map[string]any{"alert_id": 7})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventAlertTriggered, ev.Type)
	assert.EqualValues(t, 7, ev.Data["alert_id"])
}

func TestFeedUnsubscribesOnDisconnect(t *testing.T) {
	feed, url := newFeedServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return feed.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedCloseSendsGoingAway(t *testing.T) {
	feed, url := newFeedServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	feed.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	var nilFeed *Feed
	assert.NotPanics(t, func() {
		nilFeed.Publish(EventScreeningCompleted, nil)
		nilFeed.Close()
		NewFeed().Publish(EventScreeningCompleted, nil)
	})
}

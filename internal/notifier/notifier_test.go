package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairlab/internal/config"
)

func newTestTelegram(url string) *Telegram {
	tg := NewTelegram("token", "42")
	tg.BaseURL = url
	tg.Backoff = func(int) time.Duration { return time.Millisecond }
	return tg
}

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestTelegram(srv.URL).SendText("hello"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestTelegramRetries(t *testing.T) {
	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		require.NoError(t, newTestTelegram(srv.URL).SendText("x"))
		assert.Equal(t, int32(3), calls.Load())
	})
	t.Run("client error stops early", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()
		err := newTestTelegram(srv.URL).SendText("x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestTelegramIncompleteConfig(t *testing.T) {
	err := NewTelegram("", "1").SendText("x")
	require.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	assert.IsType(t, LogNotifier{}, New(config.TelegramConfig{}))
	n := New(config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"})
	assert.IsType(t, &Telegram{}, n)
	assert.NoError(t, LogNotifier{}.SendText("ok"))
}

func TestMessageMarkdown(t *testing.T) {
	msg := Message{
		Icon:  "🔔",
		Title: "Z-Score 提醒",
		Sections: []Section{
			{Title: "ETHUSDT/BTCUSDT", Lines: []string{"z=2.31", "  ", "阈值 ±2"}},
			{Title: "empty", Lines: []string{""}},
		},
		Footer:    "see ```docs```",
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	out := msg.Markdown()
	assert.True(t, strings.HasPrefix(out, "*🔔 Z-Score 提醒*"))
	assert.Contains(t, out, "- z=2.31\n- 阈值 ±2\n")
	assert.NotContains(t, out, "empty")
	assert.Contains(t, out, "see '''docs'''")
	assert.Contains(t, out, "2024-05-01 08:00:00 UTC")

	long := Message{Sections: []Section{{Lines: []string{strings.Repeat("x", 5000)}}}}
	assert.LessOrEqual(t, len(long.Markdown()), maxMessageLen+3)
}

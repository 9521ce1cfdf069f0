package apihttp

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	feedBuffer       = 32
	feedWriteTimeout = 10 * time.Second
	feedPingEvery    = 30 * time.Second
)

// Event 是推送到 /api/stream 的单条消息。
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

const (
	EventAlertTriggered     = "alert.triggered"
	EventScreeningCompleted = "screening.completed"
)

// Feed 把提醒触发、筛选完成等事件广播给 websocket 订阅者。慢客户端的消息会被丢弃。
type Feed struct {
	mu       sync.Mutex
	clients  map[chan Event]struct{}
	closed   chan struct{}
	once     sync.Once
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewFeed() *Feed {
	return &Feed{
		clients: make(map[chan Event]struct{}),
		closed:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (f *Feed) Publish(kind string, data any) {
	if f == nil {
		return
	}
	ev := Event{Type: kind, At: f.now().UTC(), Data: data}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.clients {
		select {
		case ch <- ev:
		default:
			log.Warnf("stream 客户端积压，丢弃 %s", kind)
		}
	}
}

// Clients 返回当前订阅数。
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close 通知所有连接退出；hijack 后的连接不受 http.Server.Shutdown 管理。
func (f *Feed) Close() {
	if f == nil {
		return
	}
	f.once.Do(func() { close(f.closed) })
}

func (f *Feed) subscribe() chan Event {
	ch := make(chan Event, feedBuffer)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan Event) {
	f.mu.Lock()
	delete(f.clients, ch)
	f.mu.Unlock()
}

func (f *Feed) serve(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debugf("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	ch := f.subscribe()
	defer f.unsubscribe(ch)

	// 客户端只读；读循环用于感知断开和处理 pong
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-f.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(feedWriteTimeout))
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debugf("stream write failed: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		}
	}
}

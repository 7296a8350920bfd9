package push

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultBufferSize = 64
)

// ErrHubClosed is returned by Push after Close.
var ErrHubClosed = errors.New("push hub closed")

// Hub fans payloads out to websocket clients subscribed to named channels.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the request and keeps the client subscribed to channels
// until the connection goes away. It blocks for the lifetime of the connection.
func (h *Hub) Serve(username string, channels []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("push: websocket upgrade failed")
		return
	}

	c := &client{
		hub:      h,
		socket:   conn,
		username: username,
		send:     make(chan []byte, defaultBufferSize),
	}

	if !h.register(c, channels) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	logrus.WithFields(logrus.Fields{
		"username": username,
		"channels": channels,
	}).Info("push: client connected")

	go c.writeLoop()
	c.readLoop()
}

// Push hands payload to every subscriber of channel. Having no subscribers is
// not an error. Clients whose buffers are full are disconnected.
func (h *Hub) Push(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var slow []*client

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	for c := range h.channels[channel] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logrus.WithField("username", c.username).Warn("push: dropping slow client")
		c.close()
	}
	return nil
}

// Subscribers returns the number of clients on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every client. Later Push calls return ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	clients := make(map[*client]struct{})
	for _, subscribers := range h.channels {
		for c := range subscribers {
			clients[c] = struct{}{}
		}
	}
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *client, channels []string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	for _, channel := range channels {
		if channel == "" {
			continue
		}
		if h.channels[channel] == nil {
			h.channels[channel] = make(map[*client]struct{})
		}
		h.channels[channel][c] = struct{}{}
		c.channels = append(c.channels, channel)
	}

	metrics.ConnectedClients.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range c.channels {
		subscribers := h.channels[channel]
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}

	metrics.ConnectedClients.Dec()
}

type client struct {
	hub      *Hub
	socket   *websocket.Conn
	username string
	channels []string
	send     chan []byte
	once     sync.Once
}

// readLoop only watches for pongs and the close frame. Clients do not send data.
func (c *client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("username", c.username).Warn("push: unexpected close")
			}
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close unregisters before closing send, so Push never writes to a closed channel.
func (c *client) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

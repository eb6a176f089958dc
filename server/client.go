package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alimasry/go-page-editor/sanitize"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 256 * 1024
)

// Client represents a single WebSocket connection.
type Client struct {
	ID    string
	Name  string
	Color string

	// IP keys the rate limiter.
	IP string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// The session this client is currently in (nil if not joined). Once
	// closed is set nothing more is sent.
	mu      sync.Mutex
	session *Session
	closed  bool
}

var (
	adjectives = []string{"Red", "Blue", "Green", "Gold", "Silver", "Purple", "Orange", "Teal", "Coral", "Jade"}
	animals    = []string{"Fox", "Owl", "Bear", "Wolf", "Hawk", "Deer", "Lynx", "Crow", "Dove", "Seal"}
	colors     = []string{"#e74c3c", "#3498db", "#2ecc71", "#f39c12", "#9b59b6", "#1abc9c", "#e67e22", "#00bcd4", "#ff5722", "#8bc34a"}
)

func newClient(hub *Hub, conn *websocket.Conn, ip string) *Client {
	return &Client{
		ID:    uuid.NewString(),
		Name:  adjectives[rand.Intn(len(adjectives))] + " " + animals[rand.Intn(len(animals))],
		Color: colors[rand.Intn(len(colors))],
		IP:    ip,
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 256),
	}
}

// clientIP returns the first X-Forwarded-For hop, or the remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (c *Client) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// attach binds c to s. It fails if c already left or joined elsewhere.
func (c *Client) attach(s *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.session != nil {
		return false
	}
	c.session = s
	return true
}

// disconnect marks c closed and returns its session. Without a session the
// send channel is closed here; otherwise the session closes it on leave.
func (c *Client) disconnect() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.session == nil {
		close(c.send)
	}
	return c.session
}

// ReadPump reads messages from the WebSocket and routes them.
func (c *Client) ReadPump() {
	defer func() {
		if s := c.disconnect(); s != nil {
			select {
			case s.leave <- c:
			case <-s.stop:
			}
		}
		c.hub.metrics.ClientDisconnected()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("client read error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		if !c.admit() {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch {
		case msg.Type == MsgJoin:
			if c.currentSession() != nil {
				c.sendError("already joined to a page")
				continue
			}
			if msg.PageID == "" {
				c.sendError("pageId is required")
				continue
			}
			c.hub.joinPage <- joinRequest{client: c, pageID: msg.PageID, name: sanitize.Text(msg.Name)}
		case editorOnly(msg.Type):
			s := c.currentSession()
			if s == nil {
				c.sendError("not joined to a page")
				continue
			}
			select {
			case s.incoming <- editMessage{client: c, msg: msg}:
			case <-s.stop:
				c.sendError("page session closed")
			}
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}

// admit asks the limiter whether c may send another message. A limiter
// failure lets the message through.
func (c *Client) admit() bool {
	if c.hub.limiter == nil {
		return true
	}
	ok, err := c.hub.limiter.Allow(context.Background(), c.IP)
	if err != nil {
		c.hub.log.Warn("rate limiter unavailable", zap.String("ip", c.IP), zap.Error(err))
		return true
	}
	if !ok {
		c.hub.metrics.RecordRateLimited()
		c.sendError(errRateLimited)
	}
	return ok
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMsg(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg.Encode():
	default:
		// Client too slow, drop message.
	}
}

func (c *Client) sendError(message string) {
	c.sendMsg(ServerMessage{Type: MsgError, Message: message})
}

func (c *Client) Info(role string) ClientInfo {
	return ClientInfo{ID: c.ID, Name: c.Name, Color: c.Color, Role: role}
}

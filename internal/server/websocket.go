package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 16 * 1024
)

// wsMessage is the envelope for every frame in both directions.
type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wsClient owns one connection. All writes go through send so only the
// write pump touches the socket.
type wsClient struct {
	conn      *websocket.Conn
	identity  string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, identity string) *wsClient {
	return &wsClient{
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *wsClient) Send(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws encode failed type=%s error=%v", msg.Type, err)
		return
	}
	c.enqueue(data)
}

func (c *wsClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("ws send buffer full, closing remote=%s", c.conn.RemoteAddr())
		c.close()
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// wsHub groups clients by game code and remembers which codes the gateway
// already listens to on the store.
type wsHub struct {
	mu         sync.Mutex
	groups     map[string]map[*wsClient]struct{}
	subscribed map[string]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups:     make(map[string]map[*wsClient]struct{}),
		subscribed: make(map[string]struct{}),
	}
}

func (h *wsHub) Add(code string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[code]
	if group == nil {
		group = make(map[*wsClient]struct{})
		h.groups[code] = group
	}
	group[c] = struct{}{}
}

func (h *wsHub) Remove(code string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[code]
	if group == nil {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, code)
	}
}

func (h *wsHub) Count(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[code])
}

func (h *wsHub) Broadcast(code string, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws encode failed game_code=%s type=%s error=%v", code, msg.Type, err)
		return
	}
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.groups[code]))
	for c := range h.groups[code] {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.enqueue(data)
	}
}

// claimSubscription reports true for the first caller per code.
func (h *wsHub) claimSubscription(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribed[code]; ok {
		return false
	}
	h.subscribed[code] = struct{}{}
	return true
}

func (h *wsHub) releaseSubscription(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribed, code)
}

// Forget drops a game's group and reports whether it had a subscription.
func (h *wsHub) Forget(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, code)
	_, ok := h.subscribed[code]
	delete(h.subscribed, code)
	return ok
}

func (h *wsHub) CloseAll() {
	h.mu.Lock()
	var clients []*wsClient
	for _, group := range h.groups {
		for c := range group {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.cfg.AllowOrigins, r)
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed remote=%s error=%v", c.Request.RemoteAddr, err)
		return
	}
	identity := s.cookieIdentity(c)
	log.Printf("ws connected remote=%s identified=%t", c.Request.RemoteAddr, identity != "")
	client := newWSClient(conn, identity)
	go client.writePump()
	go s.readWS(client)
}

func (s *Server) readWS(c *wsClient) {
	var sess wsSession
	defer func() {
		c.close()
		s.disconnect(sess, c)
	}()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected game_code=%s player_id=%s error=%v", sess.gameCode, sess.playerID, err)
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.Send(errorMessage("Malformed message"))
			continue
		}
		sess = s.dispatch(c, sess, msg)
	}
}

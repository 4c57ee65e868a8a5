package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval   = 30 * time.Second
	writeTimeout   = 5 * time.Second
	reconnectDelay = 2 * time.Second
)

// wirePayload is what actually goes over the socket to the gateway relay.
type wirePayload struct {
	RecipientUID int64             `json:"recipient_uid"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// WebSocketDispatcher sends Messages over a persistent websocket
// connection to a gateway relay standing in for the real chat platform
// gateway client, reusing the teacher's connect/reconnect/ping-pong shape
// (internal/lcu/websocket.go's WebSocketClient, generalized from a
// read-only event subscriber into a send-only dispatcher).
type WebSocketDispatcher struct {
	url    string
	logger zerolog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
	stop        chan struct{}
}

func NewWebSocketDispatcher(url string, logger zerolog.Logger) *WebSocketDispatcher {
	return &WebSocketDispatcher{url: url, logger: logger, stop: make(chan struct{})}
}

// Connect dials the gateway relay and starts the ping loop. Safe to call
// again after a disconnect.
func (d *WebSocketDispatcher) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isConnected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return fmt.Errorf("notify: dispatcher connect: %w", err)
	}
	d.conn = conn
	d.isConnected = true
	d.stop = make(chan struct{})
	go d.pingLoop(d.stop)
	return nil
}

func (d *WebSocketDispatcher) pingLoop(stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			conn := d.conn
			d.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				d.logger.Warn().Err(err).Msg("notify: ping failed, marking dispatcher disconnected")
				d.markDisconnected()
				return
			}
		}
	}
}

// Send implements Dispatcher. It reconnects once on a detected
// disconnection before giving up, so a transient drop doesn't by itself
// exhaust the router's retry budget.
func (d *WebSocketDispatcher) Send(ctx context.Context, msg Message) error {
	d.mu.Lock()
	connected := d.isConnected
	d.mu.Unlock()
	if !connected {
		if err := d.Connect(ctx); err != nil {
			return err
		}
	}

	payload := wirePayload{RecipientUID: msg.RecipientUID, Title: msg.Title, Body: msg.Body, Fields: msg.Fields}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}

	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("notify: dispatcher not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		d.markDisconnected()
		return fmt.Errorf("notify: send: %w", err)
	}
	return nil
}

func (d *WebSocketDispatcher) markDisconnected() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.isConnected = false
}

// Disconnect tears down the current connection.
func (d *WebSocketDispatcher) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	close(d.stop)
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.isConnected = false
}

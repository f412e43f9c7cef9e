package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// inbound is the only message shape a client sends.
type inbound struct {
	Type  string `json:"type"`
	Since int64  `json:"since"`
	Ping  int64  `json:"ping"`
}

// sendInitialState queues either the replay after since or, for a fresh
// session (since < 0), the latest envelope of each type.
func (c *Client) sendInitialState(since int64) {
	var msgs [][]byte
	if since >= 0 {
		msgs = c.hub.Since(since)
	} else {
		c.hub.mu.RLock()
		for _, kind := range []string{TypeAccount, TypeReport, TypeStatus} {
			if env, ok := c.hub.latest[kind]; ok {
				msgs = append(msgs, env)
			}
		}
		c.hub.mu.RUnlock()
	}
	for _, m := range msgs {
		c.trySend(m)
	}
}

// trySend queues msg unless the client has been removed or its buffer is full.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	wait := 2 * c.hub.cfg.PingInterval
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "resume":
			for _, env := range c.hub.Since(msg.Since) {
				c.trySend(env)
			}
		case "ping":
			pong, _ := json.Marshal(map[string]int64{
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.trySend(appendEnvelope(nil, "pong", pong, time.Now().UTC(), 0))
		}
	}
}

package hub

import (
	"encoding/json"
	"time"

	"github.com/ageniuscoder/relaychat/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8192
)

// Client is one live socket. Created on connect, destroyed on disconnect,
// owned by the registry for its lifetime; never persisted.
type Client struct {
	ID     string
	UserID int64
	Device string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		c.hub.post(cmdUnregister{c: c})
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.hub.log.Debug("unparseable frame dropped",
				zap.String("conn_id", c.ID), zap.Int64("user_id", c.UserID))
			continue
		}
		c.hub.post(cmdEvent{c: c, ev: ev})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(payload)
			if err := w.Close(); err != nil {
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

// enqueue puts one event on the bounded outbound queue. When the queue is
// full, droppable events are shed; a critical event closes the connection so
// the client reconnects and converges through catch-up instead of silently
// missing it.
func (c *Client) enqueue(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.hub.log.Error("marshal outbound event failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
		metrics.PushOK.Inc()
	default:
		if droppable(ev.Type) {
			metrics.PushShed.Inc()
			return
		}
		metrics.PushOverflow.Inc()
		c.hub.log.Warn("outbound queue full, closing connection",
			zap.String("conn_id", c.ID), zap.Int64("user_id", c.UserID), zap.String("type", ev.Type))
		c.conn.Close()
	}
}

// internal/hub/conn.go
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 3 * time.Second

// outboundBuffer is the per-connection send queue depth. A client that
// cannot drain this many frames has its messages dropped, not the loop
// blocked.
const outboundBuffer = 64

// Conn wraps a live WebSocket. Outbound frames go through a buffered channel
// drained by a dedicated writer goroutine so the dispatcher never blocks on
// a slow client; inbound rate accounting lives here too.
type Conn struct {
	ws     *websocket.Conn
	logger *logrus.Logger
	remote string

	out       chan []byte
	closeOnce sync.Once
	cancel    context.CancelFunc

	// Inbound rate cap state, touched only by the read loop.
	windowStart time.Time
	windowCount int
}

// NewConn wraps an accepted WebSocket and starts its writer and heartbeat
// goroutines. heartbeat of zero disables liveness pings (used in tests).
func NewConn(ctx context.Context, ws *websocket.Conn, logger *logrus.Logger, remote string, heartbeat time.Duration) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		ws:     ws,
		logger: logger,
		remote: remote,
		out:    make(chan []byte, outboundBuffer),
		cancel: cancel,
	}
	go c.writeLoop(ctx)
	if heartbeat > 0 {
		go c.heartbeatLoop(ctx, heartbeat)
	}
	return c
}

// Remote returns the peer address, for logging.
func (c *Conn) Remote() string { return c.remote }

// Send marshals msg and queues it for delivery. Sends on a congested or
// closed connection are dropped; the read loop detects actual closure.
func (c *Conn) Send(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Errorf("failed to marshal outbound message for %s: %v", c.remote, err)
		return
	}
	select {
	case c.out <- data:
	default:
		c.logger.Warnf("outbound queue full for %s, dropping frame", c.remote)
	}
}

// Read blocks for the next inbound text frame.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if msgType != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

// AllowMessage accounts one inbound frame against the rate cap: at most
// limit frames per one-second window. Returns false when the cap is
// exceeded, which is fatal for the connection.
func (c *Conn) AllowMessage(now time.Time, limit int) bool {
	if now.Sub(c.windowStart) > time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	return c.windowCount <= limit
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.close(websocket.StatusNormalClosure, "")
}

// CloseRateLimited terminates a connection that exceeded the message cap.
func (c *Conn) CloseRateLimited() {
	c.close(websocket.StatusPolicyViolation, "rate limit")
}

func (c *Conn) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.ws != nil {
			c.ws.Close(status, reason)
		}
	})
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out:
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					c.logger.Warnf("failed to write to %s: %v", c.remote, err)
				}
				return
			}
		}
	}
}

// heartbeatLoop pings the peer every interval. A peer that does not answer
// within one interval is forcibly terminated, which surfaces to the read
// loop and triggers the normal disconnect cleanup.
func (c *Conn) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, interval)
			err := c.ws.Ping(pingCtx)
			cancelPing()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Infof("heartbeat failed for %s, terminating: %v", c.remote, err)
				}
				c.Close()
				return
			}
		}
	}
}

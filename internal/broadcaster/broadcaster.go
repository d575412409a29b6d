// Package broadcaster implements the replay server's duplex channel to a
// connected chart client: a single gorilla/websocket connection fed by a
// buffered outbound queue and drained by one writer goroutine per
// connection, so a slow or stalled client can never block the session
// that is writing to it.
package broadcaster

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrasher-corp/candlereplay/internal/replaylog"
)

// Kind identifies the shape of a Message's Payload.
type Kind string

// The fixed set of message kinds the duplex channel ever sends.
const (
	KindInitialChartData          Kind = "initial_chart_data"
	KindTimeframeChanged          Kind = "bulletproof_timeframe_changed"
	KindGoToDateComplete          Kind = "go_to_date_complete"
	KindSkipComplete              Kind = "skip_complete"
	KindChartSeriesRecreation     Kind = "chart_series_recreation"
	KindEmergencyRecoveryRequired Kind = "emergency_recovery_required"

	// KindRecreationAck is the one message kind the client sends rather
	// than receives: the ack for a prior chart_series_recreation command.
	KindRecreationAck Kind = "recreation_ack"
)

// Message is the JSON envelope sent over the duplex channel. Payload is
// always built from scalar fields (timestamps, strings, candle arrays),
// never a live object graph, so every message is self-contained and
// order-independent for the client to apply.
type Message struct {
	Kind    Kind        `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	sendBufferSize = 64
	writeTimeout   = 5 * time.Second
)

// ErrSendBufferFull is returned by Send when a connection's outbound
// queue is saturated, meaning the client is not draining fast enough to
// keep up with the session.
var ErrSendBufferFull = fmt.Errorf("broadcaster: send buffer full")

// Conn wraps one client's websocket connection with a buffered outbound
// queue and the single goroutine permitted to write to it.
type Conn struct {
	ws   *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

// NewConn starts a writer goroutine for ws and returns the Conn used to
// queue messages to it. Close must be called when the connection ends.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:   ws,
		send: make(chan Message, sendBufferSize),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				replaylog.Warnf(replaylog.BroadcastMgr, "write failed, closing connection: %v", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send enqueues msg for delivery. It never blocks: if the outbound queue
// is full the message is dropped and ErrSendBufferFull is returned so
// the caller can decide whether that message kind is safe to lose.
func (c *Conn) Send(msg Message) error {
	select {
	case <-c.done:
		return fmt.Errorf("broadcaster: connection closed")
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("broadcaster: connection closed")
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the writer goroutine and the underlying websocket
// connection. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// MarshalDebug renders msg for logging without panicking on unmarshalable
// payloads.
func MarshalDebug(msg Message) string {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprintf("<%s: unmarshalable payload: %v>", msg.Kind, err)
	}
	return string(b)
}

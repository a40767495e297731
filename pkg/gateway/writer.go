package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corvidlabs/gatewaylink/pkg/websocket"
)

// packetSink is the subset of [websocket.Conn] that [Writer] depends on,
// so tests can substitute a fake outbound connection.
type packetSink interface {
	SendTextMessage(data []byte) <-chan error
}

// Writer serializes [Packet]s to JSON and sends them as WebSocket text
// messages, one at a time, through the underlying connection's own writer
// goroutine (see [websocket.Conn.SendTextMessage]).
type Writer struct {
	conn packetSink
}

// NewWriter wraps conn for sending [Packet]s.
func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

// Send encodes p as JSON and sends it as a text message, blocking until the
// underlying connection has written it (or ctx is cancelled first).
func (w *Writer) Send(ctx context.Context, p Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(p)
	if err != nil {
		return jsonErr(err)
	}

	select {
	case err := <-w.conn.SendTextMessage(b):
		if err != nil {
			return fmt.Errorf("failed to send packet: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

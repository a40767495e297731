package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corvidlabs/gatewaylink/pkg/websocket"
)

// Client is a connected gateway session: a [websocket.Conn], the persistent
// zlib inflate stream it's compressed through, the dispatch tables incoming
// packets are routed to, and the heartbeat loop keeping the connection
// alive.
type Client struct {
	conn       *websocket.Conn
	inflater   *Inflater
	Dispatcher *Dispatcher
	Writer     *Writer

	heartbeat *heartbeater
	cancel    context.CancelFunc
	logger    *slog.Logger

	closeOnce    sync.Once
	closeHandler func(status websocket.StatusCode, reason string)
}

// ConnectOptions configures [Connect].
type ConnectOptions struct {
	Logger      *slog.Logger
	DiscoverOpt []DiscoverOpt
	DialOpt     []websocket.DialOpt
}

// Connect discovers the gateway endpoint for host, dials it, and starts the
// background goroutines that keep the connection alive: the dispatch pump
// and (once the server's [OpcodeHello] packet arrives) the heartbeat loop.
//
// The returned [Client] owns a goroutine tree rooted at ctx; cancel ctx or
// call [Client.Close] to tear it down.
func Connect(ctx context.Context, host string, opts ConnectOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gatewayURL, err := Discover(ctx, host, opts.DiscoverOpt...)
	if err != nil {
		return nil, fmt.Errorf("failed to discover gateway endpoint: %w", err)
	}

	conn, err := websocket.Dial(ctx, gatewayURL, opts.DialOpt...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	c := &Client{
		conn:       conn,
		Dispatcher: NewDispatcher(logger),
		Writer:     NewWriter(conn),
		cancel:     cancel,
		logger:     logger,
	}
	c.heartbeat = newHeartbeater(c.Writer, logger)
	c.Dispatcher.OnSequence(c.heartbeat.observeSequence)
	c.Dispatcher.OnClose(c.fireClose)

	HandleTyped(c.Dispatcher, OpcodeHello, func(h HelloData) {
		interval := time.Duration(h.HeartbeatIntervalMS) * time.Millisecond
		go c.heartbeat.run(runCtx, interval)
	})
	c.Dispatcher.HandleOpcode(OpcodeHeartbeatAck, func(Packet) {
		logger.Debug("received heartbeat acknowledgement")
	})

	c.inflater = &Inflater{}
	go func() {
		// Stops the heartbeat loop as soon as the pump exits.
		defer cancel()
		if err := c.Dispatcher.Run(runCtx, conn, c.inflater); err != nil {
			logger.Error("dispatcher pump exited", slog.Any("error", err))
		}
	}()

	return c, nil
}

// OnClose registers a handler invoked once the underlying connection closes,
// whether initiated locally (by [Client.Close]) or by the server sending a
// Close frame — in the latter case with the status and reason the server
// actually sent, not a synthesized one.
func (c *Client) OnClose(h func(status websocket.StatusCode, reason string)) {
	c.closeHandler = h
}

// fireClose invokes the registered close handler at most once, regardless of
// how many of [Client.Close] and the dispatcher pump's own close detection
// race to call it.
func (c *Client) fireClose(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		if c.closeHandler != nil {
			c.closeHandler(status, reason)
		}
	})
}

// ObserveSequence records the sequence number of the most recent dispatch
// event, so that the next heartbeat carries it. [Connect] already wires this
// up automatically for every packet that carries a sequence number; callers
// only need this to override that value explicitly, e.g. when resuming a
// session from a persisted sequence.
func (c *Client) ObserveSequence(seq int32) {
	c.heartbeat.observeSequence(seq)
}

// Close sends a normal closure frame, stops the dispatch and heartbeat
// goroutines, and releases the underlying connection. If the server closes
// the connection first, the dispatcher pump invokes the close handler with
// the server's actual status and reason instead; Close's own
// [websocket.StatusNormalClosure] only applies when the application
// initiates the closure.
func (c *Client) Close() {
	c.conn.Close(websocket.StatusNormalClosure)
	c.cancel()
	_ = c.inflater.Close()
	c.fireClose(websocket.StatusNormalClosure, "")
}

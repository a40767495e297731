package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corvidlabs/gatewaylink/pkg/websocket"
)

// Dispatcher routes incoming [Packet]s to the handlers registered for their
// opcode or (for dispatch events) their event name. Handler tables are
// guarded by a [sync.RWMutex] so that handlers can be registered from any
// goroutine, including from within another handler.
type Dispatcher struct {
	mu             sync.RWMutex
	opcodeHandlers map[Opcode][]func(Packet)
	eventHandlers  map[string][]func(Packet)

	onSequence func(int32)
	onClose    func(websocket.StatusCode, string)
	logger     *slog.Logger
}

// NewDispatcher creates an empty [Dispatcher]. logger is used to report
// handler panics and decode failures; a nil logger falls back to
// [slog.Default].
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		opcodeHandlers: make(map[Opcode][]func(Packet)),
		eventHandlers:  make(map[string][]func(Packet)),
		logger:         logger,
	}
}

// HandleOpcode registers h to run for every incoming [Packet] whose Op
// matches op and which carries no event name (E is nil). Handlers run in
// registration order.
func (d *Dispatcher) HandleOpcode(op Opcode, h func(Packet)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opcodeHandlers[op] = append(d.opcodeHandlers[op], h)
}

// OnSequence registers fn to run with every packet's sequence number, for
// packets that carry one, before that packet is dispatched to its opcode or
// event handlers. Only one observer can be registered; later calls replace
// the previous one.
func (d *Dispatcher) OnSequence(fn func(int32)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSequence = fn
}

// OnClose registers fn to run once, with the status and reason the server
// sent in its Close frame (or the status [websocket.Conn] recorded for a
// locally-detected closure), when [Dispatcher.Run] sees the connection's
// incoming channel close. Only one observer can be registered; later calls
// replace the previous one.
func (d *Dispatcher) OnClose(fn func(websocket.StatusCode, string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = fn
}

// HandleEvent registers h to run for every incoming dispatch [Packet] whose
// E matches event. Handlers run in registration order.
func (d *Dispatcher) HandleEvent(event string, h func(Packet)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eventHandlers[event] = append(d.eventHandlers[event], h)
}

// HandleTyped registers a handler that receives p.D already decoded into P,
// instead of the raw [Packet]. Decode failures are logged and the handler is
// skipped.
func HandleTyped[P PacketData](d *Dispatcher, op Opcode, h func(P)) {
	d.HandleOpcode(op, func(p Packet) {
		data, err := Decode[P](p)
		if err != nil {
			d.logger.Error("failed to decode packet payload", slog.Any("error", err), slog.Int("op", int(op)))
			return
		}
		h(data)
	})
}

// HandleEventTyped is [HandleTyped] for dispatch events, keyed by name
// instead of opcode.
func HandleEventTyped[P PacketData](d *Dispatcher, event string, h func(P)) {
	d.HandleEvent(event, func(p Packet) {
		data, err := Decode[P](p)
		if err != nil {
			d.logger.Error("failed to decode packet payload", slog.Any("error", err), slog.String("event", event))
			return
		}
		h(data)
	})
}

// dispatch invokes every handler registered for p, recovering from (and
// logging) any handler panic so that one misbehaving handler can't bring
// down the pump goroutine.
func (d *Dispatcher) dispatch(p Packet) {
	d.mu.RLock()
	var handlers []func(Packet)
	if p.E != nil {
		handlers = append(handlers, d.eventHandlers[*p.E]...)
	} else {
		handlers = append(handlers, d.opcodeHandlers[p.Op]...)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		d.invoke(h, p)
	}
}

func (d *Dispatcher) invoke(h func(Packet), p Packet) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("packet handler panicked", slog.Any("panic", r), slog.Int("op", int(p.Op)))
		}
	}()
	h(p)
}

// messageSource is the subset of [websocket.Conn] that [Dispatcher.Run]
// depends on. It exists so tests can drive Run with a fake message stream
// instead of a live connection.
type messageSource interface {
	IncomingMessages() <-chan websocket.Message
	CloseStatus() (websocket.StatusCode, string)
}

// Run pumps messages from conn's incoming channel through inf (for binary,
// compressed frames) and into the dispatch tables, until the connection's
// channel closes or ctx is cancelled. It returns nil when the connection
// closed normally, ctx's error when ctx is cancelled, or the first error
// decoding a message's contents (such as [ErrBadCompression]) otherwise. A
// decoded message whose JSON envelope doesn't parse is logged and skipped.
func (d *Dispatcher) Run(ctx context.Context, conn messageSource, inf *Inflater) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-conn.IncomingMessages():
			if !ok {
				d.mu.RLock()
				onClose := d.onClose
				d.mu.RUnlock()
				if onClose != nil {
					status, reason := conn.CloseStatus()
					onClose(status, reason)
				}
				return nil
			}

			plaintext, err := d.decode(msg, inf)
			if err != nil {
				return err
			}
			if plaintext == nil {
				continue // A compressed message fragment; more data is needed.
			}

			var p Packet
			if err := json.Unmarshal(plaintext, &p); err != nil {
				d.logger.Error("failed to decode packet envelope", slog.Any("error", err))
				continue
			}
			if p.S != nil {
				d.mu.RLock()
				onSequence := d.onSequence
				d.mu.RUnlock()
				if onSequence != nil {
					onSequence(*p.S)
				}
			}
			d.dispatch(p)
		}
	}
}

func (d *Dispatcher) decode(msg websocket.Message, inf *Inflater) ([]byte, error) {
	switch msg.Opcode {
	case websocket.OpcodeText:
		return msg.Data, nil
	case websocket.OpcodeBinary:
		return inf.Feed(msg.Data)
	default:
		return nil, fmt.Errorf("unexpected message opcode: %s", msg.Opcode)
	}
}

package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/corvidlabs/gatewaylink/pkg/metrics"
)

// heartbeater sends periodic [OpcodeHeartbeat] packets over a [Writer], at
// the interval the server announced in its [OpcodeHello] packet, carrying
// the most recently observed sequence number.
type heartbeater struct {
	w        *Writer
	logger   *slog.Logger
	sequence atomic.Int64 // 0 means "none observed yet"; stored as seq+1.
}

func newHeartbeater(w *Writer, logger *slog.Logger) *heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &heartbeater{w: w, logger: logger}
}

// observeSequence records the most recent dispatch-event sequence number, so
// that the next heartbeat carries it.
func (h *heartbeater) observeSequence(seq int32) {
	h.sequence.Store(int64(seq) + 1)
}

func (h *heartbeater) currentSequence() *int32 {
	stored := h.sequence.Load()
	if stored == 0 {
		return nil
	}
	seq := int32(stored - 1)
	return &seq
}

// run sends one heartbeat immediately, then one every interval, until ctx is
// cancelled. It's meant to be started as its own goroutine right after an
// [OpcodeHello] packet is received.
func (h *heartbeater) run(ctx context.Context, interval time.Duration) {
	h.beat(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *heartbeater) beat(ctx context.Context) {
	seq := h.currentSequence()
	metrics.RecordHeartbeat(h.logger, time.Now(), seq)

	p, err := Encode(OpcodeHeartbeat, HeartbeatData{Sequence: seq})
	if err != nil {
		h.logger.Error("failed to encode heartbeat packet", slog.Any("error", err))
		return
	}

	if err := h.w.Send(ctx, p); err != nil {
		h.logger.Error("failed to send heartbeat", slog.Any("error", err))
	}
}

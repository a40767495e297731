package gateway

import (
	"log/slog"
	"testing"

	"github.com/corvidlabs/gatewaylink/pkg/websocket"
)

func TestClientObserveSequenceFeedsHeartbeat(t *testing.T) {
	c := &Client{heartbeat: newHeartbeater(&Writer{}, slog.New(slog.DiscardHandler))}

	c.ObserveSequence(99)

	got := c.heartbeat.currentSequence()
	if got == nil || *got != 99 {
		t.Errorf("currentSequence() = %v, want 99", got)
	}
}

func TestClientOnCloseRegistersHandler(t *testing.T) {
	c := &Client{}

	var gotStatus websocket.StatusCode
	var gotReason string
	c.OnClose(func(status websocket.StatusCode, reason string) {
		gotStatus, gotReason = status, reason
	})

	if c.closeHandler == nil {
		t.Fatal("OnClose() did not register a handler")
	}
	c.closeHandler(websocket.StatusGoingAway, "shutting down")

	if gotStatus != websocket.StatusGoingAway || gotReason != "shutting down" {
		t.Errorf("handler received (%v, %q), want (%v, %q)",
			gotStatus, gotReason, websocket.StatusGoingAway, "shutting down")
	}
}

func TestClientFireCloseRunsHandlerOnlyOnce(t *testing.T) {
	c := &Client{}

	var calls int
	c.OnClose(func(websocket.StatusCode, string) { calls++ })

	c.fireClose(websocket.StatusGoingAway, "server went away")
	c.fireClose(websocket.StatusNormalClosure, "")

	if calls != 1 {
		t.Errorf("close handler ran %d times, want 1", calls)
	}
}

// Package api bridges the scheduler's event bus onto a WebSocket stream,
// one subscription per connected client (spec.md §6's
// started/canceled/attempt_failed/failed/finished/progress_job_detail
// signals).
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/nuulab/dicomflow/pkg/events"
)

// wireEvent is the JSON shape pushed to every WebSocket client.
type wireEvent struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// clientMessage is the shape of a message sent by the client. readPump
// reads and discards every such message, "ping" included; no reply is
// sent.
type clientMessage struct {
	Type string `json:"type"`
}

// handleWebSocket subscribes a fresh client to the scheduler's event bus
// and mirrors every published event onto the connection until it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		defer conn.Close()

		ch, unsubscribe := s.sch.Bus().Subscribe(256)
		defer unsubscribe()

		if err := websocket.JSON.Send(conn, wireEvent{
			Type:      "connected",
			Data:      map[string]string{"message": "connected to dicomflow"},
			Timestamp: time.Now(),
		}); err != nil {
			return
		}

		done := make(chan struct{})
		var closed atomic.Bool
		go readPump(conn, done, &closed)

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := websocket.JSON.Send(conn, toWireEvent(ev)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}).ServeHTTP(w, r)
}

// readPump drains client keepalive/control messages; the client has
// nothing to publish (the scheduler is the sole event producer), so this
// only exists to detect the connection closing.
func readPump(conn *websocket.Conn, done chan struct{}, closed *atomic.Bool) {
	defer func() {
		if closed.CompareAndSwap(false, true) {
			close(done)
		}
	}()
	for {
		var msg clientMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return
		}
	}
}

func toWireEvent(ev events.Event) wireEvent {
	return wireEvent{Type: string(ev.Kind), Data: ev.Payload, Timestamp: ev.Timestamp}
}

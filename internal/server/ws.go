package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/hostline-ai/hostline/internal/call"
)

// maxInboundFrame caps a single WebSocket message. 64 KiB holds two seconds
// of PCM16 audio at 16 kHz, far above what the capture loop sends per frame.
const maxInboundFrame = 64 * 1024

// wsDuplex adapts a server-side WebSocket connection to the call.Duplex
// interface. Binary messages carry PCM16 audio, text messages carry JSON
// events. Writes are serialised with a mutex because playback chunks and
// protocol events are produced by different goroutines.
type wsDuplex struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
}

func newWSDuplex(conn *websocket.Conn) *wsDuplex {
	conn.SetReadLimit(maxInboundFrame)
	return &wsDuplex{conn: conn}
}

// Receive implements call.Duplex. Malformed JSON in a text frame is
// reported as an empty control so the session can count and skip it.
func (d *wsDuplex) Receive(ctx context.Context) (call.Inbound, error) {
	typ, data, err := d.conn.Read(ctx)
	if err != nil {
		return call.Inbound{}, err
	}
	switch typ {
	case websocket.MessageBinary:
		return call.Inbound{Audio: data}, nil
	case websocket.MessageText:
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			return call.Inbound{Control: "malformed"}, nil
		}
		return call.Inbound{Control: ev.Type}, nil
	default:
		return call.Inbound{}, fmt.Errorf("server: unexpected message type %v", typ)
	}
}

// SendAudio implements call.Duplex.
func (d *wsDuplex) SendAudio(ctx context.Context, chunk []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.conn.Write(ctx, websocket.MessageBinary, chunk)
}

// SendEvent implements call.Duplex.
func (d *wsDuplex) SendEvent(ctx context.Context, ev call.ControlEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("server: encode event: %w", err)
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.conn.Write(ctx, websocket.MessageText, data)
}

// Close implements call.Duplex. Safe to call more than once.
func (d *wsDuplex) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return err
}

// handleWS upgrades GET /api/calls/{call_id}/ws and runs the call session
// until the call ends or the peer disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("call_id")
	c, err := s.registry.Lookup(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	bridge, err := s.bridgeFor(c.Options)
	if err != nil {
		s.logger.Error("bridge construction failed", "call_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "agent unavailable")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // browser clients connect from any origin
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "call_id", id, "error", err)
		return
	}
	duplex := newWSDuplex(conn)

	opts := []call.SessionOption{
		call.WithLogger(s.logger),
		call.WithMetrics(s.metrics),
	}
	if s.drainTimeout > 0 {
		opts = append(opts, call.WithDrainTimeout(s.drainTimeout))
	}
	if s.maxQueued > 0 {
		opts = append(opts, call.WithMaxQueuedSegments(s.maxQueued))
	}
	if s.corrector != nil {
		opts = append(opts, call.WithTranscriptCorrector(s.corrector))
	}

	sess, err := call.NewSession(c, duplex, s.stt, s.tts, bridge, opts...)
	if err != nil {
		switch {
		case errors.Is(err, call.ErrDuplicateCall):
			conn.Close(websocket.StatusPolicyViolation, "channel already attached")
		case errors.Is(err, call.ErrCallClosed):
			conn.Close(websocket.StatusNormalClosure, "call already ended")
		default:
			conn.Close(websocket.StatusInternalError, "session setup failed")
		}
		return
	}

	if err := sess.Run(r.Context()); err != nil {
		s.logger.Error("call session failed", "call_id", id, "error", err)
	}
}

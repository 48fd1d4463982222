// Package playback provides the per-call playback sequencer: an ordered
// queue of synthesised audio segments that are streamed to the duplex
// channel strictly in arrival order, one at a time, with no gap between
// consecutive segments.
//
// Segments carry a streaming chunk channel, so playback of a segment can
// begin before its synthesis has finished. The single dispatch goroutine is
// the only consumer; Enqueue is safe to call from any goroutine, including
// while a segment is playing.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/hostline-ai/hostline/pkg/audio"
)

const (
	// DefaultMaxQueued caps the number of segments waiting behind the one
	// currently playing. Playback is real-time-bound on the browser side,
	// so a queue this deep already means synthesis is running far ahead.
	DefaultMaxQueued = 32
)

var (
	// ErrBackpressure is returned by Enqueue when the segment queue is
	// full. The caller decides whether to surface the overflow or end the
	// call; the sequencer never grows without limit.
	ErrBackpressure = errors.New("playback: segment queue is full")

	// ErrSequencerClosed is returned by Enqueue after Close or when the
	// owning call has ended.
	ErrSequencerClosed = errors.New("playback: sequencer is closed")
)

// Segment is one contiguous block of synthesised audio awaiting playback.
// Chunks arrive on Audio as the synthesis adapter produces them; the
// channel is closed by the producer when the segment is complete.
type Segment struct {
	// Utterance groups the segments of one synthesize call, for logs and
	// ordering assertions.
	Utterance uint64

	// Audio streams raw PCM16 chunks. Closed by the producer.
	Audio <-chan []byte
}

// Option configures a Sequencer during construction.
type Option func(*Sequencer)

// WithMaxQueued overrides the queue depth bound. Values <= 0 keep the
// default.
func WithMaxQueued(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.maxQueued = n
		}
	}
}

// WithOnIdle registers a callback invoked from the dispatch goroutine each
// time the sequencer finishes its last queued segment and goes idle. The
// callback must not block; the call session uses it to flip the client
// status back to "listening".
func WithOnIdle(fn func()) Option {
	return func(s *Sequencer) {
		s.onIdle = fn
	}
}

// Sequencer plays segments back in strict insertion order. At most one
// segment is playing at any instant; a segment never starts before the
// previous one's chunk channel is closed, and a segment is never dropped
// except by Flush or Close.
//
// All exported methods are safe for concurrent use.
type Sequencer struct {
	output    func([]byte) // receives chunks in playback order
	maxQueued int
	onIdle    func()

	mu      sync.Mutex
	queue   []*Segment
	playing *Segment
	cancel  chan struct{} // closed to abort the current segment
	closed  bool

	notify chan struct{}
	done   chan struct{}
	idle   chan struct{} // replaced whenever playback starts, closed on idle
}

// New creates a Sequencer delivering chunks to output and starts its
// dispatch goroutine. output is called sequentially from that goroutine and
// should write to the duplex channel; it must not call back into the
// sequencer.
//
// Call Close to stop the goroutine and release resources.
func New(output func([]byte), opts ...Option) *Sequencer {
	s := &Sequencer{
		output:    output,
		maxQueued: DefaultMaxQueued,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		idle:      make(chan struct{}),
	}
	close(s.idle) // starts idle
	for _, o := range opts {
		o(s)
	}
	go s.dispatch()
	return s
}

// Enqueue appends seg to the tail of the queue. If the sequencer was idle
// the segment starts playing immediately; otherwise it starts exactly when
// the segment ahead of it completes.
func (s *Sequencer) Enqueue(seg *Segment) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSequencerClosed
	}
	if len(s.queue) >= s.maxQueued {
		s.mu.Unlock()
		return ErrBackpressure
	}
	s.queue = append(s.queue, seg)
	if s.playing == nil && len(s.queue) == 1 {
		// Transitioning out of idle: arm a fresh idle gate before the
		// dispatch goroutine picks the segment up.
		s.idle = make(chan struct{})
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Flush discards all queued segments and aborts the one currently playing.
// Used on forced termination and barge-in; a graceful call end uses Drain
// instead so in-flight speech finishes.
func (s *Sequencer) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// flushLocked drops the queue and cancels current playback. Callers hold s.mu.
func (s *Sequencer) flushLocked() {
	for _, seg := range s.queue {
		go audio.Drain(seg.Audio)
	}
	s.queue = nil
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	s.playing = nil
}

// Drain blocks until the queue is empty and no segment is playing, or ctx
// is cancelled. It does not prevent further Enqueue calls; callers stop
// producing before draining.
func (s *Sequencer) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.idle
		empty := s.playing == nil && len(s.queue) == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		case <-s.done:
			return nil
		}
	}
}

// Idle reports whether nothing is playing and the queue is empty.
func (s *Sequencer) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing == nil && len(s.queue) == 0
}

// Close aborts playback, discards the queue, and stops the dispatch
// goroutine. Idempotent; subsequent calls return nil.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.flushLocked()
	s.mu.Unlock()

	close(s.done)
	return nil
}

// dispatch is the single consumer: it pops segments in FIFO order and
// streams each one's chunks to the output callback until the segment's
// channel closes, then immediately starts the next.
func (s *Sequencer) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			seg, cancel, ok := s.next()
			if !ok {
				break
			}
			s.play(seg, cancel)
			s.complete(seg)
		}
	}
}

// next pops the head of the queue and marks it playing. ok is false when
// the queue is empty.
func (s *Sequencer) next() (seg *Segment, cancel chan struct{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil, false
	}
	seg = s.queue[0]
	s.queue = s.queue[1:]
	cancel = make(chan struct{})
	s.playing = seg
	s.cancel = cancel
	return seg, cancel, true
}

// play streams seg's chunks to the output until the segment completes
// naturally or is cancelled by Flush/Close.
func (s *Sequencer) play(seg *Segment, cancel chan struct{}) {
	for {
		select {
		case <-s.done:
			go audio.Drain(seg.Audio)
			return
		case <-cancel:
			go audio.Drain(seg.Audio)
			return
		case chunk, ok := <-seg.Audio:
			if !ok {
				return // segment finished
			}
			s.output(chunk)
		}
	}
}

// complete clears the playing slot after seg finished and, when the queue
// is empty, signals idle.
func (s *Sequencer) complete(seg *Segment) {
	s.mu.Lock()
	if s.playing == seg {
		s.playing = nil
		s.cancel = nil
	}
	goneIdle := s.playing == nil && len(s.queue) == 0
	var idle chan struct{}
	if goneIdle {
		idle = s.idle
	}
	s.mu.Unlock()

	if goneIdle {
		select {
		case <-idle: // already closed
		default:
			close(idle)
		}
		if s.onIdle != nil {
			s.onIdle()
		}
	}
}

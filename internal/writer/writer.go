// Package writer owns the TCP session to the BMP collector: it drains the
// bounded forwarding queue, and on disconnect re-establishes the session
// and replays Initiation plus every announced Peer Up before resuming.
package writer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/openbmp/mrt2bmp/internal/bmp"
	"github.com/openbmp/mrt2bmp/internal/metrics"
	"go.uber.org/zap"
)

const writeTimeout = 30 * time.Second

// Writer is the single consumer of the forwarding queue.
type Writer struct {
	addr           string
	queue          chan []byte
	initialBackoff time.Duration
	maxBackoff     time.Duration
	drainGrace     time.Duration
	logger         *zap.Logger

	// preamble: what must be replayed at the start of every session.
	mu         sync.Mutex
	initiation []byte
	peerOrder  []string
	peerUps    map[string][]byte

	connected bool
}

func New(addr string, queueSize int, initialBackoff, maxBackoff, drainGrace time.Duration, logger *zap.Logger) *Writer {
	return &Writer{
		addr:           addr,
		queue:          make(chan []byte, queueSize),
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		drainGrace:     drainGrace,
		logger:         logger,
		peerUps:        make(map[string][]byte),
	}
}

// Enqueue places one encoded message on the queue, blocking for
// backpressure until the writer drains it or the context ends.
func (w *Writer) Enqueue(ctx context.Context, msg []byte) error {
	select {
	case w.queue <- msg:
		metrics.QueueDepth.Set(float64(len(w.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetInitiation records the Initiation message replayed on every connect.
func (w *Writer) SetInitiation(msg []byte) {
	w.mu.Lock()
	w.initiation = msg
	w.mu.Unlock()
}

// UpsertPeerUp records (or replaces) the Peer Up replayed for a peer on
// reconnect. Order of first insertion is preserved.
func (w *Writer) UpsertPeerUp(key string, msg []byte) {
	w.mu.Lock()
	if _, ok := w.peerUps[key]; !ok {
		w.peerOrder = append(w.peerOrder, key)
	}
	w.peerUps[key] = msg
	w.mu.Unlock()
}

// RemovePeer drops a downed peer from the reconnect preamble.
func (w *Writer) RemovePeer(key string) {
	w.mu.Lock()
	delete(w.peerUps, key)
	for i, k := range w.peerOrder {
		if k == key {
			w.peerOrder = append(w.peerOrder[:i], w.peerOrder[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
}

// Connected reports whether a collector session is currently up.
func (w *Writer) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *Writer) setConnected(v bool) {
	w.mu.Lock()
	w.connected = v
	w.mu.Unlock()
}

// QueueDepth returns the number of messages waiting.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

// Run connects and drains the queue until the context ends, then makes a
// bounded attempt to flush what is queued and emits Termination.
func (w *Writer) Run(ctx context.Context) error {
	conn := w.connect(ctx, true)
	if conn == nil {
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			w.shutdown(conn)
			return ctx.Err()
		case msg := <-w.queue:
			metrics.QueueDepth.Set(float64(len(w.queue)))
			if err := w.write(conn, msg); err != nil {
				w.logger.Warn("collector write failed, reconnecting", zap.Error(err))
				conn.Close()
				w.setConnected(false)
				w.discardQueued()
				// msg was in flight at disconnect: discarded, the
				// session restarts from the preamble
				conn = w.connect(ctx, false)
				if conn == nil {
					return ctx.Err()
				}
			}
		}
	}
}

// connect dials until it succeeds, backing off exponentially to the
// configured ceiling, then replays the session preamble.
func (w *Writer) connect(ctx context.Context, first bool) net.Conn {
	backoff := w.initialBackoff
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", w.addr)
		if err == nil {
			if !first {
				metrics.ReconnectsTotal.Inc()
			}
			w.logger.Info("collector session established", zap.String("addr", w.addr))
			err = w.sendPreamble(conn)
			if err == nil {
				w.setConnected(true)
				return conn
			}
			w.logger.Warn("preamble write failed", zap.Error(err))
			conn.Close()
		}

		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("collector connect failed, backing off",
			zap.String("addr", w.addr),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > w.maxBackoff {
			backoff = w.maxBackoff
		}
	}
}

// sendPreamble writes Initiation followed by every announced Peer Up, in
// announcement order. The first byte of every session is an Initiation.
func (w *Writer) sendPreamble(conn net.Conn) error {
	w.mu.Lock()
	msgs := make([][]byte, 0, 1+len(w.peerOrder))
	if w.initiation != nil {
		msgs = append(msgs, w.initiation)
	}
	for _, key := range w.peerOrder {
		if msg, ok := w.peerUps[key]; ok {
			msgs = append(msgs, msg)
		}
	}
	w.mu.Unlock()

	for _, msg := range msgs {
		if err := w.write(conn, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) write(conn net.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := conn.Write(msg)
	metrics.BytesWrittenTotal.Add(float64(n))
	return err
}

// discardQueued empties the queue without writing; delivery of messages
// queued across a disconnect is not guaranteed.
func (w *Writer) discardQueued() {
	dropped := 0
	for {
		select {
		case <-w.queue:
			dropped++
		default:
			metrics.QueueDepth.Set(0)
			if dropped > 0 {
				w.logger.Warn("discarded queued messages on disconnect", zap.Int("dropped", dropped))
			}
			return
		}
	}
}

// shutdown flushes the queue for the drain grace period, then emits
// Termination and closes the session.
func (w *Writer) shutdown(conn net.Conn) {
	deadline := time.Now().Add(w.drainGrace)
	for time.Now().Before(deadline) {
		select {
		case msg := <-w.queue:
			if err := w.write(conn, msg); err != nil {
				conn.Close()
				w.setConnected(false)
				return
			}
		default:
			w.finish(conn)
			return
		}
	}
	w.finish(conn)
}

func (w *Writer) finish(conn net.Conn) {
	if err := w.write(conn, bmp.Termination(bmp.TermReasonAdminClose)); err != nil {
		w.logger.Warn("termination write failed", zap.Error(err))
	}
	conn.Close()
	w.setConnected(false)
	w.logger.Info("collector session closed")
}

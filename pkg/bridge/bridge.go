// Package bridge serializes all access to one client connection.
//
// A Bridge owns a single loop goroutine. It is the only goroutine that
// writes to the connection. Any other goroutine (a recognizer callback, a
// per-turn worker) delivers messages with Send and drives
// connection-bound work with Schedule, then optionally blocks on the
// returned Handle with a bounded timeout.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait is how long to wait for a write to complete.
const writeWait = 10 * time.Second

// Conn is the subset of a websocket connection the bridge writes to.
// Both gorilla and fasthttp websocket connections satisfy it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Work is a unit of connection-bound work. ctx is cancelled when the
// bridge closes.
type Work func(ctx context.Context) (any, error)

type opKind int

const (
	opWrite opKind = iota
	opWork
	opClose
)

type op struct {
	kind   opKind
	msgTyp int
	data   []byte
	work   Work
	handle *Handle
}

// Bridge is the per-connection event loop.
type Bridge struct {
	conn   Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	mu     sync.Mutex
	queue  []op
	closed bool

	workers sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	running atomic.Int64
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Sent        uint64 `json:"sent"`
	Failed      uint64 `json:"failed"`
	RunningWork int64  `json:"running_work"`
}

// New starts a bridge loop for conn. The loop stops when ctx is
// cancelled or Close is called.
func New(ctx context.Context, conn Conn, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		conn:   conn,
		logger: logger.With("component", "bridge"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	go b.loop()
	return b
}

// Context returns the loop context. It is cancelled when the bridge stops.
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Send JSON-encodes v and queues it as a text message.
func (b *Bridge) Send(v any) *Handle {
	data, err := json.Marshal(v)
	if err != nil {
		return failed(fmt.Errorf("bridge: encode message: %w", err))
	}
	return b.submit(op{kind: opWrite, msgTyp: websocket.TextMessage, data: data})
}

// SendRaw queues a pre-encoded message of the given websocket type.
func (b *Bridge) SendRaw(messageType int, data []byte) *Handle {
	return b.submit(op{kind: opWrite, msgTyp: messageType, data: data})
}

// CloseWith queues a close frame carrying code and reason. Messages queued
// before it are written first.
func (b *Bridge) CloseWith(code int, reason string) *Handle {
	return b.submit(op{
		kind:   opClose,
		msgTyp: websocket.CloseMessage,
		data:   websocket.FormatCloseMessage(code, reason),
	})
}

// Schedule runs work under the loop context. The loop starts it after
// every message queued before it has been written, so work observes the
// same ordering as Send. The handle resolves with work's result.
func (b *Bridge) Schedule(work Work) *Handle {
	return b.submit(op{kind: opWork, work: work})
}

// Close stops the loop, cancels running work and fails every pending
// handle with ErrClosed. It does not close the underlying connection.
func (b *Bridge) Close() {
	b.cancel()
	<-b.done
}

// Wait blocks until all scheduled work has returned.
func (b *Bridge) Wait() {
	b.workers.Wait()
}

// Done is closed when the loop has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Stats returns loop counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Sent:        b.sent.Load(),
		Failed:      b.failed.Load(),
		RunningWork: b.running.Load(),
	}
}

func (b *Bridge) submit(o op) *Handle {
	o.handle = newHandle()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.failed.Add(1)
		o.handle.resolve(nil, ErrClosed)
		return o.handle
	}
	b.queue = append(b.queue, o)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return o.handle
}

func (b *Bridge) loop() {
	defer close(b.done)

	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return
		case <-b.wake:
		}

		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		for i, o := range batch {
			if b.ctx.Err() != nil {
				for _, rest := range batch[i:] {
					b.failed.Add(1)
					rest.handle.resolve(nil, ErrClosed)
				}
				break
			}
			b.run(o)
		}
	}
}

func (b *Bridge) run(o op) {
	switch o.kind {
	case opWrite, opClose:
		_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := b.conn.WriteMessage(o.msgTyp, o.data); err != nil {
			b.failed.Add(1)
			b.logger.Warn("write failed", "error", err)
			o.handle.resolve(nil, fmt.Errorf("%w: %v", ErrDelivery, err))
			return
		}
		b.sent.Add(1)
		o.handle.resolve(nil, nil)

	case opWork:
		b.workers.Add(1)
		b.running.Add(1)
		go func() {
			defer b.workers.Done()
			defer b.running.Add(-1)
			v, err := o.work(b.ctx)
			o.handle.resolve(v, err)
		}()
	}
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	b.closed = true
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, o := range pending {
		b.failed.Add(1)
		o.handle.resolve(nil, ErrClosed)
	}
	if len(pending) > 0 {
		b.logger.Debug("dropped pending operations", "count", len(pending))
	}
}

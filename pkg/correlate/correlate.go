// Package correlate turns the TV's fire-and-forget topic broadcasts into
// awaitable single-shot request/response exchanges.
//
// The device protocol has no message IDs; the only correlation key is the
// topic a reply arrives on. The Table keeps at most one outstanding waiter
// per topic. Registering a new waiter on a topic silently abandons the prior
// one, and a message arriving on a topic with no waiter is dropped.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

// ErrAwaitTimeout indicates no message arrived on the awaited topic within
// the budget.
var ErrAwaitTimeout = errors.New("await timeout")

// DefaultAwaitTimeout bounds an await when the caller passes no timeout.
const DefaultAwaitTimeout = 60 * time.Second

// Conn is the transport surface the table needs.
type Conn interface {
	Subscribe(topic string) error
	Messages() <-chan transport.Message
}

// Table correlates inbound topic messages with outstanding waiters.
// Safe for concurrent use across different topics; awaits on the same topic
// replace each other.
type Table struct {
	conn Conn
	stop chan struct{}

	mu      sync.Mutex
	waiters map[string]chan []byte
}

// NewTable creates a table and starts dispatching the connection's inbound
// messages. Call Close to stop.
func NewTable(conn Conn) *Table {
	t := &Table{
		conn:    conn,
		stop:    make(chan struct{}),
		waiters: make(map[string]chan []byte),
	}
	go t.run()
	return t
}

// Pending is one registered waiter. It resolves at most once.
type Pending struct {
	table *Table
	topic string
	ch    chan []byte
}

// Register subscribes to the topic if needed and installs a fresh waiter,
// discarding any prior unresolved waiter for the same topic. Register before
// publishing the request; the reply may arrive before the caller gets around
// to waiting.
func (t *Table) Register(topic string) (*Pending, error) {
	if err := t.conn.Subscribe(topic); err != nil {
		return nil, fmt.Errorf("failed to subscribe for reply: %w", err)
	}

	ch := make(chan []byte, 1)
	t.mu.Lock()
	t.waiters[topic] = ch
	t.mu.Unlock()

	return &Pending{table: t, topic: topic, ch: ch}, nil
}

// Wait blocks until the waiter resolves, the timeout elapses, or ctx is done.
// A zero timeout means DefaultAwaitTimeout. The waiter is unregistered in
// every outcome.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout == 0 {
		timeout = DefaultAwaitTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-p.ch:
		return payload, nil
	case <-timer.C:
		p.table.unregister(p.topic, p.ch)
		return nil, fmt.Errorf("%w: no message on %s within %s", ErrAwaitTimeout, p.topic, timeout)
	case <-ctx.Done():
		p.table.unregister(p.topic, p.ch)
		return nil, ctx.Err()
	}
}

// Await is Register followed by Wait, for exchanges where the request is
// already in flight.
func (t *Table) Await(ctx context.Context, topic string, timeout time.Duration) ([]byte, error) {
	pending, err := t.Register(topic)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx, timeout)
}

// Dispatch resolves the waiter registered for a topic, if any. It reports
// whether a waiter consumed the payload; payloads with no waiter are dropped.
func (t *Table) Dispatch(topic string, payload []byte) bool {
	t.mu.Lock()
	ch, ok := t.waiters[topic]
	if ok {
		delete(t.waiters, topic)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	return true
}

// Close stops the dispatch loop. Pending awaits run into their timeouts.
func (t *Table) Close() {
	close(t.stop)
}

// unregister removes the waiter only if the table still points at it; a
// replacement waiter registered in the meantime stays untouched.
func (t *Table) unregister(topic string, ch chan []byte) {
	t.mu.Lock()
	if cur, ok := t.waiters[topic]; ok && cur == ch {
		delete(t.waiters, topic)
	}
	t.mu.Unlock()
}

func (t *Table) run() {
	msgs := t.conn.Messages()
	for {
		select {
		case msg := <-msgs:
			t.Dispatch(msg.Topic, msg.Payload)
		case <-t.stop:
			return
		}
	}
}

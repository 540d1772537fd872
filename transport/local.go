package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

const localQueue = 1024

// Local connects endpoints in a single process through buffered channels.
type Local struct {
	mu     sync.Mutex
	queues []chan *Message
	dialed []bool
	done   chan struct{}
	closed bool
}

// NewLocal returns an in-process network with size endpoints.
func NewLocal(size int) *Local {
	l := &Local{
		queues: make([]chan *Message, size),
		dialed: make([]bool, size),
		done:   make(chan struct{}),
	}
	for i := range l.queues {
		l.queues[i] = make(chan *Message, localQueue)
	}
	return l
}

// Dial opens endpoint id. Each endpoint can be dialed once.
func (l *Local) Dial(_ context.Context, id int) (Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if id < 0 || id >= len(l.queues) {
		return nil, errors.Wrapf(ErrUnknownEndpoint, "dial %d", id)
	}
	if l.dialed[id] {
		return nil, errors.Errorf("transport: endpoint %d already dialed", id)
	}
	l.dialed[id] = true
	return &localConn{net: l, id: id}, nil
}

// Close shuts the network down. Blocked Send and Recv calls return
// ErrClosed.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}

type localConn struct {
	net    *Local
	id     int
	mu     sync.Mutex
	closed bool
}

func (c *localConn) ID() int { return c.id }

func (c *localConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *localConn) Send(ctx context.Context, m *Message) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := checkSender(c, m); err != nil {
		return err
	}
	if m.To < 0 || m.To >= len(c.net.queues) {
		return errors.Wrapf(ErrUnknownEndpoint, "send to %d", m.To)
	}
	cp := *m
	cp.Payload = append([]byte(nil), m.Payload...)
	select {
	case c.net.queues[m.To] <- &cp:
		return nil
	case <-c.net.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *localConn) Recv(ctx context.Context) (*Message, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	select {
	case m := <-c.net.queues[c.id]:
		return m, nil
	case <-c.net.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *localConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

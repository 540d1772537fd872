package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// maxPending bounds the frames a relay queues for a party that has not
// connected yet.
const maxPending = 4096

// Relay routes frames between endpoints connected over websockets. Each
// endpoint connects with its number in the "id" query parameter and may
// only send frames whose From field matches it.
//
// A frame the relay cannot deliver fails its recipient: the recipient is
// disconnected, or refused when it connects later, so the protocol step
// waiting for the frame errors out instead of waiting forever.
type Relay struct {
	size     int
	backlog  int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	peers   map[int]*relayPeer
	pending map[int][][]byte
	failed  map[int]bool
	closed  bool
}

type relayPeer struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewRelay returns a relay for endpoints 0..size-1.
func NewRelay(size int) *Relay {
	return &Relay{
		size:    size,
		backlog: maxPending,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		peers:   make(map[int]*relayPeer),
		pending: make(map[int][][]byte),
		failed:  make(map[int]bool),
	}
}

// ServeHTTP upgrades the request and relays frames until the endpoint
// disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.Atoi(req.URL.Query().Get("id"))
	if err != nil || id < 0 || id >= r.size {
		http.Error(w, "invalid endpoint id", http.StatusBadRequest)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		jww.WARN.Printf("relay: upgrade for endpoint %d failed: %v", id, err)
		return
	}
	defer conn.Close()

	peer := &relayPeer{conn: conn}
	if err := r.register(id, peer); err != nil {
		jww.WARN.Printf("relay: %v", err)
		return
	}
	defer r.unregister(id, peer)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			jww.DEBUG.Printf("relay: endpoint %d disconnected: %v", id, err)
			return
		}
		var m Message
		if err := m.UnmarshalBinary(data); err != nil {
			jww.WARN.Printf("relay: dropping malformed frame from %d: %v", id, err)
			continue
		}
		if m.From != id {
			jww.WARN.Printf("relay: endpoint %d sent a frame as %d, dropping", id, m.From)
			continue
		}
		if m.To < 0 || m.To >= r.size {
			jww.WARN.Printf("relay: frame from %d addressed to unknown endpoint %d", id, m.To)
			continue
		}
		r.forward(m.To, data)
	}
}

func (r *Relay) register(id int, p *relayPeer) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, ok := r.peers[id]; ok {
		r.mu.Unlock()
		return errors.Errorf("endpoint %d already connected", id)
	}
	if r.failed[id] {
		r.mu.Unlock()
		return errors.Errorf("endpoint %d lost frames while offline", id)
	}
	r.peers[id] = p
	queued := r.pending[id]
	delete(r.pending, id)
	// Hold the write lock across the unlock so later frames queue behind
	// the backlog.
	p.wmu.Lock()
	r.mu.Unlock()
	defer p.wmu.Unlock()

	for _, data := range queued {
		if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return errors.Wrapf(err, "flushing backlog to endpoint %d", id)
		}
	}
	jww.DEBUG.Printf("relay: endpoint %d connected, flushed %d queued frames", id, len(queued))
	return nil
}

func (r *Relay) unregister(id int, p *relayPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peers[id] == p {
		delete(r.peers, id)
	}
}

func (r *Relay) forward(to int, data []byte) {
	r.mu.Lock()
	if r.failed[to] {
		r.mu.Unlock()
		return
	}
	p, ok := r.peers[to]
	if !ok {
		if len(r.pending[to]) >= r.backlog {
			r.failed[to] = true
			delete(r.pending, to)
			r.mu.Unlock()
			jww.WARN.Printf("relay: backlog for endpoint %d is full, failing the endpoint", to)
			return
		}
		r.pending[to] = append(r.pending[to], data)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		jww.WARN.Printf("relay: write to endpoint %d failed, disconnecting it: %v", to, err)
		r.fail(to, p)
	}
}

// fail disconnects p and refuses endpoint id from now on.
func (r *Relay) fail(id int, p *relayPeer) {
	r.mu.Lock()
	r.failed[id] = true
	if r.peers[id] == p {
		delete(r.peers, id)
	}
	r.mu.Unlock()
	_ = p.conn.Close()
}

// Close disconnects every endpoint.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, p := range r.peers {
		_ = p.conn.Close()
		delete(r.peers, id)
	}
	r.pending = make(map[int][][]byte)
	r.failed = make(map[int]bool)
	return nil
}

// WebSocket is a Network whose endpoints connect to a Relay.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conns  []*wsConn
	closed bool
}

// NewWebSocket returns a network that dials the relay at rawURL
// (ws:// or wss://).
func NewWebSocket(rawURL string) *WebSocket {
	return &WebSocket{
		url: rawURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial connects endpoint id to the relay.
func (w *WebSocket) Dial(ctx context.Context, id int) (Conn, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	w.mu.Unlock()

	u, err := url.Parse(w.url)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: parsing relay url %q", w.url)
	}
	q := u.Query()
	q.Set("id", strconv.Itoa(id))
	u.RawQuery = q.Encode()

	ws, _, err := w.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: endpoint %d dialing relay", id)
	}

	c := &wsConn{
		id:       id,
		ws:       ws,
		incoming: make(chan *Message, localQueue),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	w.mu.Lock()
	w.conns = append(w.conns, c)
	w.mu.Unlock()
	return c, nil
}

// Close closes every endpoint dialed through w.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for _, c := range w.conns {
		_ = c.Close()
	}
	w.conns = nil
	return nil
}

type wsConn struct {
	id  int
	ws  *websocket.Conn
	wmu sync.Mutex

	incoming chan *Message
	done     chan struct{}
	once     sync.Once

	errMu   sync.Mutex
	readErr error
}

func (c *wsConn) ID() int { return c.id }

func (c *wsConn) readLoop() {
	defer close(c.incoming)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
		m := new(Message)
		if err := m.UnmarshalBinary(data); err != nil {
			jww.WARN.Printf("transport: endpoint %d dropping malformed frame: %v", c.id, err)
			continue
		}
		select {
		case c.incoming <- m:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Send(ctx context.Context, m *Message) error {
	if err := checkSender(c, m); err != nil {
		return err
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "transport: setting write deadline")
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errors.Wrapf(err, "transport: endpoint %d sending %s", c.id, m)
	}
	return nil
}

func (c *wsConn) Recv(ctx context.Context) (*Message, error) {
	select {
	case m, ok := <-c.incoming:
		if !ok {
			c.errMu.Lock()
			defer c.errMu.Unlock()
			if c.readErr != nil {
				return nil, errors.Wrap(c.readErr, fmt.Sprintf("transport: endpoint %d receive", c.id))
			}
			return nil, ErrClosed
		}
		return m, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

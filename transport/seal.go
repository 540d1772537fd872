package transport

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
)

const linkKeyContext = "secema 2024 transport link key"

// ErrTampered is returned when a sealed payload fails authentication.
var ErrTampered = errors.New("transport: payload failed authentication")

// Seal wraps inner so that every payload is encrypted with
// ChaCha20-Poly1305. Endpoints a and b share the key
// BLAKE3-DeriveKey(secret || min(a,b) || max(a,b)); the frame header is
// bound as associated data so frames cannot be replayed under a different
// sequence number, tag or route.
func Seal(inner Network, secret []byte) Network {
	return &sealed{inner: inner, secret: append([]byte(nil), secret...)}
}

type sealed struct {
	inner  Network
	secret []byte
}

func (s *sealed) Dial(ctx context.Context, id int) (Conn, error) {
	c, err := s.inner.Dial(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sealedConn{Conn: c, secret: s.secret, aeads: make(map[int]cipher.AEAD)}, nil
}

func (s *sealed) Close() error {
	for i := range s.secret {
		s.secret[i] = 0
	}
	return s.inner.Close()
}

type sealedConn struct {
	Conn
	secret []byte

	mu    sync.Mutex
	aeads map[int]cipher.AEAD
}

// LinkKey derives the key shared by endpoints a and b.
func LinkKey(secret []byte, a, b int) []byte {
	if a > b {
		a, b = b, a
	}
	material := make([]byte, len(secret)+4)
	copy(material, secret)
	binary.BigEndian.PutUint16(material[len(secret):], uint16(a))
	binary.BigEndian.PutUint16(material[len(secret)+2:], uint16(b))

	key := make([]byte, chacha20poly1305.KeySize)
	blake3.DeriveKey(linkKeyContext, material, key)
	return key
}

func (c *sealedConn) aead(peer int) (cipher.AEAD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.aeads[peer]; ok {
		return a, nil
	}
	a, err := chacha20poly1305.New(LinkKey(c.secret, c.ID(), peer))
	if err != nil {
		return nil, errors.Wrap(err, "transport: building link cipher")
	}
	c.aeads[peer] = a
	return a, nil
}

func associatedData(m *Message) []byte {
	return (&Message{From: m.From, To: m.To, Seq: m.Seq, Tag: m.Tag}).Header()
}

func (c *sealedConn) Send(ctx context.Context, m *Message) error {
	a, err := c.aead(m.To)
	if err != nil {
		return err
	}
	nonce := make([]byte, a.NonceSize(), a.NonceSize()+len(m.Payload)+a.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.Wrap(err, "transport: drawing nonce")
	}
	out := *m
	out.Payload = a.Seal(nonce, nonce, m.Payload, associatedData(m))
	return c.Conn.Send(ctx, &out)
}

func (c *sealedConn) Recv(ctx context.Context) (*Message, error) {
	m, err := c.Conn.Recv(ctx)
	if err != nil {
		return nil, err
	}
	a, err := c.aead(m.From)
	if err != nil {
		return nil, err
	}
	if len(m.Payload) < a.NonceSize() {
		return nil, errors.Wrapf(ErrTampered, "%s: shorter than nonce", m)
	}
	nonce, ct := m.Payload[:a.NonceSize()], m.Payload[a.NonceSize():]
	pt, err := a.Open(nil, nonce, ct, associatedData(m))
	if err != nil {
		return nil, errors.Wrapf(ErrTampered, "%s", m)
	}
	m.Payload = pt
	return m, nil
}

package transport

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Tag identifies the protocol step a message belongs to.
type Tag uint8

const (
	// TagSetup carries a party's setup seed from the dealer.
	TagSetup Tag = iota + 1
	// TagInput carries an input share to its party.
	TagInput
	// TagDealer carries preprocessing corrections from the dealer.
	TagDealer
	// TagOpen carries masked shares broadcast while opening a value.
	TagOpen
	// TagReveal carries output shares broadcast by a reveal.
	TagReveal
)

func (t Tag) String() string {
	switch t {
	case TagSetup:
		return "setup"
	case TagInput:
		return "input"
	case TagDealer:
		return "dealer"
	case TagOpen:
		return "open"
	case TagReveal:
		return "reveal"
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

const (
	frameVersion = 1
	headerLen    = 1 + 1 + 2 + 2 + 8 + 4

	// MaxPayload bounds the payload size accepted by UnmarshalBinary.
	MaxPayload = 1 << 20
)

// Message is a point-to-point protocol message.
type Message struct {
	From    int
	To      int
	Seq     uint64
	Tag     Tag
	Payload []byte
}

// Header returns the encoded frame header of m. It doubles as the
// associated data when payloads are sealed.
func (m *Message) Header() []byte {
	h := make([]byte, headerLen)
	h[0] = frameVersion
	h[1] = byte(m.Tag)
	binary.BigEndian.PutUint16(h[2:], uint16(m.From))
	binary.BigEndian.PutUint16(h[4:], uint16(m.To))
	binary.BigEndian.PutUint64(h[6:], m.Seq)
	binary.BigEndian.PutUint32(h[14:], uint32(len(m.Payload)))
	return h
}

// MarshalBinary encodes m as a frame.
func (m *Message) MarshalBinary() ([]byte, error) {
	if m.From < 0 || m.From > 0xFFFF || m.To < 0 || m.To > 0xFFFF {
		return nil, errors.Errorf("transport: endpoint out of range (%d -> %d)", m.From, m.To)
	}
	if len(m.Payload) > MaxPayload {
		return nil, errors.Errorf("transport: payload of %d bytes exceeds %d", len(m.Payload), MaxPayload)
	}
	return append(m.Header(), m.Payload...), nil
}

// UnmarshalBinary decodes a frame produced by MarshalBinary.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < headerLen {
		return errors.Errorf("transport: short frame (%d bytes)", len(data))
	}
	if data[0] != frameVersion {
		return errors.Errorf("transport: unsupported frame version %d", data[0])
	}
	n := binary.BigEndian.Uint32(data[14:])
	if n > MaxPayload || int(n) != len(data)-headerLen {
		return errors.Errorf("transport: frame declares %d payload bytes, carries %d", n, len(data)-headerLen)
	}
	m.Tag = Tag(data[1])
	m.From = int(binary.BigEndian.Uint16(data[2:]))
	m.To = int(binary.BigEndian.Uint16(data[4:]))
	m.Seq = binary.BigEndian.Uint64(data[6:])
	m.Payload = append([]byte(nil), data[headerLen:]...)
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s#%d %d->%d (%dB)", m.Tag, m.Seq, m.From, m.To, len(m.Payload))
}

// Conn is one endpoint's view of a network.
type Conn interface {
	// ID returns the endpoint number.
	ID() int
	// Send delivers m to m.To. m.From must equal ID.
	Send(ctx context.Context, m *Message) error
	// Recv blocks until a message addressed to this endpoint arrives.
	Recv(ctx context.Context) (*Message, error)
	// Close releases the endpoint.
	Close() error
}

// Network connects a fixed set of endpoints.
type Network interface {
	// Dial opens the endpoint with the given number.
	Dial(ctx context.Context, id int) (Conn, error)
	// Close releases every resource held by the network.
	Close() error
}

var (
	// ErrClosed is returned by operations on a closed Conn or Network.
	ErrClosed = errors.New("transport: closed")
	// ErrUnknownEndpoint is returned when addressing an endpoint that does
	// not exist.
	ErrUnknownEndpoint = errors.New("transport: unknown endpoint")
)

func checkSender(c Conn, m *Message) error {
	if m.From != c.ID() {
		return errors.Errorf("transport: endpoint %d cannot send as %d", c.ID(), m.From)
	}
	return nil
}

package mpc

import (
	"context"

	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
)

func encodeElems(f field.Field, elems ...field.Element) []byte {
	out := make([]byte, 0, f.ByteLen()*len(elems))
	for _, e := range elems {
		out = append(out, e.Bytes()...)
	}
	return out
}

func decodeElems(f field.Field, payload []byte, count int) ([]field.Element, error) {
	size := f.ByteLen()
	if len(payload) != size*count {
		return nil, errors.Errorf("mpc: payload of %d bytes, want %d elements of %d bytes", len(payload), count, size)
	}
	out := make([]field.Element, count)
	for i := range out {
		e, err := f.NewElement().SetBytes(payload[i*size : (i+1)*size])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

type msgKey struct {
	seq  uint64
	tag  transport.Tag
	from int
}

// mailbox matches incoming messages to protocol steps. Messages that
// arrive ahead of the step waiting for them are stashed.
type mailbox struct {
	conn    transport.Conn
	metrics *Metrics
	stash   map[msgKey]*transport.Message
}

func newMailbox(conn transport.Conn, m *Metrics) *mailbox {
	return &mailbox{conn: conn, metrics: m, stash: make(map[msgKey]*transport.Message)}
}

func (mb *mailbox) send(ctx context.Context, to int, seq uint64, tag transport.Tag, payload []byte) error {
	err := mb.conn.Send(ctx, &transport.Message{
		From:    mb.conn.ID(),
		To:      to,
		Seq:     seq,
		Tag:     tag,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	mb.metrics.sent()
	return nil
}

func (mb *mailbox) await(ctx context.Context, seq uint64, tag transport.Tag, from int) (*transport.Message, error) {
	want := msgKey{seq: seq, tag: tag, from: from}
	if m, ok := mb.stash[want]; ok {
		delete(mb.stash, want)
		return m, nil
	}
	for {
		m, err := mb.conn.Recv(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "waiting for %s#%d from %d", tag, seq, from)
		}
		got := msgKey{seq: m.Seq, tag: m.Tag, from: m.From}
		if got == want {
			return m, nil
		}
		if got.seq < want.seq {
			return nil, errors.Errorf("stale %s from %d: step %d already finished", m.Tag, m.From, m.Seq)
		}
		if _, dup := mb.stash[got]; dup {
			return nil, errors.Errorf("duplicate %s#%d from %d", m.Tag, m.Seq, m.From)
		}
		mb.stash[got] = m
	}
}

// gather waits for one message per sender and decodes count elements from
// each. The result is indexed like from.
func (mb *mailbox) gather(ctx context.Context, f field.Field, seq uint64, tag transport.Tag, from []int, count int) ([][]field.Element, error) {
	out := make([][]field.Element, len(from))
	for i, id := range from {
		m, err := mb.await(ctx, seq, tag, id)
		if err != nil {
			return nil, err
		}
		elems, err := decodeElems(f, m.Payload, count)
		if err != nil {
			return nil, errors.Wrapf(err, "%s#%d from %d", tag, seq, id)
		}
		out[i] = elems
	}
	return out, nil
}

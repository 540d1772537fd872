package transport

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFrameCodec(t *testing.T) {
	m := &Message{From: 2, To: 3, Seq: 1 << 40, Tag: TagOpen, Payload: []byte("share")}
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	var got Message
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, *m, got)

	require.Error(t, got.UnmarshalBinary(data[:5]))
	require.Error(t, got.UnmarshalBinary(append(data, 0)))

	bad := append([]byte(nil), data...)
	bad[0] = 9
	require.Error(t, got.UnmarshalBinary(bad))

	_, err = (&Message{From: -1}).MarshalBinary()
	require.Error(t, err)
}

func dialAll(t *testing.T, n Network, size int) []Conn {
	conns := make([]Conn, size)
	for i := range conns {
		c, err := n.Dial(testCtx(t), i)
		require.NoError(t, err)
		conns[i] = c
	}
	return conns
}

func exchange(t *testing.T, conns []Conn) {
	ctx := testCtx(t)
	for _, from := range conns {
		for _, to := range conns {
			if from == to {
				continue
			}
			err := from.Send(ctx, &Message{From: from.ID(), To: to.ID(), Seq: 7, Tag: TagReveal, Payload: []byte{byte(from.ID())}})
			require.NoError(t, err)
		}
	}
	for _, c := range conns {
		seen := make(map[int]bool)
		for range len(conns) - 1 {
			m, err := c.Recv(ctx)
			require.NoError(t, err)
			require.Equal(t, c.ID(), m.To)
			require.Equal(t, uint64(7), m.Seq)
			require.Equal(t, []byte{byte(m.From)}, m.Payload)
			seen[m.From] = true
		}
		require.Len(t, seen, len(conns)-1)
	}
}

func TestLocal(t *testing.T) {
	l := NewLocal(3)
	conns := dialAll(t, l, 3)
	exchange(t, conns)

	t.Run("DialTwice", func(t *testing.T) {
		_, err := l.Dial(testCtx(t), 0)
		require.Error(t, err)
	})

	t.Run("UnknownEndpoint", func(t *testing.T) {
		err := conns[0].Send(testCtx(t), &Message{From: 0, To: 9})
		require.ErrorIs(t, err, ErrUnknownEndpoint)
	})

	t.Run("Impersonation", func(t *testing.T) {
		err := conns[0].Send(testCtx(t), &Message{From: 1, To: 2})
		require.Error(t, err)
	})

	t.Run("RecvHonoursContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := conns[1].Recv(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Close", func(t *testing.T) {
		require.NoError(t, l.Close())
		_, err := conns[2].Recv(testCtx(t))
		require.ErrorIs(t, err, ErrClosed)
		_, err = l.Dial(testCtx(t), 1)
		require.ErrorIs(t, err, ErrClosed)
	})
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRelay(t *testing.T) {
	relay := NewRelay(3)
	srv := httptest.NewServer(relay)
	defer srv.Close()
	defer relay.Close()

	n := NewWebSocket(wsURL(srv))
	defer n.Close()

	conns := dialAll(t, n, 3)
	exchange(t, conns)
}

func TestWebSocketRelayQueuesForLateEndpoint(t *testing.T) {
	relay := NewRelay(2)
	srv := httptest.NewServer(relay)
	defer srv.Close()
	defer relay.Close()

	n := NewWebSocket(wsURL(srv))
	defer n.Close()

	first, err := n.Dial(testCtx(t), 0)
	require.NoError(t, err)
	require.NoError(t, first.Send(testCtx(t), &Message{From: 0, To: 1, Seq: 1, Tag: TagInput, Payload: []byte("early")}))

	// Give the relay time to queue the frame before endpoint 1 connects.
	time.Sleep(50 * time.Millisecond)

	late, err := n.Dial(testCtx(t), 1)
	require.NoError(t, err)
	m, err := late.Recv(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, []byte("early"), m.Payload)
}

func TestWebSocketRelayFailsEndpointOnOverflow(t *testing.T) {
	relay := NewRelay(2)
	relay.backlog = 1
	srv := httptest.NewServer(relay)
	defer srv.Close()
	defer relay.Close()

	n := NewWebSocket(wsURL(srv))
	defer n.Close()

	first, err := n.Dial(testCtx(t), 0)
	require.NoError(t, err)
	for seq := uint64(1); seq <= 2; seq++ {
		require.NoError(t, first.Send(testCtx(t), &Message{From: 0, To: 1, Seq: seq, Tag: TagOpen, Payload: []byte("x")}))
	}
	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return relay.failed[1]
	}, 5*time.Second, 10*time.Millisecond)

	// The late endpoint lost a frame, so it must fail rather than wait.
	late, err := n.Dial(testCtx(t), 1)
	require.NoError(t, err)
	_, err = late.Recv(testCtx(t))
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocketRejectsBadID(t *testing.T) {
	relay := NewRelay(2)
	srv := httptest.NewServer(relay)
	defer srv.Close()

	_, err := NewWebSocket(wsURL(srv)).Dial(testCtx(t), 5)
	require.Error(t, err)
}

func TestSeal(t *testing.T) {
	secret := bytes.Repeat([]byte{7}, 32)

	t.Run("Roundtrip", func(t *testing.T) {
		conns := dialAll(t, Seal(NewLocal(3), secret), 3)
		exchange(t, conns)
	})

	t.Run("CiphertextOnWire", func(t *testing.T) {
		inner := NewLocal(2)
		sealedNet := Seal(inner, secret)
		sender, err := sealedNet.Dial(testCtx(t), 0)
		require.NoError(t, err)
		raw, err := inner.Dial(testCtx(t), 1)
		require.NoError(t, err)

		plain := []byte("a share nobody else should read")
		require.NoError(t, sender.Send(testCtx(t), &Message{From: 0, To: 1, Seq: 3, Tag: TagInput, Payload: plain}))
		m, err := raw.Recv(testCtx(t))
		require.NoError(t, err)
		require.False(t, bytes.Contains(m.Payload, plain))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		inner := NewLocal(2)
		sender, err := Seal(inner, secret).Dial(testCtx(t), 0)
		require.NoError(t, err)
		receiver, err := Seal(inner, bytes.Repeat([]byte{8}, 32)).Dial(testCtx(t), 1)
		require.NoError(t, err)

		require.NoError(t, sender.Send(testCtx(t), &Message{From: 0, To: 1, Seq: 1, Tag: TagOpen, Payload: []byte("x")}))
		_, err = receiver.Recv(testCtx(t))
		require.ErrorIs(t, err, ErrTampered)
	})

	t.Run("LinkKeySymmetric", func(t *testing.T) {
		require.Equal(t, LinkKey(secret, 1, 4), LinkKey(secret, 4, 1))
		require.NotEqual(t, LinkKey(secret, 1, 4), LinkKey(secret, 1, 3))
	})
}

package mpc

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

const seedLen = 32

// stream returns a deterministic byte stream keyed by key and separated by
// label and seq. Party i and the dealer derive identical preprocessing
// randomness for step seq from party i's seed.
func stream(key []byte, label string, seq uint64) (io.Reader, error) {
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, key)
	if err != nil {
		return nil, errors.Wrap(err, "mpc: keying stream")
	}
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], seq)
	_, _ = xof.Write([]byte(label))
	_, _ = xof.Write(ctr[:])
	return xof, nil
}

// keyedPRNG is a reader safe for concurrent use. It is only used when the
// runtime is seeded.
type keyedPRNG struct {
	mu  sync.Mutex
	xof blake2b.XOF
}

func newKeyedPRNG(seed []byte, label string) (*keyedPRNG, error) {
	key := make([]byte, seedLen)
	blake3.DeriveKey("secema 2024 runtime "+label, seed, key)
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, key)
	if err != nil {
		return nil, errors.Wrap(err, "mpc: keying prng")
	}
	return &keyedPRNG{xof: xof}, nil
}

func (p *keyedPRNG) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.xof.Read(b)
}

// entropy returns the reader for label: crypto/rand, or a keyed stream when
// the runtime is seeded.
func entropy(seed []byte, label string) (io.Reader, error) {
	if seed == nil {
		return rand.Reader, nil
	}
	return newKeyedPRNG(seed, label)
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.Wrap(err, "mpc: reading randomness")
	}
	return b, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

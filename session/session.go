package session

import (
	"context"
	"sync"

	"github.com/f3rmion/secema/bn254"
	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/fixed"
	"github.com/f3rmion/secema/mpc"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var (
	// ErrSessionNotStarted is returned when computing before Initialize.
	ErrSessionNotStarted = mpc.ErrNotStarted
	// ErrSessionClosed is returned when computing or initializing after
	// Cleanup.
	ErrSessionClosed = mpc.ErrClosed
	// ErrAlreadyInitialized is returned by a second call to Initialize.
	ErrAlreadyInitialized = errors.New("session: already initialized")
)

// Config configures a Session.
type Config struct {
	// Field is the prime field shares live in.
	Field field.Field
	// Parties is the number of computing parties.
	Parties int
	// FracBits and IntBits configure the fixed-point encoding.
	FracBits uint
	IntBits  uint
	// Network connects the parties. Nil selects an in-process network.
	// It must offer Parties+2 endpoints and is closed by Cleanup.
	Network transport.Network
	// Seed makes the session deterministic. For tests only.
	Seed []byte
	// SealLinks encrypts every protocol message.
	SealLinks bool
	// Metrics may be nil.
	Metrics *mpc.Metrics
}

// DefaultConfig returns three parties over BN254 with the default
// fixed-point precision.
func DefaultConfig() Config {
	return Config{
		Field:    &bn254.Fr{},
		Parties:  mpc.DefaultParties,
		FracBits: fixed.DefaultFracBits,
		IntBits:  fixed.DefaultIntBits,
	}
}

func (c Config) runtime() mpc.Config {
	return mpc.Config{
		Field:     c.Field,
		Parties:   c.Parties,
		FracBits:  c.FracBits,
		IntBits:   c.IntBits,
		Network:   c.Network,
		Seed:      c.Seed,
		SealLinks: c.SealLinks,
		Metrics:   c.Metrics,
	}
}

// Session owns one secure-computation runtime. Its methods are safe for
// concurrent use.
type Session struct {
	gw *Gateway

	mu    sync.Mutex
	rt    *mpc.Runtime
	state *machine
}

// New creates an uninitialized session.
func New(cfg Config) (*Session, error) {
	rt, err := mpc.NewRuntime(cfg.runtime())
	if err != nil {
		return nil, errors.Wrap(err, "session: creating runtime")
	}
	return &Session{
		gw:    &Gateway{rt: rt},
		rt:    rt,
		state: newMachine(rt.ID()),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.rt.ID() }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state.get() }

// Runtime returns the underlying runtime.
func (s *Session) Runtime() *mpc.Runtime { return s.rt }

// Initialize starts the runtime and blocks until every party is ready.
// If starting fails the session is shut down.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.get() {
	case Running:
		return ErrAlreadyInitialized
	case ShutDown:
		return ErrSessionClosed
	}

	if err := s.rt.Start(ctx); err != nil {
		if uerr := s.state.update(ShutDown); uerr != nil {
			jww.ERROR.Print(uerr)
		}
		return err
	}
	if err := s.state.update(Running); err != nil {
		return err
	}
	jww.INFO.Printf("session %s: initialized with %d parties", s.ID(), s.rt.Parties())
	return nil
}

// Cleanup shuts the runtime down and makes the session terminal. It waits
// for a running task unless ctx expires first. Calling it again is a no-op.
func (s *Session) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.get() == ShutDown {
		return nil
	}
	err := s.rt.Shutdown(ctx)
	if uerr := s.state.update(ShutDown); uerr != nil {
		return uerr
	}
	jww.INFO.Printf("session %s: shut down", s.ID())
	return err
}

// Run submits fn to the session's scheduler as one unit of work and waits
// for it.
func (s *Session) Run(ctx context.Context, fn func(*mpc.Task) error) error {
	return s.rt.Run(ctx, fn)
}

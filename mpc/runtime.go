package mpc

import (
	"context"
	"encoding/hex"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/fixed"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/zeebo/blake3"
)

type runtimeState uint8

const (
	stateNew runtimeState = iota
	stateStarting
	stateRunning
	stateClosed
)

// Runtime is a secure-computation runtime. Create it with NewRuntime, then
// Start it before running tasks, and Shutdown when done. A Runtime cannot be
// restarted.
type Runtime struct {
	cfg     Config
	field   field.Field
	codec   *fixed.Codec
	metrics *Metrics
	id      string

	inputRand io.Reader
	setupRand io.Reader

	mu      sync.Mutex
	state   runtimeState
	poison  error
	network transport.Network
	conns   []transport.Conn
	parties []*party
	dealer  *dealer
	client  *mailbox

	submitMu  sync.RWMutex
	tasks     chan *task
	schedDone chan struct{}
	closing   chan struct{}
	wg        sync.WaitGroup

	nextReg atomic.Uint64
	seq     uint64
}

type task struct {
	ctx  context.Context
	fn   func(*Task) error
	done chan error
}

type taskKey struct{}

// NewRuntime validates cfg and returns a runtime that has not been started.
func NewRuntime(cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	codec, err := fixed.New(cfg.Field, cfg.FracBits, cfg.IntBits)
	if err != nil {
		return nil, errors.Wrap(err, "mpc: building codec")
	}
	inputRand, err := entropy(cfg.Seed, "input")
	if err != nil {
		return nil, err
	}
	setupRand, err := entropy(cfg.Seed, "setup")
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(setupRand, seedLen)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(nonce)

	return &Runtime{
		cfg:       cfg,
		field:     cfg.Field,
		codec:     codec,
		metrics:   cfg.Metrics,
		id:        hex.EncodeToString(digest[:8]),
		inputRand: inputRand,
		setupRand: setupRand,
		closing:   make(chan struct{}),
	}, nil
}

// ID returns a random identifier for the runtime, for logs and journals.
func (rt *Runtime) ID() string { return rt.id }

// Parties returns the number of computing parties.
func (rt *Runtime) Parties() int { return rt.cfg.Parties }

// Field returns the field shares live in.
func (rt *Runtime) Field() field.Field { return rt.field }

// Codec returns the fixed-point codec.
func (rt *Runtime) Codec() *fixed.Codec { return rt.codec }

// Start connects every endpoint, hands each party its setup seed and
// returns once all parties are ready. On failure the runtime is closed.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	switch rt.state {
	case stateStarting, stateRunning:
		rt.mu.Unlock()
		return ErrAlreadyStarted
	case stateClosed:
		rt.mu.Unlock()
		return ErrClosed
	}
	rt.state = stateStarting
	rt.mu.Unlock()

	if err := rt.start(ctx); err != nil {
		rt.mu.Lock()
		rt.state = stateClosed
		rt.mu.Unlock()
		rt.teardown()
		return errors.Wrapf(err, "mpc: starting runtime %s", rt.id)
	}

	rt.mu.Lock()
	closed := rt.state == stateClosed
	if !closed {
		rt.state = stateRunning
	}
	rt.mu.Unlock()
	if closed {
		close(rt.tasks)
		<-rt.schedDone
		rt.teardown()
		return ErrClosed
	}

	rt.metrics.runtimeUp()
	jww.INFO.Printf("mpc: runtime %s started with %d parties over %s",
		rt.id, rt.cfg.Parties, rt.field.Name())
	return nil
}

func (rt *Runtime) start(ctx context.Context) error {
	n := rt.cfg.Parties
	dealerID, clientID := n, n+1

	seeds := make([][]byte, n)
	for i := range seeds {
		s, err := randomBytes(rt.setupRand, seedLen)
		if err != nil {
			return err
		}
		seeds[i] = s
	}
	own, err := randomBytes(rt.setupRand, seedLen)
	if err != nil {
		return err
	}

	network := rt.cfg.Network
	if network == nil {
		network = transport.NewLocal(n + 2)
	}
	if rt.cfg.SealLinks {
		secret, err := randomBytes(rt.setupRand, seedLen)
		if err != nil {
			return err
		}
		network = transport.Seal(network, secret)
		zero(secret)
	}
	rt.network = network

	conns := make([]transport.Conn, n+2)
	for i := range conns {
		c, err := network.Dial(ctx, i)
		if err != nil {
			rt.conns = conns[:i]
			return errors.Wrapf(err, "dialing endpoint %d", i)
		}
		conns[i] = c
	}
	rt.conns = conns

	rt.parties = make([]*party, n)
	for i := range rt.parties {
		rt.parties[i] = &party{
			id:     i,
			n:      n,
			dealer: dealerID,
			client: clientID,
			field:  rt.field,
			codec:  rt.codec,
			box:    newMailbox(conns[i], rt.metrics),
			regs:   make(map[uint64]field.Element),
			inbox:  make(chan *instr, 1),
		}
	}
	rt.dealer = &dealer{
		id:    dealerID,
		field: rt.field,
		codec: rt.codec,
		box:   newMailbox(conns[dealerID], rt.metrics),
		seeds: seeds,
		own:   own,
	}
	rt.client = newMailbox(conns[clientID], rt.metrics)

	for _, p := range rt.parties {
		rt.wg.Add(1)
		go func(p *party) {
			defer rt.wg.Done()
			p.loop()
		}(p)
	}

	if err := rt.exec(ctx, instr{op: opSetup}, rt.dealer.distribute); err != nil {
		return err
	}

	rt.tasks = make(chan *task)
	rt.schedDone = make(chan struct{})
	go rt.schedule()
	return nil
}

// Shutdown stops accepting tasks, waits for the running task, stops the
// parties and releases the network. It is safe to call more than once and
// on a runtime that was never started.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	prev := rt.state
	rt.state = stateClosed
	rt.mu.Unlock()

	switch prev {
	case stateClosed:
		return nil
	case stateNew:
		jww.DEBUG.Printf("mpc: runtime %s closed before start", rt.id)
		return nil
	case stateStarting:
		// Start notices the state change and tears down itself.
		return nil
	}

	// Submitters blocked on a busy scheduler hold submitMu; release them
	// before taking it.
	close(rt.closing)
	rt.submitMu.Lock()
	close(rt.tasks)
	rt.submitMu.Unlock()

	var err error
	select {
	case <-rt.schedDone:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "mpc: waiting for running task")
		// Closing the network unblocks parties stuck in the running task.
		_ = rt.network.Close()
		<-rt.schedDone
	}

	rt.teardown()
	rt.metrics.runtimeDown()
	jww.INFO.Printf("mpc: runtime %s shut down", rt.id)
	return err
}

// teardown stops the parties and releases connections and seeds.
func (rt *Runtime) teardown() {
	for _, p := range rt.parties {
		close(p.inbox)
	}
	if rt.network != nil {
		_ = rt.network.Close()
	}
	rt.wg.Wait()
	for _, c := range rt.conns {
		if c != nil {
			_ = c.Close()
		}
	}
	if rt.dealer != nil {
		rt.dealer.wipe()
	}
	rt.parties = nil
}

func (rt *Runtime) schedule() {
	defer close(rt.schedDone)
	for t := range rt.tasks {
		started := time.Now()
		err := rt.runTask(t)
		rt.metrics.observeTask(err, started)
		t.done <- err
	}
}

func (rt *Runtime) runTask(t *task) (err error) {
	if err := rt.poisoned("run"); err != nil {
		return err
	}
	tk := &Task{rt: rt, ctx: context.WithValue(t.ctx, taskKey{}, rt)}
	defer func() {
		tk.mu.Lock()
		tk.done = true
		tk.mu.Unlock()
		if r := recover(); r != nil {
			err = rt.fail(&ComputationError{Op: "task", Party: -1, Err: errors.Errorf("panic: %v", r)})
		}
	}()
	return t.fn(tk)
}

// Run submits fn to the scheduler as one unit and waits for it to finish.
// Tasks run one at a time in submission order. fn must not call Run.
//
// A context cancelled while fn is running fails the operation in flight,
// which poisons the runtime.
func (rt *Runtime) Run(ctx context.Context, fn func(*Task) error) error {
	if owner, ok := ctx.Value(taskKey{}).(*Runtime); ok && owner == rt {
		return ErrNestedRun
	}

	rt.submitMu.RLock()
	rt.mu.Lock()
	state := rt.state
	rt.mu.Unlock()
	switch state {
	case stateNew, stateStarting:
		rt.submitMu.RUnlock()
		return ErrNotStarted
	case stateClosed:
		rt.submitMu.RUnlock()
		return ErrClosed
	}
	if err := rt.poisoned("run"); err != nil {
		rt.submitMu.RUnlock()
		return err
	}

	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case rt.tasks <- t:
		rt.submitMu.RUnlock()
	case <-rt.closing:
		rt.submitMu.RUnlock()
		return ErrClosed
	case <-ctx.Done():
		rt.submitMu.RUnlock()
		return ctx.Err()
	}
	return <-t.done
}

// poisoned returns a ComputationError if an earlier task failed.
func (rt *Runtime) poisoned(op string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.poison == nil {
		return nil
	}
	return &ComputationError{Op: op, Party: -1, Err: errors.Wrapf(ErrPoisoned, "%v", rt.poison)}
}

// fail poisons the runtime with err and returns it.
func (rt *Runtime) fail(err *ComputationError) error {
	rt.mu.Lock()
	first := rt.poison == nil
	if first {
		rt.poison = err
	}
	rt.mu.Unlock()
	if first {
		rt.metrics.poisoned()
		jww.WARN.Printf("mpc: runtime %s poisoned: %v", rt.id, err)
	}
	return err
}

// exec runs one instruction on every party. before, when set, runs after
// the step number is assigned and before the parties start; the dealer
// and client use it to send what the step consumes.
func (rt *Runtime) exec(ctx context.Context, in instr, before func(context.Context, uint64) error) error {
	rt.seq++
	in.seq = rt.seq
	rt.metrics.op(in.op.String())
	if err := ctx.Err(); err != nil {
		return rt.fail(&ComputationError{Op: in.op.String(), Party: -1, Err: err})
	}

	// A failing party cancels the others so none waits forever on a
	// message that will not come.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	in.ctx = ctx

	if before != nil {
		if err := before(ctx, in.seq); err != nil {
			return rt.fail(&ComputationError{Op: in.op.String(), Party: -1, Err: err})
		}
	}

	replies := make(chan outcome, len(rt.parties))
	for _, p := range rt.parties {
		cp := in
		cp.reply = replies
		p.inbox <- &cp
	}

	var first *ComputationError
	for range rt.parties {
		out := <-replies
		if out.err != nil && first == nil {
			first = &ComputationError{Op: in.op.String(), Party: out.party, Err: out.err}
			cancel()
		}
	}
	if first != nil {
		return rt.fail(first)
	}
	return nil
}

func (rt *Runtime) allocReg() uint64 {
	return rt.nextReg.Add(1)
}

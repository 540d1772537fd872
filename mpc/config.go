package mpc

import (
	"github.com/f3rmion/secema/bn254"
	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/fixed"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
)

// DefaultParties is the party count used when Config.Parties is zero.
const DefaultParties = 3

// maxParties keeps endpoint numbers inside the transport frame header.
const maxParties = 1 << 12

// Config describes a runtime.
type Config struct {
	// Field is the prime field shares live in. Defaults to BN254 Fr.
	Field field.Field

	// Parties is the number of computing parties (at least 2).
	Parties int

	// FracBits and IntBits configure the fixed-point codec. Zero selects
	// the package fixed defaults.
	FracBits uint
	IntBits  uint

	// Network connects the Parties+2 endpoints (parties, dealer, client).
	// When nil, Start creates an in-process network. The runtime closes
	// the network on Shutdown.
	Network transport.Network

	// Seed makes every random choice deterministic. Leave nil outside of
	// tests: a seeded runtime's shares are predictable from the seed.
	Seed []byte

	// SealLinks encrypts every payload with keys derived at setup.
	SealLinks bool

	// Metrics receives runtime metrics. May be nil.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.Field == nil {
		c.Field = &bn254.Fr{}
	}
	if c.Parties == 0 {
		c.Parties = DefaultParties
	}
	if c.FracBits == 0 {
		c.FracBits = fixed.DefaultFracBits
	}
	if c.IntBits == 0 {
		c.IntBits = fixed.DefaultIntBits
	}
	return c
}

func (c Config) validate() error {
	if c.Parties < 2 {
		return errors.Errorf("mpc: need at least 2 parties, got %d", c.Parties)
	}
	if c.Parties > maxParties {
		return errors.Errorf("mpc: at most %d parties supported, got %d", maxParties, c.Parties)
	}
	if c.Seed != nil && len(c.Seed) < 16 {
		return errors.Errorf("mpc: seed must be at least 16 bytes, got %d", len(c.Seed))
	}
	return nil
}

// Endpoints returns the number of transport endpoints a runtime with this
// configuration dials.
func (c Config) Endpoints() int {
	return c.withDefaults().Parties + 2
}

// Package conf turns a viper configuration into session parameters.
package conf

import (
	"strings"

	_ "github.com/f3rmion/secema/bjj" // registers the bjj field
	"github.com/f3rmion/secema/bn254"
	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/fixed"
	"github.com/f3rmion/secema/mpc"
	"github.com/f3rmion/secema/session"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SECEMA_PARTIES.
const EnvPrefix = "SECEMA"

// Transport kinds.
const (
	TransportLocal     = "local"
	TransportWebSocket = "websocket"
)

// Transport selects how parties talk to each other.
type Transport struct {
	Kind  string
	Relay string
}

// Params holds everything the CLI reads from configuration.
type Params struct {
	Parties   int
	Field     string
	FracBits  uint
	IntBits   uint
	SealLinks bool
	Verbose   bool

	Transport   Transport
	JournalPath string
	MetricsAddr string
	LogPath     string
}

// SetDefaults registers the default value of every key on vip.
func SetDefaults(vip *viper.Viper) {
	vip.SetDefault("parties", mpc.DefaultParties)
	vip.SetDefault("field", bn254.Name)
	vip.SetDefault("fracBits", fixed.DefaultFracBits)
	vip.SetDefault("intBits", fixed.DefaultIntBits)
	vip.SetDefault("sealLinks", false)
	vip.SetDefault("transport.kind", TransportLocal)
	vip.SetDefault("verbose", false)

	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
}

// NewParams reads and validates params from vip.
func NewParams(vip *viper.Viper) (*Params, error) {
	p := &Params{
		Parties:   vip.GetInt("parties"),
		Field:     vip.GetString("field"),
		FracBits:  vip.GetUint("fracBits"),
		IntBits:   vip.GetUint("intBits"),
		SealLinks: vip.GetBool("sealLinks"),
		Verbose:   vip.GetBool("verbose"),
		Transport: Transport{
			Kind:  vip.GetString("transport.kind"),
			Relay: vip.GetString("transport.relay"),
		},
		JournalPath: vip.GetString("journal.path"),
		MetricsAddr: vip.GetString("metrics.addr"),
		LogPath:     vip.GetString("log.path"),
	}

	if p.Parties < 2 {
		return nil, errors.Errorf("parties must be at least 2, got %d", p.Parties)
	}
	if _, err := field.ByName(p.Field); err != nil {
		return nil, errors.Wrap(err, "field")
	}
	switch p.Transport.Kind {
	case "", TransportLocal:
		p.Transport.Kind = TransportLocal
	case TransportWebSocket:
		if p.Transport.Relay == "" {
			return nil, errors.New("transport.relay must be set for the websocket transport")
		}
	default:
		return nil, errors.Errorf("unknown transport.kind %q", p.Transport.Kind)
	}
	return p, nil
}

// Session builds the session configuration described by p. Each call
// returns a fresh network.
func (p *Params) Session() (session.Config, error) {
	f, err := field.ByName(p.Field)
	if err != nil {
		return session.Config{}, err
	}
	cfg := session.Config{
		Field:     f,
		Parties:   p.Parties,
		FracBits:  p.FracBits,
		IntBits:   p.IntBits,
		SealLinks: p.SealLinks,
	}
	if p.Transport.Kind == TransportWebSocket {
		cfg.Network = transport.NewWebSocket(p.Transport.Relay)
	}
	return cfg, nil
}

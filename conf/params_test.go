package conf

import (
	"bytes"
	"os"
	"testing"

	"github.com/f3rmion/secema/bjj"
	"github.com/f3rmion/secema/transport"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const sample = `
parties: 5
field: bjj
fracBits: 24
intBits: 40
sealLinks: true
verbose: true
transport:
  kind: websocket
  relay: ws://127.0.0.1:7000/
journal:
  path: /tmp/secema.db
metrics:
  addr: 127.0.0.1:9100
log:
  path: /tmp/secema.log
`

func load(t *testing.T, yaml string) *viper.Viper {
	vip := viper.New()
	SetDefaults(vip)
	vip.SetConfigType("yaml")
	require.NoError(t, vip.ReadConfig(bytes.NewBufferString(yaml)))
	return vip
}

func TestNewParams(t *testing.T) {
	p, err := NewParams(load(t, sample))
	require.NoError(t, err)
	require.Equal(t, &Params{
		Parties:     5,
		Field:       bjj.Name,
		FracBits:    24,
		IntBits:     40,
		SealLinks:   true,
		Verbose:     true,
		Transport:   Transport{Kind: TransportWebSocket, Relay: "ws://127.0.0.1:7000/"},
		JournalPath: "/tmp/secema.db",
		MetricsAddr: "127.0.0.1:9100",
		LogPath:     "/tmp/secema.log",
	}, p)

	cfg, err := p.Session()
	require.NoError(t, err)
	require.Equal(t, bjj.Name, cfg.Field.Name())
	require.Equal(t, 5, cfg.Parties)
	require.True(t, cfg.SealLinks)
	require.IsType(t, &transport.WebSocket{}, cfg.Network)
}

func TestDefaults(t *testing.T) {
	p, err := NewParams(load(t, ""))
	require.NoError(t, err)
	require.Equal(t, 3, p.Parties)
	require.Equal(t, "bn254", p.Field)
	require.Equal(t, uint(32), p.FracBits)
	require.Equal(t, TransportLocal, p.Transport.Kind)

	cfg, err := p.Session()
	require.NoError(t, err)
	require.Nil(t, cfg.Network)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SECEMA_PARTIES", "7")
	t.Setenv("SECEMA_TRANSPORT_KIND", "local")
	p, err := NewParams(load(t, sample))
	require.NoError(t, err)
	require.Equal(t, 7, p.Parties)
	require.Equal(t, TransportLocal, p.Transport.Kind)
	_, set := os.LookupEnv("SECEMA_PARTIES")
	require.True(t, set)
}

func TestInvalid(t *testing.T) {
	for name, yaml := range map[string]string{
		"parties":   "parties: 1",
		"field":     "field: p256",
		"transport": "transport:\n  kind: carrier-pigeon",
		"relay":     "transport:\n  kind: websocket",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewParams(load(t, yaml))
			require.Error(t, err)
		})
	}
}

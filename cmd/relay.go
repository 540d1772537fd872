package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/f3rmion/secema/conf"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var relayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve the websocket relay that connects parties",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := conf.NewParams(viper.GetViper())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return serveRelay(ctx, relayAddr, params.Parties+2)
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayAddr, "addr", "127.0.0.1:7000",
		"Address to listen on")
	rootCmd.AddCommand(relayCmd)
}

// serveRelay serves a relay for size endpoints until ctx is done.
func serveRelay(ctx context.Context, addr string, size int) error {
	relay := transport.NewRelay(size)
	srv := &http.Server{Addr: addr, Handler: relay, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	jww.INFO.Printf("relay for %d endpoints listening on %s", size, addr)

	select {
	case err := <-errc:
		return errors.Wrap(err, "relay")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = relay.Close()
	return srv.Shutdown(shutdownCtx)
}

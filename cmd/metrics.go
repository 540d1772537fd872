package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/f3rmion/secema/mpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jww "github.com/spf13/jwalterweatherman"
)

// metricsServer exposes runtime metrics on /metrics.
type metricsServer struct {
	metrics *mpc.Metrics
	srv     *http.Server
}

// startMetrics serves a fresh registry on addr. An empty addr disables
// metrics and returns nil.
func startMetrics(addr string) *metricsServer {
	if addr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	m := mpc.NewMetrics(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &metricsServer{
		metrics: m,
		srv:     &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
	go func() {
		jww.INFO.Printf("metrics listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			jww.ERROR.Printf("metrics server: %v", err)
		}
	}()
	return s
}

func (s *metricsServer) runtimeMetrics() *mpc.Metrics {
	if s == nil {
		return nil
	}
	return s.metrics
}

func (s *metricsServer) stop(ctx context.Context) {
	if s == nil {
		return
	}
	_ = s.srv.Shutdown(ctx)
}

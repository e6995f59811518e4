package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type metricsServer struct {
	server *http.Server
	lis    net.Listener
	wg     sync.WaitGroup
	l      logrus.FieldLogger
}

// startMetricsServer serves the prometheus registry at /metrics over
// HTTP/1 and cleartext HTTP/2.
func startMetricsServer(addr string, l logrus.FieldLogger) (*metricsServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on metrics address '%s': %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &metricsServer{
		server: &http.Server{
			Handler: h2c.NewHandler(mux, &http2.Server{}),
		},
		lis: lis,
		l:   l.WithField("metrics_addr", lis.Addr().String()),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.
				WithError(err).
				Error("error Serve()ing metrics server")
		}
	}()
	s.l.Info("serving metrics")
	return s, nil
}

func (s *metricsServer) Addr() string {
	return s.lis.Addr().String()
}

// Close shuts the server down, waiting up to 5 seconds for in-flight
// scrapes.
func (s *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("error shutting down metrics server: %w", err)
	}
	return nil
}

// Package app assembles the service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openrec/lemd/api"
	"github.com/openrec/lemd/config"
	"github.com/openrec/lemd/core/align"
	coremetrics "github.com/openrec/lemd/core/metrics"
	"github.com/openrec/lemd/core/orders"
	"github.com/openrec/lemd/core/registry"
	"github.com/openrec/lemd/core/solver"
	"github.com/openrec/lemd/infra/dataspace"
	"github.com/openrec/lemd/infra/logger"
	"github.com/openrec/lemd/infra/metrics"
	"github.com/openrec/lemd/infra/pvgis"
	"github.com/openrec/lemd/infra/store"
)

// shutdownGrace bounds how long in-flight HTTP requests may take to drain.
const shutdownGrace = 5 * time.Second

// Service owns the wired components and their lifecycle.
type Service struct {
	manager *orders.Manager
	store   *store.SQLiteStore
	router  http.Handler
	log     logger.Logger

	httpAddr    string
	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("order store: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken,
			cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	aligner := &align.Engine{
		Providers: map[registry.Origin]align.Provider{
			registry.OriginINDATA: dataspace.NewINDATAClient(cfg.Dataspace.INDATA, logger.New("indata")),
			registry.OriginSEL:    dataspace.NewSELClient(cfg.Dataspace.SEL, logger.New("sel")),
		},
		Estimator: pvgis.NewClient(cfg.PVGIS, logger.New("pvgis")),
		Log:       logger.New("align"),
		Sink:      sink,
	}

	manager := &orders.Manager{
		Store:         st,
		Align:         aligner,
		Solver:        &solver.DefaultEngine{Log: logger.New("solver")},
		Pool:          orders.NewPool(cfg.Workers.PoolSize, logg),
		Log:           logg,
		Sink:          sink,
		JobTimeout:    time.Duration(cfg.Workers.JobTimeoutSeconds) * time.Second,
		MaxIterations: cfg.Solver.MaxIterations,
		Tolerance:     cfg.Solver.Tolerance,
	}

	return &Service{
		manager:     manager,
		store:       st,
		router:      api.NewRouter(api.Deps{Manager: manager, Log: logger.New("api")}),
		log:         logg,
		httpAddr:    net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    ":" + strconv.Itoa(cfg.Metrics.PrometheusPort),
	}, nil
}

// Run serves the API until the context is cancelled, then drains in-flight
// requests and waits for the running order pipelines to finish.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.httpAddr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.httpAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
		s.manager.Pool.Wait()
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error { return s.store.Close() }

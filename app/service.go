// Package app wires the configuration into a runnable simulator.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evsim/cpsim/config"
	"github.com/evsim/cpsim/core/confkeys"
	"github.com/evsim/cpsim/core/events"
	"github.com/evsim/cpsim/core/factory"
	coremetrics "github.com/evsim/cpsim/core/metrics"
	"github.com/evsim/cpsim/core/meter"
	"github.com/evsim/cpsim/core/profile"
	"github.com/evsim/cpsim/core/session"
	"github.com/evsim/cpsim/core/station"
	"github.com/evsim/cpsim/infra/logger"
	"github.com/evsim/cpsim/infra/metrics"
	_ "github.com/evsim/cpsim/infra/mqtt" // registers the mqtt sink
	"github.com/evsim/cpsim/infra/ws"
)

// Service owns the simulated charge point and its collaborators.
type Service struct {
	CP       *session.ChargePoint
	Bus      *events.Bus
	Station  *station.Station
	Profiles *profile.Store

	promAddr string
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	keys := confkeys.New(confkeys.Options{
		HeartbeatInterval: cfg.Station.HeartbeatIntervalSeconds,
		Connectors:        cfg.Station.Connectors,
		MaxPowerW:         cfg.Station.MaxPowerW,
	}, logger.New("confkeys"))
	keys.LoadCustom(cfg.ConfigurationKeys)

	st := station.New(cfg.Station.Connectors, logger.New("station"))
	profiles := profile.NewStore(profile.Config{
		Connectors:  cfg.Station.Connectors,
		MaxPowerW:   float64(cfg.Station.MaxPowerW),
		MaxCurrentA: float64(cfg.Station.MaxCurrentA),
	}, keys, st, logger.New("profiles"))
	gen := meter.NewGenerator(profiles, logger.New("meter"))

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	dialer := ws.NewDialer(ws.Options{
		URL:                cfg.Connection.URL,
		ChargePointID:      cfg.Identity.ChargePointID,
		Password:           cfg.Connection.Password,
		CABundle:           cfg.Connection.CABundle,
		InsecureSkipVerify: cfg.Connection.InsecureSkipVerify,
		HandshakeTimeout:   time.Duration(cfg.Connection.HandshakeTimeoutSeconds) * time.Second,
		PingInterval:       time.Duration(cfg.Connection.PingIntervalSeconds) * time.Second,
	}, logger.New("ws"))

	bus := events.NewBus()
	cp := session.New(session.Config{
		ChargePointID:        cfg.Identity.ChargePointID,
		Vendor:               cfg.Identity.Vendor,
		Model:                cfg.Identity.Model,
		SerialNumber:         cfg.Identity.SerialNumber,
		FirmwareVersion:      cfg.Identity.FirmwareVersion,
		IdTag:                cfg.Identity.IdTag,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ReconnectDelay:       time.Duration(cfg.Connection.ReconnectDelaySeconds) * time.Second,
		CallTimeout:          time.Duration(cfg.Connection.CallTimeoutSeconds) * time.Second,
	}, dialer, keys, st, profiles, gen, bus, sink, logger.New("session"))

	svc := &Service{
		CP:       cp,
		Bus:      bus,
		Station:  st,
		Profiles: profiles,
		log:      log,
	}
	if hasSink(cfg.Metrics.Sinks, "prometheus") {
		svc.promAddr = cfg.Metrics.PrometheusAddr
	}
	return svc, nil
}

func hasSink(sinks []factory.ModuleConfig, name string) bool {
	for _, s := range sinks {
		if s.Type == name {
			return true
		}
	}
	return false
}

// Run starts the simulator and blocks until the context is cancelled
// or the session gives up.
func (s *Service) Run(ctx context.Context) error {
	if s.promAddr != "" {
		metrics.StartPromServer(ctx, s.promAddr, s.log)
	}
	err := s.CP.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() {
	s.Bus.Close()
}

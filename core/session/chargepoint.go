// Package session drives the charge point's OCPP-J session: the
// reconnection supervisor, the call correlator and the inbound message
// dispatch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/evsim/cpsim/core/confkeys"
	"github.com/evsim/cpsim/core/events"
	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/meter"
	"github.com/evsim/cpsim/core/metrics"
	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/profile"
	"github.com/evsim/cpsim/core/station"
	"github.com/evsim/cpsim/core/transport"
)

// ErrGivenUp is returned by Run when the retry budget is exhausted.
var ErrGivenUp = errors.New("session: reconnect attempts exhausted")

// errReset asks the supervisor to drop the connection and redial.
var errReset = errors.New("session: reset requested")

// Config identifies the simulated charge point.
type Config struct {
	ChargePointID   string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	IdTag           string

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	CallTimeout          time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
}

// ChargePoint is the charge point simulator session engine.
type ChargePoint struct {
	cfg        Config
	dialer     transport.Dialer
	correlator *Correlator
	keys       *confkeys.Store
	station    *station.Station
	profiles   *profile.Store
	meter      *meter.Generator
	bus        *events.Bus
	sink       metrics.Sink
	log        logger.Logger

	mu    sync.Mutex
	conn  transport.Conn
	state events.ConnectionState
}

// New wires a charge point from its collaborators. The profile store's
// limit changes are forwarded to the event bus and the metrics sink.
func New(cfg Config, dialer transport.Dialer, keys *confkeys.Store, st *station.Station,
	profiles *profile.Store, gen *meter.Generator, bus *events.Bus, sink metrics.Sink,
	log logger.Logger) *ChargePoint {
	cfg.setDefaults()
	cp := &ChargePoint{
		cfg:        cfg,
		dialer:     dialer,
		correlator: NewCorrelator(cfg.CallTimeout, log),
		keys:       keys,
		station:    st,
		profiles:   profiles,
		meter:      gen,
		bus:        bus,
		sink:       sink,
		log:        log,
		state:      events.StateDisconnected,
	}
	profiles.OnLimitChange(cp.onLimitChange)
	return cp
}

// State returns the supervisor state.
func (cp *ChargePoint) State() events.ConnectionState {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.state
}

// Run connects and serves until the context is cancelled, credentials
// are rejected, or the retry budget is exhausted.
func (cp *ChargePoint) Run(ctx context.Context) error {
	attempts := 0
	for {
		cp.setState(events.StateConnecting, attempts, nil)
		conn, err := cp.dialer.Dial(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrUnauthorized) {
				cp.setState(events.StateGivenUp, attempts, err)
				return err
			}
			attempts++
			cp.log.Warnf("connection attempt %d/%d failed: %v", attempts, cp.cfg.MaxReconnectAttempts, err)
			if attempts >= cp.cfg.MaxReconnectAttempts {
				cp.setState(events.StateGivenUp, attempts, err)
				return fmt.Errorf("%w after %d attempts: %v", ErrGivenUp, attempts, err)
			}
			cp.setState(events.StateDisconnected, attempts, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cp.cfg.ReconnectDelay):
			}
			continue
		}

		attempts = 0
		cp.setState(events.StateConnected, 0, nil)
		err = cp.serve(ctx, conn)
		cp.correlator.FailAll(ErrSessionClosed)
		cp.setState(events.StateDisconnected, 0, err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errReset) {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cp.cfg.ReconnectDelay):
		}
	}
}

// serve owns one established connection: it runs the boot sequence,
// the periodic loops and the receive loop until the connection dies.
func (cp *ChargePoint) serve(ctx context.Context, conn transport.Conn) error {
	cp.mu.Lock()
	cp.conn = conn
	cp.mu.Unlock()

	sctx, cancel := context.WithCancelCause(ctx)
	defer func() {
		cancel(nil)
		conn.Close()
		cp.mu.Lock()
		cp.conn = nil
		cp.mu.Unlock()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cancel(cp.readLoop(sctx, conn))
	}()

	if err := cp.boot(sctx, conn); err != nil {
		cancel(err)
		conn.Close()
		wg.Wait()
		return err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		cp.heartbeatLoop(sctx, conn)
	}()
	go func() {
		defer wg.Done()
		cp.gridMeterLoop(sctx, conn)
	}()

	<-sctx.Done()
	conn.Close()
	wg.Wait()

	if err := context.Cause(sctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readLoop decodes inbound frames, routing responses to the correlator
// and requests to the dispatch table.
func (cp *ChargePoint) readLoop(ctx context.Context, conn transport.Conn) error {
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, transport.ErrClosed) {
				cp.log.Warnf("receive failed: %v", err)
			}
			return err
		}

		frame, err := ocpp.DecodeFrame(data)
		if err != nil {
			cp.log.Warnf("dropping malformed frame: %v", err)
			continue
		}

		switch f := frame.(type) {
		case ocpp.Call:
			cp.dispatch(ctx, conn, f)
		case ocpp.CallResult:
			cp.correlator.Resolve(f.ID, f.Payload)
		case ocpp.CallError:
			cp.correlator.Fail(f.ID, f.Code, f.Description)
		}
	}
}

// call sends a request over the active connection and decodes the
// response into out.
func (cp *ChargePoint) call(ctx context.Context, conn transport.Conn, action ocpp.Action, payload, out any) error {
	raw, err := cp.correlator.Call(ctx, conn, action, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", action, err)
	}
	return nil
}

func (cp *ChargePoint) reply(ctx context.Context, conn transport.Conn, id string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		cp.log.Errorf("encoding result %s: %v", id, err)
		return
	}
	data, err := ocpp.MarshalCallResult(ocpp.CallResult{ID: id, Payload: raw})
	if err != nil {
		cp.log.Errorf("encoding result envelope %s: %v", id, err)
		return
	}
	if err := conn.Send(ctx, data); err != nil {
		cp.log.Warnf("sending result %s: %v", id, err)
	}
}

func (cp *ChargePoint) replyError(ctx context.Context, conn transport.Conn, id string, code ocpp.ErrorCode, description string) {
	data, err := ocpp.MarshalCallError(ocpp.CallError{ID: id, Code: code, Description: description})
	if err != nil {
		cp.log.Errorf("encoding error envelope %s: %v", id, err)
		return
	}
	if err := conn.Send(ctx, data); err != nil {
		cp.log.Warnf("sending error %s: %v", id, err)
	}
}

func (cp *ChargePoint) setState(state events.ConnectionState, attempt int, err error) {
	cp.mu.Lock()
	prev := cp.state
	cp.state = state
	cp.mu.Unlock()
	if prev == state {
		return
	}
	cp.log.Infof("connection state %s -> %s", prev, state)
	cp.bus.Publish(events.ConnectionEvent{State: state, Attempt: attempt, Err: err, At: time.Now()})
	if rec, ok := cp.sink.(metrics.ConnectionRecorder); ok {
		if err := rec.RecordConnection(metrics.ConnectionUpdate{State: string(state), Attempt: attempt, Time: time.Now()}); err != nil {
			cp.log.Debugf("recording connection state: %v", err)
		}
	}
}

func (cp *ChargePoint) onLimitChange(connectorID int, l profile.Limits) {
	now := time.Now()
	cp.bus.Publish(events.LimitEvent{ConnectorID: connectorID, PowerW: l.PowerW, CurrentA: l.CurrentA, At: now})
	if rec, ok := cp.sink.(metrics.LimitRecorder); ok {
		if err := rec.RecordLimit(metrics.LimitUpdate{ConnectorID: connectorID, PowerW: l.PowerW, CurrentA: l.CurrentA, Time: now}); err != nil {
			cp.log.Debugf("recording limit update: %v", err)
		}
	}
}

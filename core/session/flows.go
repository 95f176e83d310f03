package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/evsim/cpsim/core/events"
	"github.com/evsim/cpsim/core/meter"
	"github.com/evsim/cpsim/core/metrics"
	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/station"
	"github.com/evsim/cpsim/core/transport"
)

// boot sends BootNotification until the central system accepts the
// charge point, then announces every connector's status.
func (cp *ChargePoint) boot(ctx context.Context, conn transport.Conn) error {
	req := ocpp.BootNotificationRequest{
		ChargePointVendor:       cp.cfg.Vendor,
		ChargePointModel:        cp.cfg.Model,
		ChargePointSerialNumber: cp.cfg.SerialNumber,
		FirmwareVersion:         cp.cfg.FirmwareVersion,
	}

	for {
		var resp ocpp.BootNotificationResponse
		if err := cp.call(ctx, conn, ocpp.ActionBootNotification, req, &resp); err != nil {
			return fmt.Errorf("boot notification: %w", err)
		}
		cp.bus.Publish(events.BootEvent{Status: resp.Status, Interval: resp.Interval, At: time.Now()})

		if resp.Status == ocpp.RegistrationAccepted {
			cp.log.Infof("boot accepted, heartbeat interval %ds", resp.Interval)
			if resp.Interval > 0 {
				cp.keys.Set("HeartbeatInterval", fmt.Sprintf("%d", resp.Interval))
			}
			return cp.announceConnectors(ctx, conn)
		}

		wait := resp.Interval
		if wait <= 0 {
			wait = 30
		}
		cp.log.Warnf("boot %s, retrying in %ds", resp.Status, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(wait) * time.Second):
		}
	}
}

// announceConnectors sends a StatusNotification for connector 0 and
// every physical connector.
func (cp *ChargePoint) announceConnectors(ctx context.Context, conn transport.Conn) error {
	if err := cp.sendStatus(ctx, conn, 0, ocpp.StatusAvailable); err != nil {
		return err
	}
	for _, c := range cp.station.Snapshot() {
		if err := cp.sendStatus(ctx, conn, c.ID, c.Status); err != nil {
			return err
		}
	}
	return nil
}

// sendStatus reports a connector status to the central system without
// touching the station model.
func (cp *ChargePoint) sendStatus(ctx context.Context, conn transport.Conn, connectorID int, status ocpp.ChargePointStatus) error {
	now := ocpp.NewDateTime(time.Now())
	req := ocpp.StatusNotificationRequest{
		ConnectorID: connectorID,
		ErrorCode:   "NoError",
		Status:      status,
		Timestamp:   &now,
	}
	if err := cp.call(ctx, conn, ocpp.ActionStatusNotification, req, nil); err != nil {
		return fmt.Errorf("status notification for connector %d: %w", connectorID, err)
	}
	return nil
}

// setStatus updates the station model and, when the status changed,
// notifies the central system and the event bus.
func (cp *ChargePoint) setStatus(ctx context.Context, conn transport.Conn, connectorID int, status ocpp.ChargePointStatus) error {
	changed, err := cp.station.SetStatus(connectorID, status)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	cp.bus.Publish(events.StatusEvent{ConnectorID: connectorID, Status: status, At: time.Now()})
	return cp.sendStatus(ctx, conn, connectorID, status)
}

func (cp *ChargePoint) heartbeatLoop(ctx context.Context, conn transport.Conn) {
	for {
		interval := cp.keys.GetInt("HeartbeatInterval", 60)
		if interval <= 0 {
			interval = 60
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(interval) * time.Second):
		}

		var resp ocpp.HeartbeatResponse
		if err := cp.call(ctx, conn, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, &resp); err != nil {
			if ctx.Err() != nil {
				return
			}
			cp.log.Warnf("heartbeat failed: %v", err)
			continue
		}
		cp.log.Debugf("heartbeat acknowledged at %s", resp.CurrentTime.Time)
	}
}

func (cp *ChargePoint) sampledMeasurands() []string {
	return splitList(cp.keys.Get("MeterValuesSampledData", "Energy.Active.Import.Register"))
}

// meterLoop emits periodic MeterValues for a connector while its
// transaction is running. A sample interval of zero stops the loop.
func (cp *ChargePoint) meterLoop(ctx context.Context, conn transport.Conn, connectorID, txID int) {
	interval := cp.keys.GetInt("MeterValueSampleInterval", 60)
	if interval == 0 {
		cp.log.Infof("meter values disabled for connector %d", connectorID)
		return
	}
	cp.log.Infof("meter loop started for connector %d, transaction %d, every %ds", connectorID, txID, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(interval) * time.Second):
		}

		if active, ok := cp.station.ActiveTransaction(connectorID); !ok || active != txID {
			return
		}
		if status, err := cp.station.Status(connectorID); err != nil || status != ocpp.StatusCharging {
			return
		}

		interval = cp.keys.GetInt("MeterValueSampleInterval", 60)
		if interval == 0 {
			cp.log.Infof("meter values disabled, stopping loop for connector %d", connectorID)
			return
		}

		values := cp.meter.Sample(connectorID, cp.sampledMeasurands(), meter.ContextPeriodic, interval)
		if len(values) == 0 {
			continue
		}
		if err := cp.sendMeterValues(ctx, conn, connectorID, &txID, values); err != nil {
			if ctx.Err() != nil {
				return
			}
			cp.log.Warnf("meter values for connector %d: %v", connectorID, err)
			return
		}
	}
}

// gridMeterLoop reports aggregate inlet readings on connector 0 while
// the session is up.
func (cp *ChargePoint) gridMeterLoop(ctx context.Context, conn transport.Conn) {
	for {
		interval := cp.keys.GetInt("MeterValueSampleInterval", 60)
		if interval == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(interval) * time.Second):
		}

		measurands := meter.GridMeasurands(cp.sampledMeasurands())
		if len(measurands) == 0 {
			continue
		}

		var charging []int
		for _, tx := range cp.station.ActiveTransactions() {
			charging = append(charging, tx.ConnectorID)
		}

		values := cp.meter.GridSample(measurands, charging)
		if len(values) == 0 {
			continue
		}
		if err := cp.sendMeterValues(ctx, conn, 0, nil, values); err != nil {
			if ctx.Err() != nil {
				return
			}
			cp.log.Warnf("grid meter values: %v", err)
		}
	}
}

func (cp *ChargePoint) sendMeterValues(ctx context.Context, conn transport.Conn, connectorID int, txID *int, values []ocpp.SampledValue) error {
	now := time.Now()
	req := ocpp.MeterValuesRequest{
		ConnectorID:   connectorID,
		TransactionID: txID,
		MeterValue: []ocpp.MeterValue{{
			Timestamp:    ocpp.NewDateTime(now),
			SampledValue: values,
		}},
	}
	if err := cp.call(ctx, conn, ocpp.ActionMeterValues, req, nil); err != nil {
		return err
	}

	cp.bus.Publish(events.SampleEvent{ConnectorID: connectorID, TransactionID: txID, Values: values, At: now})
	cp.recordSamples(connectorID, values, now)
	return nil
}

func (cp *ChargePoint) recordSamples(connectorID int, values []ocpp.SampledValue, at time.Time) {
	samples := make([]metrics.Sample, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			continue
		}
		samples = append(samples, metrics.Sample{
			ConnectorID: connectorID,
			Measurand:   v.Measurand,
			Phase:       v.Phase,
			Value:       f,
			Unit:        v.Unit,
			Time:        at,
		})
	}
	if len(samples) == 0 {
		return
	}
	if err := cp.sink.RecordSamples(samples); err != nil {
		cp.log.Debugf("recording samples: %v", err)
	}
}

// startTransaction runs the full start flow on an established
// connection: authorize (optional), StartTransaction, status updates
// and the meter loop.
func (cp *ChargePoint) startTransaction(ctx context.Context, conn transport.Conn, connectorID int, idTag string, prof *ocpp.ChargingProfile) error {
	if cp.keys.GetBool("AuthorizeRemoteTxRequests", true) {
		var auth ocpp.AuthorizeResponse
		if err := cp.call(ctx, conn, ocpp.ActionAuthorize, ocpp.AuthorizeRequest{IdTag: idTag}, &auth); err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		if auth.IdTagInfo.Status != ocpp.AuthorizationAccepted {
			return fmt.Errorf("idTag %s not authorized: %s", idTag, auth.IdTagInfo.Status)
		}
	}

	if err := cp.setStatus(ctx, conn, connectorID, ocpp.StatusPreparing); err != nil {
		return err
	}

	cp.meter.ResetConnector(connectorID)
	meterStart := cp.meter.EnergyWh(connectorID)

	var resp ocpp.StartTransactionResponse
	req := ocpp.StartTransactionRequest{
		ConnectorID: connectorID,
		IdTag:       idTag,
		MeterStart:  meterStart,
		Timestamp:   ocpp.NewDateTime(time.Now()),
	}
	if err := cp.call(ctx, conn, ocpp.ActionStartTransaction, req, &resp); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if resp.IdTagInfo.Status != ocpp.AuthorizationAccepted {
		cp.log.Warnf("start transaction refused for idTag %s: %s", idTag, resp.IdTagInfo.Status)
		if err := cp.setStatus(ctx, conn, connectorID, ocpp.StatusAvailable); err != nil {
			return err
		}
		return fmt.Errorf("transaction refused: %s", resp.IdTagInfo.Status)
	}

	tx := station.Transaction{
		ID:          resp.TransactionID,
		ConnectorID: connectorID,
		IdTag:       idTag,
		MeterStart:  meterStart,
		StartedAt:   time.Now(),
	}
	if err := cp.station.StartTransaction(tx); err != nil {
		return err
	}

	if prof != nil {
		p := *prof
		if p.TransactionID == nil {
			id := resp.TransactionID
			p.TransactionID = &id
		}
		status := cp.profiles.SetProfile(connectorID, p)
		cp.log.Infof("remote start charging profile on connector %d: %s", connectorID, status)
	}

	if err := cp.setStatus(ctx, conn, connectorID, ocpp.StatusCharging); err != nil {
		return err
	}
	cp.bus.Publish(events.TransactionEvent{
		TransactionID: tx.ID,
		ConnectorID:   connectorID,
		IdTag:         idTag,
		Started:       true,
		MeterWh:       meterStart,
		At:            tx.StartedAt,
	})

	go cp.meterLoop(ctx, conn, connectorID, tx.ID)
	return nil
}

// stopTransaction runs the stop flow: StopTransaction with the final
// register and transaction data, then cleanup.
func (cp *ChargePoint) stopTransaction(ctx context.Context, conn transport.Conn, txID int, reason ocpp.Reason) error {
	tx, ok := cp.station.Transaction(txID)
	if !ok {
		return fmt.Errorf("unknown transaction %d", txID)
	}

	if err := cp.setStatus(ctx, conn, tx.ConnectorID, ocpp.StatusFinishing); err != nil {
		return err
	}

	stopMeasurands := splitList(cp.keys.Get("StopTxnSampledData", "Energy.Active.Import.Register"))
	finalValues := cp.meter.Sample(tx.ConnectorID, stopMeasurands, meter.ContextTransactionEnd, 0)
	meterStop := cp.meter.EnergyWh(tx.ConnectorID)

	req := ocpp.StopTransactionRequest{
		IdTag:         tx.IdTag,
		MeterStop:     meterStop,
		Timestamp:     ocpp.NewDateTime(time.Now()),
		TransactionID: txID,
		Reason:        reason,
	}
	if len(finalValues) > 0 {
		req.TransactionData = []ocpp.MeterValue{{
			Timestamp:    ocpp.NewDateTime(time.Now()),
			SampledValue: finalValues,
		}}
	}
	if err := cp.call(ctx, conn, ocpp.ActionStopTransaction, req, nil); err != nil {
		return fmt.Errorf("stop transaction: %w", err)
	}

	if _, err := cp.station.StopTransaction(txID); err != nil {
		return err
	}
	cp.profiles.RemoveTransactionProfiles(tx.ConnectorID, txID)

	if err := cp.setStatus(ctx, conn, tx.ConnectorID, ocpp.StatusAvailable); err != nil {
		return err
	}
	cp.bus.Publish(events.TransactionEvent{
		TransactionID: txID,
		ConnectorID:   tx.ConnectorID,
		IdTag:         tx.IdTag,
		Started:       false,
		MeterWh:       meterStop,
		At:            time.Now(),
	})
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/profile"
	"github.com/evsim/cpsim/core/transport"
)

// dispatch routes an inbound request to its handler. Unknown actions
// are answered with a NotImplemented error envelope.
func (cp *ChargePoint) dispatch(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	cp.log.Debugf("handling %s (id %s)", call.Action, call.ID)

	switch call.Action {
	case ocpp.ActionReset:
		cp.handleReset(ctx, conn, call)
	case ocpp.ActionRemoteStartTransaction:
		cp.handleRemoteStart(ctx, conn, call)
	case ocpp.ActionRemoteStopTransaction:
		cp.handleRemoteStop(ctx, conn, call)
	case ocpp.ActionGetConfiguration:
		cp.handleGetConfiguration(ctx, conn, call)
	case ocpp.ActionChangeConfiguration:
		cp.handleChangeConfiguration(ctx, conn, call)
	case ocpp.ActionClearCache:
		cp.reply(ctx, conn, call.ID, ocpp.ClearCacheResponse{Status: ocpp.GenericAccepted})
	case ocpp.ActionTriggerMessage:
		cp.handleTriggerMessage(ctx, conn, call)
	case ocpp.ActionSetChargingProfile:
		cp.handleSetChargingProfile(ctx, conn, call)
	case ocpp.ActionClearChargingProfile:
		cp.handleClearChargingProfile(ctx, conn, call)
	case ocpp.ActionGetCompositeSchedule:
		cp.handleGetCompositeSchedule(ctx, conn, call)
	default:
		cp.log.Warnf("unsupported action %s", call.Action)
		cp.replyError(ctx, conn, call.ID, ocpp.ErrorNotImplemented, "action not implemented")
	}
}

func decode[T any](cp *ChargePoint, ctx context.Context, conn transport.Conn, call ocpp.Call, req *T) bool {
	if err := json.Unmarshal(call.Payload, req); err != nil {
		cp.log.Warnf("malformed %s payload: %v", call.Action, err)
		cp.replyError(ctx, conn, call.ID, ocpp.ErrorFormationViolation, "malformed payload")
		return false
	}
	return true
}

// handleReset acknowledges and drops the connection so the supervisor
// reconnects, simulating the restart.
func (cp *ChargePoint) handleReset(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.ResetRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}
	cp.log.Infof("%s reset requested", req.Type)
	cp.reply(ctx, conn, call.ID, ocpp.ResetResponse{Status: ocpp.GenericAccepted})

	// Give the result frame a moment to flush before tearing down.
	go func() {
		time.Sleep(500 * time.Millisecond)
		cp.requestReset()
	}()
}

func (cp *ChargePoint) requestReset() {
	cp.mu.Lock()
	conn := cp.conn
	cp.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (cp *ChargePoint) handleRemoteStart(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.RemoteStartTransactionRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}

	connectorID := 1
	if req.ConnectorID != nil {
		connectorID = *req.ConnectorID
	}

	status, err := cp.station.Status(connectorID)
	if err != nil || status != ocpp.StatusAvailable {
		cp.log.Warnf("remote start rejected: connector %d not available", connectorID)
		cp.reply(ctx, conn, call.ID, ocpp.RemoteStartTransactionResponse{Status: ocpp.GenericRejected})
		return
	}

	cp.reply(ctx, conn, call.ID, ocpp.RemoteStartTransactionResponse{Status: ocpp.GenericAccepted})

	go func() {
		if err := cp.startTransaction(ctx, conn, connectorID, req.IdTag, req.ChargingProfile); err != nil {
			cp.log.Errorf("remote start on connector %d failed: %v", connectorID, err)
		}
	}()
}

func (cp *ChargePoint) handleRemoteStop(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.RemoteStopTransactionRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}

	if !cp.station.IsTransactionActive(req.TransactionID) {
		cp.reply(ctx, conn, call.ID, ocpp.RemoteStopTransactionResponse{Status: ocpp.GenericRejected})
		return
	}

	cp.reply(ctx, conn, call.ID, ocpp.RemoteStopTransactionResponse{Status: ocpp.GenericAccepted})

	go func() {
		if err := cp.stopTransaction(ctx, conn, req.TransactionID, ocpp.ReasonRemote); err != nil {
			cp.log.Errorf("remote stop of transaction %d failed: %v", req.TransactionID, err)
		}
	}()
}

func (cp *ChargePoint) handleGetConfiguration(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.GetConfigurationRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}
	known, unknown := cp.keys.Configuration(req.Key)
	cp.reply(ctx, conn, call.ID, ocpp.GetConfigurationResponse{ConfigurationKey: known, UnknownKey: unknown})
}

func (cp *ChargePoint) handleChangeConfiguration(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.ChangeConfigurationRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}
	status := cp.keys.Set(req.Key, req.Value)
	cp.reply(ctx, conn, call.ID, ocpp.ChangeConfigurationResponse{Status: status})
}

func (cp *ChargePoint) handleTriggerMessage(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.TriggerMessageRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}

	connectorID := 1
	if req.ConnectorID != nil {
		connectorID = *req.ConnectorID
	}

	switch req.RequestedMessage {
	case "BootNotification":
		cp.reply(ctx, conn, call.ID, ocpp.TriggerMessageResponse{Status: ocpp.TriggerAccepted})
		go func() {
			if err := cp.boot(ctx, conn); err != nil {
				cp.log.Warnf("triggered boot notification failed: %v", err)
			}
		}()
	case "Heartbeat":
		cp.reply(ctx, conn, call.ID, ocpp.TriggerMessageResponse{Status: ocpp.TriggerAccepted})
		go func() {
			var resp ocpp.HeartbeatResponse
			if err := cp.call(ctx, conn, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, &resp); err != nil {
				cp.log.Warnf("triggered heartbeat failed: %v", err)
			}
		}()
	case "StatusNotification":
		status, err := cp.station.Status(connectorID)
		if err != nil {
			cp.reply(ctx, conn, call.ID, ocpp.TriggerMessageResponse{Status: ocpp.TriggerRejected})
			return
		}
		cp.reply(ctx, conn, call.ID, ocpp.TriggerMessageResponse{Status: ocpp.TriggerAccepted})
		go func() {
			if err := cp.sendStatus(ctx, conn, connectorID, status); err != nil {
				cp.log.Warnf("triggered status notification failed: %v", err)
			}
		}()
	case "MeterValues":
		cp.reply(ctx, conn, call.ID, ocpp.TriggerMessageResponse{Status: ocpp.TriggerAccepted})
		go func() {
			interval := cp.keys.GetInt("MeterValueSampleInterval", 60)
			values := cp.meter.Sample(connectorID, cp.sampledMeasurands(), "Trigger", interval)
			if len(values) == 0 {
				return
			}
			var txID *int
			if id, ok := cp.station.ActiveTransaction(connectorID); ok {
				txID = &id
			}
			if err := cp.sendMeterValues(ctx, conn, connectorID, txID, values); err != nil {
				cp.log.Warnf("triggered meter values failed: %v", err)
			}
		}()
	default:
		cp.reply(ctx, conn, call.ID, ocpp.TriggerMessageResponse{Status: ocpp.TriggerNotImplemented})
	}
}

func (cp *ChargePoint) handleSetChargingProfile(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.SetChargingProfileRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}
	status := cp.profiles.SetProfile(req.ConnectorID, req.CsChargingProfiles)
	cp.reply(ctx, conn, call.ID, ocpp.SetChargingProfileResponse{Status: status})
}

func (cp *ChargePoint) handleClearChargingProfile(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.ClearChargingProfileRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}
	status := cp.profiles.ClearProfiles(profile.ClearCriteria{
		ID:          req.ID,
		ConnectorID: req.ConnectorID,
		Purpose:     req.ChargingProfilePurpose,
		StackLevel:  req.StackLevel,
	})
	cp.reply(ctx, conn, call.ID, ocpp.ClearChargingProfileResponse{Status: status})
}

func (cp *ChargePoint) handleGetCompositeSchedule(ctx context.Context, conn transport.Conn, call ocpp.Call) {
	var req ocpp.GetCompositeScheduleRequest
	if !decode(cp, ctx, conn, call, &req) {
		return
	}
	resp := cp.profiles.CompositeSchedule(req.ConnectorID, req.Duration, req.ChargingRateUnit)
	cp.reply(ctx, conn, call.ID, resp)
}

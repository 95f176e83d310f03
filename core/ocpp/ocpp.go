// Package ocpp defines the OCPP 1.6-J wire model: the three envelope
// shapes exchanged over the WebSocket, the Core and Smart Charging
// action names, and their payload types.
package ocpp

// Subprotocol is the WebSocket subprotocol negotiated with the central
// system.
const Subprotocol = "ocpp1.6"

// MessageType discriminates the three envelope shapes. It is the first
// element of every frame.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Action identifies an OCPP operation.
type Action string

const (
	ActionBootNotification       Action = "BootNotification"
	ActionHeartbeat              Action = "Heartbeat"
	ActionStatusNotification     Action = "StatusNotification"
	ActionAuthorize              Action = "Authorize"
	ActionStartTransaction       Action = "StartTransaction"
	ActionStopTransaction        Action = "StopTransaction"
	ActionMeterValues            Action = "MeterValues"
	ActionReset                  Action = "Reset"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionClearCache             Action = "ClearCache"
	ActionTriggerMessage         Action = "TriggerMessage"
	ActionSetChargingProfile     Action = "SetChargingProfile"
	ActionClearChargingProfile   Action = "ClearChargingProfile"
	ActionGetCompositeSchedule   Action = "GetCompositeSchedule"
)

// ErrorCode is the errorCode field of a CallError envelope.
type ErrorCode string

const (
	ErrorNotImplemented                ErrorCode = "NotImplemented"
	ErrorNotSupported                  ErrorCode = "NotSupported"
	ErrorInternalError                 ErrorCode = "InternalError"
	ErrorProtocolError                 ErrorCode = "ProtocolError"
	ErrorSecurityError                 ErrorCode = "SecurityError"
	ErrorFormationViolation            ErrorCode = "FormationViolation"
	ErrorPropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrorOccurrenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	ErrorTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	ErrorGenericError                  ErrorCode = "GenericError"
)

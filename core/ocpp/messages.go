package ocpp

// BootNotificationRequest identifies the charge point to the central
// system.
type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime DateTime           `json:"currentTime"`
	Interval    int                `json:"interval"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime"`
}

type StatusNotificationRequest struct {
	ConnectorID     int               `json:"connectorId"`
	ErrorCode       string            `json:"errorCode"`
	Info            string            `json:"info,omitempty"`
	Status          ChargePointStatus `json:"status"`
	Timestamp       *DateTime         `json:"timestamp,omitempty"`
	VendorID        string            `json:"vendorId,omitempty"`
	VendorErrorCode string            `json:"vendorErrorCode,omitempty"`
}

type StatusNotificationResponse struct{}

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StartTransactionRequest struct {
	ConnectorID   int      `json:"connectorId"`
	IdTag         string   `json:"idTag"`
	MeterStart    int      `json:"meterStart"`
	ReservationID *int     `json:"reservationId,omitempty"`
	Timestamp     DateTime `json:"timestamp"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionID int       `json:"transactionId"`
}

type StopTransactionRequest struct {
	IdTag           string       `json:"idTag,omitempty"`
	MeterStop       int          `json:"meterStop"`
	Timestamp       DateTime     `json:"timestamp"`
	TransactionID   int          `json:"transactionId"`
	Reason          Reason       `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

type MeterValuesResponse struct{}

type ResetRequest struct {
	Type ResetType `json:"type"`
}

type ResetResponse struct {
	Status GenericStatus `json:"status"`
}

type RemoteStartTransactionRequest struct {
	ConnectorID     *int             `json:"connectorId,omitempty"`
	IdTag           string           `json:"idTag"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStartTransactionResponse struct {
	Status GenericStatus `json:"status"`
}

type RemoteStopTransactionRequest struct {
	TransactionID int `json:"transactionId"`
}

type RemoteStopTransactionResponse struct {
	Status GenericStatus `json:"status"`
}

// KeyValue is one entry of a GetConfiguration response.
type KeyValue struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status"`
}

type ClearCacheRequest struct{}

type ClearCacheResponse struct {
	Status GenericStatus `json:"status"`
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status"`
}

type SetChargingProfileRequest struct {
	ConnectorID        int             `json:"connectorId"`
	CsChargingProfiles ChargingProfile `json:"csChargingProfiles"`
}

type SetChargingProfileResponse struct {
	Status ChargingProfileStatus `json:"status"`
}

type ClearChargingProfileRequest struct {
	ID                     *int                    `json:"id,omitempty"`
	ConnectorID            *int                    `json:"connectorId,omitempty"`
	ChargingProfilePurpose *ChargingProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int                    `json:"stackLevel,omitempty"`
}

type ClearChargingProfileResponse struct {
	Status ClearChargingProfileStatus `json:"status"`
}

type GetCompositeScheduleRequest struct {
	ConnectorID      int              `json:"connectorId"`
	Duration         int              `json:"duration"`
	ChargingRateUnit ChargingRateUnit `json:"chargingRateUnit,omitempty"`
}

type GetCompositeScheduleResponse struct {
	Status           CompositeScheduleStatus `json:"status"`
	ConnectorID      *int                    `json:"connectorId,omitempty"`
	ScheduleStart    *DateTime               `json:"scheduleStart,omitempty"`
	ChargingSchedule *ChargingSchedule       `json:"chargingSchedule,omitempty"`
}

package ocpp

import (
	"strings"
	"time"
)

// DateTime wraps time.Time to marshal as the UTC ISO 8601 form the
// protocol expects.
type DateTime struct {
	time.Time
}

// NewDateTime returns a DateTime for t.
func NewDateTime(t time.Time) DateTime { return DateTime{Time: t.UTC()} }

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.UTC().Format("2006-01-02T15:04:05Z") + `"`), nil
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Some central systems omit the timezone designator.
		t, err = time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return err
		}
	}
	d.Time = t.UTC()
	return nil
}

// RegistrationStatus is the BootNotification response status.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// ChargePointStatus is the connector status reported in
// StatusNotification.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// AuthorizationStatus is the status field of IdTagInfo.
type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// IdTagInfo carries the authorization verdict for an idTag.
type IdTagInfo struct {
	Status      AuthorizationStatus `json:"status"`
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty"`
}

// SampledValue is a single measurement inside a MeterValue.
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// MeterValue is a timestamped set of sampled values.
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// ResetType selects a hard or soft reset.
type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

// GenericStatus is the Accepted/Rejected pair shared by several
// responses.
type GenericStatus string

const (
	GenericAccepted GenericStatus = "Accepted"
	GenericRejected GenericStatus = "Rejected"
)

// ConfigurationStatus is the ChangeConfiguration response status.
type ConfigurationStatus string

const (
	ConfigurationAccepted       ConfigurationStatus = "Accepted"
	ConfigurationRejected       ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported   ConfigurationStatus = "NotSupported"
)

// TriggerMessageStatus is the TriggerMessage response status.
type TriggerMessageStatus string

const (
	TriggerAccepted       TriggerMessageStatus = "Accepted"
	TriggerRejected       TriggerMessageStatus = "Rejected"
	TriggerNotImplemented TriggerMessageStatus = "NotImplemented"
)

// Reason is the StopTransaction reason.
type Reason string

const (
	ReasonLocal        Reason = "Local"
	ReasonRemote       Reason = "Remote"
	ReasonEVDisconnect Reason = "EVDisconnected"
	ReasonHardReset    Reason = "HardReset"
	ReasonSoftReset    Reason = "SoftReset"
	ReasonOther        Reason = "Other"
)

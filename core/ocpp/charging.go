package ocpp

// ChargingProfilePurpose scopes a charging profile.
type ChargingProfilePurpose string

const (
	PurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	PurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind selects how a schedule's clock starts.
type ChargingProfileKind string

const (
	KindAbsolute  ChargingProfileKind = "Absolute"
	KindRecurring ChargingProfileKind = "Recurring"
	KindRelative  ChargingProfileKind = "Relative"
)

// RecurrencyKind is the repetition interval of a Recurring profile.
type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

// ChargingRateUnit is the unit charging limits are expressed in.
type ChargingRateUnit string

const (
	RateUnitWatts   ChargingRateUnit = "W"
	RateUnitAmperes ChargingRateUnit = "A"
)

// ChargingSchedulePeriod is one step of a charging schedule. StartPeriod
// is in seconds from the schedule start.
type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty"`
}

// ChargingSchedule is an ordered sequence of periods with an optional
// duration and absolute start.
type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
}

// ChargingProfile is the wire form of a charging profile.
type ChargingProfile struct {
	ChargingProfileID      int                    `json:"chargingProfileId"`
	TransactionID          *int                   `json:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind"`
	RecurrencyKind         *RecurrencyKind        `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime              `json:"validFrom,omitempty"`
	ValidTo                *DateTime              `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule       `json:"chargingSchedule"`
}

// ChargingProfileStatus is the SetChargingProfile response status.
type ChargingProfileStatus string

const (
	ProfileAccepted     ChargingProfileStatus = "Accepted"
	ProfileRejected     ChargingProfileStatus = "Rejected"
	ProfileNotSupported ChargingProfileStatus = "NotSupported"
)

// ClearChargingProfileStatus is the ClearChargingProfile response status.
type ClearChargingProfileStatus string

const (
	ClearAccepted ClearChargingProfileStatus = "Accepted"
	ClearUnknown  ClearChargingProfileStatus = "Unknown"
)

// CompositeScheduleStatus is the GetCompositeSchedule response status.
type CompositeScheduleStatus string

const (
	CompositeAccepted CompositeScheduleStatus = "Accepted"
	CompositeRejected CompositeScheduleStatus = "Rejected"
)

package profile

import "github.com/evsim/cpsim/core/ocpp"

// Nominal single-phase voltage used for all unit conversions. Amperes to
// watts multiplies by the declared phase count (default 3); watts to
// amperes divides by the single-phase voltage.
const (
	nominalVoltage = 230.0
	defaultPhases  = 3
)

func wattsFromAmps(amps float64, phases *int) float64 {
	n := defaultPhases
	if phases != nil {
		n = *phases
	}
	return amps * nominalVoltage * float64(n)
}

func ampsFromWatts(watts float64) float64 {
	return watts / nominalVoltage
}

func convertLimit(limit float64, from, to ocpp.ChargingRateUnit, phases *int) float64 {
	if from == to {
		return limit
	}
	if from == ocpp.RateUnitAmperes && to == ocpp.RateUnitWatts {
		return wattsFromAmps(limit, phases)
	}
	return ampsFromWatts(limit)
}

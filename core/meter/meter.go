// Package meter simulates the energy meter of a charge point. Samples
// are derived from fixed baselines, clamped to the effective charging
// limit in force, with the energy register integrating the clamped
// power over the sample interval.
package meter

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/core/profile"
)

// Baselines of the simulated charger.
const (
	basePowerW    = 7400.0
	baseCurrentA  = 32.0
	baseVoltage   = 230.0
	baseSoC       = 50.0
	baseTemp      = 25.0
	basePF        = 0.95
	baseFrequency = 50.0
	// tan(acos(0.95)), reactive power as a fraction of active power.
	reactiveRatio = 0.33
)

// Sampling contexts.
const (
	ContextPeriodic       = "Sample.Periodic"
	ContextTransactionEnd = "Transaction.End"
)

// LimitSource yields the effective charging limit for a connector.
type LimitSource interface {
	EffectiveLimit(connectorID int) profile.Limits
}

type connectorState struct {
	energyWh     float64
	reactiveWh   float64
	soc          float64
	lastPowerW   float64
	lastCurrentA float64
}

// Generator produces sampled meter values per connector.
type Generator struct {
	mu     sync.Mutex
	limits LimitSource
	state  map[int]*connectorState
	log    logger.Logger
}

func NewGenerator(limits LimitSource, log logger.Logger) *Generator {
	return &Generator{
		limits: limits,
		state:  make(map[int]*connectorState),
		log:    log,
	}
}

func (g *Generator) connector(id int) *connectorState {
	st, ok := g.state[id]
	if !ok {
		st = &connectorState{soc: baseSoC, lastPowerW: basePowerW, lastCurrentA: baseCurrentA}
		g.state[id] = st
	}
	return st
}

// ResetConnector zeroes a connector's registers, called when a new
// transaction starts.
func (g *Generator) ResetConnector(connectorID int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[connectorID] = &connectorState{soc: baseSoC, lastPowerW: basePowerW, lastCurrentA: baseCurrentA}
}

// EnergyWh returns a connector's energy register, for meterStop.
func (g *Generator) EnergyWh(connectorID int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.connector(connectorID).energyWh)
}

// Sample generates one reading per requested measurand. The interval is
// the elapsed seconds since the previous sample and drives the energy
// and state-of-charge integration.
func (g *Generator) Sample(connectorID int, measurands []string, context string, intervalSec int) []ocpp.SampledValue {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.connector(connectorID)
	limit := g.limits.EffectiveLimit(connectorID)

	power := basePowerW
	if limit.PowerW != nil && *limit.PowerW < power {
		power = *limit.PowerW
	}
	current := baseCurrentA
	if limit.CurrentA != nil && *limit.CurrentA < current {
		current = *limit.CurrentA
	}
	st.lastPowerW = power
	st.lastCurrentA = current

	var out []ocpp.SampledValue
	for _, m := range measurands {
		switch m {
		case "Energy.Active.Import.Register":
			st.energyWh += power * float64(intervalSec) / 3600
			out = append(out, sampled(strconv.Itoa(int(st.energyWh)), context, m, "", "Outlet", "Wh"))
		case "Power.Active.Import":
			out = append(out, sampled(strconv.Itoa(int(power)), context, m, "", "Outlet", "W"))
		case "Current.Import":
			out = append(out, sampled(fmt.Sprintf("%.1f", current), context, m, "L1", "Outlet", "A"))
		case "Voltage":
			out = append(out, sampled(fmt.Sprintf("%.1f", baseVoltage), context, m, "L1", "Outlet", "V"))
		case "SoC":
			st.soc += 0.1 * float64(intervalSec) / 60
			if st.soc > 100 {
				st.soc = 100
			}
			out = append(out, sampled(strconv.Itoa(int(st.soc)), context, m, "", "EV", "Percent"))
		case "Temperature":
			out = append(out, sampled(fmt.Sprintf("%.1f", baseTemp), context, m, "", "Outlet", "Celsius"))
		case "Power.Offered":
			out = append(out, sampled(strconv.Itoa(int(basePowerW)), context, m, "", "Outlet", "W"))
		case "Current.Offered":
			out = append(out, sampled(fmt.Sprintf("%.1f", baseCurrentA), context, m, "L1", "Outlet", "A"))
		case "Power.Factor":
			out = append(out, sampled(fmt.Sprintf("%.2f", basePF), context, m, "", "Outlet", ""))
		case "Frequency":
			out = append(out, sampled(fmt.Sprintf("%.1f", baseFrequency), context, m, "", "Outlet", "Hz"))
		case "Energy.Reactive.Import.Register":
			st.reactiveWh += 20
			out = append(out, sampled(strconv.Itoa(int(st.reactiveWh)), context, m, "", "Outlet", "varh"))
		case "Power.Reactive.Import":
			out = append(out, sampled(strconv.Itoa(int(power*reactiveRatio)), context, m, "", "Outlet", "var"))
		default:
			g.log.Debugf("skipping unsupported measurand %s", m)
		}
	}
	return out
}

// gridMeasurands are the measurands reportable at the grid inlet.
var gridMeasurands = map[string]bool{
	"Power.Active.Import":             true,
	"Current.Import":                  true,
	"Voltage":                         true,
	"Power.Factor":                    true,
	"Frequency":                       true,
	"Power.Reactive.Import":           true,
	"Energy.Active.Import.Register":   true,
	"Energy.Reactive.Import.Register": true,
}

// GridMeasurands filters a measurand list down to those meaningful at
// the inlet.
func GridMeasurands(measurands []string) []string {
	var out []string
	for _, m := range measurands {
		if gridMeasurands[m] {
			out = append(out, m)
		}
	}
	return out
}

// GridSample aggregates the charging connectors into connector-0 inlet
// readings. Totals cover only the connectors passed in.
func (g *Generator) GridSample(measurands []string, charging []int) []ocpp.SampledValue {
	g.mu.Lock()
	defer g.mu.Unlock()

	var totalPower, totalCurrent, totalEnergy float64
	for _, id := range charging {
		st := g.connector(id)
		totalPower += st.lastPowerW
		totalCurrent += st.lastCurrentA
	}
	for _, st := range g.state {
		totalEnergy += st.energyWh
	}

	var out []ocpp.SampledValue
	for _, m := range measurands {
		switch m {
		case "Power.Active.Import":
			if totalPower > 0 {
				out = append(out, sampled(strconv.Itoa(int(totalPower)), ContextPeriodic, m, "", "Inlet", "W"))
			}
		case "Current.Import":
			if totalCurrent > 0 {
				for _, phase := range []string{"L1", "L2", "L3"} {
					out = append(out, sampled(fmt.Sprintf("%.1f", totalCurrent/3), ContextPeriodic, m, phase, "Inlet", "A"))
				}
			}
		case "Voltage":
			for _, phase := range []string{"L1", "L2", "L3"} {
				out = append(out, sampled(fmt.Sprintf("%.1f", baseVoltage), ContextPeriodic, m, phase, "Inlet", "V"))
			}
		case "Power.Factor":
			out = append(out, sampled(fmt.Sprintf("%.2f", basePF), ContextPeriodic, m, "", "Inlet", ""))
		case "Frequency":
			out = append(out, sampled(fmt.Sprintf("%.1f", baseFrequency), ContextPeriodic, m, "", "Inlet", "Hz"))
		case "Energy.Active.Import.Register":
			if totalEnergy > 0 {
				out = append(out, sampled(strconv.Itoa(int(totalEnergy)), ContextPeriodic, m, "", "Inlet", "Wh"))
			}
		}
	}
	return out
}

func sampled(value, context, measurand, phase, location, unit string) ocpp.SampledValue {
	return ocpp.SampledValue{
		Value:     value,
		Context:   context,
		Format:    "Raw",
		Measurand: measurand,
		Phase:     phase,
		Location:  location,
		Unit:      unit,
	}
}

package lithium

import (
	"math"
	"time"
)

// BatteryState is the direction current is flowing through the counter.
type BatteryState int32

const (
	Discharging BatteryState = iota
	Charging
)

func (s BatteryState) String() string {
	if s == Charging {
		return "charging"
	}
	return "discharging"
}

func stateFromLevel(high bool) BatteryState {
	if high {
		return Charging
	}
	return Discharging
}

// Sensor describes the charge represented by a single counter pulse.
type Sensor struct {
	// ChargePerPulse in mAh.
	ChargePerPulse float64
	// PulsesPerAh is the number of pulses for one amp hour.
	PulsesPerAh float64
	// ChargePerPulseMilliCoulombs is ChargePerPulse in mC, used to turn the
	// time between two pulses into a current in mA.
	ChargePerPulseMilliCoulombs float64
}

// LTC4150 is the Linear Technology coulomb counter with the sense resistor
// used on the breakout boards (0.05 ohm).
var LTC4150 = Sensor{
	ChargePerPulse:              0.17067759,
	PulsesPerAh:                 5859,
	ChargePerPulseMilliCoulombs: 614.4,
}

func (s Sensor) percentPerPulse(maxCapacity float64) float64 {
	return 1.0 / (maxCapacity / 1000.0 * s.PulsesPerAh / 100.0)
}

// currentFromInterval returns the current in mA implied by one pulse arriving
// deltaMicros after the previous one.
func (s Sensor) currentFromInterval(deltaMicros uint64) float64 {
	return s.ChargePerPulseMilliCoulombs / (float64(deltaMicros) / 1000000.0)
}

// Unknown is returned by the time estimates when they can't be calculated,
// when charging for time to empty, discharging for time to full, or before
// a rate has been measured.
const Unknown = math.MaxFloat64

// Clock supplies a monotonic microsecond count.
type Clock interface {
	Micros() uint64
}

type monotonicClock struct {
	start time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Micros() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

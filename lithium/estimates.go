package lithium

import (
	"math"
	"time"
)

// Status is a point in time view of the battery.
type Status struct {
	State              string    `json:"state"`
	LastPulseState     string    `json:"last_pulse_state"`
	CurrentCapacity    float64   `json:"current_capacity_mah"`
	MaximumCapacity    float64   `json:"maximum_capacity_mah"`
	RatedCapacity      float64   `json:"rated_capacity_mah"`
	Percentage         float64   `json:"percentage"`
	ChangeCapacity     float64   `json:"change_capacity_ma"`
	TimeToEmptySeconds float64   `json:"time_to_empty_seconds"`
	TimeToFullSeconds  float64   `json:"time_to_full_seconds"`
	LastUpdated        time.Time `json:"last_updated"`
}

func (b *Battery) RatedCapacity() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mAhRated
}

// CurrentCapacity is the estimated remaining charge in mAh.
func (b *Battery) CurrentCapacity() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mAh
}

// MaximumCapacity is the charge in mAh the battery holds when full.
func (b *Battery) MaximumCapacity() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mAhMax
}

// ChangeCapacity is the current in mA implied by the last two pulses.
func (b *Battery) ChangeCapacity() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mAhChange
}

// ChangeCapacityWithPolarity is ChangeCapacity, negative while discharging.
func (b *Battery) ChangeCapacityWithPolarity() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latch.pulseState() == Charging {
		return b.mAhChange
	}
	return -b.mAhChange
}

func (b *Battery) Percentage() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.percentage
}

// PercentQuanta is the percentage represented by a single pulse.
func (b *Battery) PercentQuanta() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.percentQuanta
}

func (b *Battery) State() BatteryState { return b.latch.state() }
func (b *Battery) IsCharging() bool    { return b.latch.state() == Charging }
func (b *Battery) IsDischarging() bool { return b.latch.state() == Discharging }

// LastPulseState is the direction latched when the last pulse fired.
func (b *Battery) LastPulseState() BatteryState { return b.latch.pulseState() }

// LastPulseMicros is the clock reading of the last pulse.
func (b *Battery) LastPulseMicros() uint64 { return b.latch.lastPulse.Load() }

// DeltaMicros is the time between the last two pulses.
func (b *Battery) DeltaMicros() uint64 { return b.latch.delta.Load() }

// TimeToEmptyHours is the hours until the battery is empty at the current
// rate, or Unknown when charging or no rate has been measured.
func (b *Battery) TimeToEmptyHours() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latch.state() == Charging {
		return Unknown
	}
	return hoursAtRate(b.mAh, b.mAhChange)
}

// TimeToFullHours is the hours until the battery is full at the current rate,
// or Unknown when discharging or no rate has been measured.
func (b *Battery) TimeToFullHours() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latch.state() == Discharging {
		return Unknown
	}
	return hoursAtRate(b.mAhMax-b.mAh, b.mAhChange)
}

func (b *Battery) TimeToEmptyMinutes() float64      { return scale(b.TimeToEmptyHours(), 60) }
func (b *Battery) TimeToEmptySeconds() float64      { return scale(b.TimeToEmptyHours(), 3600) }
func (b *Battery) TimeToEmptyMilliseconds() float64 { return scale(b.TimeToEmptyHours(), 3600e3) }
func (b *Battery) TimeToEmptyMicroseconds() float64 { return scale(b.TimeToEmptyHours(), 3600e6) }

func (b *Battery) TimeToFullMinutes() float64      { return scale(b.TimeToFullHours(), 60) }
func (b *Battery) TimeToFullSeconds() float64      { return scale(b.TimeToFullHours(), 3600) }
func (b *Battery) TimeToFullMilliseconds() float64 { return scale(b.TimeToFullHours(), 3600e3) }
func (b *Battery) TimeToFullMicroseconds() float64 { return scale(b.TimeToFullHours(), 3600e6) }

// TimeToEmpty returns false when the time can't be estimated.
func (b *Battery) TimeToEmpty() (time.Duration, bool) {
	return toDuration(b.TimeToEmptyHours())
}

// TimeToFull returns false when the time can't be estimated.
func (b *Battery) TimeToFull() (time.Duration, bool) {
	return toDuration(b.TimeToFullHours())
}

// Status takes a snapshot of the battery. Estimates that can't be made are
// reported as -1 so that an estimate of zero stays distinguishable.
func (b *Battery) Status() Status {
	b.mu.RLock()
	s := Status{
		State:           b.latch.state().String(),
		LastPulseState:  b.latch.pulseState().String(),
		CurrentCapacity: b.mAh,
		MaximumCapacity: b.mAhMax,
		RatedCapacity:   b.mAhRated,
		Percentage:      b.percentage,
		ChangeCapacity:  b.mAhChange,
		LastUpdated:     time.Now(),
	}
	b.mu.RUnlock()

	s.TimeToEmptySeconds = knownOrNegative(b.TimeToEmptySeconds())
	s.TimeToFullSeconds = knownOrNegative(b.TimeToFullSeconds())
	return s
}

func knownOrNegative(v float64) float64 {
	if v == Unknown {
		return -1
	}
	return v
}

func hoursAtRate(mAh, mA float64) float64 {
	if mA <= 0 {
		return Unknown
	}
	return mAh / mA
}

func scale(hours, factor float64) float64 {
	if hours == Unknown {
		return Unknown
	}
	return hours * factor
}

func toDuration(hours float64) (time.Duration, bool) {
	if hours == Unknown || math.IsInf(hours, 0) || math.IsNaN(hours) {
		return 0, false
	}
	d := hours * float64(time.Hour)
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(d), true
}

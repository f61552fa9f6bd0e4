package lithium

import "sync/atomic"

// signalLatch is the state written from the interrupt handlers.
// Each field has a single writer. The pending flags are set by the handlers
// and cleared by Poll.
type signalLatch struct {
	pulsePending    atomic.Bool
	polarityPending atomic.Bool

	direction      atomic.Int32 // BatteryState, written by onPolarityChange
	lastPulseState atomic.Int32 // BatteryState at the time of the last pulse
	lastPulse      atomic.Uint64
	delta          atomic.Uint64
}

// onChargePulse records a pulse from the counter's INT output.
func (l *signalLatch) onChargePulse(now uint64) {
	l.delta.Store(now - l.lastPulse.Load())
	l.lastPulse.Store(now)
	l.lastPulseState.Store(l.direction.Load())
	l.pulsePending.Store(true)
}

// onPolarityChange records a change of the counter's POL output.
func (l *signalLatch) onPolarityChange(high bool) {
	l.direction.Store(int32(stateFromLevel(high)))
	l.polarityPending.Store(true)
}

func (l *signalLatch) state() BatteryState {
	return BatteryState(l.direction.Load())
}

func (l *signalLatch) pulseState() BatteryState {
	return BatteryState(l.lastPulseState.Load())
}

// takePulse clears and returns the pending pulse flag.
func (l *signalLatch) takePulse() bool {
	return l.pulsePending.Swap(false)
}

// takePolarity clears and returns the pending polarity flag.
func (l *signalLatch) takePolarity() bool {
	return l.polarityPending.Swap(false)
}

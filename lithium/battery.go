/*
tc2-battery-gauge - Coulomb counter battery gauge for the TC2 hat
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package lithium tracks the charge of a lithium battery from the pulses of a
// coulomb counter such as the LTC4150.
//
// The counter's INT output pulses once per fixed quantum of charge and its
// POL output says which way the charge flowed. Interrupt handlers only latch
// those signals; Poll, called frequently from the application's own loop,
// turns them into capacity, percentage and rate, persists the capacity and
// fires the Callbacks.
package lithium

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDwell is how long the battery has to be charging without a pulse
// before it is treated as full.
const DefaultDwell = 120 * time.Second

var (
	ErrAlreadySetup    = errors.New("battery already setup")
	ErrInvalidCapacity = errors.New("rated capacity must be positive")
)

var log = logrus.New()

// SetLogger replaces the package logger.
func SetLogger(l *logrus.Logger) {
	log = l
}

// Battery is the state of charge estimator for one battery and counter.
// Create it with New, optionally replace the pins and callbacks, call Setup
// once and then call Poll in a loop.
type Battery struct {
	board  Board
	store  Storage
	clock  Clock
	sensor Sensor
	dwell  uint64 // micros

	pins      Pins
	callbacks Callbacks

	latch signalLatch

	pollMu sync.Mutex // serialises Poll
	mu     sync.RWMutex
	setup  bool

	// Handlers stay attached if a later step of Setup fails, so a retried
	// Setup must not attach them again.
	pulseAttached    bool
	polarityAttached bool

	mAh           float64
	mAhMax        float64
	mAhRated      float64
	mAhChange     float64
	percentage    float64
	percentQuanta float64
}

// Option configures a Battery.
type Option func(*Battery)

// WithClock replaces the monotonic clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(b *Battery) { b.clock = c }
}

// WithSensor sets the counter characteristics. Defaults to LTC4150.
func WithSensor(s Sensor) Option {
	return func(b *Battery) { b.sensor = s }
}

// WithDwell sets how long a charging battery must go without a pulse before
// it is recalibrated as full.
func WithDwell(d time.Duration) Option {
	return func(b *Battery) { b.dwell = uint64(d.Microseconds()) }
}

func New(board Board, store Storage, opts ...Option) *Battery {
	b := &Battery{
		board:     board,
		store:     store,
		clock:     newMonotonicClock(),
		sensor:    LTC4150,
		dwell:     uint64(DefaultDwell.Microseconds()),
		pins:      DefaultPins{},
		callbacks: NoCallbacks{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetPins replaces the pin assignment. Ignored after Setup.
func (b *Battery) SetPins(p Pins) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setup {
		log.Debug("Ignoring pin change after setup")
		return
	}
	if p == nil {
		p = DefaultPins{}
	}
	b.pins = p
}

// SetCallbacks replaces the event callbacks. Ignored after Setup.
func (b *Battery) SetCallbacks(c Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setup {
		log.Debug("Ignoring callbacks change after setup")
		return
	}
	if c == nil {
		c = NoCallbacks{}
	}
	b.callbacks = c
}

func (b *Battery) Pins() Pins {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pins
}

func (b *Battery) Callbacks() Callbacks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.callbacks
}

// Setup configures the pins, restores the persisted capacity and attaches the
// interrupt handlers. ratedCapacity is the capacity printed on the battery in
// mAh and is used when nothing has been persisted yet.
func (b *Battery) Setup(ratedCapacity float64) error {
	if ratedCapacity <= 0 {
		return ErrInvalidCapacity
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setup {
		return ErrAlreadySetup
	}

	interrupt := b.pins.PinInterrupt()
	polarity := b.pins.PinPolarity()

	if err := b.board.ConfigureInput(interrupt); err != nil {
		return fmt.Errorf("failed to configure interrupt pin %d: %w", interrupt, err)
	}
	if err := b.board.ConfigureInput(polarity); err != nil {
		return fmt.Errorf("failed to configure polarity pin %d: %w", polarity, err)
	}
	if err := b.board.ConfigureOutput(b.pins.PinRefHigh(), true); err != nil {
		return fmt.Errorf("failed to set reference high pin %d: %w", b.pins.PinRefHigh(), err)
	}
	if err := b.board.ConfigureOutput(b.pins.PinRefLow(), false); err != nil {
		return fmt.Errorf("failed to set reference low pin %d: %w", b.pins.PinRefLow(), err)
	}

	b.mAhRated = ratedCapacity
	b.mAhMax = b.store.MaxCapacity(ratedCapacity)
	if b.mAhMax <= 0 {
		log.Warnf("Ignoring stored maximum capacity %.2fmAh, using rated capacity", b.mAhMax)
		b.mAhMax = ratedCapacity
	}
	b.mAh = clamp(b.store.LastCapacity(ratedCapacity), 0, b.mAhMax)
	b.mAhChange = 0
	b.percentage = b.mAh / b.mAhMax * 100
	b.percentQuanta = b.sensor.percentPerPulse(b.mAhMax)

	b.latch.onPolarityChange(b.board.ReadPin(polarity))
	b.latch.polarityPending.Store(false)
	b.latch.lastPulseState.Store(b.latch.direction.Load())
	b.latch.lastPulse.Store(b.clock.Micros())
	// Drops pulses latched by a handler left over from a failed Setup.
	b.latch.pulsePending.Store(false)

	if !b.pulseAttached {
		if err := b.board.AttachInterrupt(interrupt, FallingEdge, b.chargePulse); err != nil {
			return fmt.Errorf("failed to attach interrupt on pin %d: %w", interrupt, err)
		}
		b.pulseAttached = true
	}
	if !b.polarityAttached {
		polarityChanged := func() {
			b.latch.onPolarityChange(b.board.ReadPin(polarity))
		}
		if err := b.board.AttachInterrupt(polarity, BothEdges, polarityChanged); err != nil {
			return fmt.Errorf("failed to attach polarity interrupt on pin %d: %w", polarity, err)
		}
		b.polarityAttached = true
	}

	b.setup = true
	log.Infof("Battery setup: %.2f/%.2fmAh (rated %.2fmAh), %.1f%%, %s",
		b.mAh, b.mAhMax, b.mAhRated, b.percentage, b.latch.state())
	return nil
}

func (b *Battery) chargePulse() {
	b.latch.onChargePulse(b.clock.Micros())
}

type event int

const (
	eventCharging event = iota
	eventDischarging
	eventCapacityChanged
	eventRecalibrated
)

// Poll processes the signals latched since the last call. It must be called
// at least once between any two pulses as only one pulse is buffered.
// Callbacks run on the calling goroutine after the state has been updated.
func (b *Battery) Poll() {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	var events [2]event
	n := 0

	b.mu.Lock()
	if !b.setup {
		b.mu.Unlock()
		return
	}
	callbacks := b.callbacks

	if b.latch.takePolarity() {
		if b.latch.state() == Charging {
			events[n] = eventCharging
		} else {
			events[n] = eventDischarging
		}
		n++
	}

	if !b.latch.takePulse() {
		if b.fullyCharged() {
			b.percentage = 100
			b.mAh = b.mAhRated
			b.mAhMax = b.mAhRated
			events[n] = eventRecalibrated
			n++
		}
		b.mu.Unlock()
		fire(callbacks, events[:n])
		return
	}

	if b.latch.pulseState() == Charging {
		b.mAh += b.sensor.ChargePerPulse
		b.percentage += b.percentQuanta
		if b.mAh > b.mAhMax {
			b.mAhMax = b.mAh
			b.percentage = 100
		}
	} else {
		b.mAh -= b.sensor.ChargePerPulse
		b.percentage -= b.percentQuanta
		if b.mAh < 0 {
			b.mAhMax -= b.mAh
			b.mAh = 0
			b.percentage = 0
		}
	}
	// percentQuanta is only derived at setup so the percentage can drift
	// past the ends after the maximum has been corrected.
	b.percentage = clamp(b.percentage, 0, 100)

	if delta := b.latch.delta.Load(); delta > 0 {
		b.mAhChange = b.sensor.currentFromInterval(delta)
	}

	mAh, mAhMax := b.mAh, b.mAhMax
	events[n] = eventCapacityChanged
	n++
	b.mu.Unlock()

	b.store.SetLastCapacity(mAh)
	b.store.SetMaxCapacity(mAhMax)

	fire(callbacks, events[:n])
}

// fullyCharged reports if the battery has been charging for the dwell time
// without a pulse while not already being calibrated as full.
func (b *Battery) fullyCharged() bool {
	if b.latch.state() != Charging {
		return false
	}
	// lastPulse is loaded before the clock is read. A pulse landing between
	// the two reads must not look like a gap of nearly 2^64 microseconds.
	last := b.latch.lastPulse.Load()
	now := b.clock.Micros()
	if now < last || now-last <= b.dwell {
		return false
	}
	return b.mAhMax != b.mAhRated || b.mAh < b.mAhMax
}

func fire(c Callbacks, events []event) {
	for _, e := range events {
		switch e {
		case eventCharging:
			c.OnBatteryNowCharging()
		case eventDischarging:
			c.OnBatteryNowDischarging()
		case eventCapacityChanged:
			c.OnBatteryRemainingCapacityChanged()
		case eventRecalibrated:
			c.OnBatteryRecalibrated()
		}
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

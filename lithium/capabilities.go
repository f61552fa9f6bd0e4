package lithium

// Pin is a board level GPIO number. On the Raspberry Pi this is the BCM number.
type Pin uint8

// Edge selects which signal transitions fire an interrupt handler.
type Edge int

const (
	FallingEdge Edge = iota
	RisingEdge
	BothEdges
)

func (e Edge) String() string {
	switch e {
	case FallingEdge:
		return "falling"
	case RisingEdge:
		return "rising"
	case BothEdges:
		return "both"
	}
	return "unknown"
}

// Pins supplies the GPIO pins the coulomb counter is wired to.
type Pins interface {
	// PinInterrupt is the counter's charge pulse output (INT).
	PinInterrupt() Pin
	// PinPolarity is the counter's polarity output (POL), high while charging.
	PinPolarity() Pin
	// PinRefHigh is driven high to supply the counter's VIO reference.
	PinRefHigh() Pin
	// PinRefLow is driven low to supply the counter's ground reference.
	PinRefLow() Pin
}

// DefaultPins is the TC2 hat wiring.
type DefaultPins struct{}

func (DefaultPins) PinInterrupt() Pin { return 17 }
func (DefaultPins) PinPolarity() Pin  { return 4 }
func (DefaultPins) PinRefHigh() Pin   { return 23 }
func (DefaultPins) PinRefLow() Pin    { return 5 }

// ESP32Pins is the common ESP32 dev board wiring for an LTC4150 breakout.
type ESP32Pins struct{}

func (ESP32Pins) PinInterrupt() Pin { return 35 }
func (ESP32Pins) PinPolarity() Pin  { return 4 }
func (ESP32Pins) PinRefHigh() Pin   { return 23 }
func (ESP32Pins) PinRefLow() Pin    { return 5 }

// FixedPins holds pin numbers decided at runtime, e.g. from a config file.
type FixedPins struct {
	Interrupt Pin
	Polarity  Pin
	RefHigh   Pin
	RefLow    Pin
}

func (p FixedPins) PinInterrupt() Pin { return p.Interrupt }
func (p FixedPins) PinPolarity() Pin  { return p.Polarity }
func (p FixedPins) PinRefHigh() Pin   { return p.RefHigh }
func (p FixedPins) PinRefLow() Pin    { return p.RefLow }

// Storage persists the battery capacity across power cycles.
// Implementations return the supplied default when a value has never been
// stored or can not be read.
type Storage interface {
	LastCapacity(def float64) float64
	SetLastCapacity(mAh float64)
	MaxCapacity(def float64) float64
	SetMaxCapacity(mAh float64)
}

// Callbacks receives battery events. They are only ever called from Poll,
// never from the signal handlers. Embed NoCallbacks to only implement some.
type Callbacks interface {
	OnBatteryNowCharging()
	OnBatteryNowDischarging()
	OnBatteryRemainingCapacityChanged()
	OnBatteryRecalibrated()
}

// NoCallbacks ignores every event.
type NoCallbacks struct{}

func (NoCallbacks) OnBatteryNowCharging()              {}
func (NoCallbacks) OnBatteryNowDischarging()           {}
func (NoCallbacks) OnBatteryRemainingCapacityChanged() {}
func (NoCallbacks) OnBatteryRecalibrated()             {}

// Board is the GPIO access the battery needs.
// Handlers passed to AttachInterrupt must be invoked once per matching edge
// and may run concurrently with everything else.
type Board interface {
	ConfigureInput(pin Pin) error
	ConfigureOutput(pin Pin, high bool) error
	ReadPin(pin Pin) bool
	AttachInterrupt(pin Pin, edge Edge, handler func()) error
}

package periphboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-battery-gauge/batterystore"
	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type testPins map[string]*gpiotest.Pin

func newTestPins(pins lithium.Pins) testPins {
	p := testPins{}
	for _, n := range []lithium.Pin{pins.PinInterrupt(), pins.PinPolarity(), pins.PinRefHigh(), pins.PinRefLow()} {
		name := PinName(n)
		p[name] = &gpiotest.Pin{N: name, Num: int(n), EdgesChan: make(chan gpio.Level)}
	}
	return p
}

func (p testPins) byName(name string) gpio.PinIO {
	pin, ok := p[name]
	if !ok {
		return nil
	}
	return pin
}

func newTestBoard(t *testing.T, pins testPins) *Board {
	b := newBoard(context.Background(), pins.byName)
	b.edgeTimeout = 10 * time.Millisecond
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPinName(t *testing.T) {
	assert.Equal(t, "GPIO17", PinName(17))
	assert.Equal(t, "GPIO4", PinName(4))
}

func TestConfigurePins(t *testing.T) {
	pins := newTestPins(lithium.DefaultPins{})
	b := newTestBoard(t, pins)

	require.NoError(t, b.ConfigureOutput(23, true))
	require.NoError(t, b.ConfigureOutput(5, false))
	assert.Equal(t, gpio.High, pins["GPIO23"].Read())
	assert.Equal(t, gpio.Low, pins["GPIO5"].Read())

	require.NoError(t, b.ConfigureInput(4))
	pins["GPIO4"].Out(gpio.High)
	assert.True(t, b.ReadPin(4))

	assert.Error(t, b.ConfigureInput(40))
	assert.Error(t, b.ConfigureOutput(40, true))
	assert.False(t, b.ReadPin(40))
	assert.Error(t, b.AttachInterrupt(40, lithium.FallingEdge, func() {}))
}

func TestInterruptCallsHandler(t *testing.T) {
	pins := newTestPins(lithium.DefaultPins{})
	b := newTestBoard(t, pins)

	var count atomic.Int32
	require.NoError(t, b.AttachInterrupt(17, lithium.FallingEdge, func() { count.Add(1) }))

	for i := 0; i < 3; i++ {
		pins["GPIO17"].EdgesChan <- gpio.Low
	}
	require.Eventually(t, func() bool { return count.Load() == 3 }, time.Second, time.Millisecond)
}

func TestCloseStopsWatchers(t *testing.T) {
	pins := newTestPins(lithium.DefaultPins{})
	b := newBoard(context.Background(), pins.byName)
	b.edgeTimeout = 10 * time.Millisecond

	var count atomic.Int32
	require.NoError(t, b.AttachInterrupt(17, lithium.FallingEdge, func() { count.Add(1) }))
	require.NoError(t, b.Close())

	select {
	case pins["GPIO17"].EdgesChan <- gpio.Low:
		t.Fatal("edge was received after close")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, count.Load())
}

func TestBatteryOnPeriphPins(t *testing.T) {
	pins := newTestPins(lithium.DefaultPins{})
	b := newTestBoard(t, pins)
	store := batterystore.NewMemory()

	battery := lithium.New(b, store)
	require.NoError(t, battery.Setup(1000))
	assert.Equal(t, gpio.High, pins["GPIO23"].Read())
	assert.Equal(t, gpio.Low, pins["GPIO5"].Read())
	require.Equal(t, lithium.Discharging, battery.State())

	pins["GPIO17"].EdgesChan <- gpio.Low
	require.Eventually(t, func() bool {
		battery.Poll()
		return battery.CurrentCapacity() < 1000
	}, time.Second, time.Millisecond)
	assert.InDelta(t, 1000-lithium.LTC4150.ChargePerPulse, store.LastCapacity(0), 1e-9)

	pins["GPIO4"].EdgesChan <- gpio.High
	require.Eventually(t, battery.IsCharging, time.Second, time.Millisecond)
}

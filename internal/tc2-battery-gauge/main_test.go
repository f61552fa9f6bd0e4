package gauge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcArgs(t *testing.T) {
	args, err := procArgs([]string{
		"--rated-capacity", "1500",
		"--pin-interrupt", "35",
		"--poll-interval", "100ms",
		"--store", "json",
		"service",
	})
	require.NoError(t, err)
	require.NotNil(t, args.Service)
	assert.Nil(t, args.Status)
	require.NotNil(t, args.RatedCapacity)
	assert.Equal(t, 1500.0, *args.RatedCapacity)
	require.NotNil(t, args.PinInterrupt)
	assert.Equal(t, uint8(35), *args.PinInterrupt)
	require.NotNil(t, args.PollInterval)
	assert.Equal(t, 100*time.Millisecond, *args.PollInterval)
	require.NotNil(t, args.Store)
	assert.Equal(t, "json", *args.Store)
	assert.Nil(t, args.PinPolarity, "flag not given")
	assert.Nil(t, args.EventThreshold, "flag not given")
	assert.Equal(t, "info", args.LogLevel)

	args, err = procArgs([]string{"status"})
	require.NoError(t, err)
	assert.NotNil(t, args.Status)
}

func ptr[T any](v T) *T { return &v }

func TestApplyArgs(t *testing.T) {
	c := DefaultConfig()
	applyArgs(&c, Args{})
	assert.Equal(t, DefaultConfig(), c)

	applyArgs(&c, Args{
		RatedCapacity:  ptr(2600.0),
		PinInterrupt:   ptr(uint8(35)),
		Dwell:          ptr(time.Minute),
		EventThreshold: ptr(1.0),
		MetricsAddress: ptr(":9100"),
	})
	assert.Equal(t, 2600.0, c.RatedCapacity)
	assert.Equal(t, uint8(35), c.PinInterrupt)
	assert.Equal(t, uint8(4), c.PinPolarity)
	assert.Equal(t, time.Minute, c.Dwell)
	assert.Equal(t, 1.0, c.EventThreshold)
	assert.Equal(t, ":9100", c.MetricsAddress)
	assert.Equal(t, storeBolt, c.Store)
}

func TestZeroFlagsOverrideConfig(t *testing.T) {
	c := DefaultConfig()
	c.PinRefLow = 6
	c.MetricsAddress = ":9100"

	args, err := procArgs([]string{
		"--pin-ref-low", "0",
		"--event-threshold", "0",
		"--metrics-address", "",
		"service",
	})
	require.NoError(t, err)
	applyArgs(&c, args)

	assert.Equal(t, uint8(0), c.PinRefLow)
	assert.Equal(t, 0.0, c.EventThreshold)
	assert.Equal(t, "", c.MetricsAddress)
	assert.Equal(t, uint8(17), c.PinInterrupt, "untouched without a flag")
}

func TestDefaultConfigMatchesBoard(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.validate())
	assert.Equal(t, lithium.DefaultDwell, c.Dwell)

	pins := c.Pins()
	def := lithium.DefaultPins{}
	assert.Equal(t, def.PinInterrupt(), pins.PinInterrupt())
	assert.Equal(t, def.PinPolarity(), pins.PinPolarity())
	assert.Equal(t, def.PinRefHigh(), pins.PinRefHigh())
	assert.Equal(t, def.PinRefLow(), pins.PinRefLow())
}

func TestConfigValidate(t *testing.T) {
	for name, modify := range map[string]func(*Config){
		"rated capacity": func(c *Config) { c.RatedCapacity = 0 },
		"poll interval":  func(c *Config) { c.PollInterval = 0 },
		"dwell":          func(c *Config) { c.Dwell = -time.Second },
		"store":          func(c *Config) { c.Store = "sqlite" },
	} {
		c := DefaultConfig()
		modify(&c)
		assert.Error(t, c.validate(), name)
	}
}

func TestOpenStore(t *testing.T) {
	c := DefaultConfig()
	c.Store = storeMemory
	s, closeStore, err := openStore(&c)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, s.MaxCapacity(1000))
	closeStore()

	c.Store = storeBolt
	c.StateFile = t.TempDir() + "/battery.db"
	s, closeStore, err = openStore(&c)
	require.NoError(t, err)
	s.SetLastCapacity(12.5)
	assert.Equal(t, 12.5, s.LastCapacity(0))
	closeStore()

	c.Store = "sqlite"
	_, _, err = openStore(&c)
	assert.Error(t, err)
}

func TestCustomFormatter(t *testing.T) {
	entry := &logrus.Entry{Level: logrus.WarnLevel, Message: "Battery low"}
	out, err := new(customFormatter).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[WARNING] Battery low\n", string(out))
}

type countingPoller struct {
	polls atomic.Int32
}

func (p *countingPoller) Poll() { p.polls.Add(1) }

func (p *countingPoller) Status() lithium.Status {
	return lithium.Status{State: "discharging", TimeToEmptySeconds: 3600, TimeToFullSeconds: -1}
}

func TestPollLoopStopsWithContext(t *testing.T) {
	p := &countingPoller{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pollLoop(ctx, p, time.Millisecond, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.polls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}
}

package gauge

import (
	"fmt"
	"time"

	"github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
)

const (
	configKey = "battery-gauge"

	storeBolt   = "bolt"
	storeJSON   = "json"
	storeMemory = "memory"

	statusLogInterval = 10 * time.Minute
)

// Config is the "battery-gauge" section of the device config. Flags given on
// the command line take precedence over it.
type Config struct {
	RatedCapacity  float64       `mapstructure:"rated-capacity"`
	PinInterrupt   uint8         `mapstructure:"pin-interrupt"`
	PinPolarity    uint8         `mapstructure:"pin-polarity"`
	PinRefHigh     uint8         `mapstructure:"pin-ref-high"`
	PinRefLow      uint8         `mapstructure:"pin-ref-low"`
	Store          string        `mapstructure:"store"`
	StateFile      string        `mapstructure:"state-file"`
	PollInterval   time.Duration `mapstructure:"poll-interval"`
	Dwell          time.Duration `mapstructure:"dwell"`
	EventThreshold float64       `mapstructure:"event-threshold"`
	MetricsAddress string        `mapstructure:"metrics-address"`
}

func DefaultConfig() Config {
	pins := lithium.DefaultPins{}
	return Config{
		RatedCapacity:  2000,
		PinInterrupt:   uint8(pins.PinInterrupt()),
		PinPolarity:    uint8(pins.PinPolarity()),
		PinRefHigh:     uint8(pins.PinRefHigh()),
		PinRefLow:      uint8(pins.PinRefLow()),
		Store:          storeBolt,
		StateFile:      "/var/lib/tc2-battery-gauge/battery.db",
		PollInterval:   50 * time.Millisecond,
		Dwell:          lithium.DefaultDwell,
		EventThreshold: 5,
	}
}

// Pins returns the counter wiring described by the config.
func (c Config) Pins() lithium.Pins {
	return lithium.FixedPins{
		Interrupt: lithium.Pin(c.PinInterrupt),
		Polarity:  lithium.Pin(c.PinPolarity),
		RefHigh:   lithium.Pin(c.PinRefHigh),
		RefLow:    lithium.Pin(c.PinRefLow),
	}
}

func (c Config) validate() error {
	if c.RatedCapacity <= 0 {
		return fmt.Errorf("rated capacity must be positive, got %.2fmAh", c.RatedCapacity)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.Dwell <= 0 {
		return fmt.Errorf("dwell must be positive, got %s", c.Dwell)
	}
	switch c.Store {
	case storeBolt, storeJSON, storeMemory:
	default:
		return fmt.Errorf("unknown store '%s'", c.Store)
	}
	return nil
}

// ParseConfig reads the config section from configDir. A device config
// without the section runs on the defaults.
func ParseConfig(configDir string, args Args) (*Config, error) {
	c := DefaultConfig()

	conf, err := config.New(configDir)
	if err != nil {
		return nil, err
	}
	if err := conf.Unmarshal(configKey, &c); err != nil {
		log.Warnf("Failed to read '%s' config, using defaults: %v", configKey, err)
		c = DefaultConfig()
	}

	applyArgs(&c, args)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyArgs overrides the config with any flags that were given.
func applyArgs(c *Config, args Args) {
	set(&c.RatedCapacity, args.RatedCapacity)
	set(&c.PinInterrupt, args.PinInterrupt)
	set(&c.PinPolarity, args.PinPolarity)
	set(&c.PinRefHigh, args.PinRefHigh)
	set(&c.PinRefLow, args.PinRefLow)
	set(&c.Store, args.Store)
	set(&c.StateFile, args.StateFile)
	set(&c.PollInterval, args.PollInterval)
	set(&c.Dwell, args.Dwell)
	set(&c.EventThreshold, args.EventThreshold)
	set(&c.MetricsAddress, args.MetricsAddress)
}

func set[T any](dst *T, flag *T) {
	if flag != nil {
		*dst = *flag
	}
}

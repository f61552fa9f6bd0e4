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

package gauge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/tc2-battery-gauge/batterystore"
	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/TheCacophonyProject/tc2-battery-gauge/periphboard"
	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
)

type Args struct {
	Service *subcommand `arg:"subcommand:service" help:"Start the battery gauge and its dbus service."`
	Status  *subcommand `arg:"subcommand:status" help:"Print the status reported by the running battery gauge."`

	// Pointers so a flag that was given is told apart from one that wasn't,
	// even when it is set to zero.
	RatedCapacity  *float64       `arg:"--rated-capacity" help:"Capacity printed on the battery in mAh"`
	PinInterrupt   *uint8         `arg:"--pin-interrupt" help:"GPIO connected to the counter's INT output"`
	PinPolarity    *uint8         `arg:"--pin-polarity" help:"GPIO connected to the counter's POL output"`
	PinRefHigh     *uint8         `arg:"--pin-ref-high" help:"GPIO supplying the counter's VIO reference"`
	PinRefLow      *uint8         `arg:"--pin-ref-low" help:"GPIO supplying the counter's ground reference"`
	Store          *string        `arg:"--store" help:"Where to keep the capacity (bolt, json, memory)"`
	StateFile      *string        `arg:"--state-file" help:"File to keep the capacity in"`
	PollInterval   *time.Duration `arg:"--poll-interval" help:"How often to process counter pulses"`
	Dwell          *time.Duration `arg:"--dwell" help:"How long the battery must charge without a pulse to be treated as full"`
	EventThreshold *float64       `arg:"--event-threshold" help:"Percentage change needed before reporting a battery event"`
	MetricsAddress *string        `arg:"--metrics-address" help:"Address to serve prometheus metrics on, disabled if empty"`
	LogLevel       string         `arg:"-l, --log-level" help:"Set the logging level (debug, info, warn, error)"`
	goconfig.ConfigArgs
}

type subcommand struct {
}

var (
	log     = logrus.New()
	version = "<not set>"
)

var defaultArgs = Args{
	LogLevel: "info",
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

// customFormatter defines a new logrus formatter.
type customFormatter struct{}

// Format builds the log message string from the log entry.
func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log.SetFormatter(new(customFormatter))
	setLogLevel(args.LogLevel)
	lithium.SetLogger(log)
	batterystore.SetLogger(log)
	periphboard.SetLogger(log)

	log.Infof("Running version: %s", version)

	switch {
	case args.Status != nil:
		return printStatus()
	case args.Service != nil:
		conf, err := ParseConfig(args.ConfigDir, args)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runService(ctx, conf)
	}
	return errors.New("no subcommand given, use service or status")
}

func printStatus() error {
	status, err := getStatus()
	if err != nil {
		return err
	}
	fmt.Printf("State:         %s\n", status.State)
	fmt.Printf("Percentage:    %.1f%%\n", status.Percentage)
	fmt.Printf("Capacity:      %.2f/%.2fmAh (rated %.2fmAh)\n",
		status.CurrentCapacity, status.MaximumCapacity, status.RatedCapacity)
	fmt.Printf("Current:       %.2fmA\n", status.ChangeCapacity)
	if status.TimeToEmptySeconds >= 0 {
		fmt.Printf("Time to empty: %s\n", durToStr(secondsToDuration(status.TimeToEmptySeconds)))
	}
	if status.TimeToFullSeconds >= 0 {
		fmt.Printf("Time to full:  %s\n", durToStr(secondsToDuration(status.TimeToFullSeconds)))
	}
	return nil
}

func runService(ctx context.Context, conf *Config) error {
	log.Infof("Rated capacity %.2fmAh, pins INT=%d POL=%d VIO=%d GND=%d",
		conf.RatedCapacity, conf.PinInterrupt, conf.PinPolarity, conf.PinRefHigh, conf.PinRefLow)

	if err := periphboard.Init(); err != nil {
		return err
	}
	board := periphboard.New(ctx)
	defer board.Close()

	store, closeStore, err := openStore(conf)
	if err != nil {
		return err
	}
	defer closeStore()

	battery := lithium.New(board, store, lithium.WithDwell(conf.Dwell))
	battery.SetPins(conf.Pins())
	m := newMetrics()
	battery.SetCallbacks(newEventCallbacks(battery, m, conf.EventThreshold))

	if err := battery.Setup(conf.RatedCapacity); err != nil {
		return err
	}
	m.update(battery.Status())

	log.Debug("Starting battery gauge DBus service.")
	if err := startService(battery); err != nil {
		return err
	}

	if conf.MetricsAddress != "" {
		go func() {
			if err := serveMetrics(ctx, conf.MetricsAddress, m); err != nil {
				log.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	pollLoop(ctx, battery, conf.PollInterval, statusLogInterval)
	log.Info("Stopping battery gauge")
	return nil
}

func openStore(conf *Config) (lithium.Storage, func(), error) {
	switch conf.Store {
	case storeBolt:
		s, err := batterystore.OpenBolt(conf.StateFile)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error(err)
			}
		}, nil
	case storeJSON:
		return batterystore.OpenFile(conf.StateFile), func() {}, nil
	case storeMemory:
		log.Warn("Battery capacity will not be kept across restarts")
		return batterystore.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store '%s'", conf.Store)
}

func durToStr(duration time.Duration) string {
	return duration.Truncate(time.Second).String()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Package periphboard drives the coulomb counter pins through periph.io.
package periphboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const defaultEdgeTimeout = 500 * time.Millisecond

var log = logrus.New()

func SetLogger(l *logrus.Logger) {
	log = l
}

// Init initializes the periph host drivers. Call it before New.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	return nil
}

// Board implements lithium.Board. Each attached interrupt is served by its
// own goroutine waiting on the pin's edges.
type Board struct {
	byName      func(string) gpio.PinIO
	edgeTimeout time.Duration

	mu       sync.Mutex
	pins     map[lithium.Pin]gpio.PinIO
	watching []gpio.PinIO

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a board using the registered GPIO pins. The edge watchers stop
// when ctx is done or Close is called.
func New(ctx context.Context) *Board {
	return newBoard(ctx, gpioreg.ByName)
}

func newBoard(ctx context.Context, byName func(string) gpio.PinIO) *Board {
	ctx, cancel := context.WithCancel(ctx)
	return &Board{
		byName:      byName,
		edgeTimeout: defaultEdgeTimeout,
		pins:        map[lithium.Pin]gpio.PinIO{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// PinName is the periph name for a BCM pin number.
func PinName(p lithium.Pin) string {
	return fmt.Sprintf("GPIO%d", p)
}

func (b *Board) pin(p lithium.Pin) (gpio.PinIO, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin, ok := b.pins[p]; ok {
		return pin, nil
	}
	name := PinName(p)
	pin := b.byName(name)
	if pin == nil {
		return nil, fmt.Errorf("GPIO pin %s not found", name)
	}
	b.pins[p] = pin
	return pin, nil
}

func (b *Board) ConfigureInput(p lithium.Pin) error {
	pin, err := b.pin(p)
	if err != nil {
		return err
	}
	log.Debugf("Setting %s as input", pin)
	return pin.In(gpio.PullNoChange, gpio.NoEdge)
}

func (b *Board) ConfigureOutput(p lithium.Pin, high bool) error {
	pin, err := b.pin(p)
	if err != nil {
		return err
	}
	level := gpio.Low
	if high {
		level = gpio.High
	}
	log.Debugf("Setting %s output %s", pin, level)
	return pin.Out(level)
}

// ReadPin returns false for pins that can't be found.
func (b *Board) ReadPin(p lithium.Pin) bool {
	pin, err := b.pin(p)
	if err != nil {
		return false
	}
	return pin.Read() == gpio.High
}

func toPeriphEdge(e lithium.Edge) gpio.Edge {
	switch e {
	case lithium.RisingEdge:
		return gpio.RisingEdge
	case lithium.BothEdges:
		return gpio.BothEdges
	}
	return gpio.FallingEdge
}

func (b *Board) AttachInterrupt(p lithium.Pin, edge lithium.Edge, handler func()) error {
	pin, err := b.pin(p)
	if err != nil {
		return err
	}
	if err := pin.In(gpio.PullNoChange, toPeriphEdge(edge)); err != nil {
		return fmt.Errorf("failed to enable %s edge detection on %s: %w", edge, pin, err)
	}
	b.mu.Lock()
	b.watching = append(b.watching, pin)
	b.mu.Unlock()

	log.Debugf("Watching %s for %s edges", pin, edge)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			if pin.WaitForEdge(b.edgeTimeout) {
				handler()
			}
		}
	}()
	return nil
}

// Close stops the edge watchers and disables edge detection.
func (b *Board) Close() error {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, pin := range b.watching {
		if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.watching = nil
	return firstErr
}

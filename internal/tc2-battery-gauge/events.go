package gauge

import (
	"math"
	"sync"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
)

// Swapped out in tests.
var (
	addEvent           = eventclient.AddEvent
	emitCapacitySignal = sendCapacitySignal
	now                = time.Now
)

// eventCallbacks passes battery changes on to the logs, the event reporter,
// DBus listeners and the metrics.
type eventCallbacks struct {
	battery   *lithium.Battery
	metrics   *metrics
	threshold float64

	mu           sync.Mutex
	reported     bool
	lastReported float64
}

func newEventCallbacks(battery *lithium.Battery, m *metrics, threshold float64) *eventCallbacks {
	return &eventCallbacks{
		battery:   battery,
		metrics:   m,
		threshold: threshold,
	}
}

func (c *eventCallbacks) OnBatteryNowCharging() {
	log.Infof("Battery now charging at %.1f%%", c.battery.Percentage())
	c.metrics.setCharging(true)
	c.report("batteryCharging", c.battery.Status())
}

func (c *eventCallbacks) OnBatteryNowDischarging() {
	log.Infof("Battery now discharging at %.1f%%", c.battery.Percentage())
	c.metrics.setCharging(false)
	c.report("batteryDischarging", c.battery.Status())
}

func (c *eventCallbacks) OnBatteryRemainingCapacityChanged() {
	status := c.battery.Status()
	log.Debugf("Battery %.3f/%.3fmAh %.2f%% at %.2fmA",
		status.CurrentCapacity, status.MaximumCapacity, status.Percentage, status.ChangeCapacity)
	c.metrics.recordPulse(c.battery.LastPulseState())
	c.metrics.update(status)

	if err := emitCapacitySignal(status.CurrentCapacity, status.Percentage); err != nil {
		log.Errorf("Failed to send capacity signal: %v", err)
	}
	if c.shouldReport(status.Percentage) {
		c.report("coulombBattery", status)
	}
}

func (c *eventCallbacks) OnBatteryRecalibrated() {
	status := c.battery.Status()
	log.Infof("Battery full, maximum capacity is now %.2fmAh", status.MaximumCapacity)
	c.metrics.recordRecalibration()
	c.metrics.update(status)
	c.report("batteryRecalibrated", status)
}

// shouldReport is true for the first reading and then whenever the percentage
// has moved by at least the threshold since the last report.
func (c *eventCallbacks) shouldReport(percent float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reported && math.Abs(percent-c.lastReported) < c.threshold {
		return false
	}
	c.reported = true
	c.lastReported = percent
	return true
}

func (c *eventCallbacks) report(eventType string, s lithium.Status) {
	details := map[string]interface{}{
		"state":      s.State,
		"percentage": math.Round(s.Percentage*10) / 10,
		"mAh":        s.CurrentCapacity,
		"mAhMax":     s.MaximumCapacity,
		"mAhRated":   s.RatedCapacity,
		"mA":         s.ChangeCapacity,
	}
	if s.TimeToEmptySeconds >= 0 {
		details["timeToEmptySeconds"] = math.Round(s.TimeToEmptySeconds)
	}
	if s.TimeToFullSeconds >= 0 {
		details["timeToFullSeconds"] = math.Round(s.TimeToFullSeconds)
	}
	err := addEvent(eventclient.Event{
		Timestamp: now(),
		Type:      eventType,
		Details:   details,
	})
	if err != nil {
		log.Errorf("Error adding %s event: %v", eventType, err)
	}
}

package gauge

import (
	"context"
	"time"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
)

type poller interface {
	Poll()
	Status() lithium.Status
}

// pollLoop processes counter pulses every interval and logs the battery
// status every logInterval until ctx is done.
func pollLoop(ctx context.Context, battery poller, interval, logInterval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastLog := time.Now()
	logStatus(battery.Status())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			battery.Poll()
			if time.Since(lastLog) >= logInterval {
				logStatus(battery.Status())
				lastLog = time.Now()
			}
		}
	}
}

func logStatus(s lithium.Status) {
	msg := ""
	if s.TimeToEmptySeconds >= 0 {
		msg = ", empty in " + durToStr(secondsToDuration(s.TimeToEmptySeconds))
	} else if s.TimeToFullSeconds >= 0 {
		msg = ", full in " + durToStr(secondsToDuration(s.TimeToFullSeconds))
	}
	log.Infof("Battery %s %.1f%% (%.1f/%.1fmAh)%s",
		s.State, s.Percentage, s.CurrentCapacity, s.MaximumCapacity, msg)
}

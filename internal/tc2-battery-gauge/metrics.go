package gauge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics exports the gauge readings on their own registry so only battery
// metrics are served.
type metrics struct {
	registry       *prometheus.Registry
	percentage     prometheus.Gauge
	capacity       *prometheus.GaugeVec
	rate           prometheus.Gauge
	charging       prometheus.Gauge
	pulses         *prometheus.CounterVec
	recalibrations prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		percentage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battery_gauge_percentage",
			Help: "Remaining battery charge as a percentage",
		}),
		capacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_gauge_capacity_mah",
			Help: "Battery capacity in mAh",
		}, []string{"kind"}),
		rate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battery_gauge_rate_ma",
			Help: "Current measured between the last two pulses in mA",
		}),
		charging: factory.NewGauge(prometheus.GaugeOpts{
			Name: "battery_gauge_charging",
			Help: "1 when the battery is charging",
		}),
		pulses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "battery_gauge_pulses_total",
			Help: "Total number of coulomb counter pulses",
		}, []string{"direction"}),
		recalibrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "battery_gauge_recalibrations_total",
			Help: "Total number of full charge recalibrations",
		}),
	}
}

func (m *metrics) update(s lithium.Status) {
	m.percentage.Set(s.Percentage)
	m.capacity.WithLabelValues("current").Set(s.CurrentCapacity)
	m.capacity.WithLabelValues("max").Set(s.MaximumCapacity)
	m.capacity.WithLabelValues("rated").Set(s.RatedCapacity)
	m.rate.Set(s.ChangeCapacity)
	m.setCharging(s.State == lithium.Charging.String())
}

func (m *metrics) setCharging(charging bool) {
	if charging {
		m.charging.Set(1)
	} else {
		m.charging.Set(0)
	}
}

func (m *metrics) recordPulse(direction lithium.BatteryState) {
	m.pulses.WithLabelValues(direction.String()).Inc()
}

func (m *metrics) recordRecalibration() {
	m.recalibrations.Inc()
}

// serveMetrics serves the registry on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Failed to stop metrics server: %v", err)
		}
	}()

	log.Infof("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

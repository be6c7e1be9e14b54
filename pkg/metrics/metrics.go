// Package metrics exposes Prometheus collectors for rounds and wagers.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the game collectors. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	wagersAccepted     *prometheus.CounterVec
	wagersRejected     *prometheus.CounterVec
	stakeTotal         *prometheus.CounterVec
	payoutTotal        *prometheus.CounterVec
	roundsSettled      *prometheus.CounterVec
	forcedOutcomes     *prometheus.CounterVec
	settlementDuration *prometheus.HistogramVec
	modeHalted         *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		wagersAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "color_game_wagers_accepted_total", Help: "wagers accepted per mode",
		}, []string{"mode", "kind"}),
		wagersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "color_game_wagers_rejected_total", Help: "wagers rejected per mode and reason",
		}, []string{"mode", "reason"}),
		stakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "color_game_stake_total", Help: "sum of accepted stakes",
		}, []string{"mode"}),
		payoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "color_game_payout_total", Help: "sum of settlement payouts",
		}, []string{"mode"}),
		roundsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "color_game_rounds_settled_total", Help: "rounds settled per mode",
		}, []string{"mode"}),
		forcedOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "color_game_forced_outcomes_total", Help: "settlements resolved by an operator override",
		}, []string{"mode"}),
		settlementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "color_game_settlement_duration_seconds",
			Help:    "time spent settling one round",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1},
		}, []string{"mode"}),
		modeHalted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "color_game_mode_halted", Help: "1 when a mode stopped ticking after an invariant violation",
		}, []string{"mode"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.wagersAccepted, m.wagersRejected, m.stakeTotal, m.payoutTotal,
			m.roundsSettled, m.forcedOutcomes, m.settlementDuration, m.modeHalted,
		)
	}
	return m
}

func (m *Metrics) WagerAccepted(mode, kind string, amount int64) {
	if m == nil {
		return
	}
	m.wagersAccepted.WithLabelValues(mode, kind).Inc()
	m.stakeTotal.WithLabelValues(mode).Add(float64(amount))
}

func (m *Metrics) WagerRejected(mode, reason string) {
	if m == nil {
		return
	}
	m.wagersRejected.WithLabelValues(mode, reason).Inc()
}

func (m *Metrics) RoundSettled(mode string, payout int64, forced bool, took time.Duration) {
	if m == nil {
		return
	}
	m.roundsSettled.WithLabelValues(mode).Inc()
	m.payoutTotal.WithLabelValues(mode).Add(float64(payout))
	m.settlementDuration.WithLabelValues(mode).Observe(took.Seconds())
	if forced {
		m.forcedOutcomes.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) ModeHalted(mode string) {
	if m == nil {
		return
	}
	m.modeHalted.WithLabelValues(mode).Set(1)
}

// HealthFunc reports whether the service is healthy
type HealthFunc func(ctx context.Context) error

// NewServer builds a small HTTP server serving /metrics from gatherer and
// /healthz from healthFn. The caller starts and stops it.
func NewServer(port string, gatherer prometheus.Gatherer, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if healthFn != nil {
			if err := healthFn(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
}

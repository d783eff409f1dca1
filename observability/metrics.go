package observability

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// coded is satisfied by errors carrying a stable numeric code.
type coded interface {
	error
	ErrorCode() uint16
}

// StakingMetrics tracks the pool accounting engine.
type StakingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	invariants  *prometheus.CounterVec
	totalStaked *prometheus.GaugeVec
	rewardsPaid *prometheus.CounterVec
	keeper      *prometheus.CounterVec
}

// Staking returns the singleton metrics registry for the staking engine.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Count of staking operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for staking operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "errors_total",
				Help:      "Count of staking failures segmented by operation and error code.",
			}, []string{"operation", "code"}),
			invariants: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "invariant_violations_total",
				Help:      "Count of detected divergences between the ledger and custody.",
			}, []string{"kind"}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Principal currently staked per pool in base units.",
			}, []string{"pool"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "rewards_paid_total",
				Help:      "Reward units paid out per pool.",
			}, []string{"pool"}),
			keeper: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "staking",
				Name:      "keeper_settlements_total",
				Help:      "Count of keeper settlement attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.errors,
			stakingRegistry.invariants,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardsPaid,
			stakingRegistry.keeper,
		)
	})
	return stakingRegistry
}

// Observe records the outcome of a staking operation. Errors are labelled by
// their numeric code so the label set stays bounded.
func (m *StakingMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, errorCode(err)).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func errorCode(err error) string {
	var c coded
	if errors.As(err, &c) {
		return strconv.FormatUint(uint64(c.ErrorCode()), 10)
	}
	return "unknown"
}

// InvariantViolation counts a ledger/custody divergence of the given kind.
func (m *StakingMetrics) InvariantViolation(kind string) {
	if m == nil {
		return
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "unspecified"
	}
	m.invariants.WithLabelValues(kind).Inc()
}

// SetTotalStaked publishes the principal currently staked in pool.
func (m *StakingMetrics) SetTotalStaked(pool string, total uint64) {
	if m == nil {
		return
	}
	m.totalStaked.WithLabelValues(pool).Set(float64(total))
}

// AddRewardsPaid accumulates a reward payout for pool.
func (m *StakingMetrics) AddRewardsPaid(pool string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.rewardsPaid.WithLabelValues(pool).Add(float64(amount))
}

// KeeperSettlement counts one keeper settlement attempt.
func (m *StakingMetrics) KeeperSettlement(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.keeper.WithLabelValues(outcome).Inc()
}

// HTTPMetrics tracks the daemon's HTTP surface.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// HTTP returns the singleton registry for HTTP handlers.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakeledger",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakeledger",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records a completed request.
func (m *HTTPMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle counts a rate-limited request.
func (m *HTTPMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttles.WithLabelValues(route).Inc()
}

// Package metrics exposes Prometheus metrics for the relay.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/relay"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

const namespace = "vocalix"

// Metrics contains all Prometheus metrics for the voice relay.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Turn metrics
	Turns *prometheus.CounterVec

	// Reply metrics
	Replies       *prometheus.CounterVec
	ReplyDuration prometheus.Histogram

	// Audio metrics
	AudioJobs  *prometheus.CounterVec
	AudioBytes prometheus.Histogram
	AudioTime  prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of connected voice sessions",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions opened",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of voice sessions",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Recognizer transcripts by classification",
		}, []string{"kind"}),
		Replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Finalized turns by reply outcome",
		}, []string{"outcome"}),
		ReplyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from turn finalization to the turn's terminal message",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}),
		AudioJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_jobs_total",
			Help:      "Finished audio jobs by completion reason",
		}, []string{"reason", "fallback"}),
		AudioBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_payload_bytes",
			Help:      "Size of delivered audio payloads",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10), // 16KB to ~8MB
		}),
		AudioTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_job_duration_seconds",
			Help:      "Time from synthesis start to audio delivery",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 11),
		}),
	}
}

// SessionOpened implements relay.Observer.
func (m *Metrics) SessionOpened(relay.Info) {
	m.ActiveSessions.Inc()
	m.SessionsTotal.Inc()
}

// SessionClosed implements relay.Observer.
func (m *Metrics) SessionClosed(info relay.Info) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(time.Since(info.Connected).Seconds())
}

// TurnClassified implements relay.Observer.
func (m *Metrics) TurnClassified(_ string, d turn.Decision) {
	m.Turns.WithLabelValues(d.Kind.String()).Inc()
}

// ReplyFinished implements relay.Observer.
func (m *Metrics) ReplyFinished(_ string, _ int, outcome relay.Outcome, elapsed time.Duration) {
	m.Replies.WithLabelValues(string(outcome)).Inc()
	if outcome == relay.OutcomeReplied {
		m.ReplyDuration.Observe(elapsed.Seconds())
	}
}

// AudioFinished implements relay.Observer.
func (m *Metrics) AudioFinished(_ string, res assembler.Result) {
	m.AudioJobs.WithLabelValues(string(res.Reason), strconv.FormatBool(res.Fallback)).Inc()
	if res.AudioBytes > 0 {
		m.AudioBytes.Observe(float64(res.AudioBytes))
	}
	m.AudioTime.Observe(res.Duration.Seconds())
}

var _ relay.Observer = (*Metrics)(nil)

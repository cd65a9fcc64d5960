package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/menta2k/image-captioner/pkg/types"
)

// Metrics owns the caption counters and a private registry
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PayloadBytes    prometheus.Histogram
	UploadsTotal    *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captioner_requests_total",
				Help: "Caption requests by outcome (ok or error kind)",
			},
			[]string{"backend", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "captioner_request_duration_seconds",
				Help:    "Model round trip latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
			},
			[]string{"backend"},
		),
		PayloadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "captioner_payload_bytes",
				Help:    "Size of the base64 image payload sent to the model",
				Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
			},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captioner_uploads_total",
				Help: "Uploads received by the UI, by result",
			},
			[]string{"result"}, // accepted | rejected | missing
		),
	}
	m.Registry.MustRegister(m.RequestsTotal, m.RequestDuration, m.PayloadBytes, m.UploadsTotal)
	return m
}

// RecordCaption implements caption.Recorder
func (m *Metrics) RecordCaption(backend string, kind types.ErrorKind, elapsed time.Duration, payloadBytes int) {
	outcome := "ok"
	if kind != types.KindUnknown {
		outcome = kind.String()
	}
	m.RequestsTotal.WithLabelValues(backend, outcome).Inc()
	m.RequestDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	m.PayloadBytes.Observe(float64(payloadBytes))
}

// RecordUpload counts an upload attempt
func (m *Metrics) RecordUpload(result string) {
	m.UploadsTotal.WithLabelValues(result).Inc()
}

// WritePrometheus writes the registry in text exposition format
func (m *Metrics) WritePrometheus(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

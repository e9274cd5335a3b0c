// Package metrics exposes Prometheus counters for the spyserver client:
// bytes received off the wire, samples handed to consumers, FFT periods
// integrated, dropped IQ buffers, and ring-buffer overflow bytes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the counters for one process. Register it against the
// default registry with NewCollector(prometheus.DefaultRegisterer), or
// against a scoped registry in tests.
type Collector struct {
	bytesReceived     prometheus.Counter
	samplesDelivered  prometheus.Counter
	fftPeriods        prometheus.Counter
	droppedBuffers    prometheus.Counter
	ringOverflowBytes prometheus.Counter
}

// NewCollector registers the client's counters against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "spyserver_client_bytes_received_total",
			Help: "Total bytes read from the server connection.",
		}),
		samplesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "spyserver_client_iq_samples_delivered_total",
			Help: "Total IQ samples handed to GetIQData callers.",
		}),
		fftPeriods: factory.NewCounter(prometheus.CounterOpts{
			Name: "spyserver_client_fft_periods_total",
			Help: "Total FFT frames integrated into the accumulator.",
		}),
		droppedBuffers: factory.NewCounter(prometheus.CounterOpts{
			Name: "spyserver_client_dropped_buffers_total",
			Help: "Total IQ buffers lost to sequence-number gaps.",
		}),
		ringOverflowBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "spyserver_client_ring_overflow_bytes_total",
			Help: "Total unread IQ bytes overwritten by ring-buffer overflow.",
		}),
	}
}

func (c *Collector) AddBytesReceived(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesReceived.Add(float64(n))
}

func (c *Collector) AddSamplesDelivered(n uint32) {
	if c == nil || n == 0 {
		return
	}
	c.samplesDelivered.Add(float64(n))
}

func (c *Collector) AddFFTPeriods(n uint32) {
	if c == nil || n == 0 {
		return
	}
	c.fftPeriods.Add(float64(n))
}

func (c *Collector) AddDroppedBuffers(n uint32) {
	if c == nil || n == 0 {
		return
	}
	c.droppedBuffers.Add(float64(n))
}

func (c *Collector) AddRingOverflowBytes(n uint32) {
	if c == nil || n == 0 {
		return
	}
	c.ringOverflowBytes.Add(float64(n))
}

package monitoring

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

var _ parse.Observer = (*DecoderMetrics)(nil)

// DecoderMetrics holds the Prometheus collectors for one sensor decoder. It
// implements parse.Observer.
type DecoderMetrics struct {
	packets       *prometheus.CounterVec // by kind: msop, difop
	rejected      *prometheus.CounterVec // by reason: sync, truncated, other
	points        *prometheus.CounterVec // by validity: valid, invalid
	skippedBlocks prometheus.Counter     // out-of-band azimuth deltas
	difopWarnings *prometheus.CounterVec // by reason: checksum, unrecognized
	revolutions   prometheus.Counter

	temperature  prometheus.Gauge
	rpm          prometheus.Gauge
	packetsPerRv prometheus.Gauge
	echoMode     *prometheus.GaugeVec // 1 for the current mode
}

// NewDecoderMetrics registers the decoder collectors with reg, labelled with
// the sensor model. Use prometheus.DefaultRegisterer to expose them through
// promhttp.Handler.
func NewDecoderMetrics(reg prometheus.Registerer, model string) *DecoderMetrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"model": model}
	return &DecoderMetrics{
		packets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rslidar_packets_decoded_total",
				Help:        "Records decoded, by stream",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rslidar_packets_rejected_total",
				Help:        "Records rejected before decoding, by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		points: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rslidar_points_total",
				Help:        "Point slots emitted, by validity",
				ConstLabels: labels,
			},
			[]string{"validity"},
		),
		skippedBlocks: f.NewCounter(prometheus.CounterOpts{
			Name:        "rslidar_skipped_blocks_total",
			Help:        "Data blocks skipped for an out-of-band azimuth delta",
			ConstLabels: labels,
		}),
		difopWarnings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rslidar_difop_warnings_total",
				Help:        "Non-fatal DIFOP conditions, by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		revolutions: f.NewCounter(prometheus.CounterOpts{
			Name:        "rslidar_revolutions_total",
			Help:        "Completed motor revolutions seen in the MSOP stream",
			ConstLabels: labels,
		}),
		temperature: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rslidar_temperature_celsius",
			Help:        "Last thermistor reading used for calibration",
			ConstLabels: labels,
		}),
		rpm: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rslidar_motor_rpm",
			Help:        "Motor speed reported by DIFOP",
			ConstLabels: labels,
		}),
		packetsPerRv: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rslidar_packets_per_revolution",
			Help:        "Estimated MSOP packets per revolution",
			ConstLabels: labels,
		}),
		echoMode: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "rslidar_echo_mode",
				Help:        "Current return mode (1 for the active mode)",
				ConstLabels: labels,
			},
			[]string{"mode"},
		),
	}
}

// MsopDecoded counts emitted points and skipped blocks.
func (m *DecoderMetrics) MsopDecoded(points, valid, skippedBlocks int) {
	m.packets.WithLabelValues(parse.PacketMsop.String()).Inc()
	m.points.WithLabelValues("valid").Add(float64(valid))
	m.points.WithLabelValues("invalid").Add(float64(points - valid))
	m.skippedBlocks.Add(float64(skippedBlocks))
}

// DifopDecoded updates the device gauges.
func (m *DecoderMetrics) DifopDecoded(st parse.DifopStatus) {
	m.packets.WithLabelValues(parse.PacketDifop.String()).Inc()
	m.rpm.Set(float64(st.RPM))
	m.packetsPerRv.Set(float64(st.PacketsPerRevolution))
	m.echoMode.Reset()
	m.echoMode.WithLabelValues(st.EchoMode.String()).Set(1)
	if st.ChecksumFailed {
		m.difopWarnings.WithLabelValues("checksum").Inc()
	}
	if errors.Is(st.Err, parse.ErrUnrecognizedField) {
		m.difopWarnings.WithLabelValues("unrecognized").Inc()
	}
}

// PacketRejected counts structural failures.
func (m *DecoderMetrics) PacketRejected(err error) {
	switch {
	case errors.Is(err, parse.ErrSyncMismatch):
		m.rejected.WithLabelValues("sync").Inc()
	case errors.Is(err, parse.ErrTruncatedPacket):
		m.rejected.WithLabelValues("truncated").Inc()
	default:
		m.rejected.WithLabelValues("other").Inc()
	}
}

// TemperatureRead records the thermistor value.
func (m *DecoderMetrics) TemperatureRead(celsius float64) {
	m.temperature.Set(celsius)
}

// AddRevolution counts a revolution boundary.
func (m *DecoderMetrics) AddRevolution() {
	m.revolutions.Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 流式识别客户端的Prometheus指标集合。
// 所有Record方法对nil接收者安全，库内部在未启用指标时直接传nil。
type Metrics struct {
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	DecodeErrors   prometheus.Counter
	FramesSkipped  prometheus.Counter

	SegmentsProduced prometheus.Counter
	QueueDepth       prometheus.Gauge

	SessionsStarted   prometheus.Counter
	SessionsSucceeded prometheus.Counter
	SessionsFailed    *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
}

// New 创建并注册全部指标，每个进程只能调用一次
func New() *Metrics {
	return &Metrics{
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_frames_sent_total",
			Help: "Total number of protocol frames written to the transport",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_frames_received_total",
			Help: "Total number of protocol frames read from the transport",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_decode_errors_total",
			Help: "Total number of inbound frames that failed to decode",
		}),
		FramesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_frames_skipped_total",
			Help: "Total number of inbound frames discarded without terminating the session",
		}),
		SegmentsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_segments_produced_total",
			Help: "Total number of fixed-duration audio segments produced",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "asr_audio_queue_depth",
			Help: "Current number of capture buffers waiting in the audio queue",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}),
		SessionsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_succeeded_total",
			Help: "Total number of sessions that closed normally",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_sessions_failed_total",
			Help: "Total number of sessions that ended in error",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_session_duration_seconds",
			Help:    "Wall-clock duration of streaming sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

// RecordFrameSent 累计一条已发送帧
func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// RecordFrameReceived 累计一条已接收帧
func (m *Metrics) RecordFrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordDecodeError 累计一次解码失败并丢帧
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
	m.FramesSkipped.Inc()
}

// RecordFrameSkipped 累计一条被丢弃的帧
func (m *Metrics) RecordFrameSkipped() {
	if m == nil {
		return
	}
	m.FramesSkipped.Inc()
}

// RecordSegmentProduced 累计一个音频分段
func (m *Metrics) RecordSegmentProduced() {
	if m == nil {
		return
	}
	m.SegmentsProduced.Inc()
}

// SetQueueDepth 更新队列积压数量
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordSessionStarted 累计一次会话启动
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionOutcome 记录会话终止结果
func (m *Metrics) RecordSessionOutcome(success bool, reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	if success {
		m.SessionsSucceeded.Inc()
	} else {
		m.SessionsFailed.WithLabelValues(reason).Inc()
	}
	m.SessionDuration.Observe(durationSeconds)
}

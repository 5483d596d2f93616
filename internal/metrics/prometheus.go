package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recognition service
type Metrics struct {
	// Capture session metrics
	SessionsStarted prometheus.Counter
	CaptureDuration prometheus.Histogram
	CaptureStops    *prometheus.CounterVec

	// VAD metrics
	VADFramesProcessed prometheus.Counter
	VADSpeechDetected  prometheus.Counter
	VADProcessingTime  prometheus.Histogram

	// Feature extraction metrics
	FeatureFrames             prometheus.Counter
	FeatureExtractionDuration prometheus.Histogram

	// Recognition metrics
	Recognitions        prometheus.Counter
	RecognitionFailures prometheus.Counter
	RecognitionDuration prometheus.Histogram
	TokensEmitted       prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_capture_sessions_total",
			Help: "Total number of capture sessions started",
		}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "micasr_capture_duration_seconds",
			Help:    "Duration of captured utterances in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s to ~1 minute
		}),
		CaptureStops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "micasr_capture_stops_total",
			Help: "Total number of capture sessions stopped, by reason",
		}, []string{"reason"}),

		// VAD metrics
		VADFramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_vad_frames_processed_total",
			Help: "Total number of device frames classified by VAD",
		}),
		VADSpeechDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_vad_speech_detected_total",
			Help: "Total number of device frames classified as speech",
		}),
		VADProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "micasr_vad_processing_duration_seconds",
			Help:    "Time spent classifying one device frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 0.1ms to ~100ms
		}),

		// Feature extraction metrics
		FeatureFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_feature_frames_total",
			Help: "Total number of feature frames extracted",
		}),
		FeatureExtractionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "micasr_feature_extraction_duration_seconds",
			Help:    "Time spent extracting features per utterance",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),

		// Recognition metrics
		Recognitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_recognitions_total",
			Help: "Total number of recognition calls",
		}),
		RecognitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_recognition_failures_total",
			Help: "Total number of failed recognition calls",
		}),
		RecognitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "micasr_recognition_duration_seconds",
			Help:    "Duration of recognition calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		TokensEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "micasr_tokens_emitted_total",
			Help: "Total number of token ids emitted by the decoder",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "micasr_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "micasr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionStarted increments the capture sessions counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordCaptureStopped records a finished capture session
func (m *Metrics) RecordCaptureStopped(reason string, durationSeconds float64) {
	m.CaptureStops.WithLabelValues(reason).Inc()
	m.CaptureDuration.Observe(durationSeconds)
}

// RecordVADFrame records one classified device frame
func (m *Metrics) RecordVADFrame(speech bool, processingTimeSeconds float64) {
	m.VADFramesProcessed.Inc()
	if speech {
		m.VADSpeechDetected.Inc()
	}
	m.VADProcessingTime.Observe(processingTimeSeconds)
}

// RecordFeatureExtraction records one feature extraction pass
func (m *Metrics) RecordFeatureExtraction(frames int, durationSeconds float64) {
	m.FeatureFrames.Add(float64(frames))
	m.FeatureExtractionDuration.Observe(durationSeconds)
}

// RecordRecognition records one recognition call
func (m *Metrics) RecordRecognition(success bool, tokens int, durationSeconds float64) {
	m.Recognitions.Inc()
	if !success {
		m.RecognitionFailures.Inc()
	}
	m.TokensEmitted.Add(float64(tokens))
	m.RecognitionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

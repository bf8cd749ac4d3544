package mediator

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamRating is the coarse performance classification of a finished stream,
// derived by comparing jitter to configurable fractions of the mean
// inter-item gap.
type StreamRating string

const (
	RatingExcellent StreamRating = "excellent"
	RatingGood      StreamRating = "good"
	RatingFair      StreamRating = "fair"
	RatingPoor      StreamRating = "poor"
)

// RatingThresholds are the jitter/mean-gap fractions the rating tiers are cut
// at. They come from Config, not from engine logic.
type RatingThresholds struct {
	Excellent float64
	Good      float64
	Fair      float64
}

func (t RatingThresholds) classify(jitter, meanGap time.Duration) StreamRating {
	if meanGap <= 0 {
		return RatingExcellent
	}
	ratio := float64(jitter) / float64(meanGap)
	switch {
	case ratio <= t.Excellent:
		return RatingExcellent
	case ratio <= t.Good:
		return RatingGood
	case ratio <= t.Fair:
		return RatingFair
	default:
		return RatingPoor
	}
}

// StreamSummary is the aggregate emitted exactly once when a stream
// completes, fails, or is abandoned.
type StreamSummary struct {
	Items       int           `json:"items"`
	TimeToFirst time.Duration `json:"time_to_first"`
	Elapsed     time.Duration `json:"elapsed"`
	MeanGap     time.Duration `json:"mean_gap"`
	Jitter      time.Duration `json:"jitter"`
	Throughput  float64       `json:"throughput_per_sec"`
	Rating      StreamRating  `json:"rating"`
	Err         error         `json:"-"`
}

// StreamStats accumulates per-item timing for one stream dispatch. It is
// created when enumeration begins and finalized exactly once on every exit
// path: normal completion, pull failure, cancellation, or Dispose.
type StreamStats struct {
	mu sync.Mutex

	info       CallInfo
	thresholds RatingThresholds

	startedAt  time.Time
	lastItemAt time.Time

	items       int
	timeToFirst time.Duration
	gaps        []time.Duration
	failure     error

	finalized bool
	summary   StreamSummary

	onFinalize func(CallInfo, StreamSummary)
}

func newStreamStats(info CallInfo, thresholds RatingThresholds, onFinalize func(CallInfo, StreamSummary)) *StreamStats {
	return &StreamStats{
		info:       info,
		thresholds: thresholds,
		startedAt:  time.Now(),
		onFinalize: onFinalize,
	}
}

// recordItem registers one successfully pulled item.
func (s *StreamStats) recordItem() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}

	s.items++
	if s.items == 1 {
		s.timeToFirst = now.Sub(s.startedAt)
	} else {
		s.gaps = append(s.gaps, now.Sub(s.lastItemAt))
	}
	s.lastItemAt = now
}

// recordFailure registers a failed pull. Partial consumption is a legitimate
// terminal state; the failure is kept for the summary.
func (s *StreamStats) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || err == nil {
		return
	}
	s.failure = err
}

// finalize computes the aggregate metrics. Safe to call from any exit path;
// only the first call has effect.
func (s *StreamStats) finalize() StreamSummary {
	s.mu.Lock()
	if s.finalized {
		summary := s.summary
		s.mu.Unlock()
		return summary
	}
	s.finalized = true

	elapsed := time.Since(s.startedAt)
	meanGap := meanDuration(s.gaps)
	jitter := stddevDuration(s.gaps, meanGap)

	summary := StreamSummary{
		Items:       s.items,
		TimeToFirst: s.timeToFirst,
		Elapsed:     elapsed,
		MeanGap:     meanGap,
		Jitter:      jitter,
		Rating:      s.thresholds.classify(jitter, meanGap),
		Err:         s.failure,
	}
	if elapsed > 0 {
		summary.Throughput = float64(s.items) / elapsed.Seconds()
	}
	s.summary = summary
	onFinalize := s.onFinalize
	info := s.info
	s.mu.Unlock()

	if onFinalize != nil {
		onFinalize(info, summary)
	}
	return summary
}

// Summary returns the final aggregate, and whether the stream has been
// finalized yet.
func (s *StreamStats) Summary() (StreamSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.finalized
}

func meanDuration(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var total time.Duration
	for _, v := range values {
		total += v
	}
	return total / time.Duration(len(values))
}

// stddevDuration is the population standard deviation. Defined as 0 when
// fewer than two samples were observed.
func stddevDuration(values []time.Duration, mean time.Duration) time.Duration {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := float64(v - mean)
		sum += d * d
	}
	return time.Duration(math.Sqrt(sum / float64(len(values))))
}

// Telemetry is the process-wide metrics handle. It is created once, injected
// into the mediator, and registered on a Prometheus registerer; a nil handle
// is a valid no-op so tests can run without collectors.
type Telemetry struct {
	mu sync.Mutex

	registerer prometheus.Registerer
	registered bool

	dispatchesTotal *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec

	streamsTotal      *prometheus.CounterVec
	streamItemsTotal  *prometheus.CounterVec
	streamTTFISeconds *prometheus.HistogramVec
	streamGapSeconds  *prometheus.HistogramVec
}

// NewTelemetry creates the collectors under the given namespace. Passing a
// nil registerer uses the Prometheus default.
func NewTelemetry(namespace string, registerer prometheus.Registerer) *Telemetry {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "relay"
	}

	return &Telemetry{
		registerer: registerer,
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Total number of dispatched requests and notifications",
		}, []string{"kind", "request", "outcome"}),
		dispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch duration through the middleware chain",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "request"}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "total",
			Help:      "Total number of finalized streams by rating",
		}, []string{"request", "rating"}),
		streamItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "items_total",
			Help:      "Total number of items pulled from streams",
		}, []string{"request"}),
		streamTTFISeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "time_to_first_item_seconds",
			Help:      "Latency until the first item of a stream",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"request"}),
		streamGapSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "mean_gap_seconds",
			Help:      "Mean inter-item gap of finalized streams",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"request"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (t *Telemetry) Register() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		t.dispatchesTotal,
		t.dispatchSeconds,
		t.streamsTotal,
		t.streamItemsTotal,
		t.streamTTFISeconds,
		t.streamGapSeconds,
	}
	for _, c := range collectors {
		if err := t.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	t.registered = true
	return nil
}

// ObserveDispatch records one dispatch through the middleware chain.
func (t *Telemetry) ObserveDispatch(info CallInfo, duration time.Duration, err error) {
	if t == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	request := typeName(info.RequestType)
	t.dispatchesTotal.WithLabelValues(info.Kind.String(), request, outcome).Inc()
	t.dispatchSeconds.WithLabelValues(info.Kind.String(), request).Observe(duration.Seconds())
}

// ObserveStream records the final aggregate of one stream.
func (t *Telemetry) ObserveStream(info CallInfo, summary StreamSummary) {
	if t == nil {
		return
	}
	request := typeName(info.RequestType)
	t.streamsTotal.WithLabelValues(request, string(summary.Rating)).Inc()
	t.streamItemsTotal.WithLabelValues(request).Add(float64(summary.Items))
	t.streamTTFISeconds.WithLabelValues(request).Observe(summary.TimeToFirst.Seconds())
	t.streamGapSeconds.WithLabelValues(request).Observe(summary.MeanGap.Seconds())
}

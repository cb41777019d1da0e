package accounting

import (
	"math"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

const (
	// qualityBaseline is the neutral score a fresh or long-idle source
	// reports.
	qualityBaseline = 260

	// ewmaWeight is how much one completed request moves the score.
	ewmaWeight = 0.25

	// decayHalfLife halves the distance to the baseline per idle period.
	decayHalfLife = time.Minute

	// normSize is the request size one latency sample is scaled to, so
	// small and large reads feed the same scale.
	normSize = 128 * 1024

	// sampleCeiling caps one sample so a single stuck request cannot
	// push the score beyond recovery.
	sampleCeiling = 1 << 20
)

// Meter is the quality contract the adaptor consumes.
type Meter interface {
	// Get returns the current score; lower is better.
	Get() uint64
	// StartWatch opens a scoped measurement which folds into the score
	// when stopped.
	StartWatch() Watch
}

// Watch is one scoped measurement of a single I/O.
type Watch interface {
	// Stop ends the measurement, recording how many bytes the request
	// moved (zero for a failed request). Stopping twice is a no-op.
	Stop(bytes int64, failed bool)
}

// Quality scores one source from the wall time of its completed requests.
type Quality struct {
	clock timeutil.Clock
	id    string

	mu       sync.Mutex
	value    float64
	lastFold time.Time
}

// NewQuality builds the score tracker for one source id.
func NewQuality(clock timeutil.Clock, id string) *Quality {
	return &Quality{
		clock:    clock,
		id:       id,
		value:    qualityBaseline,
		lastFold: clock.Now(),
	}
}

// Get returns the current score with idle decay applied.
func (q *Quality) Get() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint64(q.decayedLocked(q.clock.Now()))
}

// StartWatch implements Meter.
func (q *Quality) StartWatch() Watch {
	return &qualityWatch{q: q, start: q.clock.Now()}
}

// decayedLocked relaxes the score toward the baseline according to how
// long the source has been idle, without recording a fold.
func (q *Quality) decayedLocked(now time.Time) float64 {
	idle := now.Sub(q.lastFold)
	if idle <= 0 {
		return q.value
	}
	frac := math.Pow(0.5, float64(idle)/float64(decayHalfLife))
	return qualityBaseline + (q.value-qualityBaseline)*frac
}

func (q *Quality) fold(start time.Time, bytes int64, failed bool) {
	now := q.clock.Now()
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	sample := float64(elapsed) / float64(time.Millisecond)
	if bytes > 0 {
		sample *= normSize / float64(bytes)
	}
	if sample > sampleCeiling {
		sample = sampleCeiling
	}

	q.mu.Lock()
	q.value = q.decayedLocked(now)
	q.value = q.value*(1-ewmaWeight) + sample*ewmaWeight
	if q.value < 1 {
		q.value = 1
	}
	q.lastFold = now
	value := q.value
	q.mu.Unlock()

	metricQuality.WithLabelValues(q.id).Set(value)
	metricRequests.WithLabelValues(q.id).Inc()
	if failed {
		metricErrors.WithLabelValues(q.id).Inc()
		return
	}
	metricBytes.WithLabelValues(q.id).Add(float64(bytes))
}

type qualityWatch struct {
	q     *Quality
	start time.Time
	once  sync.Once
}

// Stop implements Watch.
func (w *qualityWatch) Stop(bytes int64, failed bool) {
	w.once.Do(func() {
		w.q.fold(w.start, bytes, failed)
	})
}

package circuitbreaker

import (
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// numBuckets is the number of time slices a window is divided into. More
// buckets track the trailing window with finer granularity at the cost of
// a slightly more expensive sum.
const numBuckets = 8

// windowedCounter approximates the sum of signed events recorded within a
// trailing time window. The window is a circular queue of fixed buckets,
// each covering one slice of the window; expiry is entirely pull based and
// happens lazily on the next add or total call, so no background timer is
// required and memory use is constant.
//
// A bucket's contents persist until its slot is reused, so the true
// interval covered by total lies between (numBuckets-1) and numBuckets
// bucket durations.
type windowedCounter struct {
	mu    sync.RWMutex
	nowFn NowFn

	// bucketDuration is the time slice covered by each bucket.
	bucketDuration time.Duration

	buckets [numBuckets]atomic.Int64

	// epoch is the time the active bucket started accepting events.
	epoch time.Time

	// active is the index of the bucket events are currently recorded into.
	active int
}

// newWindowedCounter returns a counter approximating event sums over the
// given trailing window.
func newWindowedCounter(window time.Duration, nowFn NowFn) *windowedCounter {
	bucketDuration := window / numBuckets
	if bucketDuration <= 0 {
		bucketDuration = time.Nanosecond
	}
	return &windowedCounter{
		nowFn:          nowFn,
		bucketDuration: bucketDuration,
		epoch:          nowFn(),
	}
}

// add records amount into the bucket covering the present time.
// This method is safe for concurrent use.
func (w *windowedCounter) add(amount int64) {
	w.activeBucket().Add(amount)
}

// total returns the saturating sum of every bucket in the window.
// This method is safe for concurrent use.
func (w *windowedCounter) total() int64 {
	// Retire buckets the window has slid past before summing.
	w.activeBucket()

	w.mu.RLock()
	defer w.mu.RUnlock()
	var sum int64
	for i := range w.buckets {
		sum = saturatingAdd(sum, w.buckets[i].Load())
	}
	return sum
}

// clear zeroes every bucket and re-anchors the window epoch to now.
// This method is safe for concurrent use.
func (w *windowedCounter) clear() {
	w.mu.Lock()
	for i := range w.buckets {
		w.buckets[i].Store(0)
	}
	w.epoch = w.nowFn()
	w.mu.Unlock()
}

// activeBucket rotates the queue if the active bucket's time slice has
// passed, then returns the bucket covering the present time.
// This method is safe for concurrent use.
func (w *windowedCounter) activeBucket() *atomic.Int64 {
	now := w.nowFn()

	w.mu.RLock()
	// The elapsed check must happen inside the lock to avoid a r/w race
	// with a concurrent rotation re-anchoring the epoch.
	expired := now.Sub(w.epoch) >= w.bucketDuration
	b := &w.buckets[w.active]
	w.mu.RUnlock()
	if !expired {
		return b
	}

	w.mu.Lock()
	// Double checked after acquiring the write lock so concurrent callers
	// crossing the same boundary rotate exactly once.
	if now.Sub(w.epoch) >= w.bucketDuration {
		w.rotate(now)
	}
	b = &w.buckets[w.active]
	w.mu.Unlock()
	return b
}

// rotate advances the active bucket to cover now, zeroing every bucket the
// window slid past. Must be invoked under the write lock.
func (w *windowedCounter) rotate(now time.Time) {
	elapsed := now.Sub(w.epoch)
	w.active = (w.active + 1) % numBuckets

	// Updates may be infrequent enough that whole bucket durations passed
	// untouched. Their slots still hold data from the previous lap of the
	// queue, which must not leak back into the new window. Skipping more
	// than numBuckets buckets is equivalent to clearing everything.
	skipped := int(elapsed/w.bucketDuration) - 1
	if skipped > numBuckets {
		skipped = numBuckets
	}
	if skipped > 0 {
		// The skipped range may wrap the end of the queue; zero it as two
		// contiguous segments.
		right := skipped
		if remaining := numBuckets - w.active; right > remaining {
			right = remaining
		}
		for i := w.active; i < w.active+right; i++ {
			w.buckets[i].Store(0)
		}
		for i := 0; i < skipped-right; i++ {
			w.buckets[i].Store(0)
		}
		w.active = (w.active + skipped) % numBuckets
	}

	w.buckets[w.active].Store(0)
	w.epoch = now
}

// saturatingAdd adds two signed counters, clamping at the int64 bounds
// instead of overflowing.
func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

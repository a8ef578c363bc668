package engine

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"streamstat/internal/model"
)

// ErrInvalidObservation is returned for empty identifiers or non-finite
// values. The offending observation mutates no window state.
var ErrInvalidObservation = errors.New("invalid observation")

const (
	DefaultWindowSize = 30
	DefaultThreshold  = 2.5
	DefaultShards     = 16
)

type Options struct {
	// WindowSize is how many samples define a full window.
	WindowSize int
	// ThresholdMultiplier is how many standard deviations from the rolling
	// mean constitute an anomaly.
	ThresholdMultiplier float64
	// Shards is the number of lock-striped key partitions, rounded up to a
	// power of two.
	Shards int
	// MaxTrackedKeys bounds the total number of tracked (entity, metric)
	// keys across all shards, evicting least recently updated windows.
	// Zero means no bound.
	MaxTrackedKeys int
}

// Engine maintains one bounded FIFO window per (entity, metric) key and
// classifies each incoming sample against the window's rolling statistics.
// Calls for different keys contend only on their shard; calls for the same
// key serialize on the shard lock.
type Engine struct {
	windowSize int
	threshold  float64
	mask       uint32
	shards     []*shard
	evicted    atomic.Uint64
}

type shard struct {
	mu      sync.Mutex
	windows map[model.Key]*Window
	lru     *lru.Cache[model.Key, *Window]
}

func New(opts Options) *Engine {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.ThresholdMultiplier <= 0 {
		opts.ThresholdMultiplier = DefaultThreshold
	}
	n := nextPowerOfTwo(opts.Shards)
	// A key bound smaller than the shard count would otherwise inflate to one
	// window per shard; collapse shards until n*perShard stays within bound.
	if opts.MaxTrackedKeys > 0 {
		for n > 1 && n > opts.MaxTrackedKeys {
			n >>= 1
		}
	}
	e := &Engine{
		windowSize: opts.WindowSize,
		threshold:  opts.ThresholdMultiplier,
		mask:       uint32(n - 1),
		shards:     make([]*shard, n),
	}
	perShard := 0
	if opts.MaxTrackedKeys > 0 {
		perShard = opts.MaxTrackedKeys / n
	}
	for i := range e.shards {
		e.shards[i] = newShard(perShard, &e.evicted)
	}
	return e
}

func newShard(lruSize int, evicted *atomic.Uint64) *shard {
	s := &shard{}
	if lruSize > 0 {
		cache, err := lru.NewWithEvict[model.Key, *Window](lruSize, func(model.Key, *Window) {
			evicted.Add(1)
		})
		if err == nil {
			s.lru = cache
			return s
		}
	}
	s.windows = make(map[model.Key]*Window)
	return s
}

func (e *Engine) WindowSize() int {
	return e.windowSize
}

func (e *Engine) ThresholdMultiplier() float64 {
	return e.threshold
}

// Record ingests one observation, sliding its key's window and returning the
// rolling statistics computed after the append. Buffer eviction follows
// arrival order; the observation timestamp is carried for downstream
// consumers only. Anomaly classification is active only once the window is
// full; a zero stddev (all samples identical) never flags.
func (e *Engine) Record(obs model.Observation) (model.StatResult, error) {
	if obs.EntityID == "" {
		return model.StatResult{}, fmt.Errorf("%w: empty entity id", ErrInvalidObservation)
	}
	if obs.Metric == "" {
		return model.StatResult{}, fmt.Errorf("%w: empty metric name", ErrInvalidObservation)
	}
	if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
		return model.StatResult{}, fmt.Errorf("%w: non-finite value %v", ErrInvalidObservation, obs.Value)
	}
	key := model.Key{EntityID: obs.EntityID, Metric: obs.Metric}
	s := e.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.window(key, e.windowSize)
	w.Push(obs.Value)
	return e.classify(w, obs.Value), nil
}

// Peek returns the statistics a Record call just produced for the key,
// without mutating anything. The second return is false for unknown keys.
func (e *Engine) Peek(entityID, metric string) (model.StatResult, bool) {
	key := model.Key{EntityID: entityID, Metric: metric}
	s := e.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.lookup(key)
	if !ok {
		return model.StatResult{}, false
	}
	latest, ok := w.Latest()
	if !ok {
		return model.StatResult{}, false
	}
	return e.classify(w, latest), true
}

func (e *Engine) classify(w *Window, value float64) model.StatResult {
	avg := w.Average()
	std := w.StdDev()
	anomaly := w.Full() && std > 0 && math.Abs(value-avg) > e.threshold*std
	return model.StatResult{
		RollingAvg:    avg,
		RollingStdDev: std,
		IsAnomaly:     anomaly,
		SampleCount:   w.Size(),
	}
}

// WindowValues snapshots the key's current window contents in arrival order,
// oldest first. Nil for unknown keys.
func (e *Engine) WindowValues(entityID, metric string) []float64 {
	key := model.Key{EntityID: entityID, Metric: metric}
	s := e.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.lookup(key)
	if !ok {
		return nil
	}
	return w.Values()
}

// TrackedKeys reports how many (entity, metric) keys currently hold a window.
func (e *Engine) TrackedKeys() int {
	total := 0
	for _, s := range e.shards {
		s.mu.Lock()
		if s.lru != nil {
			total += s.lru.Len()
		} else {
			total += len(s.windows)
		}
		s.mu.Unlock()
	}
	return total
}

// EvictedKeys reports how many windows the key bound has evicted so far.
func (e *Engine) EvictedKeys() uint64 {
	return e.evicted.Load()
}

// Reset drops all windows.
func (e *Engine) Reset() {
	for _, s := range e.shards {
		s.mu.Lock()
		if s.lru != nil {
			s.lru.Purge()
		} else {
			s.windows = make(map[model.Key]*Window)
		}
		s.mu.Unlock()
	}
}

func (e *Engine) shard(key model.Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.EntityID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Metric))
	return e.shards[h.Sum32()&e.mask]
}

func (s *shard) window(key model.Key, size int) *Window {
	if w, ok := s.lookup(key); ok {
		return w
	}
	w := NewWindow(size)
	if s.lru != nil {
		s.lru.Add(key, w)
	} else {
		s.windows[key] = w
	}
	return w
}

func (s *shard) lookup(key model.Key) (*Window, bool) {
	if s.lru != nil {
		return s.lru.Get(key)
	}
	w, ok := s.windows[key]
	return w, ok
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return DefaultShards
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Package metrics keeps an in-memory registry of counters and timers,
// exported as JSON on the control API. It is intentionally small; traces
// cover the detailed timings.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Counter is one named counter with optional labels.
type Counter struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// Timer accumulates durations for one named operation.
type Timer struct {
	Count   int64   `json:"count"`
	SumMs   float64 `json:"sum_ms"`
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
	AvgMs   float64 `json:"avg_ms"`
}

// Registry holds all metrics for the process.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Counter
	timers    map[string]*Timer
	startTime time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Counter),
		timers:    make(map[string]*Timer),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return globalRegistry
}

// IncrementCounter adds one to a counter.
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter, creating it on first use.
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	counter, ok := r.counters[key]
	if !ok {
		counter = &Counter{Name: name, Labels: labels}
		r.counters[key] = counter
	}
	counter.Value += value
	counter.LastUpdate = time.Now()
}

// RecordTimer folds one duration into a timer.
func (r *Registry) RecordTimer(name string, d time.Duration, labels map[string]string) {
	ms := float64(d.Milliseconds())

	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	timer, ok := r.timers[key]
	if !ok {
		timer = &Timer{MinMs: ms, MaxMs: ms}
		r.timers[key] = timer
	}
	timer.Count++
	timer.SumMs += ms
	if ms < timer.MinMs {
		timer.MinMs = ms
	}
	if ms > timer.MaxMs {
		timer.MaxMs = ms
	}
	timer.AvgMs = timer.SumMs / float64(timer.Count)
}

// Snapshot is the JSON export shape.
type Snapshot struct {
	UptimeSec float64             `json:"uptime_sec"`
	Counters  map[string]*Counter `json:"counters"`
	Timers    map[string]*Timer   `json:"timers"`
}

// Snapshot returns a copy of the registry contents.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		UptimeSec: time.Since(r.startTime).Seconds(),
		Counters:  make(map[string]*Counter, len(r.counters)),
		Timers:    make(map[string]*Timer, len(r.timers)),
	}
	for k, c := range r.counters {
		copied := *c
		snap.Counters[k] = &copied
	}
	for k, t := range r.timers {
		copied := *t
		snap.Timers[k] = &copied
	}
	return snap
}

// metricKey builds a stable key from a name and its labels.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := name
	for _, k := range keys {
		key += fmt.Sprintf("{%s=%s}", k, labels[k])
	}
	return key
}

// Package-level helpers against the default registry.

func IncrementCounter(name string, labels map[string]string) {
	globalRegistry.IncrementCounter(name, labels)
}

func RecordTimer(name string, d time.Duration, labels map[string]string) {
	globalRegistry.RecordTimer(name, d, labels)
}

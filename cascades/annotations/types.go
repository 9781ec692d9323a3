// Package annotations provides a low-overhead event system for tracing
// planning and execution.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Planning lifecycle
	PlanningBegin    = "planner/begin"
	PlanningComplete = "planner/complete"
	PlanSelected     = "planner/plan.selected"

	// Exploration
	RuleFired         = "planner/rule.fired"
	ExpressionYielded = "planner/yield"
	GroupCreated      = "planner/group.created"
	PartialMatchFound = "planner/partial-match"
	RequirementPushed = "planner/requirement"

	// Execution
	ExecutionBegin    = "executor/begin"
	ExecutionComplete = "executor/complete"
	AggregateGroup    = "cursor/aggregate.group"

	// Errors
	ErrorPlanning = "error/planning"
	ErrorStorage  = "error/storage"
)

// Event represents a single annotation event.
type Event struct {
	Name    string         // Event name using hierarchical constants above
	Start   time.Time      // Start timestamp
	End     time.Time      // End timestamp
	Latency time.Duration  // Duration (End - Start)
	Data    map[string]any // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Multi fans an event out to every non-nil handler.
func Multi(handlers ...Handler) Handler {
	var hs []Handler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		return nil
	}
	return func(event Event) {
		for _, h := range hs {
			h(event)
		}
	}
}

// Collector accumulates events. A nil collector and a collector without a
// handler both drop every event.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 128),
	}
}

// Enabled reports whether events are recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddEvent records an instantaneous event.
func (c *Collector) AddEvent(name string, data map[string]any) {
	if !c.Enabled() {
		return
	}
	now := time.Now()
	c.Add(Event{Name: name, Start: now, End: now, Data: data})
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]any) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Count returns the number of collected events named name.
func (c *Collector) Count(name string) int {
	n := 0
	for _, e := range c.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

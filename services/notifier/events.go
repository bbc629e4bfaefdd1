package notifier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// EventType represents the type of event
type EventType string

const (
	// Critical events
	EventCircuitBreakerOpen EventType = "circuit_breaker_open"

	// Warning events
	EventHighFailureRate   EventType = "high_failure_rate"
	EventCacheBackupFailed EventType = "cache_backup_failed"

	// Info events
	EventCircuitBreakerRecovered EventType = "circuit_breaker_recovered"
	EventServerStarted           EventType = "server_started"
	EventCacheCleared            EventType = "cache_cleared"
	EventCacheRestored           EventType = "cache_restored"
)

// Severity represents the severity level of an event
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Event represents a system event
type Event struct {
	Type      EventType
	Severity  Severity
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, severity Severity, message string) *Event {
	return &Event{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// WithData adds data to the event (chainable)
func (e *Event) WithData(key string, value interface{}) *Event {
	e.Data[key] = value
	return e
}

// Text returns a data value as text, or "" when it is missing
func (e *Event) Text(key string) string {
	switch v := e.Data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// EventHandler receives published events
type EventHandler func(event *Event)

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// EventBus fans events out to subscribers. Each handler runs on its own
// goroutine so a slow notifier never delays the publisher; a panicking
// handler is logged and does not affect the others.
type EventBus struct {
	mu     sync.RWMutex
	byType map[EventType][]subscription
	all    []subscription
	nextID atomic.Uint64
}

func NewEventBus() *EventBus {
	return &EventBus{byType: make(map[EventType][]subscription)}
}

var globalBus = NewEventBus()

// GetEventBus returns the process-wide bus the Publish helpers use
func GetEventBus() *EventBus {
	return globalBus
}

func (b *EventBus) newSubscription(handler EventHandler) subscription {
	if handler == nil {
		panic("notifier: nil event handler")
	}
	return subscription{id: SubscriptionID(b.nextID.Add(1)), handler: handler}
}

// Subscribe registers handler for one event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	sub := b.newSubscription(handler)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[eventType] = append(b.byType[eventType], sub)
	return sub.id
}

// SubscribeAll registers handler for every event
func (b *EventBus) SubscribeAll(handler EventHandler) SubscriptionID {
	sub := b.newSubscription(handler)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, sub)
	return sub.id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *EventBus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.byType {
		b.byType[eventType] = without(subs, id)
	}
	b.all = without(b.all, id)
}

func without(subs []subscription, id SubscriptionID) []subscription {
	out := subs[:0]
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

// Publish delivers event to its type's subscribers and to SubscribeAll handlers
func (b *EventBus) Publish(event *Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.byType[event.Type])+len(b.all))
	targets = append(targets, b.byType[event.Type]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, sub := range targets {
		go deliver(sub.handler, event)
	}
}

func deliver(handler EventHandler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s Handler for %s panicked: %v", logcolors.LogNotifier, event.Type, r)
		}
	}()
	handler(event)
}

// publish sends an event built from alternating key/value pairs to the global bus
func publish(eventType EventType, severity Severity, message string, kv ...interface{}) {
	event := NewEvent(eventType, severity, message)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		event.WithData(key, kv[i+1])
	}
	GetEventBus().Publish(event)
}

func PublishCircuitBreakerOpen(name string, failures int, cooldown time.Duration) {
	publish(EventCircuitBreakerOpen, SeverityCritical, "Circuit breaker opened",
		"name", name, "failures", failures, "cooldown", cooldown.String())
}

func PublishCircuitBreakerRecovered(name string) {
	publish(EventCircuitBreakerRecovered, SeverityInfo, "Circuit breaker closed after a successful probe",
		"name", name)
}

// PublishHighFailureRate matches circuitbreaker.Config.OnWarning
func PublishHighFailureRate(name string, failures, threshold int) {
	publish(EventHighFailureRate, SeverityWarning, "Circuit breaker close to its threshold",
		"name", name, "failures", failures, "threshold", threshold)
}

func PublishCacheBackupFailed(err error) {
	publish(EventCacheBackupFailed, SeverityWarning, "Cache backup failed", "error", err.Error())
}

// PublishCacheCleared reports a clear; backupPath is empty when no backup was taken
func PublishCacheCleared(backupPath string) {
	publish(EventCacheCleared, SeverityInfo, "Cache cleared", "backup_path", backupPath)
}

func PublishCacheRestored(backup string, keys int) {
	publish(EventCacheRestored, SeverityInfo, "Cache restored", "backup", backup, "keys", keys)
}

func PublishServerStarted(port string, providers []string) {
	publish(EventServerStarted, SeverityInfo, "Server started", "port", port, "providers", providers)
}

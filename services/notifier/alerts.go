package notifier

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	// Default cooldown between alerts of the same type
	DefaultAlertCooldown = 15 * time.Minute
)

// AlertHandler turns bus events into notifications, at most one per event
// type per cooldown
type AlertHandler struct {
	notifiers        []Notifier
	cooldowns        map[EventType]time.Time
	cooldownDuration time.Duration
	now              func() time.Time
	mu               sync.Mutex
}

// AlertConfig holds configuration for the alert handler
type AlertConfig struct {
	Notifiers        []Notifier
	CooldownDuration time.Duration
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(config AlertConfig) *AlertHandler {
	cooldown := config.CooldownDuration
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}

	return &AlertHandler{
		notifiers:        config.Notifiers,
		cooldowns:        make(map[EventType]time.Time),
		cooldownDuration: cooldown,
		now:              time.Now,
	}
}

// Start subscribes the handler to the global event bus
func (h *AlertHandler) Start() {
	h.Attach(GetEventBus())
}

// Attach subscribes the handler to bus
func (h *AlertHandler) Attach(bus *EventBus) {
	bus.SubscribeAll(h.handleEvent)
	log.Infof("%s Alert handler started (cooldown: %v, notifiers: %d)",
		logcolors.LogNotifier, h.cooldownDuration, len(h.notifiers))
}

func (h *AlertHandler) handleEvent(event *Event) {
	subject, message := FormatAlert(event)
	if subject == "" {
		return
	}

	if !h.shouldAlert(event.Type) {
		log.Debugf("%s Skipping alert for %s (cooldown active)", logcolors.LogNotifier, event.Type)
		return
	}

	h.sendAlert(subject, message)
}

// shouldAlert checks if we should send an alert based on cooldown
func (h *AlertHandler) shouldAlert(eventType EventType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	lastAlert, exists := h.cooldowns[eventType]
	if !exists || now.Sub(lastAlert) >= h.cooldownDuration {
		h.cooldowns[eventType] = now
		return true
	}
	return false
}

type alertTemplate struct {
	subject string
	body    func(e *Event) string
}

var alertTemplates = map[EventType]alertTemplate{
	EventCircuitBreakerOpen: {"Circuit Breaker OPEN", func(e *Event) string {
		return fmt.Sprintf("The %s circuit breaker has tripped after %s consecutive failures.\n\n"+
			"Lookups against it are skipped for %s; sessions fall back to the other providers.\n\n"+
			"Action: Check the upstream lyrics API.",
			e.Text("name"), e.Text("failures"), e.Text("cooldown"))
	}},
	EventHighFailureRate: {"High Failure Rate Warning", func(e *Event) string {
		return fmt.Sprintf("The %s circuit breaker has recorded %s/%s failures.\n\nIf failures continue, the circuit will open.",
			e.Text("name"), e.Text("failures"), e.Text("threshold"))
	}},
	EventCacheBackupFailed: {"Cache Backup Failed", func(e *Event) string {
		return fmt.Sprintf("Failed to create cache backup.\n\nError: %s\n\nAction: Check disk space and permissions.", e.Text("error"))
	}},
	EventCircuitBreakerRecovered: {"Circuit Breaker Recovered", func(e *Event) string {
		return fmt.Sprintf("The %s circuit breaker has recovered and is now operational.", e.Text("name"))
	}},
	EventServerStarted: {"Server Started", func(e *Event) string {
		providers, _ := e.Data["providers"].([]string)
		return fmt.Sprintf("Server started on port %s.\n\nProviders: %s", e.Text("port"), strings.Join(providers, ", "))
	}},
	EventCacheCleared: {"Cache Cleared", func(e *Event) string {
		if path := e.Text("backup_path"); path != "" {
			return "Cache has been cleared.\n\nBackup saved to: " + path
		}
		return "Cache has been cleared."
	}},
	EventCacheRestored: {"Cache Restored", func(e *Event) string {
		return fmt.Sprintf("Cache restored from %s (%s keys).", e.Text("backup"), e.Text("keys"))
	}},
}

var severityMarks = map[Severity]string{
	SeverityCritical: "\U0001F6A8 ",
	SeverityWarning:  "\u26A0\uFE0F ",
	SeverityInfo:     "\u2139\uFE0F ",
}

// FormatAlert renders an event as a notification. Unknown events give an empty subject.
func FormatAlert(event *Event) (subject, message string) {
	tmpl, ok := alertTemplates[event.Type]
	if !ok {
		return "", ""
	}
	return severityMarks[event.Severity] + tmpl.subject, tmpl.body(event)
}

// sendAlert sends the alert through all configured notifiers
func (h *AlertHandler) sendAlert(subject, message string) {
	if len(h.notifiers) == 0 {
		log.Warnf("%s No notifiers configured, skipping alert: %s", logcolors.LogNotifier, subject)
		return
	}

	log.Infof("%s Sending alert: %s", logcolors.LogNotifier, subject)

	successCount := 0
	for _, n := range h.notifiers {
		if err := n.Send(subject, message); err != nil {
			log.Errorf("%s Failed to send alert via %s: %v", logcolors.LogNotifier, n.Name(), err)
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		log.Infof("%s Alert sent successfully via %d/%d notifiers", logcolors.LogNotifier, successCount, len(h.notifiers))
	}
}

// ResetCooldown manually resets the cooldown for a specific event type
func (h *AlertHandler) ResetCooldown(eventType EventType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cooldowns, eventType)
}

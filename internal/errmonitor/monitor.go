// Package errmonitor keeps a bounded in-memory log of cart, cache, database
// and API failures and evaluates alert rules over it.
package errmonitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
)

const (
	DefaultCapacity   = 1000
	DefaultQueryLimit = 50
	DefaultRetention  = 24 * time.Hour
	recentWindow      = time.Hour
	recentErrorsShown = 10
)

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

type Category string

const (
	CategoryCart       Category = "cart"
	CategoryDatabase   Category = "database"
	CategoryCache      Category = "cache"
	CategoryAPI        Category = "api"
	CategoryValidation Category = "validation"
)

// Event is one recorded failure or warning.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Level        Level          `json:"level"`
	Category     Category       `json:"category"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Stack        string         `json:"stack,omitempty"`
	SessionID    string         `json:"sessionId,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	Operation    string         `json:"operation,omitempty"`
	ResponseTime *float64       `json:"responseTime,omitempty"`
}

// OperationCounter supplies the denominator for the error rate.
type OperationCounter interface {
	OperationCount() int64
}

type Options struct {
	Capacity   int
	Operations OperationCounter
	Logger     *logger.Logger
	Clock      func() time.Time
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu        sync.RWMutex
	events    []Event
	capacity  int
	rules     []AlertRule
	lastFired map[string]time.Time

	ops  OperationCounter
	logg *logger.Logger
	now  func() time.Time
}

func New(opts Options) *Monitor {
	m := &Monitor{
		capacity:  opts.Capacity,
		ops:       opts.Operations,
		logg:      opts.Logger,
		now:       opts.Clock,
		rules:     DefaultAlertRules(),
		lastFired: map[string]time.Time{},
	}
	if m.capacity <= 0 {
		m.capacity = DefaultCapacity
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Context carries optional request identity for an event.
type Context struct {
	SessionID    string
	UserID       string
	Operation    string
	ResponseTime time.Duration
}

// Record stores an event, logs it and, for database errors, triggers an immediate alert.
func (m *Monitor) Record(ctx context.Context, level Level, category Category, message string, details map[string]any, ec Context) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: m.now(),
		Level:     level,
		Category:  category,
		Message:   message,
		Details:   details,
		SessionID: ec.SessionID,
		UserID:    ec.UserID,
		Operation: ec.Operation,
	}
	if ec.ResponseTime > 0 {
		ms := float64(ec.ResponseTime.Microseconds()) / 1000
		ev.ResponseTime = &ms
	}
	if level == LevelError {
		ev.Stack = string(debug.Stack())
	}

	m.mu.Lock()
	m.events = append(m.events, ev)
	if over := len(m.events) - m.capacity; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
	m.mu.Unlock()

	m.logEvent(ctx, ev)
	if level == LevelError && category == CategoryDatabase {
		m.trigger(ctx, immediateDatabaseRule, m.Stats())
	}
	return ev
}

func (m *Monitor) RecordCartError(ctx context.Context, operation string, err error, sessionID string) {
	m.Record(ctx, LevelError, CategoryCart, "Cart operation failed: "+operation,
		map[string]any{"error": errString(err), "operation": operation},
		Context{SessionID: sessionID, Operation: operation})
}

func (m *Monitor) RecordDatabaseError(ctx context.Context, operation string, err error) {
	m.Record(ctx, LevelError, CategoryDatabase, "Database operation failed: "+operation,
		map[string]any{"error": errString(err), "operation": operation},
		Context{Operation: operation})
}

func (m *Monitor) RecordCacheError(ctx context.Context, operation string, err error) {
	m.Record(ctx, LevelWarning, CategoryCache, "Cache operation failed: "+operation,
		map[string]any{"error": errString(err), "operation": operation},
		Context{Operation: operation})
}

func (m *Monitor) RecordAPIError(ctx context.Context, endpoint string, status int, err error, ec Context) {
	m.Record(ctx, LevelError, CategoryAPI, "API endpoint failed: "+endpoint,
		map[string]any{"error": errString(err), "statusCode": status, "endpoint": endpoint},
		ec)
}

func (m *Monitor) RecordValidationError(ctx context.Context, field string, value any, rule string) {
	m.Record(ctx, LevelWarning, CategoryValidation, "Validation failed: "+field,
		map[string]any{"field": field, "value": value, "rule": rule},
		Context{})
}

func (m *Monitor) RecordPerformanceWarning(ctx context.Context, operation string, took, threshold time.Duration) {
	m.Record(ctx, LevelWarning, CategoryCart, "Slow operation: "+operation,
		map[string]any{
			"operation":    operation,
			"responseTime": took.Milliseconds(),
			"threshold":    threshold.Milliseconds(),
			"performance":  true,
		},
		Context{Operation: operation, ResponseTime: took})
}

// Stats summarises the retained events.
type Stats struct {
	TotalErrors         int              `json:"totalErrors"`
	ErrorsByCategory    map[Category]int `json:"errorsByCategory"`
	ErrorsByLevel       map[Level]int    `json:"errorsByLevel"`
	RecentByCategory    map[Category]int `json:"recentByCategory"`
	AverageResponseTime float64          `json:"averageResponseTime"`
	ErrorRate           float64          `json:"errorRate"`
	RecentErrors        []Event          `json:"recentErrors"`
}

func (m *Monitor) Stats() Stats {
	now := m.now()
	m.mu.RLock()
	events := append([]Event(nil), m.events...)
	m.mu.RUnlock()

	stats := Stats{
		TotalErrors:      len(events),
		ErrorsByCategory: map[Category]int{},
		ErrorsByLevel:    map[Level]int{},
		RecentByCategory: map[Category]int{},
		RecentErrors:     []Event{},
	}
	var (
		recent      []Event
		timed       int
		timeTotalMs float64
	)
	cutoff := now.Add(-recentWindow)
	for _, ev := range events {
		stats.ErrorsByCategory[ev.Category]++
		stats.ErrorsByLevel[ev.Level]++
		if ev.ResponseTime != nil {
			timed++
			timeTotalMs += *ev.ResponseTime
		}
		if ev.Timestamp.After(cutoff) {
			recent = append(recent, ev)
			stats.RecentByCategory[ev.Category]++
		}
	}
	if timed > 0 {
		stats.AverageResponseTime = timeTotalMs / float64(timed)
	}
	stats.ErrorRate = float64(len(recent)) / float64(m.operationCount(len(events)))
	if n := len(recent); n > recentErrorsShown {
		recent = recent[n-recentErrorsShown:]
	}
	if recent != nil {
		stats.RecentErrors = recent
	}
	return stats
}

func (m *Monitor) ByCategory(category Category, limit int) []Event {
	return m.filter(limit, func(ev Event) bool { return ev.Category == category })
}

func (m *Monitor) ByLevel(level Level, limit int) []Event {
	return m.filter(limit, func(ev Event) bool { return ev.Level == level })
}

func (m *Monitor) Recent(limit int) []Event {
	return m.filter(limit, func(Event) bool { return true })
}

// ClearOlderThan drops events older than age and returns how many were removed.
func (m *Monitor) ClearOlderThan(ctx context.Context, age time.Duration) int {
	if age <= 0 {
		age = DefaultRetention
	}
	cutoff := m.now().Add(-age)

	m.mu.Lock()
	kept := m.events[:0:0]
	for _, ev := range m.events {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	removed := len(m.events) - len(kept)
	m.events = kept
	m.mu.Unlock()

	if removed > 0 && m.logg != nil {
		m.logg.Info(m.logg.WithField(ctx, "cleared", removed), "cleared old error events")
	}
	return removed
}

// filter returns the last limit matching events, oldest first.
func (m *Monitor) filter(limit int, keep func(Event) bool) []Event {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Event{}
	for _, ev := range m.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (m *Monitor) operationCount(events int) int64 {
	if m.ops != nil {
		if n := m.ops.OperationCount(); n > 0 {
			return n
		}
	}
	if fallback := int64(events * 10); fallback > 1 {
		return fallback
	}
	return 1
}

func (m *Monitor) logEvent(ctx context.Context, ev Event) {
	if m.logg == nil {
		return
	}
	fields := map[string]any{
		"event_id": ev.ID,
		"level":    string(ev.Level),
		"category": string(ev.Category),
	}
	if ev.SessionID != "" {
		fields["session_id"] = ev.SessionID
	}
	if ev.Operation != "" {
		fields["operation"] = ev.Operation
	}
	if ev.ResponseTime != nil {
		fields["response_time_ms"] = *ev.ResponseTime
	}
	logCtx := m.logg.WithFields(ctx, fields)
	switch ev.Level {
	case LevelError:
		m.logg.Error(logCtx, ev.Message, fmt.Errorf("%v", ev.Details["error"]))
	case LevelWarning:
		m.logg.Warn(logCtx, ev.Message)
	default:
		m.logg.Info(logCtx, ev.Message)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

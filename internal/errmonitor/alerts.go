package errmonitor

import (
	"context"
	"fmt"
	"time"
)

// DefaultAlertCooldown applies to rules that leave Cooldown unset.
const DefaultAlertCooldown = 5 * time.Minute

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertRule fires when Condition holds for the current stats, at most once per
// Cooldown.
type AlertRule struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Message   string             `json:"message"`
	Severity  Severity           `json:"severity"`
	Enabled   bool               `json:"enabled"`
	Cooldown  time.Duration      `json:"cooldown"`
	Condition func(s Stats) bool `json:"-"`
}

func (r AlertRule) cooldown() time.Duration {
	if r.Cooldown > 0 {
		return r.Cooldown
	}
	return DefaultAlertCooldown
}

// Alert is a triggered rule.
type Alert struct {
	RuleID    string   `json:"ruleId"`
	Name      string   `json:"name"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	ErrorRate float64  `json:"errorRate"`
	Total     int      `json:"totalErrors"`
}

var immediateDatabaseRule = AlertRule{
	ID:        "immediate-db-error",
	Name:      "Immediate Database Error",
	Message:   "Critical database error detected",
	Severity:  SeverityCritical,
	Enabled:   true,
	Cooldown:  time.Minute,
	Condition: func(Stats) bool { return true },
}

func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			ID:        "high-error-rate",
			Name:      "High Error Rate",
			Message:   "Error rate is high",
			Severity:  SeverityHigh,
			Enabled:   true,
			Condition: func(s Stats) bool { return s.ErrorRate > 0.1 },
		},
		{
			ID:        "database-errors",
			Name:      "Database Errors",
			Message:   "Too many database errors",
			Severity:  SeverityCritical,
			Enabled:   true,
			Condition: func(s Stats) bool { return s.RecentByCategory[CategoryDatabase] > 10 },
		},
		{
			ID:        "slow-response",
			Name:      "Slow Response Time",
			Message:   "Average response time is too high",
			Severity:  SeverityMedium,
			Enabled:   true,
			Condition: func(s Stats) bool { return s.AverageResponseTime > 2000 },
		},
		{
			ID:        "cart-errors",
			Name:      "Cart Operation Errors",
			Message:   "Too many cart errors",
			Severity:  SeverityHigh,
			Enabled:   true,
			Condition: func(s Stats) bool { return s.RecentByCategory[CategoryCart] > 20 },
		},
	}
}

// AddAlertRule appends a rule. A rule without a condition is rejected.
func (m *Monitor) AddAlertRule(rule AlertRule) error {
	if rule.ID == "" || rule.Condition == nil {
		return fmt.Errorf("alert rule requires an id and a condition")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rules {
		if existing.ID == rule.ID {
			return fmt.Errorf("alert rule %q already exists", rule.ID)
		}
	}
	m.rules = append(m.rules, rule)
	return nil
}

// RemoveAlertRule reports whether a rule was removed.
func (m *Monitor) RemoveAlertRule(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rule := range m.rules {
		if rule.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			delete(m.lastFired, id)
			return true
		}
	}
	return false
}

func (m *Monitor) AlertRules() []AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AlertRule(nil), m.rules...)
}

// CheckAlerts evaluates every enabled rule, logs the triggered ones and returns
// them. A rule still cooling down from its last alert is skipped.
func (m *Monitor) CheckAlerts(ctx context.Context) []Alert {
	stats := m.Stats()
	triggered := []Alert{}
	for _, rule := range m.AlertRules() {
		if !rule.Enabled || !rule.Condition(stats) {
			continue
		}
		if alert, ok := m.trigger(ctx, rule, stats); ok {
			triggered = append(triggered, alert)
		}
	}
	return triggered
}

// claim records a firing of rule at now unless it fired within its cooldown.
func (m *Monitor) claim(rule AlertRule, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastFired[rule.ID]; ok && now.Sub(last) < rule.cooldown() {
		return false
	}
	m.lastFired[rule.ID] = now
	return true
}

func (m *Monitor) trigger(ctx context.Context, rule AlertRule, stats Stats) (Alert, bool) {
	if !m.claim(rule, m.now()) {
		return Alert{}, false
	}
	alert := Alert{
		RuleID:    rule.ID,
		Name:      rule.Name,
		Message:   rule.Message,
		Severity:  rule.Severity,
		ErrorRate: stats.ErrorRate,
		Total:     stats.TotalErrors,
	}
	if m.logg == nil {
		return alert, true
	}
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"rule_id":       rule.ID,
		"severity":      string(rule.Severity),
		"total_errors":  stats.TotalErrors,
		"error_rate":    stats.ErrorRate,
		"recent_errors": len(stats.RecentErrors),
	})
	msg := fmt.Sprintf("%s: %s", rule.Name, rule.Message)
	switch rule.Severity {
	case SeverityCritical, SeverityHigh:
		m.logg.Error(logCtx, msg, nil)
	default:
		m.logg.Warn(logCtx, msg)
	}
	return alert, true
}

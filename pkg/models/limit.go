package models

import (
	"time"
)

// LimitType identifies the metric a risk limit constrains.
type LimitType string

const (
	LimitTypeVaR           LimitType = "var"
	LimitTypeConcentration LimitType = "concentration"
	LimitTypeExposure      LimitType = "exposure"
	LimitTypeSensitivity   LimitType = "sensitivity"
)

// LimitStatus is the threshold classification of a limit's current value.
type LimitStatus string

const (
	LimitStatusPending  LimitStatus = "pending"
	LimitStatusActive   LimitStatus = "active"
	LimitStatusWarning  LimitStatus = "warning"
	LimitStatusBreached LimitStatus = "breached"
)

// LimitSample is one (date, value, status) observation appended to a limit's
// history on every check cycle.
type LimitSample struct {
	Date   time.Time   `json:"date"`
	Value  float64     `json:"value"`
	Status LimitStatus `json:"status"`
}

// RiskLimit is a configured threshold against a computed risk metric. Records
// are mutated only by the limit checker, one check cycle at a time.
type RiskLimit struct {
	ID                  string            `json:"id"`
	PortfolioID         string            `json:"portfolio_id"`
	Type                LimitType         `json:"type"`
	Parameters          map[string]string `json:"parameters,omitempty"`
	WarningThreshold    float64           `json:"warning_threshold"`
	BreachThreshold     float64           `json:"breach_threshold"`
	Status              LimitStatus       `json:"status"`
	CurrentValue        float64           `json:"current_value"`
	History             []LimitSample     `json:"history"`
	NotificationTargets []string          `json:"notification_targets,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// ClassifyValue applies the threshold comparison rule on absolute magnitude.
func (l *RiskLimit) ClassifyValue(value float64) LimitStatus {
	switch {
	case value >= l.BreachThreshold:
		return LimitStatusBreached
	case value >= l.WarningThreshold:
		return LimitStatusWarning
	default:
		return LimitStatusActive
	}
}

// BreachStatus is the lifecycle state of a breach record.
type BreachStatus string

const (
	BreachStatusActive   BreachStatus = "active"
	BreachStatusResolved BreachStatus = "resolved"
)

// Breach records a period during which a limit exceeded its breach threshold.
// EndDate is nil while the breach is open. Closing follows threshold state
// only; any resolution plan tracks remediation independently.
type Breach struct {
	ID           string       `json:"id"`
	LimitID      string       `json:"limit_id"`
	PortfolioID  string       `json:"portfolio_id"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      *time.Time   `json:"end_date,omitempty"`
	Status       BreachStatus `json:"status"`
	Threshold    float64      `json:"threshold"`
	MaxValue     float64      `json:"max_value"`
	CurrentValue float64      `json:"current_value"`
	PlanID       string       `json:"plan_id,omitempty"`
}

package models

import (
	"time"
)

// StepStatus is the state of a single remediation step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
)

// PlanStatus is the derived state of a resolution plan.
type PlanStatus string

const (
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusInProgress PlanStatus = "in_progress"
	PlanStatusCompleted  PlanStatus = "completed"
)

// ResolutionStep is one ordered remediation action within a plan.
type ResolutionStep struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	DueDate     time.Time  `json:"due_date"`
	Status      StepStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// ResolutionPlan tracks remediation of a breach or violation through to
// completion. Its status is derived from its steps.
type ResolutionPlan struct {
	ID          string           `json:"id"`
	BreachID    string           `json:"breach_id"`
	Description string           `json:"description"`
	Status      PlanStatus       `json:"status"`
	DueDate     time.Time        `json:"due_date"`
	AssignedTo  string           `json:"assigned_to"`
	Steps       []ResolutionStep `json:"steps"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// DeriveStatus computes the plan status from its steps: completed iff all
// steps completed, in_progress if any step has left pending, else pending.
func (p *ResolutionPlan) DeriveStatus() PlanStatus {
	if len(p.Steps) == 0 {
		return p.Status
	}

	allCompleted := true
	anyStarted := false
	for _, step := range p.Steps {
		if step.Status != StepStatusCompleted {
			allCompleted = false
		}
		if step.Status != StepStatusPending {
			anyStarted = true
		}
	}

	switch {
	case allCompleted:
		return PlanStatusCompleted
	case anyStarted:
		return PlanStatusInProgress
	default:
		return PlanStatusPending
	}
}

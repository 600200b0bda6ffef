// Package resolution tracks remediation plans and their steps for breaches
// and violations through to completion. Plan status is always derived from
// step state, never set directly.
package resolution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

type planRecord struct {
	mu   sync.Mutex
	plan models.ResolutionPlan
}

// BreachLinker attaches a created plan back to its breach record.
type BreachLinker interface {
	AttachPlan(breachID, planID string) error
}

// Manager owns resolution plan records.
type Manager struct {
	mu       sync.RWMutex
	plans    map[string]*planRecord
	byBreach map[string]string
	linker   BreachLinker
	log      *logger.Logger
}

// NewManager creates a resolution workflow manager. The linker may be nil
// when breach linkage is handled elsewhere.
func NewManager(linker BreachLinker) *Manager {
	return &Manager{
		plans:    make(map[string]*planRecord),
		byBreach: make(map[string]string),
		linker:   linker,
		log:      logger.GetLogger("resolution.manager"),
	}
}

// StepInput describes one remediation step at plan creation.
type StepInput struct {
	Description string
	DueDate     time.Time
}

// CreatePlan initializes a plan with all steps pending. A plan with steps
// starts in_progress immediately; a zero-step plan starts in_progress only
// when activate is set, otherwise pending.
func (m *Manager) CreatePlan(_ context.Context, breachID, description string, dueDate time.Time, assignedTo string, steps []StepInput, activate bool) (models.ResolutionPlan, error) {
	if breachID == "" {
		return models.ResolutionPlan{}, errors.InvalidArgument("plan requires a breach id")
	}

	now := time.Now()
	plan := models.ResolutionPlan{
		ID:          uuid.NewString(),
		BreachID:    breachID,
		Description: description,
		DueDate:     dueDate,
		AssignedTo:  assignedTo,
		Steps:       make([]models.ResolutionStep, 0, len(steps)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, s := range steps {
		plan.Steps = append(plan.Steps, models.ResolutionStep{
			ID:          uuid.NewString(),
			Description: s.Description,
			DueDate:     s.DueDate,
			Status:      models.StepStatusPending,
		})
	}

	if len(plan.Steps) > 0 || activate {
		plan.Status = models.PlanStatusInProgress
	} else {
		plan.Status = models.PlanStatusPending
	}

	m.mu.Lock()
	m.plans[plan.ID] = &planRecord{plan: plan}
	m.byBreach[breachID] = plan.ID
	m.mu.Unlock()

	if m.linker != nil {
		if err := m.linker.AttachPlan(breachID, plan.ID); err != nil {
			m.log.Warnf("could not link plan %s to breach %s: %v", plan.ID, breachID, err)
		}
	}

	m.log.Infof("created resolution plan %s for breach %s with %d steps", plan.ID, breachID, len(plan.Steps))
	return clonePlan(plan), nil
}

// GetPlan returns a copy of a plan by id.
func (m *Manager) GetPlan(id string) (models.ResolutionPlan, error) {
	record, err := m.record(id)
	if err != nil {
		return models.ResolutionPlan{}, err
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	return clonePlan(record.plan), nil
}

// GetPlanForBreach returns the plan attached to a breach, if any.
func (m *Manager) GetPlanForBreach(breachID string) (models.ResolutionPlan, error) {
	m.mu.RLock()
	planID, ok := m.byBreach[breachID]
	m.mu.RUnlock()
	if !ok {
		return models.ResolutionPlan{}, errors.NotFound("no resolution plan for breach %s", breachID)
	}
	return m.GetPlan(planID)
}

// UpdateStep sets a step's status and notes, then recomputes the plan's
// derived status. The update is committed atomically under the plan's lock.
func (m *Manager) UpdateStep(_ context.Context, planID, stepID string, status models.StepStatus, notes string) (models.ResolutionPlan, error) {
	record, err := m.record(planID)
	if err != nil {
		return models.ResolutionPlan{}, err
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	plan := &record.plan
	idx := -1
	for i := range plan.Steps {
		if plan.Steps[i].ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.ResolutionPlan{}, errors.UnknownStep(planID, stepID)
	}

	step := &plan.Steps[idx]
	step.Status = status
	if notes != "" {
		step.Notes = notes
	}
	if status == models.StepStatusCompleted {
		now := time.Now()
		step.CompletedAt = &now
	} else {
		step.CompletedAt = nil
	}

	plan.Status = plan.DeriveStatus()
	plan.UpdatedAt = time.Now()

	m.log.Infof("plan %s step %s -> %s (plan %s)", planID, stepID, status, plan.Status)
	return clonePlan(*plan), nil
}

func (m *Manager) record(id string) (*planRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.plans[id]
	if !ok {
		return nil, errors.NotFound("resolution plan not found: %s", id)
	}
	return record, nil
}

func clonePlan(p models.ResolutionPlan) models.ResolutionPlan {
	out := p
	out.Steps = append([]models.ResolutionStep(nil), p.Steps...)
	return out
}

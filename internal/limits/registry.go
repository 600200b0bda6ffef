// Package limits evaluates computed risk metrics against configured
// thresholds and manages limit status transitions and breach records. It is
// one of the two stateful subsystems of the engine; every record is updated
// under a per-record lock so concurrent check cycles cannot lose updates.
package limits

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

type limitRecord struct {
	mu    sync.Mutex
	limit models.RiskLimit
}

// Registry owns limit and breach records.
type Registry struct {
	mu          sync.RWMutex
	limits      map[string]*limitRecord
	byPortfolio map[string][]string
	breaches    map[string]*models.Breach
	openByLimit map[string]string
	log         *logger.Logger
}

// NewRegistry creates an empty limit registry.
func NewRegistry() *Registry {
	return &Registry{
		limits:      make(map[string]*limitRecord),
		byPortfolio: make(map[string][]string),
		breaches:    make(map[string]*models.Breach),
		openByLimit: make(map[string]string),
		log:         logger.GetLogger("limits.registry"),
	}
}

// Create registers a new limit in pending status; it has no value until its
// first check cycle.
func (r *Registry) Create(limit models.RiskLimit) (models.RiskLimit, error) {
	if limit.PortfolioID == "" {
		return models.RiskLimit{}, errors.InvalidArgument("limit requires a portfolio id")
	}
	if limit.BreachThreshold < limit.WarningThreshold {
		return models.RiskLimit{}, errors.InvalidArgument("breach threshold %g below warning threshold %g",
			limit.BreachThreshold, limit.WarningThreshold)
	}

	if limit.ID == "" {
		limit.ID = uuid.NewString()
	}
	limit.Status = models.LimitStatusPending
	limit.History = nil
	limit.CreatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.limits[limit.ID]; exists {
		return models.RiskLimit{}, errors.AlreadyExists("limit already exists: %s", limit.ID)
	}
	r.limits[limit.ID] = &limitRecord{limit: limit}
	r.byPortfolio[limit.PortfolioID] = append(r.byPortfolio[limit.PortfolioID], limit.ID)

	r.log.Infof("created limit %s (%s) for portfolio %s", limit.ID, limit.Type, limit.PortfolioID)
	return limit, nil
}

// Get returns a copy of a limit by id.
func (r *Registry) Get(id string) (models.RiskLimit, error) {
	r.mu.RLock()
	record, ok := r.limits[id]
	r.mu.RUnlock()
	if !ok {
		return models.RiskLimit{}, errors.NotFound("limit not found: %s", id)
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	return cloneLimit(record.limit), nil
}

// ListByPortfolio returns copies of all limits configured for a portfolio.
func (r *Registry) ListByPortfolio(portfolioID string) []models.RiskLimit {
	r.mu.RLock()
	ids := append([]string(nil), r.byPortfolio[portfolioID]...)
	r.mu.RUnlock()

	out := make([]models.RiskLimit, 0, len(ids))
	for _, id := range ids {
		if limit, err := r.Get(id); err == nil {
			out = append(out, limit)
		}
	}
	return out
}

// Delete removes a limit permanently. Deletion is terminal and irreversible;
// any open breach for the limit is left closed at its final state.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.limits[id]
	if !ok {
		return errors.NotFound("limit not found: %s", id)
	}
	delete(r.limits, id)

	ids := r.byPortfolio[record.limit.PortfolioID]
	for i, lid := range ids {
		if lid == id {
			r.byPortfolio[record.limit.PortfolioID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	if breachID, open := r.openByLimit[id]; open {
		if breach, ok := r.breaches[breachID]; ok {
			now := time.Now()
			breach.EndDate = &now
			breach.Status = models.BreachStatusResolved
		}
		delete(r.openByLimit, id)
	}

	r.log.Infof("deleted limit %s", id)
	return nil
}

// Portfolios returns the ids of every portfolio with at least one limit.
func (r *Registry) Portfolios() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byPortfolio))
	for id, limitIDs := range r.byPortfolio {
		if len(limitIDs) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// GetBreach returns a copy of a breach record.
func (r *Registry) GetBreach(id string) (models.Breach, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	breach, ok := r.breaches[id]
	if !ok {
		return models.Breach{}, errors.NotFound("breach not found: %s", id)
	}
	return *breach, nil
}

// ListBreaches returns copies of all breaches, optionally filtered by
// portfolio.
func (r *Registry) ListBreaches(portfolioID string) []models.Breach {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Breach, 0, len(r.breaches))
	for _, b := range r.breaches {
		if portfolioID == "" || b.PortfolioID == portfolioID {
			out = append(out, *b)
		}
	}
	return out
}

// AttachPlan links a resolution plan to a breach record.
func (r *Registry) AttachPlan(breachID, planID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	breach, ok := r.breaches[breachID]
	if !ok {
		return errors.NotFound("breach not found: %s", breachID)
	}
	breach.PlanID = planID
	return nil
}

func cloneLimit(l models.RiskLimit) models.RiskLimit {
	out := l
	out.History = append([]models.LimitSample(nil), l.History...)
	out.NotificationTargets = append([]string(nil), l.NotificationTargets...)
	return out
}

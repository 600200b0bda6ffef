package limits

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// MetricSource computes the current value of a limit's monitored metric: a
// VaR estimate, a concentration/exposure aggregate or a sensitivity shock,
// depending on the limit type.
type MetricSource interface {
	CurrentValue(ctx context.Context, limit models.RiskLimit, date time.Time) (float64, error)
}

// TransitionListener observes committed status transitions. Listeners are
// invoked after state is committed and must not block; notification delivery
// is fire-and-forget.
type TransitionListener interface {
	OnTransition(ctx context.Context, limit models.RiskLimit, prior models.LimitStatus, breach *models.Breach)
}

// Checker runs limit check cycles. Checks are scoped per portfolio and
// independent across portfolios; a long calculation for one portfolio never
// blocks another's cycle.
type Checker struct {
	registry  *Registry
	source    MetricSource
	listeners []TransitionListener
	log       *logger.Logger
}

// NewChecker creates a limit checker over the registry and metric source.
func NewChecker(registry *Registry, source MetricSource, listeners ...TransitionListener) *Checker {
	return &Checker{
		registry:  registry,
		source:    source,
		listeners: listeners,
		log:       logger.GetLogger("limits.checker"),
	}
}

// Check runs one check cycle over every limit configured for the portfolio.
// For each limit the metric is computed first; only a successful computation
// commits state, history and breach bookkeeping in one step under the
// record's lock. A failed computation leaves the limit exactly as it was.
func (c *Checker) Check(ctx context.Context, portfolioID string, date time.Time) (models.LimitCheckReport, error) {
	report := models.LimitCheckReport{
		PortfolioID: portfolioID,
		CheckedAt:   date,
	}

	c.registry.mu.RLock()
	ids := append([]string(nil), c.registry.byPortfolio[portfolioID]...)
	c.registry.mu.RUnlock()

	for _, id := range ids {
		c.registry.mu.RLock()
		record, ok := c.registry.limits[id]
		c.registry.mu.RUnlock()
		if !ok {
			continue
		}

		outcome, err := c.checkOne(ctx, record, date)
		if err != nil {
			c.log.Errorf("limit %s check failed, state unchanged: %v", id, err)
			continue
		}

		report.LimitsChecked++
		switch outcome.Status {
		case models.LimitStatusBreached:
			report.Breached++
		case models.LimitStatusWarning:
			report.Warning++
		case models.LimitStatusActive:
			report.Active++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report, nil
}

func (c *Checker) checkOne(ctx context.Context, record *limitRecord, date time.Time) (models.LimitCheckOutcome, error) {
	record.mu.Lock()
	snapshot := cloneLimit(record.limit)
	record.mu.Unlock()

	// Compute all inputs before touching state. Thresholds compare on
	// absolute magnitude; the caller supplies the sign convention.
	raw, err := c.source.CurrentValue(ctx, snapshot, date)
	if err != nil {
		return models.LimitCheckOutcome{}, err
	}
	value := math.Abs(raw)

	record.mu.Lock()
	limit := &record.limit

	prior := limit.Status
	next := limit.ClassifyValue(value)

	outcome := models.LimitCheckOutcome{
		LimitID:     limit.ID,
		Type:        limit.Type,
		PriorStatus: prior,
		Status:      next,
		PriorValue:  limit.CurrentValue,
		Value:       value,
	}

	limit.CurrentValue = value
	limit.Status = next
	limit.History = append(limit.History, models.LimitSample{Date: date, Value: value, Status: next})

	var transitionBreach *models.Breach
	wasBreached := prior == models.LimitStatusBreached
	isBreached := next == models.LimitStatusBreached

	switch {
	case isBreached && !wasBreached:
		breach := c.openBreach(limit, value, date)
		outcome.BreachOpened = breach.ID
		transitionBreach = breach
	case isBreached && wasBreached:
		transitionBreach = c.updateOpenBreach(limit, value)
	case !isBreached && wasBreached:
		if breach := c.closeOpenBreach(limit, value, date); breach != nil {
			outcome.BreachClosed = breach.ID
			transitionBreach = breach
		}
	}

	committed := cloneLimit(*limit)
	record.mu.Unlock()

	if prior != next {
		c.log.Infof("limit %s transitioned %s -> %s (value=%g warning=%g breach=%g)",
			committed.ID, prior, next, value, committed.WarningThreshold, committed.BreachThreshold)
		for _, l := range c.listeners {
			l.OnTransition(ctx, committed, prior, transitionBreach)
		}
	}

	return outcome, nil
}

// openBreach creates a new open breach record for a limit entering breached.
func (c *Checker) openBreach(limit *models.RiskLimit, value float64, date time.Time) *models.Breach {
	breach := &models.Breach{
		ID:           uuid.NewString(),
		LimitID:      limit.ID,
		PortfolioID:  limit.PortfolioID,
		StartDate:    date,
		Status:       models.BreachStatusActive,
		Threshold:    limit.BreachThreshold,
		MaxValue:     value,
		CurrentValue: value,
	}

	c.registry.mu.Lock()
	c.registry.breaches[breach.ID] = breach
	c.registry.openByLimit[limit.ID] = breach.ID
	c.registry.mu.Unlock()

	return breach
}

// updateOpenBreach tracks the running maximum while the limit stays breached.
func (c *Checker) updateOpenBreach(limit *models.RiskLimit, value float64) *models.Breach {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()

	breachID, ok := c.registry.openByLimit[limit.ID]
	if !ok {
		return nil
	}
	breach := c.registry.breaches[breachID]
	breach.CurrentValue = value
	if value > breach.MaxValue {
		breach.MaxValue = value
	}
	return breach
}

// closeOpenBreach resolves the open breach when the limit leaves breached.
// Closing follows threshold state only; a pending resolution plan does not
// hold the breach open.
func (c *Checker) closeOpenBreach(limit *models.RiskLimit, value float64, date time.Time) *models.Breach {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()

	breachID, ok := c.registry.openByLimit[limit.ID]
	if !ok {
		return nil
	}
	breach := c.registry.breaches[breachID]
	breach.CurrentValue = value
	breach.EndDate = &date
	breach.Status = models.BreachStatusResolved
	delete(c.registry.openByLimit, limit.ID)
	return breach
}

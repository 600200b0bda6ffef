package scenario

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// Store keeps scenario and stress test definitions in memory. Updates never
// mutate in place; they install a new version with a refreshed UpdatedAt.
type Store struct {
	mu          sync.RWMutex
	scenarios   map[string]models.Scenario
	stressTests map[string]models.StressTest
}

// NewStore creates an empty scenario store.
func NewStore() *Store {
	return &Store{
		scenarios:   make(map[string]models.Scenario),
		stressTests: make(map[string]models.StressTest),
	}
}

// CreateScenario registers a scenario, assigning an id when absent.
func (s *Store) CreateScenario(sc models.Scenario) models.Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now()
	sc.Version = 1
	sc.CreatedAt = now
	sc.UpdatedAt = now
	s.scenarios[sc.ID] = sc
	return sc
}

// UpdateScenario installs a new version of an existing scenario.
func (s *Store) UpdateScenario(sc models.Scenario) (models.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.scenarios[sc.ID]
	if !ok {
		return models.Scenario{}, errors.NotFound("scenario not found: %s", sc.ID)
	}

	sc.Version = current.Version
	sc.CreatedAt = current.CreatedAt
	next := sc.NewVersion(time.Now())
	s.scenarios[sc.ID] = next
	return next, nil
}

// GetScenario returns a scenario by id.
func (s *Store) GetScenario(id string) (models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenarios[id]
	if !ok {
		return models.Scenario{}, errors.NotFound("scenario not found: %s", id)
	}
	return sc, nil
}

// ListScenarios returns all scenarios.
func (s *Store) ListScenarios() []models.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Scenario, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		out = append(out, sc)
	}
	return out
}

// CreateStressTest registers a stress test definition.
func (s *Store) CreateStressTest(test models.StressTest) models.StressTest {
	s.mu.Lock()
	defer s.mu.Unlock()

	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	test.CreatedAt = time.Now()
	s.stressTests[test.ID] = test
	return test
}

// GetStressTest returns a stress test by id.
func (s *Store) GetStressTest(id string) (models.StressTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	test, ok := s.stressTests[id]
	if !ok {
		return models.StressTest{}, errors.NotFound("stress test not found: %s", id)
	}
	return test, nil
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/riskd/risk-engine/internal/engine"
	"github.com/riskd/risk-engine/internal/resolution"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError sends the JSON error envelope for an engine error, mapping the
// error taxonomy to HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.TypeOf(err) {
	case errors.ErrorTypeInvalidArgument,
		errors.ErrorTypeInvalidPosition,
		errors.ErrorTypeMissingExposure,
		errors.ErrorTypeNonPositiveVariance,
		errors.ErrorTypeNonPSDCovariance:
		status = http.StatusBadRequest
	case errors.ErrorTypeNotFound, errors.ErrorTypeUnknownStep:
		status = http.StatusNotFound
	case errors.ErrorTypeAlreadyExists:
		status = http.StatusConflict
	case errors.ErrorTypeInsufficientHistory, errors.ErrorTypeDataUnavailable:
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		respondBadRequest(w, "invalid request payload")
		return false
	}
	return true
}

// Risk handlers

func (s *Server) handleCalculateRisk(w http.ResponseWriter, r *http.Request) {
	var req engine.CalculationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PortfolioID == "" {
		respondBadRequest(w, "portfolio_id is required")
		return
	}

	result, err := s.engine.CalculatePortfolioRisk(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRiskDecomposition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID   string    `json:"portfolio_id"`
		ModelID       string    `json:"model_id"`
		Date          time.Time `json:"date,omitempty"`
		PositionLevel bool      `json:"position_level,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PortfolioID == "" || req.ModelID == "" {
		respondBadRequest(w, "portfolio_id and model_id are required")
		return
	}

	result, err := s.engine.CalculateRiskDecomposition(r.Context(), req.PortfolioID, req.ModelID, req.Date, req.PositionLevel)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitCalibration(w http.ResponseWriter, r *http.Request) {
	var req engine.CalibrationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	job, err := s.engine.SubmitCalibrationJob(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.JobStatus(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Scenario handlers

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios := s.scenarios.ListScenarios()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": scenarios,
		"count":     len(scenarios),
	})
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var sc models.Scenario
	if !decodeBody(w, r, &sc) {
		return
	}
	if sc.Name == "" {
		respondBadRequest(w, "scenario name is required")
		return
	}

	respondJSON(w, http.StatusCreated, s.scenarios.CreateScenario(sc))
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scenarios.GetScenario(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	var sc models.Scenario
	if !decodeBody(w, r, &sc) {
		return
	}
	sc.ID = mux.Vars(r)["id"]

	updated, err := s.scenarios.UpdateScenario(sc)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAnalyzeScenarios(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID string    `json:"portfolio_id"`
		ScenarioIDs []string  `json:"scenario_ids"`
		Date        time.Time `json:"date,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PortfolioID == "" {
		respondBadRequest(w, "portfolio_id is required")
		return
	}

	result, err := s.engine.RunScenarioAnalysis(r.Context(), req.PortfolioID, req.ScenarioIDs, req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID string    `json:"portfolio_id"`
		Date        time.Time `json:"date,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PortfolioID == "" {
		respondBadRequest(w, "portfolio_id is required")
		return
	}

	result, err := s.engine.RunMonteCarloAnalysis(r.Context(), req.PortfolioID, mux.Vars(r)["id"], req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Stress test handlers

func (s *Server) handleCreateStressTest(w http.ResponseWriter, r *http.Request) {
	var test models.StressTest
	if !decodeBody(w, r, &test) {
		return
	}
	if len(test.PeriodImpacts) == 0 {
		respondBadRequest(w, "at least one period impact is required")
		return
	}

	respondJSON(w, http.StatusCreated, s.scenarios.CreateStressTest(test))
}

func (s *Server) handleRunStressTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PortfolioID       string    `json:"portfolio_id"`
		Date              time.Time `json:"date,omitempty"`
		IncludeTimeSeries bool      `json:"include_time_series,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PortfolioID == "" {
		respondBadRequest(w, "portfolio_id is required")
		return
	}

	result, err := s.engine.RunStressTest(r.Context(), req.PortfolioID, mux.Vars(r)["id"], req.Date, req.IncludeTimeSeries)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Limit handlers

func (s *Server) handleCreateLimit(w http.ResponseWriter, r *http.Request) {
	var limit models.RiskLimit
	if !decodeBody(w, r, &limit) {
		return
	}

	created, err := s.registry.Create(limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListLimits(w http.ResponseWriter, r *http.Request) {
	limits := s.registry.ListByPortfolio(mux.Vars(r)["portfolioId"])
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"limits": limits,
		"count":  len(limits),
	})
}

func (s *Server) handleGetLimit(w http.ResponseWriter, r *http.Request) {
	limit, err := s.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, limit)
}

func (s *Server) handleDeleteLimit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Delete(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "limit deleted", "id": id})
}

func (s *Server) handleCheckLimits(w http.ResponseWriter, r *http.Request) {
	report, err := s.checker.Check(r.Context(), mux.Vars(r)["portfolioId"], time.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Breach and resolution handlers

func (s *Server) handleListBreaches(w http.ResponseWriter, r *http.Request) {
	breaches := s.registry.ListBreaches(r.URL.Query().Get("portfolio_id"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"breaches": breaches,
		"count":    len(breaches),
	})
}

func (s *Server) handleGetBreach(w http.ResponseWriter, r *http.Request) {
	breach, err := s.registry.GetBreach(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, breach)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	breachID := mux.Vars(r)["id"]
	if _, err := s.registry.GetBreach(breachID); err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Description string    `json:"description"`
		DueDate     time.Time `json:"due_date"`
		AssignedTo  string    `json:"assigned_to"`
		Activate    bool      `json:"activate,omitempty"`
		Steps       []struct {
			Description string    `json:"description"`
			DueDate     time.Time `json:"due_date"`
		} `json:"steps,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	steps := make([]resolution.StepInput, 0, len(req.Steps))
	for _, step := range req.Steps {
		steps = append(steps, resolution.StepInput{
			Description: step.Description,
			DueDate:     step.DueDate,
		})
	}

	plan, err := s.resolution.CreatePlan(r.Context(), breachID, req.Description, req.DueDate, req.AssignedTo, steps, req.Activate)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleGetPlanForBreach(w http.ResponseWriter, r *http.Request) {
	plan, err := s.resolution.GetPlanForBreach(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.resolution.GetPlan(mux.Vars(r)["planId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Status models.StepStatus `json:"status"`
		Notes  string            `json:"notes,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Status {
	case models.StepStatusPending, models.StepStatusInProgress, models.StepStatusCompleted:
	default:
		respondBadRequest(w, "status must be pending, in_progress or completed")
		return
	}

	plan, err := s.resolution.UpdateStep(r.Context(), vars["planId"], vars["stepId"], req.Status, req.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// handleHealth returns the health status of the service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "risk-engine",
	})
}

// handleNotFound handles 404 errors.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, map[string]string{"error": "the requested resource was not found"})
}

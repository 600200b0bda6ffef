package attribution

import (
	"math"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// identityTolerance is the relative tolerance of the Brinson reconciliation
// identity.
const identityTolerance = 1e-6

// Group is one grouping bucket (asset class, sector or position) with
// portfolio and benchmark weights and returns.
type Group struct {
	Name string
	Wp   float64
	Wb   float64
	Rp   float64
	Rb   float64
}

// Brinson attributes active return over a benchmark into allocation,
// selection and interaction effects per group. The three effects must sum to
// each group's contribution to active return, and the group sums must equal
// total active return; both identities are verified before returning.
func Brinson(dimension string, groups []Group) (models.BrinsonResult, error) {
	result := models.BrinsonResult{
		Dimension: dimension,
		Effects:   make([]models.BrinsonEffect, 0, len(groups)),
	}

	var portfolioReturn, benchmarkReturn float64
	for _, g := range groups {
		allocation := (g.Wp - g.Wb) * g.Rb
		selection := g.Wb * (g.Rp - g.Rb)
		interaction := (g.Wp - g.Wb) * (g.Rp - g.Rb)
		active := g.Wp*g.Rp - g.Wb*g.Rb

		if !withinTolerance(allocation+selection+interaction, active) {
			return models.BrinsonResult{}, errors.Internal(
				"brinson effects for group %s do not reconcile: %g vs %g", g.Name, allocation+selection+interaction, active)
		}

		result.Effects = append(result.Effects, models.BrinsonEffect{
			Group:        g.Name,
			Allocation:   allocation,
			Selection:    selection,
			Interaction:  interaction,
			ActiveReturn: active,
		})

		result.TotalAllocation += allocation
		result.TotalSelection += selection
		result.TotalInteraction += interaction
		portfolioReturn += g.Wp * g.Rp
		benchmarkReturn += g.Wb * g.Rb
	}

	result.TotalActiveReturn = portfolioReturn - benchmarkReturn

	effectSum := result.TotalAllocation + result.TotalSelection + result.TotalInteraction
	if !withinTolerance(effectSum, result.TotalActiveReturn) {
		return models.BrinsonResult{}, errors.Internal(
			"brinson totals do not reconcile to active return: %g vs %g", effectSum, result.TotalActiveReturn)
	}

	return result, nil
}

func withinTolerance(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		scale = 1
	}
	return diff <= identityTolerance*scale
}

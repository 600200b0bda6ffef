package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

func testFeeds() *marketdata.MemoryStore {
	store := marketdata.NewMemoryStore()
	store.SetPriceSeries("AAPL", []float64{150, 152, 155})
	store.SetPriceSeries("GOVT", []float64{98, 99, 100})
	store.SetFactorLoadings(models.AssetClassEquity, map[string]float64{
		"equity_market": 1.0,
		"rates":         -0.2,
	})
	store.SetFactorLoadings(models.AssetClassBond, map[string]float64{
		"equity_market": 0.1,
		"rates":         0.9,
	})
	return store
}

func testPositions() []models.Position {
	return []models.Position{
		{Symbol: "AAPL", Quantity: 100, AssetClass: models.AssetClassEquity},
		{Symbol: "GOVT", Quantity: 500, AssetClass: models.AssetClassBond},
	}
}

func TestBuildSnapshotPricesFromFeed(t *testing.T) {
	builder := NewBuilder(testFeeds(), testFeeds())

	snapshot, err := builder.BuildSnapshot(context.Background(), "port-1", testPositions(), time.Now())
	require.NoError(t, err)
	require.Len(t, snapshot.Positions, 2)

	// Latest prices: AAPL 155, GOVT 100.
	assert.Equal(t, 15500.0, snapshot.Positions[0].MarketValue)
	assert.Equal(t, 50000.0, snapshot.Positions[1].MarketValue)
	assert.Equal(t, 65500.0, snapshot.TotalValue)

	t.Run("supplied market value kept", func(t *testing.T) {
		positions := testPositions()
		positions[0].MarketValue = 20000
		snapshot, err := builder.BuildSnapshot(context.Background(), "port-1", positions, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 20000.0, snapshot.Positions[0].MarketValue)
	})
}

func TestBuildSnapshotValidation(t *testing.T) {
	builder := NewBuilder(testFeeds(), testFeeds())

	t.Run("empty portfolio rejected", func(t *testing.T) {
		_, err := builder.BuildSnapshot(context.Background(), "port-1", nil, time.Now())
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})

	t.Run("non-positive quantity on long-only class", func(t *testing.T) {
		positions := testPositions()
		positions[0].Quantity = -10
		_, err := builder.BuildSnapshot(context.Background(), "port-1", positions, time.Now())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidPosition))
		assert.Contains(t, err.Error(), "AAPL")
	})

	t.Run("zero quantity rejected", func(t *testing.T) {
		positions := testPositions()
		positions[1].Quantity = 0
		_, err := builder.BuildSnapshot(context.Background(), "port-1", positions, time.Now())
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidPosition))
	})

	t.Run("unpriceable symbol fails whole request", func(t *testing.T) {
		positions := append(testPositions(), models.Position{
			Symbol: "NOPX", Quantity: 1, AssetClass: models.AssetClassEquity,
		})
		_, err := builder.BuildSnapshot(context.Background(), "port-1", positions, time.Now())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidPosition))
		assert.Contains(t, err.Error(), "NOPX")
	})
}

func TestResolveExposures(t *testing.T) {
	builder := NewBuilder(testFeeds(), testFeeds())
	snapshot, err := builder.BuildSnapshot(context.Background(), "port-1", testPositions(), time.Now())
	require.NoError(t, err)

	model := models.RiskModel{
		ID:   "factor-model",
		Type: models.ModelTypeFactorModel,
		Parameters: models.ModelParameters{
			Factors: []string{"equity_market", "rates"},
		},
	}

	matrix, err := builder.ResolveExposures(context.Background(), snapshot, model)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GOVT"}, matrix.Symbols)
	assert.Equal(t, []float64{1.0, -0.2}, matrix.Exposures[0])
	assert.Equal(t, []float64{0.1, 0.9}, matrix.Exposures[1])

	t.Run("portfolio exposure is value weighted", func(t *testing.T) {
		exposure := PortfolioExposure(snapshot, matrix)
		require.Len(t, exposure, 2)

		wEq := 15500.0 / 65500.0
		wBd := 50000.0 / 65500.0
		assert.InDelta(t, wEq*1.0+wBd*0.1, exposure[0], 1e-12)
		assert.InDelta(t, wEq*-0.2+wBd*0.9, exposure[1], 1e-12)
	})

	t.Run("no factors rejected", func(t *testing.T) {
		empty := model
		empty.Parameters.Factors = nil
		_, err := builder.ResolveExposures(context.Background(), snapshot, empty)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})

	t.Run("missing loadings name symbol and factor", func(t *testing.T) {
		unknown := model
		unknown.Parameters.Factors = []string{"credit"}
		_, err := builder.ResolveExposures(context.Background(), snapshot, unknown)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeMissingExposure))
		assert.Contains(t, err.Error(), "credit")
	})
}

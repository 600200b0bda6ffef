package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/pkg/models"
)

func keySnapshot() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		PortfolioID: "port-1",
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AssetClass: models.AssetClassEquity, MarketValue: 15500},
		},
		TotalValue: 15500,
	}
}

func TestKey(t *testing.T) {
	model := models.RiskModel{ID: "var-99", Type: models.ModelTypeVaR, Method: models.VaRMethodHistorical}
	date := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	first := Key(keySnapshot(), model, date)
	assert.True(t, strings.HasPrefix(first, "riskd:calc:"))

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		assert.Equal(t, first, Key(keySnapshot(), model, date))
	})

	t.Run("date changes the key", func(t *testing.T) {
		assert.NotEqual(t, first, Key(keySnapshot(), model, date.AddDate(0, 0, 1)))
	})

	t.Run("model changes the key", func(t *testing.T) {
		other := model
		other.Method = models.VaRMethodParametric
		assert.NotEqual(t, first, Key(keySnapshot(), other, date))
	})

	t.Run("snapshot changes the key", func(t *testing.T) {
		snapshot := keySnapshot()
		snapshot.Positions[0].Quantity = 200
		assert.NotEqual(t, first, Key(snapshot, model, date))
	})

	t.Run("timezone normalized", func(t *testing.T) {
		eastern := date.In(time.FixedZone("EST", -5*3600))
		assert.Equal(t, first, Key(keySnapshot(), model, eastern))
	})
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	type payload struct {
		VaR float64 `json:"var"`
	}

	require.NoError(t, cache.Set(ctx, "k1", payload{VaR: 1234.5}, 0))

	var got payload
	hit, err := cache.Get(ctx, "k1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1234.5, got.VaR)

	t.Run("miss on unknown key", func(t *testing.T) {
		var out payload
		hit, err := cache.Get(ctx, "missing", &out)
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "k2", payload{VaR: 1}, time.Millisecond))
		time.Sleep(5 * time.Millisecond)

		var out payload
		hit, err := cache.Get(ctx, "k2", &out)
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

package cost

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

type staticPricing struct {
	data PricingData
	err  error
}

func (s staticPricing) Pricing(ctx context.Context) (PricingData, error) {
	return s.data, s.err
}

type countingSource struct {
	calls int32
	data  PricingData
	err   error
}

func (c *countingSource) LoadPricing(ctx context.Context) (PricingData, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.data, c.err
}

func entry(zone types.Zone, damageType string, severity types.Severity, conf float64, count int) types.DamageZoneEntry {
	return types.NewDamageZoneEntry(zone, damageType, severity, conf, 0.05, count, types.BoundingBox{}, nil)
}

func historyData() PricingData {
	return PricingData{
		ModelAverages: map[ModelKey]float64{
			{Company: "maruti", Model: "swift", DamageType: "dent"}: 9000.4,
		},
		CompanyAverages: map[CompanyKey]float64{
			{Company: "maruti", DamageType: "dent"}:    7000,
			{Company: "maruti", DamageType: "scratch"}: 3500,
		},
		GlobalAverages: map[string]float64{
			"dent":    5000,
			"scratch": 3000,
			"crack":   8000.6,
		},
	}
}

func TestEstimateWithoutHistoryUsesBaseTable(t *testing.T) {
	est := NewEstimator(staticPricing{}, nil)

	got, err := est.Estimate(context.Background(),
		[]types.DamageZoneEntry{entry(types.ZoneFront, "scratch", types.SeverityMinor, 0.9, 1)},
		types.Vehicle{})
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(6000), got.Items[0].UnitCost)
	assert.Equal(t, types.TierBaseTable, got.Items[0].Tier)
	assert.Equal(t, int64(6000), got.Total)
}

func TestEstimateTierPrecedence(t *testing.T) {
	est := NewEstimator(staticPricing{data: historyData()}, nil)
	entries := []types.DamageZoneEntry{entry(types.ZoneFront, "dent", types.SeverityModerate, 0.8, 1)}

	tests := []struct {
		name     string
		vehicle  types.Vehicle
		unitCost int64
		tier     types.PricingTier
	}{
		{name: "model history wins", vehicle: types.Vehicle{Company: "  MARUTI ", Model: "Swift"}, unitCost: 9000, tier: types.TierModel},
		{name: "company history when model unknown", vehicle: types.Vehicle{Company: "Maruti", Model: "Alto"}, unitCost: 7000, tier: types.TierCompany},
		{name: "company history without model", vehicle: types.Vehicle{Company: "maruti"}, unitCost: 7000, tier: types.TierCompany},
		{name: "global history for unknown company", vehicle: types.Vehicle{Company: "Tata", Model: "Nexon"}, unitCost: 5000, tier: types.TierGlobal},
		{name: "model without company is ignored", vehicle: types.Vehicle{Model: "swift"}, unitCost: 5000, tier: types.TierGlobal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := est.Estimate(context.Background(), entries, tt.vehicle)
			require.NoError(t, err)
			require.Len(t, got.Items, 1)
			assert.Equal(t, tt.unitCost, got.Items[0].UnitCost)
			assert.Equal(t, tt.tier, got.Items[0].Tier)
		})
	}
}

func TestEstimateUnknownDamageTypeFallsToBaseTable(t *testing.T) {
	est := NewEstimator(staticPricing{data: historyData()}, nil)

	got, err := est.Estimate(context.Background(),
		[]types.DamageZoneEntry{entry(types.ZoneRear, "paint chip", types.SeveritySevere, 0.7, 2)},
		types.Vehicle{Company: "maruti", Model: "swift"})
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	assert.Equal(t, types.TierBaseTable, got.Items[0].Tier)
	assert.Equal(t, int64(32000), got.Items[0].UnitCost)
	assert.Equal(t, int64(64000), got.Total)
}

func TestEstimateGroupsByNormalizedDamageType(t *testing.T) {
	data := PricingData{ZoneCosts: map[types.Zone]ZoneCost{
		types.ZoneRear: {MinorCost: 1000, ModerateCost: 2000, SevereCost: 3000, LaborCost: 500, RegionalMultiplier: 1.0},
	}}
	est := NewEstimator(staticPricing{data: data}, nil)

	got, err := est.Estimate(context.Background(), []types.DamageZoneEntry{
		entry(types.ZoneFront, "Dent", types.SeverityModerate, 0.6, 2),
		entry(types.ZoneRear, "dent", types.SeveritySevere, 0.9, 1),
		entry(types.ZoneFront, "windshield_crack", types.SeverityMinor, 0.5, 0),
	}, types.Vehicle{})
	require.NoError(t, err)
	require.Len(t, got.Items, 2)

	dent := got.Items[0]
	assert.Equal(t, "dent", dent.DamageType)
	assert.Equal(t, types.SeveritySevere, dent.Severity)
	assert.Equal(t, 3, dent.Quantity)
	assert.Equal(t, int64(3500), dent.UnitCost)
	assert.Equal(t, int64(10500), dent.Total)

	glass := got.Items[1]
	assert.Equal(t, "broken glass", glass.DamageType)
	assert.Equal(t, 1, glass.Quantity)
	assert.Equal(t, int64(6000), glass.UnitCost)

	assert.Equal(t, int64(16500), got.Total)
}

func TestEstimateEmpty(t *testing.T) {
	got, err := NewEstimator(staticPricing{}, nil).Estimate(context.Background(), nil, types.Vehicle{})
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Zero(t, got.Total)
}

func TestEstimatePropagatesPricingError(t *testing.T) {
	_, err := NewEstimator(staticPricing{err: context.Canceled}, nil).Estimate(context.Background(), nil, types.Vehicle{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimateRecordsTierMetrics(t *testing.T) {
	metrics, err := monitoring.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	est := NewEstimator(staticPricing{data: historyData()}, metrics)

	_, err = est.Estimate(context.Background(), []types.DamageZoneEntry{
		entry(types.ZoneFront, "crack", types.SeverityMinor, 0.9, 1),
		entry(types.ZoneFront, "rust", types.SeverityMinor, 0.8, 1),
	}, types.Vehicle{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PricingTierTotal.WithLabelValues("global_history")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PricingTierTotal.WithLabelValues("base_table")))
}

func TestZoneCostUnitCost(t *testing.T) {
	zc := ZoneCost{MinorCost: 1000, ModerateCost: 2000, SevereCost: 3000, LaborCost: 500, RegionalMultiplier: 1.15}
	assert.Equal(t, int64(1725), zc.UnitCost(types.SeverityMinor))
	assert.Equal(t, int64(2875), zc.UnitCost(types.SeverityModerate))
	assert.Equal(t, int64(4025), zc.UnitCost(types.SeveritySevere))
	assert.Equal(t, int64(4025), zc.UnitCost(types.SeverityCritical))

	zc.RegionalMultiplier = 0
	assert.Equal(t, int64(1500), zc.UnitCost(types.SeverityMinor))
}

func TestCatalogCachesAndDegrades(t *testing.T) {
	src := &countingSource{data: historyData()}
	catalog := NewCatalog(src, time.Hour, nil, nil)
	assert.Equal(t, PricingStatus{}, catalog.Status())
	assert.Zero(t, atomic.LoadInt32(&src.calls))

	for i := 0; i < 3; i++ {
		data, err := catalog.Pricing(context.Background())
		require.NoError(t, err)
		assert.True(t, data.HasHistory())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.False(t, catalog.LastRefresh().IsZero())

	status := catalog.Status()
	assert.True(t, status.Loaded)
	assert.True(t, status.HasHistory)
	require.NotNil(t, status.LastRefresh)
	assert.Equal(t, catalog.LastRefresh().UTC(), *status.LastRefresh)

	require.NoError(t, catalog.Refresh(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))

	broken := NewCatalog(&countingSource{err: errors.New("no such table")}, time.Hour, nil, nil)
	data, err := broken.Pricing(context.Background())
	require.NoError(t, err)
	assert.False(t, data.HasHistory())
	assert.False(t, broken.Status().Loaded)
	assert.Equal(t, FallbackZoneCost, data.ZoneCost(types.ZoneFront))
}

func TestCatalogVehicleOptions(t *testing.T) {
	src := &countingSource{data: PricingData{Vehicles: map[string][]string{
		"maruti": {"swift", "alto", "baleno"},
	}}}
	opts, err := NewCatalog(src, time.Hour, nil, nil).VehicleOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alto", "baleno", "swift"}, opts["maruti"])
}

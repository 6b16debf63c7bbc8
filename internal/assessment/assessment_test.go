package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

func entry(damageType string, sev types.Severity, area, conf float64, count int) types.DamageZoneEntry {
	return types.DamageZoneEntry{
		Zone:            types.ZoneFront,
		DamageType:      damageType,
		Severity:        sev,
		AreaRatio:       area,
		Confidence:      conf,
		DetectionsCount: count,
	}
}

func TestRecommendAction(t *testing.T) {
	tests := []struct {
		name     string
		entries  []types.DamageZoneEntry
		cost     int64
		action   string
		severity int
		replace  int64
	}{
		{
			// severity 34, replace = 1.15x which is under the 1.2x threshold
			name:     "low severity flips to replace on economics",
			entries:  []types.DamageZoneEntry{entry("scratch", types.SeverityModerate, 0.05, 0.9, 1)},
			cost:     10000,
			action:   ActionReplace,
			severity: 34,
			replace:  11500,
		},
		{
			name:     "total loss",
			entries:  []types.DamageZoneEntry{entry("crack", types.SeverityCritical, 1, 1, 5)},
			cost:     150000,
			action:   ActionTotalLoss,
			severity: 100,
			replace:  150000,
		},
		{
			name:     "severe but cheap is not total loss",
			entries:  []types.DamageZoneEntry{entry("crack", types.SeverityCritical, 1, 1, 5)},
			cost:     100000,
			action:   ActionReplace,
			severity: 100,
			replace:  95000,
		},
		{
			name:     "no findings",
			entries:  nil,
			cost:     0,
			action:   ActionCosmetic,
			severity: 0,
			replace:  0,
		},
		{
			name:     "zero cost keeps the severity bucket",
			entries:  []types.DamageZoneEntry{entry("scratch", types.SeverityModerate, 0.05, 0.9, 1)},
			cost:     0,
			action:   ActionCosmetic,
			severity: 34,
			replace:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendAction(tt.entries, tt.cost)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.severity, got.SeverityScore)
			assert.Equal(t, tt.cost, got.RepairCost)
			assert.Equal(t, tt.replace, got.ReplaceCost)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestRecommendAction_AnyPositiveCostIsReplace(t *testing.T) {
	entries := []types.DamageZoneEntry{entry("scratch", types.SeverityModerate, 0.05, 0.9, 1)}
	for _, cost := range []int64{1, 500, 10000, 120000} {
		got := RecommendAction(entries, cost)
		assert.Equal(t, ActionReplace, got.Action, "cost %d", cost)
		assert.Less(t, float64(got.ReplaceCost), float64(cost)*1.2)
	}
}

func TestEstimateRepairTime(t *testing.T) {
	tests := []struct {
		name    string
		entries []types.DamageZoneEntry
		min     int
		max     int
	}{
		{name: "no findings", min: 1, max: 2},
		{
			// scratch minor: (max(1,0)=1, max(1,1)=1) -> 0.5 -> 1, 0.7 -> 1
			name:    "single minor scratch",
			entries: []types.DamageZoneEntry{entry("scratch", types.SeverityMinor, 0.05, 0.6, 1)},
			min:     1,
			max:     1,
		},
		{
			// dent severe x2: (1*2, 4*2) + broken glass moderate: (2, 3) = (4, 11) -> (2, 7)
			name: "mixed findings",
			entries: []types.DamageZoneEntry{
				entry("dent", types.SeveritySevere, 0.2, 0.9, 3),
				entry("glass_damage", types.SeverityModerate, 0.1, 0.7, 1),
			},
			min: 2,
			max: 7,
		},
		{
			// unknown moderate: (2, 4) -> (1, 2)
			name:    "unmapped damage type",
			entries: []types.DamageZoneEntry{entry("hail pitting", types.SeverityModerate, 0.1, 0.7, 1)},
			min:     1,
			max:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateRepairTime(tt.entries)
			assert.Equal(t, tt.min, got.MinDays)
			assert.Equal(t, tt.max, got.MaxDays)
			assert.Equal(t, dayLabel(tt.min, tt.max), got.Label)
		})
	}
}

func TestCoverageSummary(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }
	a := New().WithClock(now)

	ptr := func(v int64) *int64 { return &v }
	pct := func(v float64) *float64 { return &v }

	t.Run("defaults", func(t *testing.T) {
		got := a.CoverageSummary(types.Coverage{}, 20000)
		assert.Equal(t, int64(18000), got.DepreciatedTotal)
		assert.Equal(t, int64(16000), got.InsurancePays)
		assert.Equal(t, int64(4000), got.CustomerPays)
		assert.True(t, got.PolicyActive)
	})

	t.Run("coverage limit caps payout", func(t *testing.T) {
		got := a.CoverageSummary(types.Coverage{CoverageLimit: ptr(10000), Deductible: ptr(0), DepreciationPct: pct(0)}, 30000)
		assert.Equal(t, int64(10000), got.InsurancePays)
		assert.Equal(t, int64(20000), got.CustomerPays)
	})

	t.Run("deductible larger than claim", func(t *testing.T) {
		got := a.CoverageSummary(types.Coverage{Deductible: ptr(5000)}, 3000)
		assert.Zero(t, got.InsurancePays)
		assert.Equal(t, int64(3000), got.CustomerPays)
	})

	t.Run("policy valid through today", func(t *testing.T) {
		got := a.CoverageSummary(types.Coverage{PolicyValidTill: "2025-03-10"}, 20000)
		assert.True(t, got.PolicyActive)
	})

	t.Run("expired policy pays nothing", func(t *testing.T) {
		got := a.CoverageSummary(types.Coverage{PolicyValidTill: "09-03-2025"}, 20000)
		assert.False(t, got.PolicyActive)
		assert.Zero(t, got.InsurancePays)
		assert.Equal(t, int64(20000), got.CustomerPays)
	})

	t.Run("unparseable date counts as active", func(t *testing.T) {
		got := a.CoverageSummary(types.Coverage{PolicyValidTill: "next year"}, 20000)
		assert.True(t, got.PolicyActive)
	})
}

func TestAssess(t *testing.T) {
	a := New()
	got := a.Assess([]types.DamageZoneEntry{entry("dent", types.SeverityModerate, 0.1, 0.8, 1)}, 15000, types.Coverage{})

	assert.Equal(t, int64(15000), got.RepairAction.RepairCost)
	assert.Equal(t, int64(15000), got.Coverage.GrossTotal)
	assert.GreaterOrEqual(t, got.RepairTime.MaxDays, got.RepairTime.MinDays)
}

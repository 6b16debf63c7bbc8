// Package assessment derives advisory outputs from a processed claim:
// repair-vs-replace, workshop turnaround and the insurer/customer split.
package assessment

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/claimiq/internal/analysis"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// Policy defaults applied when the claim carries no coverage terms
const (
	DefaultDeductible      int64   = 2000
	DefaultCoverageLimit   int64   = 50000
	DefaultDepreciationPct float64 = 10
)

// Recommended actions
const (
	ActionTotalLoss = "Total Loss"
	ActionReplace   = "Replace"
	ActionRepair    = "Repair"
	ActionCosmetic  = "Minor Cosmetic Repair"
)

type dayRange struct{ min, max int }

// repairDays is keyed by normalized damage type
var repairDays = map[string]dayRange{
	"dent":                       {1, 3},
	"scratch":                    {1, 2},
	"crack":                      {2, 4},
	"broken glass":               {2, 3},
	"broken headlight/taillight": {1, 2},
	"bumper damage":              {3, 5},
	"bumper replace":             {4, 6},
	"paint damage":               {1, 2},
	"unknown":                    {2, 4},
}

var severityDayMultiplier = map[types.Severity]float64{
	types.SeverityMinor:    0.8,
	types.SeverityModerate: 1.0,
	types.SeveritySevere:   1.4,
	types.SeverityCritical: 1.7,
}

// Assessor builds assessments; now is injectable for policy-date checks
type Assessor struct {
	now func() time.Time
}

// New returns an assessor using the wall clock
func New() *Assessor {
	return &Assessor{now: time.Now}
}

// WithClock returns a copy of the assessor reading time from now
func (a *Assessor) WithClock(now func() time.Time) *Assessor {
	return &Assessor{now: now}
}

// Assess builds the full assessment for a claim's findings and cost
func (a *Assessor) Assess(entries []types.DamageZoneEntry, costTotal int64, coverage types.Coverage) types.Assessment {
	return types.Assessment{
		RepairAction: RecommendAction(entries, costTotal),
		RepairTime:   EstimateRepairTime(entries),
		Coverage:     a.CoverageSummary(coverage, costTotal),
	}
}

// RecommendAction picks repair, replace or total loss from severity and cost
func RecommendAction(entries []types.DamageZoneEntry, costTotal int64) types.RepairAction {
	severity, _ := analysis.OverallSeverityScore(entries)
	repairCost := costTotal
	if repairCost < 0 {
		repairCost = 0
	}

	if severity > 90 && repairCost > 120000 {
		return types.RepairAction{
			Action:        ActionTotalLoss,
			SeverityScore: severity,
			RepairCost:    repairCost,
			ReplaceCost:   repairCost,
			Reason:        "Damage and cost cross total-loss threshold.",
		}
	}

	factor := 1.15
	if severity >= 70 {
		factor = 0.95
	}
	replaceCost := int64(float64(repairCost) * factor)

	var action string
	switch {
	case severity > 75:
		action = ActionReplace
	case severity > 40:
		action = ActionRepair
	default:
		action = ActionCosmetic
	}
	// replaceCost never exceeds 1.15x repairCost, so every positive repair
	// cost ends up at Replace; only a zero cost keeps the severity bucket
	if float64(replaceCost) < float64(repairCost)*1.2 {
		action = ActionReplace
	}

	return types.RepairAction{
		Action:        action,
		SeverityScore: severity,
		RepairCost:    repairCost,
		ReplaceCost:   replaceCost,
		Reason:        "Based on severity and repair-vs-replace economic threshold.",
	}
}

// EstimateRepairTime sums per-finding day ranges scaled by severity,
// then compresses for parallel work in the shop
func EstimateRepairTime(entries []types.DamageZoneEntry) types.RepairTime {
	if len(entries) == 0 {
		return types.RepairTime{MinDays: 1, MaxDays: 2, Label: dayLabel(1, 2)}
	}

	var minDays, maxDays int
	for _, e := range entries {
		days, ok := repairDays[analysis.NormalizeDamageType(e.DamageType)]
		if !ok {
			days = repairDays["unknown"]
		}
		mult, ok := severityDayMultiplier[e.Severity]
		if !ok {
			mult = 1.0
		}
		qty := e.DetectionsCount
		if qty < 1 {
			qty = 1
		}
		if qty > 2 {
			qty = 2
		}

		minDays += max(1, int(float64(days.min)*mult)) * qty
		maxDays += max(1, int(float64(days.max)*mult)) * qty
	}

	minDays = max(1, int(float64(minDays)*0.5))
	maxDays = max(minDays, int(float64(maxDays)*0.7))
	return types.RepairTime{MinDays: minDays, MaxDays: maxDays, Label: dayLabel(minDays, maxDays)}
}

func dayLabel(lo, hi int) string {
	return fmt.Sprintf("%d-%d Days", lo, hi)
}

// CoverageSummary applies depreciation, deductible and the coverage limit.
// An expired policy pays nothing.
func (a *Assessor) CoverageSummary(c types.Coverage, costTotal int64) types.CoverageSummary {
	deductible := DefaultDeductible
	if c.Deductible != nil {
		deductible = *c.Deductible
	}
	limit := DefaultCoverageLimit
	if c.CoverageLimit != nil {
		limit = *c.CoverageLimit
	}
	depreciation := DefaultDepreciationPct
	if c.DepreciationPct != nil {
		depreciation = *c.DepreciationPct
	}

	active := true
	if validTill, ok := ParsePolicyDate(c.PolicyValidTill); ok {
		today := a.now().UTC().Truncate(24 * time.Hour)
		active = !validTill.Before(today)
	}

	gross := costTotal
	if gross < 0 {
		gross = 0
	}
	depreciated := int64(math.RoundToEven(float64(gross) * (1 - depreciation/100)))
	if depreciated < 0 {
		depreciated = 0
	}
	eligible := depreciated - deductible
	if eligible < 0 {
		eligible = 0
	}

	var insurancePays int64
	if active {
		insurancePays = min(eligible, limit)
	}
	customerPays := gross - insurancePays
	if customerPays < 0 {
		customerPays = 0
	}

	return types.CoverageSummary{
		GrossTotal:       gross,
		DepreciationPct:  depreciation,
		DepreciatedTotal: depreciated,
		Deductible:       deductible,
		CoverageLimit:    limit,
		InsurancePays:    insurancePays,
		CustomerPays:     customerPays,
		PolicyActive:     active,
		PolicyValidTill:  c.PolicyValidTill,
	}
}

var policyDateLayouts = []string{"2006-01-02", "02-01-2006", "2006/01/02"}

// ParsePolicyDate accepts the date layouts used on policy documents
func ParsePolicyDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range policyDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

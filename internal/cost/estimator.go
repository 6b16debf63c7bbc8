package cost

import (
	"context"
	"math"

	"github.com/ZanzyTHEbar/claimiq/internal/analysis"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// PricingProvider returns the pricing dataset for one estimate
type PricingProvider interface {
	Pricing(ctx context.Context) (PricingData, error)
}

// Estimator prices aggregated findings
type Estimator struct {
	pricing PricingProvider
	metrics *monitoring.Metrics
}

// NewEstimator creates an Estimator backed by pricing
func NewEstimator(pricing PricingProvider, metrics *monitoring.Metrics) *Estimator {
	return &Estimator{pricing: pricing, metrics: metrics}
}

type costGroup struct {
	damageType string
	severity   types.Severity
	quantity   int
	zone       types.Zone
	bestConf   float64
}

// Estimate groups entries by damage type and resolves a unit cost per group
// from the most specific pricing tier available
func (e *Estimator) Estimate(ctx context.Context, entries []types.DamageZoneEntry, vehicle types.Vehicle) (types.CostEstimate, error) {
	data, err := e.pricing.Pricing(ctx)
	if err != nil {
		return types.CostEstimate{}, err
	}

	groups := groupEntries(entries)
	company := NormalizeVehicle(vehicle.Company)
	model := NormalizeVehicle(vehicle.Model)

	estimate := types.CostEstimate{Items: make([]types.CostLineItem, 0, len(groups))}
	for _, g := range groups {
		unitCost, tier := resolveUnitCost(data, company, model, g)
		item := types.NewCostLineItem(g.damageType, g.severity, g.quantity, unitCost, tier)
		estimate.Items = append(estimate.Items, item)
		estimate.Total += item.Total
		e.metrics.RecordPricingTier(string(tier))
	}
	return estimate, nil
}

// groupEntries keeps groups in first-seen order
func groupEntries(entries []types.DamageZoneEntry) []*costGroup {
	var ordered []*costGroup
	index := make(map[string]*costGroup)

	for _, entry := range entries {
		damageType := analysis.NormalizeDamageType(entry.DamageType)
		if damageType == "" {
			damageType = "unknown damage"
		}
		count := entry.DetectionsCount
		if count < 1 {
			count = 1
		}

		g, ok := index[damageType]
		if !ok {
			g = &costGroup{damageType: damageType, severity: entry.Severity, zone: entry.Zone, bestConf: entry.Confidence}
			index[damageType] = g
			ordered = append(ordered, g)
		} else {
			if entry.Severity.Rank() > g.severity.Rank() {
				g.severity = entry.Severity
			}
			if entry.Confidence > g.bestConf {
				g.bestConf = entry.Confidence
				g.zone = entry.Zone
			}
		}
		g.quantity += count
	}
	return ordered
}

func resolveUnitCost(data PricingData, company, model string, g *costGroup) (int64, types.PricingTier) {
	if company != "" && model != "" {
		if avg, ok := data.ModelAverages[ModelKey{Company: company, Model: model, DamageType: g.damageType}]; ok {
			return roundCost(avg), types.TierModel
		}
	}
	if company != "" {
		if avg, ok := data.CompanyAverages[CompanyKey{Company: company, DamageType: g.damageType}]; ok {
			return roundCost(avg), types.TierCompany
		}
	}
	if avg, ok := data.GlobalAverages[g.damageType]; ok {
		return roundCost(avg), types.TierGlobal
	}
	return data.ZoneCost(g.zone).UnitCost(g.severity), types.TierBaseTable
}

func roundCost(v float64) int64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(v))
}

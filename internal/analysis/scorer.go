package analysis

import (
	"math"

	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

var (
	severityWeights = struct{ area, confidence, quantity float64 }{0.45, 0.30, 0.25}
	fraudWeights    = struct{ reuse, aiGen, metadata float64 }{0.50, 0.30, 0.20}

	quantitySaturation = 5.0
)

// EntrySeverityScore scores a single finding on a 0-100 scale
func EntrySeverityScore(areaRatio, confidence float64, quantity int) float64 {
	if quantity < 0 {
		quantity = 0
	}
	quantityNorm := math.Min(float64(quantity)/quantitySaturation, 1.0)
	return 100 * (severityWeights.area*types.Clamp01(areaRatio) +
		severityWeights.confidence*types.Clamp01(confidence) +
		severityWeights.quantity*quantityNorm)
}

// OverallSeverityScore is the quantity-weighted mean of entry scores.
// ok is false when there are no entries.
func OverallSeverityScore(entries []types.DamageZoneEntry) (int, bool) {
	var weightedSum, totalWeight float64
	for _, e := range entries {
		quantity := e.DetectionsCount
		if quantity < 1 {
			quantity = 1
		}
		weight := float64(quantity)
		weightedSum += EntrySeverityScore(e.AreaRatio, e.Confidence, quantity) * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return clampScore(roundHalfEven(weightedSum / totalWeight)), true
}

// SeverityBand maps a 0-100 severity score to its band
func SeverityBand(score float64) types.Severity {
	rounded := clampScore(roundHalfEven(score))
	switch {
	case rounded <= 29:
		return types.SeverityMinor
	case rounded <= 59:
		return types.SeverityModerate
	case rounded <= 79:
		return types.SeveritySevere
	default:
		return types.SeverityCritical
	}
}

// FraudScore combines the three sub-scores into a 0-100 integer
func FraudScore(reuse, aiGen, metadataAnomaly float64) int {
	raw := 100 * (fraudWeights.reuse*types.Clamp01(reuse) +
		fraudWeights.aiGen*types.Clamp01(aiGen) +
		fraudWeights.metadata*types.Clamp01(metadataAnomaly))
	return clampScore(roundHalfEven(raw))
}

// FraudRiskBand maps a fraud score to a risk level
func FraudRiskBand(score int) types.RiskLevel {
	score = clampScore(score)
	switch {
	case score <= 24:
		return types.RiskLow
	case score <= 49:
		return types.RiskMedium
	case score <= 74:
		return types.RiskHigh
	default:
		return types.RiskCritical
	}
}

// roundHalfEven rounds ties to the even neighbour, so 12.5 -> 12 and 37.5 -> 38
func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Package decision turns fraud and cost results into a claim outcome.
package decision

import (
	"math"

	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// Thresholds used by the rule list
const (
	RejectFraudAbove      = 80
	EscalateFraudAbove    = 60
	ReviewFraudFrom       = 30
	HighRiskFraudFrom     = 50
	HighCostAbove         = 50000
	AutoApproveCostMax    = 15000
	MinDetectorConfidence = 0.5
)

// Rule names recorded in DecisionResult.Reason
const (
	ReasonReject      = "reject: fraud score above 80 or duplicate image detected"
	ReasonEscalate    = "escalate: fraud score above 60 or low detection confidence"
	ReasonThreshold   = "review: fraud score at least 30 or cost above 50000"
	ReasonAutoApprove = "pre-approve: low fraud score and cost within auto-approval limit"
	ReasonDefault     = "review: no automatic rule applied"
)

// Input is the full decision context. AvgConfidence is nil when the claim
// has no findings, which skips the low-confidence escalation.
type Input struct {
	FraudScore    int
	CostTotal     int64
	Flags         []types.FraudFlag
	AvgConfidence *float64
}

// Validate rejects inputs outside the documented ranges
func (in Input) Validate() error {
	details := map[string]string{}
	if in.FraudScore < 0 || in.FraudScore > 100 {
		details["fraud_score"] = "must be between 0 and 100"
	}
	if in.CostTotal < 0 {
		details["cost_total"] = "must not be negative"
	}
	if in.AvgConfidence != nil {
		c := *in.AvgConfidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			details["avg_confidence"] = "must be between 0 and 1"
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationErrorWithMap(details)
	}
	return nil
}

// Evaluate runs the ordered rule list; the first matching rule wins
func Evaluate(in Input) (types.DecisionResult, error) {
	if err := in.Validate(); err != nil {
		return types.DecisionResult{}, err
	}

	fraud := float64(in.FraudScore) / 100
	duplicate := hasDuplicate(in.Flags)

	if in.FraudScore > RejectFraudAbove || duplicate {
		risk := types.RiskHigh
		if duplicate {
			risk = types.RiskCritical
		}
		return types.DecisionResult{
			Decision:   types.DecisionRejected,
			Confidence: math.Min(0.95, fraud),
			RiskLevel:  risk,
			Reason:     ReasonReject,
		}, nil
	}

	if in.FraudScore > EscalateFraudAbove || (in.AvgConfidence != nil && *in.AvgConfidence < MinDetectorConfidence) {
		return types.DecisionResult{
			Decision:   types.DecisionManualReview,
			Confidence: math.Max(0.3, round2(1-fraud)),
			RiskLevel:  types.RiskHigh,
			Reason:     ReasonEscalate,
		}, nil
	}

	if in.FraudScore >= ReviewFraudFrom || in.CostTotal > HighCostAbove {
		risk := types.RiskMedium
		if in.FraudScore >= HighRiskFraudFrom {
			risk = types.RiskHigh
		}
		return types.DecisionResult{
			Decision:   types.DecisionManualReview,
			Confidence: round2(1 - fraud),
			RiskLevel:  risk,
			Reason:     ReasonThreshold,
		}, nil
	}

	if in.FraudScore < ReviewFraudFrom && in.CostTotal <= AutoApproveCostMax {
		return types.DecisionResult{
			Decision:   types.DecisionPreApproved,
			Confidence: round2(1 - fraud),
			RiskLevel:  types.RiskLow,
			Reason:     ReasonAutoApprove,
		}, nil
	}

	return types.DecisionResult{
		Decision:   types.DecisionManualReview,
		Confidence: 0.75,
		RiskLevel:  types.RiskMedium,
		Reason:     ReasonDefault,
	}, nil
}

func hasDuplicate(flags []types.FraudFlag) bool {
	for _, f := range flags {
		if f.IsImageReuse() {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

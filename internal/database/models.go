package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/claimiq/internal/cost"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// RepairRecord is one historical repair used for pricing averages
type RepairRecord struct {
	Company    string `yaml:"company" json:"company"`
	Model      string `yaml:"model" json:"model"`
	DamageType string `yaml:"damage_type" json:"damage_type"`
	Cost       int64  `yaml:"cost" json:"cost"`
}

// PricingSeed is the YAML document loaded by seed-pricing
type PricingSeed struct {
	ZoneCosts     map[types.Zone]cost.ZoneCost `yaml:"zone_costs"`
	RepairHistory []RepairRecord               `yaml:"repair_history"`
}

// AnalyticsSummary aggregates decisions across all claims
type AnalyticsSummary struct {
	TotalClaims        int     `json:"total_claims"`
	ApprovedClaims     int     `json:"approved_claims"`
	RejectedClaims     int     `json:"rejected_claims"`
	ManualReviewClaims int     `json:"manual_review_claims"`
	PendingClaims      int     `json:"pending_claims"`
	HighFraudCases     int     `json:"high_fraud_cases"`
	AvgClaimCost       float64 `json:"avg_claim_cost"`
}

// NewClaim fills identity, status and timestamps on a freshly submitted claim
func NewClaim(c types.Claim) *types.Claim {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Status = types.StatusUploaded
	c.CreatedAt = now
	c.UpdatedAt = now
	c.ProcessingResult = nil
	c.ProcessedAt = nil
	return &c
}

func marshalColumn(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

func unmarshalColumn(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

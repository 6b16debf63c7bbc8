package types

import (
	"math"
	"time"
)

// Zone is one of the vehicle regions used to localize damage
type Zone string

const (
	ZoneFront     Zone = "Front"
	ZoneRear      Zone = "Rear"
	ZoneLeftSide  Zone = "Left Side"
	ZoneRightSide Zone = "Right Side"
	ZoneUnknown   Zone = "Unknown"
)

// Severity is a qualitative damage bucket
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so groups can pick the dominant one
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ClaimStatus is the lifecycle state of a claim
type ClaimStatus string

const (
	StatusUploaded   ClaimStatus = "uploaded"
	StatusProcessing ClaimStatus = "processing"
	StatusProcessed  ClaimStatus = "processed"
	StatusError      ClaimStatus = "error"
)

// CanStartProcessing reports whether a run may move the claim into processing.
// uploaded and error (retry) are the only entry points.
func (s ClaimStatus) CanStartProcessing() bool {
	return s == StatusUploaded || s == StatusError
}

// Decision is the outcome emitted by the decision engine
type Decision string

const (
	DecisionPending      Decision = "pending"
	DecisionPreApproved  Decision = "pre_approved"
	DecisionManualReview Decision = "manual_review"
	DecisionRejected     Decision = "rejected"
)

// RiskLevel buckets fraud results and decisions
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// BoundingBox is x1, y1, x2, y2 in detector pixel space
type BoundingBox [4]float64

// Center returns the midpoint of the box
func (b BoundingBox) Center() (float64, float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// RawDetection is one bounding box reported by the detector for one image
type RawDetection struct {
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	AreaRatio  float64     `json:"area_ratio"`
	Zone       Zone        `json:"zone,omitempty"`
}

// NewRawDetection builds a detection with confidence and area clamped to [0,1]
func NewRawDetection(className string, confidence float64, bbox BoundingBox, areaRatio float64, zone Zone) RawDetection {
	return RawDetection{
		ClassName:  className,
		Confidence: Clamp01(confidence),
		BBox:       bbox,
		AreaRatio:  Clamp01(areaRatio),
		Zone:       zone,
	}
}

// DetectionResult is what the detector returns for a single image
type DetectionResult struct {
	ImageRef       string         `json:"image_ref"`
	Detections     []RawDetection `json:"detections"`
	ImageWidth     int            `json:"image_width,omitempty"`
	ImageHeight    int            `json:"image_height,omitempty"`
	AnnotatedImage []byte         `json:"-"`
}

// DamageZoneEntry is the aggregated finding for a (zone, damage type) pair
type DamageZoneEntry struct {
	Zone            Zone        `json:"zone"`
	DamageType      string      `json:"damage_type"`
	Severity        Severity    `json:"severity"`
	Confidence      float64     `json:"confidence"`
	AreaRatio       float64     `json:"area_ratio"`
	DetectionsCount int         `json:"detections_count"`
	BoundingBox     BoundingBox `json:"bounding_box"`
	RawClasses      []string    `json:"raw_classes"`
}

// NewDamageZoneEntry enforces the entry invariants: count >= 1 and capped ratios
func NewDamageZoneEntry(zone Zone, damageType string, severity Severity, confidence, areaRatio float64, count int, bbox BoundingBox, rawClasses []string) DamageZoneEntry {
	if count < 1 {
		count = 1
	}
	return DamageZoneEntry{
		Zone:            zone,
		DamageType:      damageType,
		Severity:        severity,
		Confidence:      Clamp01(confidence),
		AreaRatio:       Clamp01(areaRatio),
		DetectionsCount: count,
		BoundingBox:     bbox,
		RawClasses:      rawClasses,
	}
}

// PricingTier names the lookup level that resolved a unit cost
type PricingTier string

const (
	TierModel     PricingTier = "model_history"
	TierCompany   PricingTier = "company_history"
	TierGlobal    PricingTier = "global_history"
	TierBaseTable PricingTier = "base_table"
)

// CostLineItem is the priced entry for one damage type group
type CostLineItem struct {
	DamageType string      `json:"damage_type"`
	Severity   Severity    `json:"severity"`
	Quantity   int         `json:"quantity"`
	UnitCost   int64       `json:"unit_cost"`
	Total      int64       `json:"total"`
	Tier       PricingTier `json:"tier"`
}

// NewCostLineItem computes the line total, never negative
func NewCostLineItem(damageType string, severity Severity, quantity int, unitCost int64, tier PricingTier) CostLineItem {
	if quantity < 1 {
		quantity = 1
	}
	if unitCost < 0 {
		unitCost = 0
	}
	return CostLineItem{
		DamageType: damageType,
		Severity:   severity,
		Quantity:   quantity,
		UnitCost:   unitCost,
		Total:      unitCost * int64(quantity),
		Tier:       tier,
	}
}

// CostEstimate is the itemized breakdown plus grand total
type CostEstimate struct {
	Items []CostLineItem `json:"items"`
	Total int64          `json:"total"`
}

// Vehicle identifies the insured vehicle for pricing lookups
type Vehicle struct {
	Company string `json:"company,omitempty"`
	Model   string `json:"model,omitempty"`
}

// FlagKind classifies a fraud flag
type FlagKind string

const (
	FlagDuplicateImage      FlagKind = "duplicate_image"
	FlagNearDuplicateHash   FlagKind = "near_duplicate_hash"
	FlagClaimFrequency      FlagKind = "claim_frequency"
	FlagSyntheticMetadata   FlagKind = "synthetic_metadata"
	FlagDescriptionMismatch FlagKind = "description_mismatch"
	FlagDiagnostic          FlagKind = "diagnostic"
)

// FraudFlag is one human-readable explanation attached to a fraud score
type FraudFlag struct {
	Kind    FlagKind `json:"kind"`
	Message string   `json:"message"`
}

// IsImageReuse reports whether the flag came from either image-reuse path
func (f FraudFlag) IsImageReuse() bool {
	return f.Kind == FlagDuplicateImage || f.Kind == FlagNearDuplicateHash
}

func (f FraudFlag) String() string { return f.Message }

// FraudSignal is the fraud analysis result for a claim
type FraudSignal struct {
	ReuseScore      float64     `json:"reuse_score"`
	AIGenScore      float64     `json:"ai_gen_score"`
	MetadataAnomaly float64     `json:"metadata_anomaly"`
	FraudScore      int         `json:"fraud_score"`
	RiskLevel       RiskLevel   `json:"risk_level"`
	Flags           []FraudFlag `json:"flags"`
}

// FlagMessages flattens the flags for display and storage
func (f FraudSignal) FlagMessages() []string {
	out := make([]string, 0, len(f.Flags))
	for _, flag := range f.Flags {
		out = append(out, flag.Message)
	}
	return out
}

// DecisionResult is the output of the decision engine
type DecisionResult struct {
	Decision   Decision  `json:"decision"`
	Confidence float64   `json:"confidence"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Reason     string    `json:"reason"`
}

// Coverage holds the policy terms used for payout estimation
type Coverage struct {
	CoverageLimit   *int64   `json:"coverage_limit,omitempty"`
	Deductible      *int64   `json:"deductible,omitempty"`
	DepreciationPct *float64 `json:"depreciation_pct,omitempty"`
	PolicyValidTill string   `json:"policy_valid_till,omitempty"`
}

// Claim is the aggregate root
type Claim struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	ImageRefs     []string    `json:"image_refs"`
	PolicyNumber  string      `json:"policy_number"`
	Vehicle       Vehicle     `json:"vehicle"`
	Description   string      `json:"description,omitempty"`
	IncidentDate  string      `json:"incident_date,omitempty"`
	Location      string      `json:"location,omitempty"`
	Coverage      Coverage    `json:"coverage"`
	Status        ClaimStatus `json:"status"`
	LastError     string      `json:"last_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
	*ProcessingResult
}

// ProcessingResult carries every derived field written by a successful run
type ProcessingResult struct {
	DamageZones   []DamageZoneEntry `json:"damage_zones"`
	SeverityScore *int              `json:"damage_severity_score,omitempty"`
	Explanation   string            `json:"ai_explanation"`
	Cost          CostEstimate      `json:"cost"`
	Fraud         FraudSignal       `json:"fraud"`
	Decision      DecisionResult    `json:"decision"`
	Assessment    *Assessment       `json:"assessment,omitempty"`
}

// Assessment groups advisory outputs derived after the decision
type Assessment struct {
	RepairAction RepairAction    `json:"repair_replace_recommendation"`
	RepairTime   RepairTime      `json:"repair_time_estimate"`
	Coverage     CoverageSummary `json:"coverage_summary"`
}

// RepairAction is the repair-vs-replace recommendation
type RepairAction struct {
	Action        string `json:"action"`
	SeverityScore int    `json:"severity_score"`
	RepairCost    int64  `json:"repair_cost"`
	ReplaceCost   int64  `json:"replace_cost"`
	Reason        string `json:"reason"`
}

// RepairTime is an estimated workshop turnaround
type RepairTime struct {
	MinDays int    `json:"min_days"`
	MaxDays int    `json:"max_days"`
	Label   string `json:"label"`
}

// CoverageSummary splits the estimate between insurer and customer
type CoverageSummary struct {
	GrossTotal       int64   `json:"gross_total"`
	DepreciationPct  float64 `json:"depreciation_pct"`
	DepreciatedTotal int64   `json:"depreciated_total"`
	Deductible       int64   `json:"deductible"`
	CoverageLimit    int64   `json:"coverage_limit"`
	InsurancePays    int64   `json:"insurance_pays"`
	CustomerPays     int64   `json:"customer_pays"`
	PolicyActive     bool    `json:"policy_active"`
	PolicyValidTill  string  `json:"policy_valid_till,omitempty"`
}

// Clamp01 bounds v to [0,1]; NaN maps to 0
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

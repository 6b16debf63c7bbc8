// Package pipeline sequences the claim processing stages and owns every
// claim state transition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/claimiq/internal/analysis"
	"github.com/ZanzyTHEbar/claimiq/internal/assessment"
	"github.com/ZanzyTHEbar/claimiq/internal/decision"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/fraud"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/providers"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// Stage names used in logs and metrics
const (
	StageDetection   = "detection"
	StageAggregation = "aggregation"
	StageAnnotation  = "annotation"
	StageExplanation = "explanation"
	StageCost        = "cost"
	StageFraud       = "fraud"
	StageDecision    = "decision"
	StagePersist     = "persist"
)

// ClaimStore persists claims and guards their state transitions
type ClaimStore interface {
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	BeginProcessing(ctx context.Context, id string) (*types.Claim, error)
	MarkError(ctx context.Context, id, cause string) error
	SaveProcessed(ctx context.Context, claim *types.Claim) error
}

// Detector finds damage in one image
type Detector interface {
	Detect(ctx context.Context, imageRef string) (types.DetectionResult, error)
}

// ImageUploader stores detector-annotated images
type ImageUploader interface {
	UploadAnnotated(ctx context.Context, claimID string, index int, image []byte) (string, error)
}

// Explainer produces a narrative for the findings
type Explainer interface {
	Explain(ctx context.Context, req providers.ExplainRequest) types.Signal[string]
}

// CostEstimator prices findings
type CostEstimator interface {
	Estimate(ctx context.Context, entries []types.DamageZoneEntry, vehicle types.Vehicle) (types.CostEstimate, error)
}

// FraudScorer computes the fraud signal
type FraudScorer interface {
	Score(ctx context.Context, in fraud.Input) (types.FraudSignal, error)
}

// Config tunes the orchestrator
type Config struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
}

// Dependencies are the collaborators of a run. Uploader and Explainer are optional.
type Dependencies struct {
	Store     ClaimStore
	Detector  Detector
	Uploader  ImageUploader
	Explainer Explainer
	Estimator CostEstimator
	Scorer    FraudScorer
	Assessor  *assessment.Assessor
	Metrics   *monitoring.Metrics
	Logger    *monitoring.Logger
}

// Result is the outcome of a successful run
type Result struct {
	Claim    *types.Claim
	Duration time.Duration
}

// Orchestrator runs the processing stages for one claim at a time
type Orchestrator struct {
	deps Dependencies
	cfg  Config
	now  func() time.Time
}

// New builds an orchestrator
func New(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if deps.Assessor == nil {
		deps.Assessor = assessment.New()
	}
	if deps.Logger == nil {
		deps.Logger = monitoring.NewLogger(monitoring.ParseLevel("error"))
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now}
}

// Process runs every stage for claimID. A claim that is already processing
// or processed yields a conflict error and is left untouched. Any mandatory
// stage failure moves the claim to error and is returned as-is.
func (o *Orchestrator) Process(ctx context.Context, claimID string) (*Result, error) {
	start := o.now()
	log := o.deps.Logger.ForClaim(claimID)

	claim, err := o.deps.Store.BeginProcessing(ctx, claimID)
	if err != nil {
		if apperrors.IsConflict(err) {
			o.deps.Metrics.RecordConflict()
			log.Warn("Claim is not in a processable state", "error", err.Error())
		}
		return nil, err
	}
	log.Info("Claim processing started", "images", len(claim.ImageRefs))

	result, err := o.run(ctx, claim, log)
	if err != nil {
		o.fail(ctx, claimID, err, log)
		return nil, err
	}

	processedAt := o.now().UTC()
	claim.Status = types.StatusProcessed
	claim.LastError = ""
	claim.ProcessedAt = &processedAt
	claim.ProcessingResult = result

	err = o.stage(ctx, claimID, StagePersist, func(ctx context.Context) error {
		return o.deps.Store.SaveProcessed(ctx, claim)
	})
	if err != nil {
		o.fail(ctx, claimID, err, log)
		return nil, err
	}

	o.deps.Metrics.RecordRun(true)
	o.deps.Metrics.RecordDecision(string(result.Decision.Decision), result.Fraud.FraudScore)
	log.DecisionLogger(claimID, string(result.Decision.Decision), result.Fraud.FraudScore, result.Cost.Total)

	return &Result{Claim: claim, Duration: o.now().Sub(start)}, nil
}

func (o *Orchestrator) run(ctx context.Context, claim *types.Claim, log *monitoring.Logger) (*types.ProcessingResult, error) {
	originalRefs := append([]string(nil), claim.ImageRefs...)
	result := &types.ProcessingResult{}

	// detection and fraud bound each image instead of the whole stage, so one
	// hung image is excluded without failing the claim
	var detections []indexedDetection
	err := o.measure(ctx, claim.ID, StageDetection, func(ctx context.Context) error {
		var err error
		detections, err = o.detectAll(ctx, claim, log)
		return err
	})
	if err != nil {
		return nil, err
	}

	_ = o.stage(ctx, claim.ID, StageAggregation, func(context.Context) error {
		var raw []types.RawDetection
		for _, d := range detections {
			raw = append(raw, analysis.AssignZones(d.result)...)
		}
		result.DamageZones = analysis.Aggregate(raw)
		if score, ok := analysis.OverallSeverityScore(result.DamageZones); ok {
			result.SeverityScore = &score
		}
		return nil
	})

	_ = o.stage(ctx, claim.ID, StageAnnotation, func(ctx context.Context) error {
		o.replaceAnnotated(ctx, claim, detections, log)
		return nil
	})

	_ = o.stage(ctx, claim.ID, StageExplanation, func(ctx context.Context) error {
		result.Explanation = o.explain(ctx, claim, result.DamageZones, log)
		return nil
	})

	err = o.stage(ctx, claim.ID, StageCost, func(ctx context.Context) error {
		if o.deps.Estimator == nil {
			return apperrors.NewConfigurationError("cost estimator not configured", nil)
		}
		estimate, err := o.deps.Estimator.Estimate(ctx, result.DamageZones, claim.Vehicle)
		if err != nil {
			return err
		}
		result.Cost = estimate
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.measure(ctx, claim.ID, StageFraud, func(ctx context.Context) error {
		if o.deps.Scorer == nil {
			return apperrors.NewConfigurationError("fraud scorer not configured", nil)
		}
		signal, err := o.deps.Scorer.Score(ctx, fraud.Input{
			ClaimID:     claim.ID,
			OwnerID:     claim.OwnerID,
			ImageRefs:   originalRefs,
			Entries:     result.DamageZones,
			Description: claim.Description,
		})
		if err != nil {
			return err
		}
		result.Fraud = signal
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.stage(ctx, claim.ID, StageDecision, func(context.Context) error {
		input := decision.Input{
			FraudScore: result.Fraud.FraudScore,
			CostTotal:  result.Cost.Total,
			Flags:      result.Fraud.Flags,
		}
		if avg, ok := analysis.AverageConfidence(result.DamageZones); ok {
			input.AvgConfidence = &avg
		}
		outcome, err := decision.Evaluate(input)
		if err != nil {
			return err
		}
		result.Decision = outcome
		return nil
	})
	if err != nil {
		return nil, err
	}

	assessed := o.deps.Assessor.Assess(result.DamageZones, result.Cost.Total, claim.Coverage)
	result.Assessment = &assessed

	return result, nil
}

type indexedDetection struct {
	index  int
	result types.DetectionResult
}

// detectAll runs the detector on every image concurrently. Failed images
// are dropped; the stage fails only when no image could be analyzed.
func (o *Orchestrator) detectAll(ctx context.Context, claim *types.Claim, log *monitoring.Logger) ([]indexedDetection, error) {
	if o.deps.Detector == nil {
		return nil, apperrors.NewProviderFatalError("detector", errors.New("no detector configured"))
	}
	if len(claim.ImageRefs) == 0 {
		return nil, apperrors.NewValidationError("claim has no images")
	}

	results := make([]*types.DetectionResult, len(claim.ImageRefs))
	errs := make([]error, len(claim.ImageRefs))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, ref := range claim.ImageRefs {
		g.Go(func() error {
			imageCtx, cancel := o.imageContext(ctx)
			defer cancel()
			res, err := o.deps.Detector.Detect(imageCtx, ref)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []indexedDetection
	var lastErr error
	for i, res := range results {
		if res == nil {
			lastErr = errs[i]
			log.Warn("Detection failed, excluding image", "image_ref", claim.ImageRefs[i], "error", errs[i].Error())
			continue
		}
		out = append(out, indexedDetection{index: i, result: *res})
	}

	if len(out) == 0 {
		return nil, apperrors.NewProviderFatalError("detector", fmt.Errorf("all %d images failed: %w", len(claim.ImageRefs), lastErr))
	}
	return out, nil
}

func (o *Orchestrator) replaceAnnotated(ctx context.Context, claim *types.Claim, detections []indexedDetection, log *monitoring.Logger) {
	if o.deps.Uploader == nil {
		return
	}
	for _, d := range detections {
		if len(d.result.AnnotatedImage) == 0 {
			continue
		}
		ref, err := o.deps.Uploader.UploadAnnotated(ctx, claim.ID, d.index, d.result.AnnotatedImage)
		if err != nil {
			log.Warn("Annotated image upload failed, keeping original", "image_ref", claim.ImageRefs[d.index], "error", err.Error())
			continue
		}
		claim.ImageRefs[d.index] = ref
	}
}

func (o *Orchestrator) explain(ctx context.Context, claim *types.Claim, entries []types.DamageZoneEntry, log *monitoring.Logger) string {
	if o.deps.Explainer == nil {
		return TemplateExplanation(entries)
	}
	signal := o.deps.Explainer.Explain(ctx, providers.ExplainRequest{
		ImageRefs:   claim.ImageRefs,
		Entries:     entries,
		Description: claim.Description,
	})
	text, ok := signal.Get()
	if !ok {
		log.Warn("Explanation unavailable, using template", "reason", signal.Reason())
		return TemplateExplanation(entries)
	}
	return text
}

// imageContext bounds one image's provider calls by the stage timeout
func (o *Orchestrator) imageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.StageTimeout)
	}
	return context.WithCancel(ctx)
}

// stage runs fn under the stage timeout and measures it
func (o *Orchestrator) stage(ctx context.Context, claimID, name string, fn func(context.Context) error) error {
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}
	return o.measure(ctx, claimID, name, fn)
}

// measure times fn and reports it to metrics and the stage log
func (o *Orchestrator) measure(ctx context.Context, claimID, name string, fn func(context.Context) error) error {
	start := o.now()
	err := fn(ctx)
	elapsed := o.now().Sub(start)

	o.deps.Metrics.ObserveStage(name, elapsed)
	o.deps.Logger.StageLogger(claimID, name, elapsed, err)
	return err
}

// fail records the error on the claim. The write must land even when the
// caller's context is already cancelled.
func (o *Orchestrator) fail(ctx context.Context, claimID string, cause error, log *monitoring.Logger) {
	o.deps.Metrics.RecordRun(false)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.deps.Store.MarkError(writeCtx, claimID, cause.Error()); err != nil {
		log.Error("Failed to mark claim as errored", "error", err.Error(), "cause", cause.Error())
		return
	}
	log.Error("Claim processing failed", "error", cause.Error(), "category", string(apperrors.CategoryOf(cause)))
}

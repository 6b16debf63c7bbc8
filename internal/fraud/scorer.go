package fraud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/claimiq/internal/analysis"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// Match is the closest prior-claim image found for a probe
type Match struct {
	ClaimID    string
	Similarity float64
}

// Embedder turns image bytes into an embedding vector. An unavailable
// signal means the embedding path is skipped for that image.
type Embedder interface {
	Embed(ctx context.Context, image []byte) types.Signal[[]float64]
}

// EmbeddingIndex searches prior claims' embeddings
type EmbeddingIndex interface {
	FindMatch(ctx context.Context, vector []float64, threshold float64, excludeClaimID string) (*Match, error)
}

// ImageSource fetches the bytes behind an image reference
type ImageSource interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// HashRecord is one stored perceptual hash of an owner's earlier claim
type HashRecord struct {
	ClaimID string
	Hash    uint64
}

// Record is one appended fraud-history row
type Record struct {
	ClaimID         string
	OwnerID         string
	ImageRef        string
	Embedding       []float64
	PHash           *uint64
	SimilarityScore float64
	MatchedClaimID  string
	Method          string
}

// HistoryStore is the claim history the scorer reads and appends to
type HistoryStore interface {
	CountRecentClaims(ctx context.Context, ownerID string, since time.Time) (int, error)
	OwnerImageHashes(ctx context.Context, ownerID, excludeClaimID string) ([]HashRecord, error)
	AppendFraudRecords(ctx context.Context, records []Record) error
}

// Config tunes the scorer
type Config struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	HashThreshold       float64       `mapstructure:"hash_threshold"`
	FrequencyLimit      int           `mapstructure:"frequency_limit"`
	FrequencyWindow     time.Duration `mapstructure:"frequency_window"`
	MaxConcurrency      int           `mapstructure:"max_concurrency"`
	ImageTimeout        time.Duration `mapstructure:"image_timeout"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.92,
		HashThreshold:       0.90,
		FrequencyLimit:      3,
		FrequencyWindow:     180 * 24 * time.Hour,
		MaxConcurrency:      4,
		ImageTimeout:        30 * time.Second,
	}
}

// Input is everything the scorer needs about one claim
type Input struct {
	ClaimID     string
	OwnerID     string
	ImageRefs   []string
	Entries     []types.DamageZoneEntry
	Description string
}

// Scorer computes the composite fraud signal for a claim
type Scorer struct {
	cfg       Config
	images    ImageSource
	embedder  Embedder
	index     EmbeddingIndex
	history   HistoryStore
	inspector MetadataInspector
	logger    *monitoring.Logger
	now       func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithEmbedding enables the embedding similarity path
func WithEmbedding(e Embedder, idx EmbeddingIndex) Option {
	return func(s *Scorer) {
		s.embedder = e
		s.index = idx
	}
}

// WithInspector replaces the EXIF inspector
func WithInspector(i MetadataInspector) Option {
	return func(s *Scorer) { s.inspector = i }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer builds a scorer. images and history are required.
func NewScorer(cfg Config, images ImageSource, history HistoryStore, logger *monitoring.Logger, opts ...Option) *Scorer {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.HashThreshold <= 0 {
		cfg.HashThreshold = def.HashThreshold
	}
	if cfg.FrequencyLimit <= 0 {
		cfg.FrequencyLimit = def.FrequencyLimit
	}
	if cfg.FrequencyWindow <= 0 {
		cfg.FrequencyWindow = def.FrequencyWindow
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = def.ImageTimeout
	}

	if logger == nil {
		logger = monitoring.NewLoggerWithWriter(io.Discard, slog.LevelError)
	}

	s := &Scorer{
		cfg:       cfg,
		images:    images,
		history:   history,
		inspector: ExifInspector{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// imageResult is the per-image outcome; nil fields mean "signal absent"
type imageResult struct {
	ref        string
	embedding  []float64
	hash       *uint64
	embedMatch *Match
	hashMatch  *Match
	suspicion  *float64
	signature  string
}

// Score runs every fraud signal. Signal failures never abort scoring; the
// only error returned is the caller's context ending. Each image gets its own
// ImageTimeout, and an image that runs out of time is left out.
func (s *Scorer) Score(ctx context.Context, in Input) (types.FraudSignal, error) {
	log := s.logger.ForClaim(in.ClaimID)

	ownerHashes, err := s.history.OwnerImageHashes(ctx, in.OwnerID, in.ClaimID)
	if err != nil {
		log.Warn("Owner hash history unavailable", "error", err.Error())
		ownerHashes = nil
	}

	results := make([]imageResult, len(in.ImageRefs))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, ref := range in.ImageRefs {
		g.Go(func() error {
			imageCtx, cancel := context.WithTimeout(ctx, s.cfg.ImageTimeout)
			defer cancel()
			results[i] = s.analyzeImage(imageCtx, log, in.ClaimID, ref, ownerHashes)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return types.FraudSignal{}, err
	}

	var flags []types.FraudFlag

	reuse, reuseFlags := s.reuseSignal(results)
	flags = append(flags, reuseFlags...)

	aiGen, aiFlag := aiGenSignal(results)

	frequency, freqFlag := s.frequencySignal(ctx, log, in.OwnerID)
	if freqFlag != nil {
		flags = append(flags, *freqFlag)
	}
	if aiFlag != nil {
		flags = append(flags, *aiFlag)
	}

	mismatch, mismatchFlag := descriptionMismatch(in.Description, in.Entries)
	if mismatchFlag != nil {
		flags = append(flags, *mismatchFlag)
	}

	anomaly := frequency
	if mismatch > anomaly {
		anomaly = mismatch
	}

	score := analysis.FraudScore(reuse, aiGen, anomaly)
	risk := analysis.FraudRiskBand(score)
	flags = append(flags, types.FraudFlag{
		Kind:    types.FlagDiagnostic,
		Message: fmt.Sprintf("Signal breakdown: reuse=%.2f ai_gen=%.2f metadata=%.2f risk=%s", reuse, aiGen, anomaly, risk),
	})

	s.appendHistory(ctx, log, in, results)

	log.Info("Fraud analysis completed",
		"fraud_score", score,
		"risk_level", string(risk),
		"flags", len(flags),
	)

	return types.FraudSignal{
		ReuseScore:      reuse,
		AIGenScore:      aiGen,
		MetadataAnomaly: anomaly,
		FraudScore:      score,
		RiskLevel:       risk,
		Flags:           flags,
	}, nil
}

func (s *Scorer) analyzeImage(ctx context.Context, log *monitoring.Logger, claimID, ref string, ownerHashes []HashRecord) imageResult {
	res := imageResult{ref: ref}

	data, err := s.images.Fetch(ctx, ref)
	if err != nil {
		log.Warn("Image fetch failed, excluding from fraud signals", "image_ref", ref, "error", err.Error())
		return res
	}

	report := s.inspector.Inspect(data)
	if value, ok := suspicion(report); ok {
		res.suspicion = &value
		res.signature = report.Signature
	}

	if s.embedder != nil && s.index != nil {
		if vector, ok := s.embedder.Embed(ctx, data).Get(); ok && len(vector) > 0 {
			res.embedding = vector
			match, err := s.index.FindMatch(ctx, vector, s.cfg.SimilarityThreshold, claimID)
			if err != nil {
				log.Warn("Embedding search failed", "image_ref", ref, "error", err.Error())
			} else if match != nil && match.Similarity >= s.cfg.SimilarityThreshold {
				res.embedMatch = match
			}
		}
	}

	hash, err := perceptualHash(data)
	if err != nil {
		log.Warn("Perceptual hash failed", "image_ref", ref, "error", err.Error())
		return res
	}
	res.hash = &hash

	// the hash path only scores when the embedding path produced nothing
	if res.embedding == nil {
		res.hashMatch = bestHashMatch(hash, ownerHashes, s.cfg.HashThreshold)
	}
	return res
}

func (s *Scorer) reuseSignal(results []imageResult) (float64, []types.FraudFlag) {
	var best float64
	var bestEmbed, bestHash *Match
	var embedHits, hashHits int

	for _, r := range results {
		if m := r.embedMatch; m != nil {
			embedHits++
			if bestEmbed == nil || m.Similarity > bestEmbed.Similarity {
				bestEmbed = m
			}
		}
		if m := r.hashMatch; m != nil {
			hashHits++
			if bestHash == nil || m.Similarity > bestHash.Similarity {
				bestHash = m
			}
		}
	}

	var flags []types.FraudFlag
	if bestEmbed != nil {
		best = bestEmbed.Similarity
		flags = append(flags, types.FraudFlag{
			Kind: types.FlagDuplicateImage,
			Message: fmt.Sprintf("Duplicate image detected in %d of %d images (similarity: %.2f, matched claim: %s...)",
				embedHits, len(results), bestEmbed.Similarity, shortID(bestEmbed.ClaimID)),
		})
	}
	if bestHash != nil {
		if bestHash.Similarity > best {
			best = bestHash.Similarity
		}
		flags = append(flags, types.FraudFlag{
			Kind: types.FlagNearDuplicateHash,
			Message: fmt.Sprintf("Near-duplicate image hash in %d of %d images (similarity: %.2f, matched claim: %s...)",
				hashHits, len(results), bestHash.Similarity, shortID(bestHash.ClaimID)),
		})
	}
	return types.Clamp01(best), flags
}

func aiGenSignal(results []imageResult) (float64, *types.FraudFlag) {
	var sum float64
	var counted, missing, edited int
	var signature string

	for _, r := range results {
		if r.suspicion == nil {
			continue
		}
		counted++
		sum += *r.suspicion
		switch {
		case r.signature != "":
			edited++
			signature = r.signature
		case *r.suspicion > 0:
			missing++
		}
	}
	if counted == 0 {
		return 0, nil
	}

	score := sum / float64(counted)
	if score == 0 {
		return 0, nil
	}

	var parts []string
	if edited > 0 {
		parts = append(parts, fmt.Sprintf("editing software signature (%s) in %d image(s)", signature, edited))
	}
	if missing > 0 {
		parts = append(parts, fmt.Sprintf("missing capture metadata in %d image(s)", missing))
	}
	return score, &types.FraudFlag{
		Kind:    types.FlagSyntheticMetadata,
		Message: "Suspicious image metadata: " + strings.Join(parts, ", "),
	}
}

func (s *Scorer) frequencySignal(ctx context.Context, log *monitoring.Logger, ownerID string) (float64, *types.FraudFlag) {
	since := s.now().Add(-s.cfg.FrequencyWindow)
	count, err := s.history.CountRecentClaims(ctx, ownerID, since)
	if err != nil {
		log.Warn("Claim frequency check failed", "error", err.Error())
		return 0, nil
	}
	if count <= s.cfg.FrequencyLimit {
		return 0, nil
	}

	overflow := float64(count-s.cfg.FrequencyLimit) / 3
	if overflow > 1 {
		overflow = 1
	}
	months := int(s.cfg.FrequencyWindow.Hours() / 24 / 30)
	return overflow, &types.FraudFlag{
		Kind:    types.FlagClaimFrequency,
		Message: fmt.Sprintf("High claim frequency: %d claims in %d months", count, months),
	}
}

var minimizingWords = []string{"minor", "small", "scratch", "little", "slight", "tiny"}

func descriptionMismatch(description string, entries []types.DamageZoneEntry) (float64, *types.FraudFlag) {
	if strings.TrimSpace(description) == "" || len(entries) == 0 {
		return 0, nil
	}

	hasSevere := false
	for _, e := range entries {
		if e.Severity == types.SeveritySevere || e.Severity == types.SeverityCritical {
			hasSevere = true
			break
		}
	}
	if !hasSevere {
		return 0, nil
	}

	lower := strings.ToLower(description)
	for _, word := range minimizingWords {
		if strings.Contains(lower, word) {
			return 1.0, &types.FraudFlag{
				Kind:    types.FlagDescriptionMismatch,
				Message: "Inconsistency: description suggests minor damage but severe damage was detected",
			}
		}
	}
	return 0, nil
}

func (s *Scorer) appendHistory(ctx context.Context, log *monitoring.Logger, in Input, results []imageResult) {
	var records []Record
	for _, r := range results {
		if r.embedding == nil && r.hash == nil {
			continue
		}
		rec := Record{
			ClaimID:   in.ClaimID,
			OwnerID:   in.OwnerID,
			ImageRef:  r.ref,
			Embedding: r.embedding,
			PHash:     r.hash,
			Method:    "phash",
		}
		if r.embedding != nil {
			rec.Method = "embedding"
		}
		switch {
		case r.embedMatch != nil:
			rec.SimilarityScore = r.embedMatch.Similarity
			rec.MatchedClaimID = r.embedMatch.ClaimID
		case r.hashMatch != nil:
			rec.SimilarityScore = r.hashMatch.Similarity
			rec.MatchedClaimID = r.hashMatch.ClaimID
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return
	}

	if err := s.history.AppendFraudRecords(ctx, records); err != nil {
		log.Warn("Failed to append fraud history", "records", len(records), "error", err.Error())
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/claimiq/internal/fraud"
)

// CountRecentClaims counts the owner's claims created since the cutoff,
// including the claim under analysis
func (r *Repository) CountRecentClaims(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM claims WHERE owner_id = ? AND created_at >= ?
	`, ownerID, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent claims: %w", err)
	}
	return count, nil
}

// OwnerImageHashes returns perceptual hashes stored for the owner's other claims
func (r *Repository) OwnerImageHashes(ctx context.Context, ownerID, excludeClaimID string) ([]fraud.HashRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT claim_id, phash FROM fraud_history
		WHERE owner_id = ? AND claim_id != ? AND phash IS NOT NULL
	`, ownerID, excludeClaimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load image hashes: %w", err)
	}
	defer rows.Close()

	var out []fraud.HashRecord
	for rows.Next() {
		var rec fraud.HashRecord
		var hash int64
		if err := rows.Scan(&rec.ClaimID, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan image hash: %w", err)
		}
		rec.Hash = uint64(hash)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendFraudRecords writes one history row per analyzed image. A retried
// claim replaces its earlier row for the same image.
func (r *Repository) AppendFraudRecords(ctx context.Context, records []fraud.Record) error {
	now := r.now()
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			var embedding sql.NullString
			if rec.Embedding != nil {
				encoded, err := marshalColumn(rec.Embedding)
				if err != nil {
					return err
				}
				embedding = sql.NullString{String: encoded, Valid: true}
			}
			var phash sql.NullInt64
			if rec.PHash != nil {
				// sqlite integers are signed; the bit pattern round-trips
				phash = sql.NullInt64{Int64: int64(*rec.PHash), Valid: true}
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO fraud_history (id, claim_id, owner_id, image_ref, embedding, phash,
					similarity_score, matched_claim_id, method, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(claim_id, image_ref) DO UPDATE SET
					owner_id = excluded.owner_id,
					embedding = excluded.embedding,
					phash = excluded.phash,
					similarity_score = excluded.similarity_score,
					matched_claim_id = excluded.matched_claim_id,
					method = excluded.method,
					created_at = excluded.created_at
			`, uuid.New().String(), rec.ClaimID, rec.OwnerID, rec.ImageRef, embedding, phash,
				rec.SimilarityScore, rec.MatchedClaimID, rec.Method, now)
			if err != nil {
				return fmt.Errorf("failed to append fraud record: %w", err)
			}
		}
		return nil
	})
}

// FindMatch scans stored embeddings of other claims for the most similar
// vector by cosine similarity
func (r *Repository) FindMatch(ctx context.Context, vector []float64, threshold float64, excludeClaimID string) (*fraud.Match, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT claim_id, embedding FROM fraud_history
		WHERE claim_id != ? AND embedding IS NOT NULL
	`, excludeClaimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	var best *fraud.Match
	for rows.Next() {
		var claimID, encoded string
		if err := rows.Scan(&claimID, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		var stored []float64
		if err := unmarshalColumn(encoded, &stored); err != nil {
			continue
		}
		sim, ok := cosineSimilarity(vector, stored)
		if !ok || sim < threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &fraud.Match{ClaimID: claimID, Similarity: sim}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return best, nil
}

func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

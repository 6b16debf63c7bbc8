package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// Repository handles claim persistence and the histories read by pricing and fraud
type Repository struct {
	db  *DB
	now func() time.Time
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const claimColumns = `id, owner_id, policy_number, vehicle_company, vehicle_model, description,
	incident_date, location, coverage, image_refs, status, last_error, result,
	created_at, updated_at, processed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*types.Claim, error) {
	var (
		c           types.Claim
		coverage    string
		imageRefs   string
		result      sql.NullString
		processedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.PolicyNumber, &c.Vehicle.Company, &c.Vehicle.Model, &c.Description,
		&c.IncidentDate, &c.Location, &coverage, &imageRefs, &c.Status, &c.LastError, &result,
		&c.CreatedAt, &c.UpdatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalColumn(coverage, &c.Coverage); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(imageRefs, &c.ImageRefs); err != nil {
		return nil, err
	}
	if result.Valid && result.String != "" {
		c.ProcessingResult = &types.ProcessingResult{}
		if err := unmarshalColumn(result.String, c.ProcessingResult); err != nil {
			return nil, err
		}
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		c.ProcessedAt = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// CreateClaim inserts a new claim in the uploaded state
func (r *Repository) CreateClaim(ctx context.Context, claim *types.Claim) error {
	coverage, err := marshalColumn(claim.Coverage)
	if err != nil {
		return err
	}
	imageRefs, err := marshalColumn(claim.ImageRefs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO claims (id, owner_id, policy_number, vehicle_company, vehicle_model, description,
			incident_date, location, coverage, image_refs, status, last_error, decision,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)
	`, claim.ID, claim.OwnerID, claim.PolicyNumber, claim.Vehicle.Company, claim.Vehicle.Model, claim.Description,
		claim.IncidentDate, claim.Location, coverage, imageRefs, claim.Status, types.DecisionPending,
		claim.CreatedAt.UTC(), claim.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// GetClaim loads a claim by id
func (r *Repository) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("claim", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	return claim, nil
}

// BeginProcessing atomically moves a claim from uploaded or error into
// processing. A claim in any other state is left untouched and a conflict
// error is returned.
func (r *Repository) BeginProcessing(ctx context.Context, id string) (*types.Claim, error) {
	var claim *types.Claim
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE claims SET status = ?, last_error = '', updated_at = ?
			WHERE id = ? AND status IN (?, ?)
		`, types.StatusProcessing, r.now(), id, types.StatusUploaded, types.StatusError)
		if err != nil {
			return fmt.Errorf("failed to start processing: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to start processing: %w", err)
		}

		if affected == 0 {
			var status types.ClaimStatus
			err := tx.QueryRowContext(ctx, `SELECT status FROM claims WHERE id = ?`, id).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.NewNotFoundError("claim", id)
			}
			if err != nil {
				return fmt.Errorf("failed to read claim status: %w", err)
			}
			return apperrors.NewConflictError(id, string(status))
		}

		claim, err = scanClaim(tx.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("failed to load claim: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// MarkError moves a processing claim to error and records the cause
func (r *Repository) MarkError(ctx context.Context, id, cause string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE claims SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, types.StatusError, cause, r.now(), id, types.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark claim error: %w", err)
	}
	return nil
}

// SaveProcessed writes every derived field and the processed status in one
// transaction. It only applies to a claim that is still processing.
func (r *Repository) SaveProcessed(ctx context.Context, claim *types.Claim) error {
	if claim.ProcessingResult == nil {
		return apperrors.NewInternalError("save processed claim", errors.New("missing processing result"))
	}

	result, err := marshalColumn(claim.ProcessingResult)
	if err != nil {
		return err
	}
	imageRefs, err := marshalColumn(claim.ImageRefs)
	if err != nil {
		return err
	}

	now := r.now()
	processedAt := now
	if claim.ProcessedAt != nil {
		processedAt = claim.ProcessedAt.UTC()
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE claims SET
				status = ?, last_error = '', image_refs = ?, result = ?, decision = ?,
				fraud_score = ?, cost_total = ?, updated_at = ?, processed_at = ?
			WHERE id = ? AND status = ?
		`, types.StatusProcessed, imageRefs, result, claim.Decision.Decision,
			claim.Fraud.FraudScore, claim.Cost.Total, now, processedAt,
			claim.ID, types.StatusProcessing)
		if err != nil {
			return fmt.Errorf("failed to save processed claim: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to save processed claim: %w", err)
		}
		if affected == 0 {
			return apperrors.NewConflictError(claim.ID, "not processing")
		}
		return nil
	})
}

// ListClaims returns the most recent claims first
func (r *Repository) ListClaims(ctx context.Context, limit int) ([]*types.Claim, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*types.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// Summary aggregates decision counts and costs over every claim
func (r *Repository) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	var s AnalyticsSummary
	rows, err := r.db.QueryContext(ctx, `SELECT decision, COUNT(*) FROM claims GROUP BY decision`)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var decision types.Decision
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", err)
		}
		s.TotalClaims += count
		switch decision {
		case types.DecisionPreApproved:
			s.ApprovedClaims = count
		case types.DecisionRejected:
			s.RejectedClaims = count
		case types.DecisionManualReview:
			s.ManualReviewClaims = count
		default:
			s.PendingClaims += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claims WHERE fraud_score > 80`).Scan(&s.HighFraudCases)
	if err != nil {
		return nil, fmt.Errorf("failed to count high fraud claims: %w", err)
	}

	var avg sql.NullFloat64
	err = r.db.QueryRowContext(ctx, `SELECT AVG(cost_total) FROM claims WHERE cost_total > 0`).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average claim cost: %w", err)
	}
	if avg.Valid {
		s.AvgClaimCost = math.Round(avg.Float64*100) / 100
	}

	return &s, nil
}

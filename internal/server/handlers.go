package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/claimiq/internal/assessment"
	"github.com/ZanzyTHEbar/claimiq/internal/database"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

type createClaimRequest struct {
	OwnerID        string         `json:"owner_id" binding:"required"`
	ImageRefs      []string       `json:"image_refs" binding:"required,min=1,dive,required"`
	PolicyNumber   string         `json:"policy_number" binding:"required,min=5,max=50"`
	VehicleCompany string         `json:"vehicle_company" binding:"max=100"`
	VehicleModel   string         `json:"vehicle_model" binding:"max=100"`
	Description    string         `json:"description" binding:"max=1000"`
	IncidentDate   string         `json:"incident_date"`
	Location       string         `json:"location" binding:"max=200"`
	Coverage       types.Coverage `json:"coverage"`
}

func (r *createClaimRequest) validate(maxImages int) error {
	details := map[string]string{}
	if len(r.ImageRefs) > maxImages {
		details["image_refs"] = fmt.Sprintf("at most %d images allowed", maxImages)
	}
	if v := r.Coverage.CoverageLimit; v != nil && *v < 0 {
		details["coverage.coverage_limit"] = "must not be negative"
	}
	if v := r.Coverage.Deductible; v != nil && *v < 0 {
		details["coverage.deductible"] = "must not be negative"
	}
	if v := r.Coverage.DepreciationPct; v != nil && (*v < 0 || *v > 100) {
		details["coverage.depreciation_pct"] = "must be between 0 and 100"
	}
	if r.Coverage.PolicyValidTill != "" {
		if _, ok := assessment.ParsePolicyDate(r.Coverage.PolicyValidTill); !ok {
			details["coverage.policy_valid_till"] = "unrecognized date"
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationErrorWithMap(details)
	}
	return nil
}

// bindingError turns gin binding failures into a validation error naming each field
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
		return apperrors.NewValidationErrorWithMap(details)
	}
	return apperrors.NewValidationError("invalid request body", err.Error())
}

func (s *Server) createClaim(c *gin.Context) {
	var req createClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindingError(err))
		return
	}
	for i := range req.ImageRefs {
		req.ImageRefs[i] = strings.TrimSpace(req.ImageRefs[i])
	}
	if err := req.validate(s.cfg.MaxImages); err != nil {
		respondError(c, err)
		return
	}

	claim := database.NewClaim(types.Claim{
		OwnerID:      strings.TrimSpace(req.OwnerID),
		ImageRefs:    req.ImageRefs,
		PolicyNumber: strings.TrimSpace(req.PolicyNumber),
		Vehicle:      types.Vehicle{Company: req.VehicleCompany, Model: req.VehicleModel},
		Description:  strings.TrimSpace(req.Description),
		IncidentDate: req.IncidentDate,
		Location:     req.Location,
		Coverage:     req.Coverage,
	})

	if err := s.deps.Claims.CreateClaim(c.Request.Context(), claim); err != nil {
		respondError(c, err)
		return
	}

	s.deps.Logger.ForClaim(claim.ID).Info("Claim created", "owner_id", claim.OwnerID, "images", len(claim.ImageRefs))
	c.JSON(http.StatusCreated, claim)
}

func (s *Server) getClaim(c *gin.Context) {
	claim, err := s.deps.Claims.GetClaim(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}

func (s *Server) listClaims(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(c, apperrors.NewValidationError("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	claims, err := s.deps.Claims.ListClaims(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if claims == nil {
		claims = []*types.Claim{}
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims, "count": len(claims)})
}

func (s *Server) processClaim(c *gin.Context) {
	if s.deps.Processor == nil {
		respondError(c, apperrors.NewConfigurationError("claim processor not configured", nil))
		return
	}

	ctx := c.Request.Context()
	if s.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProcessTimeout)
		defer cancel()
	}

	id := c.Param("id")
	result, err := s.deps.Processor.Process(ctx, id)
	if err != nil {
		appErr := apperrors.ToAppError(err)
		if appErr.ClaimID == "" {
			appErr = appErr.WithClaim(id)
		}
		respondError(c, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claim":       result.Claim,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

func (s *Server) vehicleOptions(c *gin.Context) {
	if s.deps.Vehicles == nil {
		c.JSON(http.StatusOK, gin.H{"vehicles": map[string][]string{}})
		return
	}
	options, err := s.deps.Vehicles.VehicleOptions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": options})
}

func (s *Server) analyticsSummary(c *gin.Context) {
	summary, err := s.deps.Claims.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// health reports degraded when any provider sits behind an open breaker and
// unavailable when the detector does, since no claim can be processed then.
func (s *Server) health(c *gin.Context) {
	providers := s.deps.Health.Snapshot()

	status := "ok"
	code := http.StatusOK
	for _, p := range providers {
		if p.Available {
			continue
		}
		status = "degraded"
		if p.Name == "detector" {
			status = "unavailable"
			code = http.StatusServiceUnavailable
			break
		}
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.cfg.Version,
		"providers": providers,
	}
	if s.deps.Pool != nil {
		body["database"] = s.deps.Pool.GetPoolStats()
	}
	if s.deps.Pricing != nil {
		body["pricing"] = s.deps.Pricing.Status()
	}
	c.JSON(code, body)
}

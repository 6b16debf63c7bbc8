package cost

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/claimiq/internal/cache"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// ZoneCost is one row of the zone/severity base table
type ZoneCost struct {
	MinorCost          int64   `json:"minor_cost" yaml:"minor_cost"`
	ModerateCost       int64   `json:"moderate_cost" yaml:"moderate_cost"`
	SevereCost         int64   `json:"severe_cost" yaml:"severe_cost"`
	LaborCost          int64   `json:"labor_cost" yaml:"labor_cost"`
	RegionalMultiplier float64 `json:"regional_multiplier" yaml:"regional_multiplier"`
}

// FallbackZoneCost is used for zones missing from the base table
var FallbackZoneCost = ZoneCost{
	MinorCost:          4000,
	ModerateCost:       13000,
	SevereCost:         30000,
	LaborCost:          2000,
	RegionalMultiplier: 1.0,
}

// UnitCost is (severity cost + labor) x multiplier, rounded
func (z ZoneCost) UnitCost(severity types.Severity) int64 {
	base := z.ModerateCost
	switch severity {
	case types.SeverityMinor:
		base = z.MinorCost
	case types.SeveritySevere, types.SeverityCritical:
		base = z.SevereCost
	}
	multiplier := z.RegionalMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	cost := int64(math.Round(float64(base+z.LaborCost) * multiplier))
	if cost < 0 {
		return 0
	}
	return cost
}

// ModelKey identifies a (company, model, damage type) history bucket
type ModelKey struct {
	Company, Model, DamageType string
}

// CompanyKey identifies a (company, damage type) history bucket
type CompanyKey struct {
	Company, DamageType string
}

// PricingData is the immutable snapshot served by the Catalog
type PricingData struct {
	ModelAverages   map[ModelKey]float64
	CompanyAverages map[CompanyKey]float64
	GlobalAverages  map[string]float64
	ZoneCosts       map[types.Zone]ZoneCost
	Vehicles        map[string][]string
}

// HasHistory reports whether any historical averages are loaded
func (p PricingData) HasHistory() bool {
	return len(p.GlobalAverages) > 0
}

// ZoneCost returns the base-table row for zone or the fallback row
func (p PricingData) ZoneCost(zone types.Zone) ZoneCost {
	if zc, ok := p.ZoneCosts[zone]; ok {
		return zc
	}
	return FallbackZoneCost
}

// PricingSource loads pricing data from storage
type PricingSource interface {
	LoadPricing(ctx context.Context) (PricingData, error)
}

// Catalog serves pricing data from a TTL snapshot of a PricingSource
type Catalog struct {
	snapshot *cache.Snapshot[PricingData]
	logger   *monitoring.Logger
}

// NewCatalog wraps source in a snapshot refreshed every ttl
func NewCatalog(source PricingSource, ttl time.Duration, metrics *monitoring.Metrics, logger *monitoring.Logger) *Catalog {
	observer := func(name string, ok bool, d time.Duration) {
		metrics.RecordCacheRefresh(name, ok)
		if logger != nil {
			logger.CacheLogger("refresh", name, ok, d)
		}
	}
	return &Catalog{
		snapshot: cache.NewSnapshot[PricingData]("pricing", ttl, source.LoadPricing, cache.WithObserver[PricingData](observer)),
		logger:   logger,
	}
}

// Pricing returns the current snapshot. When no data could ever be loaded it
// returns an empty dataset so every lookup falls through to the base table.
func (c *Catalog) Pricing(ctx context.Context) (PricingData, error) {
	data, err := c.snapshot.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return PricingData{}, ctx.Err()
		}
		if c.logger != nil {
			c.logger.Warn("Pricing data unavailable, using base table", "error", err.Error())
		}
		return PricingData{}, nil
	}
	return data, nil
}

// Refresh reloads pricing data now
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err := c.snapshot.Refresh(ctx)
	return err
}

// LastRefresh is the time of the last successful load
func (c *Catalog) LastRefresh() time.Time {
	return c.snapshot.LastRefresh()
}

// PricingStatus describes the held snapshot for health reporting
type PricingStatus struct {
	Loaded      bool       `json:"loaded"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	HasHistory  bool       `json:"has_history"`
	Zones       int        `json:"zones"`
}

// Status reports on the current snapshot without triggering a load
func (c *Catalog) Status() PricingStatus {
	data, ok := c.snapshot.Peek()
	if !ok {
		return PricingStatus{}
	}
	last := c.LastRefresh().UTC()
	return PricingStatus{
		Loaded:      true,
		LastRefresh: &last,
		HasHistory:  data.HasHistory(),
		Zones:       len(data.ZoneCosts),
	}
}

// VehicleOptions lists known companies and their models, sorted
func (c *Catalog) VehicleOptions(ctx context.Context) (map[string][]string, error) {
	data, err := c.Pricing(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(data.Vehicles))
	for company, models := range data.Vehicles {
		sorted := append([]string(nil), models...)
		sort.Strings(sorted)
		out[company] = sorted
	}
	return out, nil
}

// NormalizeVehicle folds a company or model name for lookups
func NormalizeVehicle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

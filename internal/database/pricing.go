package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/claimiq/internal/analysis"
	"github.com/ZanzyTHEbar/claimiq/internal/cost"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// LoadPricing builds a pricing snapshot: historical averages at each tier,
// the zone base table and the known vehicles
func (r *Repository) LoadPricing(ctx context.Context) (cost.PricingData, error) {
	data := cost.PricingData{
		ModelAverages:   map[cost.ModelKey]float64{},
		CompanyAverages: map[cost.CompanyKey]float64{},
		GlobalAverages:  map[string]float64{},
		ZoneCosts:       map[types.Zone]cost.ZoneCost{},
		Vehicles:        map[string][]string{},
	}

	// averages are computed in Go so keys are normalized the same way
	// the estimator normalizes its lookups
	rows, err := r.db.QueryContext(ctx, `SELECT vehicle_company, vehicle_model, damage_type, cost FROM repair_history`)
	if err != nil {
		return cost.PricingData{}, fmt.Errorf("failed to load repair history: %w", err)
	}
	defer rows.Close()

	type acc struct {
		sum   float64
		count int
	}
	models := map[cost.ModelKey]*acc{}
	companies := map[cost.CompanyKey]*acc{}
	global := map[string]*acc{}
	vehicles := map[string]map[string]bool{}

	add := func(a *acc, v int64) *acc {
		if a == nil {
			a = &acc{}
		}
		a.sum += float64(v)
		a.count++
		return a
	}

	for rows.Next() {
		var rec RepairRecord
		if err := rows.Scan(&rec.Company, &rec.Model, &rec.DamageType, &rec.Cost); err != nil {
			return cost.PricingData{}, fmt.Errorf("failed to scan repair history: %w", err)
		}
		company := cost.NormalizeVehicle(rec.Company)
		model := cost.NormalizeVehicle(rec.Model)
		damage := analysis.NormalizeDamageType(rec.DamageType)

		mk := cost.ModelKey{Company: company, Model: model, DamageType: damage}
		ck := cost.CompanyKey{Company: company, DamageType: damage}
		models[mk] = add(models[mk], rec.Cost)
		companies[ck] = add(companies[ck], rec.Cost)
		global[damage] = add(global[damage], rec.Cost)

		if rec.Company != "" {
			if vehicles[rec.Company] == nil {
				vehicles[rec.Company] = map[string]bool{}
			}
			if rec.Model != "" {
				vehicles[rec.Company][rec.Model] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return cost.PricingData{}, fmt.Errorf("failed to read repair history: %w", err)
	}

	for k, a := range models {
		data.ModelAverages[k] = a.sum / float64(a.count)
	}
	for k, a := range companies {
		data.CompanyAverages[k] = a.sum / float64(a.count)
	}
	for k, a := range global {
		data.GlobalAverages[k] = a.sum / float64(a.count)
	}
	for company, set := range vehicles {
		list := make([]string, 0, len(set))
		for model := range set {
			list = append(list, model)
		}
		data.Vehicles[company] = list
	}

	zoneRows, err := r.db.QueryContext(ctx, `
		SELECT zone, minor_cost, moderate_cost, severe_cost, labor_cost, regional_multiplier FROM zone_costs
	`)
	if err != nil {
		return cost.PricingData{}, fmt.Errorf("failed to load zone costs: %w", err)
	}
	defer zoneRows.Close()

	for zoneRows.Next() {
		var zone types.Zone
		var zc cost.ZoneCost
		if err := zoneRows.Scan(&zone, &zc.MinorCost, &zc.ModerateCost, &zc.SevereCost, &zc.LaborCost, &zc.RegionalMultiplier); err != nil {
			return cost.PricingData{}, fmt.Errorf("failed to scan zone cost: %w", err)
		}
		data.ZoneCosts[zone] = zc
	}
	if err := zoneRows.Err(); err != nil {
		return cost.PricingData{}, fmt.Errorf("failed to read zone costs: %w", err)
	}

	return data, nil
}

// LoadSeedFile parses a YAML pricing seed
func LoadSeedFile(path string) (*PricingSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed PricingSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// SeedPricing upserts zone costs and appends repair history in one transaction
func (r *Repository) SeedPricing(ctx context.Context, seed *PricingSeed) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		for zone, zc := range seed.ZoneCosts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO zone_costs (zone, minor_cost, moderate_cost, severe_cost, labor_cost, regional_multiplier)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(zone) DO UPDATE SET
					minor_cost = excluded.minor_cost,
					moderate_cost = excluded.moderate_cost,
					severe_cost = excluded.severe_cost,
					labor_cost = excluded.labor_cost,
					regional_multiplier = excluded.regional_multiplier
			`, zone, zc.MinorCost, zc.ModerateCost, zc.SevereCost, zc.LaborCost, zc.RegionalMultiplier)
			if err != nil {
				return fmt.Errorf("failed to upsert zone cost %s: %w", zone, err)
			}
		}

		now := r.now()
		for _, rec := range seed.RepairHistory {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO repair_history (id, vehicle_company, vehicle_model, damage_type, cost, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, uuid.New().String(), rec.Company, rec.Model, rec.DamageType, rec.Cost, now)
			if err != nil {
				return fmt.Errorf("failed to insert repair history: %w", err)
			}
		}
		return nil
	})
}

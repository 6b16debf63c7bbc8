package analysis

import (
	"math"
	"sort"

	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

const (
	maxConfidenceWeight  = 0.7
	meanConfidenceWeight = 0.3

	severeAreaThreshold         = 0.22
	severeConfidenceThreshold   = 0.85
	severeConfidentAreaMinimum  = 0.08
	moderateAreaThreshold       = 0.10
	moderateConfidenceThreshold = 0.65

	unknownDamageType = "unknown damage"
)

type groupKey struct {
	zone       types.Zone
	damageType string
}

type detectionGroup struct {
	key        groupKey
	detections []types.RawDetection
}

// Aggregate folds raw detections from every image of a claim into one entry
// per (zone, damage type). Input order does not affect the result.
func Aggregate(detections []types.RawDetection) []types.DamageZoneEntry {
	if len(detections) == 0 {
		return []types.DamageZoneEntry{}
	}

	byZone := make(map[types.Zone][]types.RawDetection)
	for _, d := range detections {
		zone := d.Zone
		if zone == "" {
			zone = types.ZoneUnknown
		}
		d.Zone = zone
		byZone[zone] = append(byZone[zone], d)
	}

	groups := make(map[groupKey]*detectionGroup)
	for zone, zoneDetections := range byZone {
		var unmapped []types.RawDetection
		for _, d := range zoneDetections {
			damageType, ok := MapClassToDamageType(d.ClassName)
			if !ok {
				unmapped = append(unmapped, d)
				continue
			}
			addToGroup(groups, groupKey{zone: zone, damageType: damageType}, d)
		}
		if len(unmapped) > 0 {
			fallback := dominantLabel(unmapped)
			for _, d := range unmapped {
				addToGroup(groups, groupKey{zone: zone, damageType: fallback}, d)
			}
		}
	}

	entries := make([]types.DamageZoneEntry, 0, len(groups))
	for _, g := range groups {
		entries = append(entries, summarize(g))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Confidence != entries[j].Confidence {
			return entries[i].Confidence > entries[j].Confidence
		}
		if entries[i].Zone != entries[j].Zone {
			return entries[i].Zone < entries[j].Zone
		}
		return entries[i].DamageType < entries[j].DamageType
	})
	return entries
}

func addToGroup(groups map[groupKey]*detectionGroup, key groupKey, d types.RawDetection) {
	g, ok := groups[key]
	if !ok {
		g = &detectionGroup{key: key}
		groups[key] = g
	}
	g.detections = append(g.detections, d)
}

// dominantLabel picks the most frequent normalized label among unmapped
// detections. Ties resolve to the lexicographically smallest label.
func dominantLabel(detections []types.RawDetection) string {
	counts := make(map[string]int)
	for _, d := range detections {
		label := NormalizeDamageType(d.ClassName)
		if label == "" {
			continue
		}
		counts[label]++
	}

	best, bestCount := "", 0
	for label, n := range counts {
		if n > bestCount || (n == bestCount && label < best) {
			best, bestCount = label, n
		}
	}
	if best == "" {
		return unknownDamageType
	}
	return best
}

func summarize(g *detectionGroup) types.DamageZoneEntry {
	var sumConf, sumArea float64
	var best types.RawDetection
	maxConf := -1.0
	labelSet := make(map[string]struct{})

	for _, d := range g.detections {
		sumConf += d.Confidence
		sumArea += d.AreaRatio
		if d.Confidence > maxConf || (d.Confidence == maxConf && d.AreaRatio > best.AreaRatio) {
			maxConf = d.Confidence
			best = d
		}
		if label := normalizeClassLabel(d.ClassName); label != "" {
			labelSet[label] = struct{}{}
		}
	}

	meanConf := sumConf / float64(len(g.detections))
	confidence := maxConfidenceWeight*maxConf + meanConfidenceWeight*meanConf
	area := math.Min(sumArea, 1.0)

	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return types.NewDamageZoneEntry(
		g.key.zone,
		g.key.damageType,
		ClassifySeverity(confidence, area),
		roundTo(confidence, 3),
		area,
		len(g.detections),
		best.BBox,
		labels,
	)
}

// ClassifySeverity buckets an aggregated finding by confidence and area
func ClassifySeverity(confidence, area float64) types.Severity {
	switch {
	case area >= severeAreaThreshold || (confidence >= severeConfidenceThreshold && area >= severeConfidentAreaMinimum):
		return types.SeveritySevere
	case area >= moderateAreaThreshold || confidence >= moderateConfidenceThreshold:
		return types.SeverityModerate
	default:
		return types.SeverityMinor
	}
}

// AverageConfidence is the mean entry confidence; ok is false for no findings
func AverageConfidence(entries []types.DamageZoneEntry) (float64, bool) {
	if len(entries) == 0 {
		return 0, false
	}
	var sum float64
	for _, e := range entries {
		sum += e.Confidence
	}
	return sum / float64(len(entries)), true
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

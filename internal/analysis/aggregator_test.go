package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

func det(class string, conf, area float64, zone types.Zone) types.RawDetection {
	return types.NewRawDetection(class, conf, types.BoundingBox{1, 2, 3, 4}, area, zone)
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAggregateSingleScratch(t *testing.T) {
	got := Aggregate([]types.RawDetection{det("scratch", 0.9, 0.05, types.ZoneFront)})
	require.Len(t, got, 1)

	want := types.DamageZoneEntry{
		Zone:            types.ZoneFront,
		DamageType:      "scratch",
		Severity:        types.SeverityModerate,
		Confidence:      0.9,
		AreaRatio:       0.05,
		DetectionsCount: 1,
		BoundingBox:     types.BoundingBox{1, 2, 3, 4},
		RawClasses:      []string{"scratch"},
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateWeightedConfidence(t *testing.T) {
	best := types.NewRawDetection("dent", 0.9, types.BoundingBox{10, 10, 20, 20}, 0.04, types.ZoneRear)
	got := Aggregate([]types.RawDetection{
		det("dent", 0.5, 0.02, types.ZoneRear),
		best,
	})
	require.Len(t, got, 1)

	// 0.7*0.9 + 0.3*0.7
	assert.InDelta(t, 0.84, got[0].Confidence, 1e-9)
	assert.InDelta(t, 0.06, got[0].AreaRatio, 1e-9)
	assert.Equal(t, 2, got[0].DetectionsCount)
	assert.Equal(t, best.BBox, got[0].BoundingBox)
	assert.Equal(t, types.SeverityModerate, got[0].Severity)
}

func TestAggregateCapsArea(t *testing.T) {
	got := Aggregate([]types.RawDetection{
		det("dent", 1, 0.7, types.ZoneFront),
		det("dent", 1, 0.6, types.ZoneFront),
	})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].AreaRatio)
	assert.LessOrEqual(t, got[0].Confidence, 1.0)
	assert.Equal(t, types.SeveritySevere, got[0].Severity)
}

func TestAggregateGroupsByZoneAndType(t *testing.T) {
	got := Aggregate([]types.RawDetection{
		det("scratch", 0.4, 0.01, types.ZoneFront),
		det("Deep-Scratch", 0.5, 0.01, types.ZoneFront),
		det("dent", 0.95, 0.01, types.ZoneFront),
		det("scratch", 0.6, 0.01, types.ZoneRear),
	})
	require.Len(t, got, 3)

	assert.Equal(t, "dent", got[0].DamageType)
	assert.Equal(t, types.ZoneRear, got[1].Zone)
	assert.Equal(t, "scratch", got[2].DamageType)
	assert.Equal(t, types.ZoneFront, got[2].Zone)
	assert.Equal(t, []string{"deep_scratch", "scratch"}, got[2].RawClasses)
	assert.Equal(t, 2, got[2].DetectionsCount)
}

func TestAggregateUnmappedFallback(t *testing.T) {
	got := Aggregate([]types.RawDetection{
		det("paint_chip", 0.5, 0.01, types.ZoneLeftSide),
		det("Paint-Chip", 0.4, 0.01, types.ZoneLeftSide),
		det("rust", 0.3, 0.01, types.ZoneLeftSide),
		det("", 0.3, 0.01, types.ZoneRightSide),
	})
	require.Len(t, got, 2)

	assert.Equal(t, "paint chip", got[0].DamageType)
	assert.Equal(t, 3, got[0].DetectionsCount)
	assert.Equal(t, []string{"paint_chip", "rust"}, got[0].RawClasses)

	assert.Equal(t, "unknown damage", got[1].DamageType)
	assert.Empty(t, got[1].RawClasses)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	input := []types.RawDetection{
		det("scratch", 0.7, 0.02, types.ZoneFront),
		det("dent", 0.8, 0.1, types.ZoneRear),
		det("crack", 0.6, 0.3, types.ZoneFront),
		det("scratch", 0.2, 0.02, types.ZoneFront),
	}
	reversed := make([]types.RawDetection, len(input))
	for i := range input {
		reversed[len(input)-1-i] = input[i]
	}

	if diff := cmp.Diff(Aggregate(input), Aggregate(reversed)); diff != "" {
		t.Errorf("aggregation depends on order (-a +b):\n%s", diff)
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		area       float64
		expected   types.Severity
	}{
		{name: "large area is severe", confidence: 0.1, area: 0.22, expected: types.SeveritySevere},
		{name: "confident medium area is severe", confidence: 0.85, area: 0.08, expected: types.SeveritySevere},
		{name: "confident small area is moderate", confidence: 0.85, area: 0.07, expected: types.SeverityModerate},
		{name: "area threshold moderate", confidence: 0.1, area: 0.10, expected: types.SeverityModerate},
		{name: "confidence threshold moderate", confidence: 0.65, area: 0, expected: types.SeverityModerate},
		{name: "minor", confidence: 0.64, area: 0.09, expected: types.SeverityMinor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifySeverity(tt.confidence, tt.area))
		})
	}
}

func TestAverageConfidence(t *testing.T) {
	_, ok := AverageConfidence(nil)
	assert.False(t, ok)

	avg, ok := AverageConfidence([]types.DamageZoneEntry{{Confidence: 0.4}, {Confidence: 0.8}})
	assert.True(t, ok)
	assert.InDelta(t, 0.6, avg, 1e-9)
}

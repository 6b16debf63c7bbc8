package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

func TestInferZone(t *testing.T) {
	tests := []struct {
		name     string
		bbox     types.BoundingBox
		width    int
		height   int
		expected types.Zone
	}{
		{name: "left third", bbox: types.BoundingBox{0, 0, 100, 100}, width: 1000, height: 1000, expected: types.ZoneLeftSide},
		{name: "right third", bbox: types.BoundingBox{800, 0, 900, 100}, width: 1000, height: 1000, expected: types.ZoneRightSide},
		{name: "centre upper", bbox: types.BoundingBox{400, 100, 600, 200}, width: 1000, height: 1000, expected: types.ZoneFront},
		{name: "centre lower", bbox: types.BoundingBox{400, 700, 600, 900}, width: 1000, height: 1000, expected: types.ZoneRear},
		{name: "centre exactly at half height", bbox: types.BoundingBox{400, 400, 600, 600}, width: 1000, height: 1000, expected: types.ZoneRear},
		{name: "missing dimensions", bbox: types.BoundingBox{0, 0, 10, 10}, expected: types.ZoneUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferZone(tt.bbox, tt.width, tt.height))
		})
	}
}

func TestAssignZonesKeepsReportedZone(t *testing.T) {
	result := types.DetectionResult{
		ImageWidth:  1000,
		ImageHeight: 1000,
		Detections: []types.RawDetection{
			{ClassName: "dent", Confidence: 1.2, BBox: types.BoundingBox{0, 0, 100, 100}, Zone: types.ZoneRear},
			{ClassName: "dent", Confidence: 0.5, BBox: types.BoundingBox{0, 0, 100, 100}},
		},
	}

	got := AssignZones(result)
	assert.Equal(t, types.ZoneRear, got[0].Zone)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Equal(t, types.ZoneLeftSide, got[1].Zone)
}

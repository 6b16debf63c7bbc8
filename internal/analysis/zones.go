package analysis

import "github.com/ZanzyTHEbar/claimiq/internal/types"

const (
	leftSideMaxX  = 0.35
	rightSideMinX = 0.65
	frontMaxY     = 0.5
)

// InferZone places a box on the vehicle from its centre relative to the image.
// Without image dimensions the zone is Unknown.
func InferZone(bbox types.BoundingBox, width, height int) types.Zone {
	if width <= 0 || height <= 0 {
		return types.ZoneUnknown
	}
	cx, cy := bbox.Center()
	x := cx / float64(width)
	y := cy / float64(height)

	switch {
	case x < leftSideMaxX:
		return types.ZoneLeftSide
	case x > rightSideMinX:
		return types.ZoneRightSide
	case y < frontMaxY:
		return types.ZoneFront
	default:
		return types.ZoneRear
	}
}

// AssignZones fills in missing zones for every detection of a result
func AssignZones(result types.DetectionResult) []types.RawDetection {
	out := make([]types.RawDetection, 0, len(result.Detections))
	for _, d := range result.Detections {
		if d.Zone == "" {
			d.Zone = InferZone(d.BBox, result.ImageWidth, result.ImageHeight)
		}
		out = append(out, types.NewRawDetection(d.ClassName, d.Confidence, d.BBox, d.AreaRatio, d.Zone))
	}
	return out
}

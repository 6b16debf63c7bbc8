// Package providers holds HTTP adapters for the external services the
// pipeline depends on.
package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// detectRequest is the body sent to the damage detector
type detectRequest struct {
	ImageURL string `json:"image_url"`
}

// detectedBox is one detection as reported on the wire. Zone may be null.
type detectedBox struct {
	ClassName  string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
	AreaRatio  float64    `json:"area_ratio"`
	Zone       *string    `json:"zone"`
}

// detectResponse is the detector reply
type detectResponse struct {
	Detections     []detectedBox `json:"detections"`
	ImageWidth     int           `json:"image_width"`
	ImageHeight    int           `json:"image_height"`
	AnnotatedImage string        `json:"annotated_image,omitempty"` // base64
}

// DetectorClient calls the object-detection service
type DetectorClient struct {
	client *resilience.ProviderClient
}

// NewDetectorClient wraps a provider client pointed at the detector
func NewDetectorClient(client *resilience.ProviderClient) *DetectorClient {
	return &DetectorClient{client: client}
}

// Detect runs damage detection on one image
func (d *DetectorClient) Detect(ctx context.Context, imageRef string) (types.DetectionResult, error) {
	var resp detectResponse
	if err := d.client.DoJSON(ctx, http.MethodPost, "/detect", detectRequest{ImageURL: imageRef}, &resp); err != nil {
		return types.DetectionResult{}, fmt.Errorf("detect %s: %w", imageRef, err)
	}

	result := types.DetectionResult{
		ImageRef:    imageRef,
		ImageWidth:  resp.ImageWidth,
		ImageHeight: resp.ImageHeight,
		Detections:  make([]types.RawDetection, 0, len(resp.Detections)),
	}
	for _, det := range resp.Detections {
		var zone types.Zone
		if det.Zone != nil {
			zone = types.Zone(*det.Zone)
		}
		result.Detections = append(result.Detections,
			types.NewRawDetection(det.ClassName, det.Confidence, types.BoundingBox(det.BBox), det.AreaRatio, zone))
	}

	if resp.AnnotatedImage != "" {
		// a bad annotation never fails detection
		if img, err := base64.StdEncoding.DecodeString(resp.AnnotatedImage); err == nil {
			result.AnnotatedImage = img
		}
	}
	return result, nil
}

package fraud

import (
	"bytes"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// MetadataReport is what could be read from one image's capture metadata
type MetadataReport struct {
	// Supported is false for formats that cannot carry EXIF at all
	Supported bool
	// Present is false when a supported image has no readable metadata
	Present bool
	// Signature is the editing tool found in the metadata, if any
	Signature string
}

// MetadataInspector reads capture metadata from raw image bytes
type MetadataInspector interface {
	Inspect(data []byte) MetadataReport
}

// editingSignatures are matched case-insensitively against text EXIF fields
var editingSignatures = []string{
	"photoshop",
	"gimp",
	"lightroom",
	"snapseed",
	"picsart",
	"facetune",
	"canva",
	"pixlr",
	"affinity",
	"stable diffusion",
	"midjourney",
	"dall-e",
	"firefly",
}

var scannedFields = []exif.FieldName{exif.Software, exif.ImageDescription, exif.Artist}

// ExifInspector inspects JPEG and TIFF images with goexif
type ExifInspector struct{}

func (ExifInspector) Inspect(data []byte) MetadataReport {
	if !carriesExif(data) {
		return MetadataReport{}
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return MetadataReport{Supported: true}
	}

	report := MetadataReport{Supported: true, Present: true}
	for _, field := range scannedFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		value, err := tag.StringVal()
		if err != nil {
			continue
		}
		if sig := matchSignature(value); sig != "" {
			report.Signature = sig
			break
		}
	}
	return report
}

func matchSignature(value string) string {
	lower := strings.ToLower(value)
	for _, sig := range editingSignatures {
		if strings.Contains(lower, sig) {
			return sig
		}
	}
	return ""
}

// carriesExif sniffs JPEG and TIFF magic numbers
func carriesExif(data []byte) bool {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return true
	case len(data) >= 4 && (string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*"):
		return true
	default:
		return false
	}
}

// suspicion maps a report to the per-image ai-generation value; ok is false
// when the image does not count towards the mean
func suspicion(r MetadataReport) (float64, bool) {
	switch {
	case !r.Supported:
		return 0, false
	case !r.Present:
		return 0.4, true
	case r.Signature != "":
		return 0.8, true
	default:
		return 0, true
	}
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// TemplateExplanation is the deterministic narrative used when no
// explanation provider answers
func TemplateExplanation(entries []types.DamageZoneEntry) string {
	if len(entries) == 0 {
		return "No significant damage detected. Manual inspection recommended."
	}

	parts := make([]string, 0, len(entries))
	worst := entries[0].Severity
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s (%s damage, %.0f%% confidence)", e.Zone, e.Severity, e.Confidence*100))
		if e.Severity.Rank() > worst.Rank() {
			worst = e.Severity
		}
	}

	note := "Standard repair procedures applicable."
	if worst.Rank() >= types.SeveritySevere.Rank() {
		note = "Immediate repair recommended."
	}

	return fmt.Sprintf("Vehicle damage assessment: Detected damage in %s. Overall severity is classified as %s. %s",
		strings.Join(parts, ", "), worst, note)
}

package analysis

import "strings"

// damageAliases maps known synonyms onto the canonical damage type
var damageAliases = map[string]string{
	"windshield crack":    "broken glass",
	"windshield damage":   "broken glass",
	"broken windshield":   "broken glass",
	"glass damage":        "broken glass",
	"glass shatter":       "broken glass",
	"shattered glass":     "broken glass",
	"scratches":           "scratch",
	"dents":               "dent",
	"cracks":              "crack",
	"broken headlight":    "broken headlight/taillight",
	"broken taillight":    "broken headlight/taillight",
	"headlight damage":    "broken headlight/taillight",
	"taillight damage":    "broken headlight/taillight",
	"lamp broken":         "broken headlight/taillight",
	"bumper dent":         "bumper damage",
	"bumper crack":        "bumper damage",
	"front bumper damage": "bumper damage",
	"rear bumper damage":  "bumper damage",
}

// NormalizeDamageType lower-cases, replaces '_' and '-' with spaces, collapses
// whitespace and resolves aliases. It is shared by aggregation, pricing and fraud.
func NormalizeDamageType(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if alias, ok := damageAliases[s]; ok {
		return alias
	}
	return s
}

// normalizeClassLabel is the raw-label form kept on entries: trimmed,
// lower-case, '-' folded to '_'
func normalizeClassLabel(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

type substringRule struct {
	needles    []string
	damageType string
}

// exactClassRules is consulted before substringRules
var exactClassRules = map[string]string{
	"scratch":         "scratch",
	"dent":            "dent",
	"crack":           "crack",
	"windshield":      "broken glass",
	"rear_windshield": "broken glass",
	"headlight":       "broken headlight/taillight",
	"taillight":       "broken headlight/taillight",
	"front_bumper":    "bumper damage",
	"rear_bumper":     "bumper damage",
	"bumper":          "bumper damage",
}

// substringRules are evaluated in order; the first containing match wins
var substringRules = []substringRule{
	{needles: []string{"scratch"}, damageType: "scratch"},
	{needles: []string{"dent"}, damageType: "dent"},
	{needles: []string{"crack"}, damageType: "crack"},
	{needles: []string{"glass", "windshield"}, damageType: "broken glass"},
	{needles: []string{"headlight", "taillight"}, damageType: "broken headlight/taillight"},
	{needles: []string{"bumper"}, damageType: "bumper damage"},
}

// MapClassToDamageType resolves a detector label to a damage type.
// ok is false when no rule matches.
func MapClassToDamageType(raw string) (string, bool) {
	label := normalizeClassLabel(raw)
	if label == "" {
		return "", false
	}
	if dt, ok := exactClassRules[label]; ok {
		return dt, true
	}
	for _, rule := range substringRules {
		for _, needle := range rule.needles {
			if strings.Contains(label, needle) {
				return rule.damageType, true
			}
		}
	}
	return "", false
}

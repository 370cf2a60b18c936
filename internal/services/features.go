package services

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/threadpick/threadpick/pkg/models"
)

// Feature slot layout. The vector is a fixed 26-dimensional binary encoding,
// one block per attribute family. At most one bit is set per family; the
// color and season blocks stay empty when the attribute is unrecognized.
var (
	categorySlots = map[string]int{
		"tops": 0, "bottoms": 1, "dresses": 2, "outerwear": 3, "shoes": 4,
	}
	colorSlots = map[string]int{
		"black": 5, "white": 6, "grey": 7, "blue": 8,
		"red": 9, "green": 10, "brown": 11, "pink": 12,
	}
	occasionSlots = map[string]int{
		"casual": 13, "formal": 14, "sport": 15, "party": 16,
	}
	seasonSlots = map[string]int{
		"spring": 17, "summer": 18, "autumn": 19, "winter": 20,
	}
	styleSlots = map[string]int{
		"classic": 21, "trendy": 22, "bohemian": 23, "minimalist": 24, "vintage": 25,
	}

	// Common catalog spellings folded into the canonical vocabulary.
	synonyms = map[string]string{
		"gray":   "grey",
		"navy":   "blue",
		"fall":   "autumn",
		"sporty": "sport",
		"beige":  "brown",
	}

	featureNames = buildFeatureNames()
)

const (
	defaultCategory = "tops"
	defaultOccasion = "casual"
	defaultStyle    = "classic"
)

func buildFeatureNames() []string {
	names := make([]string, models.FeatureDimensions)
	for prefix, slots := range map[string]map[string]int{
		"category": categorySlots,
		"color":    colorSlots,
		"occasion": occasionSlots,
		"season":   seasonSlots,
		"style":    styleSlots,
	} {
		for value, idx := range slots {
			names[idx] = prefix + ":" + value
		}
	}
	return names
}

// FeatureName returns the human-readable label for a vector slot.
func FeatureName(idx int) string {
	if idx < 0 || idx >= len(featureNames) {
		return ""
	}
	return featureNames[idx]
}

// FeatureExtractor maps catalog attributes onto the binary feature space.
type FeatureExtractor struct {
	folder cases.Caser
}

func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{folder: cases.Fold()}
}

// normalize folds case, trims, and resolves synonyms.
func (fe *FeatureExtractor) normalize(raw string) string {
	v := strings.TrimSpace(fe.folder.String(raw))
	if canonical, ok := synonyms[v]; ok {
		return canonical
	}
	return v
}

func (fe *FeatureExtractor) slot(slots map[string]int, raw, fallback string) int {
	if idx, ok := slots[fe.normalize(raw)]; ok {
		return idx
	}
	return slots[fallback]
}

// Extract builds the product's feature vector. Unknown category, occasion, or
// style values fall back to the family default; unknown color or season leave
// that block all-zero.
func (fe *FeatureExtractor) Extract(p *models.Product) []float64 {
	vec := make([]float64, models.FeatureDimensions)
	vec[fe.slot(categorySlots, p.CategoryMain, defaultCategory)] = 1
	if idx, ok := colorSlots[fe.normalize(p.PrimaryColor)]; ok {
		vec[idx] = 1
	}
	vec[fe.slot(occasionSlots, p.Occasion, defaultOccasion)] = 1
	if idx, ok := seasonSlots[fe.normalize(p.Season)]; ok {
		vec[idx] = 1
	}
	vec[fe.slot(styleSlots, p.Style, defaultStyle)] = 1
	return vec
}

// NormalizeCategory resolves a filter value to the canonical category name, or
// "" when unrecognized.
func (fe *FeatureExtractor) NormalizeCategory(raw string) string {
	v := fe.normalize(raw)
	if _, ok := categorySlots[v]; ok {
		return v
	}
	return ""
}

// NormalizeColor resolves a color to its canonical name, or "" when unknown.
func (fe *FeatureExtractor) NormalizeColor(raw string) string {
	v := fe.normalize(raw)
	if _, ok := colorSlots[v]; ok {
		return v
	}
	return ""
}

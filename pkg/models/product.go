package models

import "time"

// FeatureDimensions is the fixed length of every product feature vector.
const FeatureDimensions = 26

// Product is a catalog item. Immutable after ingestion.
type Product struct {
	ProductID     string    `json:"product_id" db:"product_id"`
	Name          string    `json:"name" db:"name"`
	Brand         string    `json:"brand" db:"brand"`
	CategoryMain  string    `json:"category_main" db:"category_main"`
	PrimaryColor  string    `json:"primary_color" db:"primary_color"`
	Price         float64   `json:"price" db:"price" validate:"min=0"`
	Occasion      string    `json:"occasion,omitempty" db:"occasion"`
	Season        string    `json:"season,omitempty" db:"season"`
	Style         string    `json:"style,omitempty" db:"style"`
	Description   string    `json:"description,omitempty" db:"description"`
	ImageURL      string    `json:"image_url,omitempty" db:"image_url"`
	FeatureVector []float64 `json:"feature_vector" db:"feature_vector"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// HasValidFeatureVector reports whether the vector satisfies the catalog
// invariant: length FeatureDimensions, binary entries, at least one hot bit.
func (p *Product) HasValidFeatureVector() bool {
	if len(p.FeatureVector) != FeatureDimensions {
		return false
	}
	sum := 0.0
	for _, v := range p.FeatureVector {
		if v != 0 && v != 1 {
			return false
		}
		sum += v
	}
	return sum >= 1
}

// CandidateQuery is the combined predicate used to sample recommendation
// candidates from the catalog: caller filters, the exclusion set, and the
// avoidance rules derived from recent loved items.
type CandidateQuery struct {
	MinPrice        *float64 `json:"min_price,omitempty"`
	MaxPrice        *float64 `json:"max_price,omitempty"`
	Category        string   `json:"category,omitempty"`
	ExcludeIDs      []string `json:"exclude_ids,omitempty"`
	AvoidCategories []string `json:"avoid_categories,omitempty"`
	AvoidColors     []string `json:"avoid_colors,omitempty"`
	AvoidBrands     []string `json:"avoid_brands,omitempty"`
	SampleSize      int      `json:"sample_size"`
}

package services

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/pkg/models"
)

// DiversityProfile is the per-request view of the session's recent exposure:
// the hard exclusion set, the avoidance rules derived from loved items, and
// the seen-facet snapshot used for bonus scoring.
type DiversityProfile struct {
	ExcludeIDs      []string
	AvoidCategories []string
	AvoidColors     []string
	AvoidBrands     []string

	SeenCategories map[string]bool
	SeenColors     map[string]bool
	SeenBrands     map[string]bool
}

// Info converts the profile into the response shape.
func (p *DiversityProfile) Info() models.DiversityInfo {
	return models.DiversityInfo{
		ExcludedProducts:  len(p.ExcludeIDs),
		AvoidedCategories: p.AvoidCategories,
		AvoidedColors:     p.AvoidColors,
		AvoidedBrands:     p.AvoidBrands,
	}
}

// Stats reports the size of the seen-facet sets.
func (p *DiversityProfile) Stats() models.DiversityStats {
	return models.DiversityStats{
		SeenCategories: len(p.SeenCategories),
		SeenColors:     len(p.SeenColors),
		SeenBrands:     len(p.SeenBrands),
	}
}

// DiversityController derives the exclusion window and avoidance rules from
// session history and applies the diversity and exploration bonuses.
type DiversityController struct {
	cfg      config.DiversityConfig
	history  database.HistoryRepository
	products database.ProductRepository
	logger   *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewDiversityController(cfg config.DiversityConfig, history database.HistoryRepository, products database.ProductRepository, logger *logrus.Logger) *DiversityController {
	return &DiversityController{
		cfg:      cfg,
		history:  history,
		products: products,
		logger:   logger,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
}

// Profile builds the session's diversity profile from history, newest first.
// The last exclusion-window entries are hard-excluded. Among the loved items
// in the shorter loved window, facet values repeated past their limit become
// avoidance rules that narrow the candidate query. All facets seen across the
// retained history form the snapshot the bonus scoring works against.
func (dc *DiversityController) Profile(ctx context.Context, sessionID uuid.UUID, maxHistory int) (*DiversityProfile, error) {
	recent, err := dc.history.Recent(ctx, sessionID, maxHistory)
	if err != nil {
		return nil, err
	}

	profile := &DiversityProfile{
		SeenCategories: make(map[string]bool),
		SeenColors:     make(map[string]bool),
		SeenBrands:     make(map[string]bool),
	}

	excluded := make(map[string]bool)
	for i, h := range recent {
		if i < dc.cfg.ExclusionWindow && !excluded[h.ProductID] {
			excluded[h.ProductID] = true
			profile.ExcludeIDs = append(profile.ExcludeIDs, h.ProductID)
		}
	}

	categoryCounts := make(map[string]int)
	colorCounts := make(map[string]int)
	brandCounts := make(map[string]int)

	for i, h := range recent {
		p, err := dc.products.Get(ctx, h.ProductID)
		if err != nil {
			continue
		}
		profile.SeenCategories[p.CategoryMain] = true
		profile.SeenColors[p.PrimaryColor] = true
		if p.Brand != "" {
			profile.SeenBrands[p.Brand] = true
		}

		if i >= dc.cfg.LovedWindow {
			continue
		}
		if h.UserAction == nil || *h.UserAction != models.ActionLove {
			continue
		}
		categoryCounts[p.CategoryMain]++
		colorCounts[p.PrimaryColor]++
		if p.Brand != "" {
			brandCounts[p.Brand]++
		}
	}

	for category, n := range categoryCounts {
		if n >= dc.cfg.CategoryLimit {
			profile.AvoidCategories = append(profile.AvoidCategories, category)
		}
	}
	for color, n := range colorCounts {
		if n >= dc.cfg.ColorLimit {
			profile.AvoidColors = append(profile.AvoidColors, color)
		}
	}
	for brand, n := range brandCounts {
		if n >= dc.cfg.BrandLimit {
			profile.AvoidBrands = append(profile.AvoidBrands, brand)
		}
	}

	return profile, nil
}

// Bonus rewards candidates whose facets the session has not seen yet.
func (dc *DiversityController) Bonus(p *models.Product, profile *DiversityProfile) float64 {
	bonus := 0.0
	if !profile.SeenCategories[p.CategoryMain] {
		bonus += dc.cfg.CategoryBonus
	}
	if !profile.SeenColors[p.PrimaryColor] {
		bonus += dc.cfg.ColorBonus
	}
	if p.Brand != "" && !profile.SeenBrands[p.Brand] {
		bonus += dc.cfg.BrandBonus
	}
	return bonus
}

// ExplorationBonus shrinks as the session accumulates interactions, but never
// below the floor.
func (dc *DiversityController) ExplorationBonus(totalInteractions int) float64 {
	bonus := dc.cfg.ExplorationBase - dc.cfg.ExplorationStep*float64(totalInteractions)
	if bonus < dc.cfg.ExplorationFloor {
		bonus = dc.cfg.ExplorationFloor
	}
	return bonus
}

// PickFromTop selects uniformly among the K best-scored candidates. The
// stochastic pick keeps repeated requests from replaying an identical list.
func (dc *DiversityController) PickFromTop(n int) int {
	k := dc.cfg.TopK
	if n < k {
		k = n
	}
	if k <= 1 {
		return 0
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.rng.Intn(k)
}

// SampleSize returns the candidate pool cap.
func (dc *DiversityController) SampleSize() int {
	return dc.cfg.CandidateSample
}

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/pkg/models"
)

func newDiversityFixture(t *testing.T) (*DiversityController, *database.MemoryHistoryRepository, *database.MemoryProductRepository) {
	t.Helper()
	history := database.NewMemoryHistoryRepository()
	products := database.NewMemoryProductRepository()
	dc := NewDiversityController(testDiversityConfig(), history, products, testLogger())
	return dc, history, products
}

func seedProduct(t *testing.T, products *database.MemoryProductRepository, id, category, color, brand string) {
	t.Helper()
	require.NoError(t, products.Upsert(context.Background(), &models.Product{
		ProductID:    id,
		Name:         id,
		Brand:        brand,
		CategoryMain: category,
		PrimaryColor: color,
		Price:        50,
	}))
}

func TestDiversityController_ProfileExclusionWindow(t *testing.T) {
	ctx := context.Background()
	dc, history, products := newDiversityFixture(t)
	sessionID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("p-%02d", i)
		seedProduct(t, products, id, "tops", "black", "acme")
		require.NoError(t, history.Append(ctx, sessionID, []string{id}, base.Add(time.Duration(i)*time.Minute), 100))
	}

	profile, err := dc.Profile(ctx, sessionID, 100)
	require.NoError(t, err)

	// Only the 20 newest entries are excluded.
	assert.Len(t, profile.ExcludeIDs, 20)
	excluded := make(map[string]bool)
	for _, id := range profile.ExcludeIDs {
		excluded[id] = true
	}
	assert.True(t, excluded["p-29"], "newest entry is excluded")
	assert.True(t, excluded["p-10"], "20th newest entry is excluded")
	assert.False(t, excluded["p-09"], "entries beyond the window are eligible again")
}

func TestDiversityController_ProfileDeduplicatesExclusions(t *testing.T) {
	ctx := context.Background()
	dc, history, products := newDiversityFixture(t)
	sessionID := uuid.New()

	seedProduct(t, products, "p-1", "tops", "black", "acme")
	now := time.Now().UTC()
	require.NoError(t, history.Append(ctx, sessionID, []string{"p-1", "p-1", "p-1"}, now, 100))

	profile, err := dc.Profile(ctx, sessionID, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, profile.ExcludeIDs)
}

func TestDiversityController_AvoidanceRules(t *testing.T) {
	ctx := context.Background()
	dc, history, products := newDiversityFixture(t)
	sessionID := uuid.New()

	// Three loved tops in two colors from the same brand inside the loved
	// window: category (3 ≥ 3) and color black (2 ≥ 2) and brand (3 ≥ 3)
	// trip their limits; color white (1 < 2) does not.
	items := []struct {
		id    string
		color string
	}{
		{"loved-1", "black"},
		{"loved-2", "black"},
		{"loved-3", "white"},
	}
	now := time.Now().UTC()
	love := models.ActionLove
	for i, item := range items {
		seedProduct(t, products, item.id, "tops", item.color, "acme")
		require.NoError(t, history.Append(ctx, sessionID, []string{item.id}, now.Add(time.Duration(i)*time.Second), 100))
		_, err := history.MarkAction(ctx, sessionID, item.id, love, now)
		require.NoError(t, err)
	}

	profile, err := dc.Profile(ctx, sessionID, 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"tops"}, profile.AvoidCategories)
	assert.Equal(t, []string{"black"}, profile.AvoidColors)
	assert.Equal(t, []string{"acme"}, profile.AvoidBrands)
}

func TestDiversityController_AvoidanceIgnoresUnlovedAndStale(t *testing.T) {
	ctx := context.Background()
	dc, history, products := newDiversityFixture(t)
	sessionID := uuid.New()

	now := time.Now().UTC()
	love := models.ActionLove

	// Three loved shoes, but pushed beyond the loved window by newer entries.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("old-%d", i)
		seedProduct(t, products, id, "shoes", "red", "stale-brand")
		require.NoError(t, history.Append(ctx, sessionID, []string{id}, now.Add(time.Duration(i)*time.Second), 100))
		_, err := history.MarkAction(ctx, sessionID, id, love, now)
		require.NoError(t, err)
	}
	// Ten newer entries without love fill the loved window.
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("new-%d", i)
		seedProduct(t, products, id, "bottoms", "blue", "fresh-brand")
		require.NoError(t, history.Append(ctx, sessionID, []string{id}, now.Add(time.Duration(10+i)*time.Second), 100))
	}

	profile, err := dc.Profile(ctx, sessionID, 100)
	require.NoError(t, err)

	assert.Empty(t, profile.AvoidCategories)
	assert.Empty(t, profile.AvoidColors)
	assert.Empty(t, profile.AvoidBrands)
}

func TestDiversityController_SeenFacetsAndBonus(t *testing.T) {
	ctx := context.Background()
	dc, history, products := newDiversityFixture(t)
	sessionID := uuid.New()

	seedProduct(t, products, "p-1", "tops", "black", "acme")
	require.NoError(t, history.Append(ctx, sessionID, []string{"p-1"}, time.Now().UTC(), 100))

	profile, err := dc.Profile(ctx, sessionID, 100)
	require.NoError(t, err)

	assert.True(t, profile.SeenCategories["tops"])
	assert.True(t, profile.SeenColors["black"])
	assert.True(t, profile.SeenBrands["acme"])

	t.Run("all facets fresh", func(t *testing.T) {
		bonus := dc.Bonus(&models.Product{CategoryMain: "shoes", PrimaryColor: "red", Brand: "other"}, profile)
		assert.InDelta(t, 0.45, bonus, 1e-12)
	})
	t.Run("all facets seen", func(t *testing.T) {
		bonus := dc.Bonus(&models.Product{CategoryMain: "tops", PrimaryColor: "black", Brand: "acme"}, profile)
		assert.Equal(t, 0.0, bonus)
	})
	t.Run("fresh color only", func(t *testing.T) {
		bonus := dc.Bonus(&models.Product{CategoryMain: "tops", PrimaryColor: "green", Brand: "acme"}, profile)
		assert.InDelta(t, 0.15, bonus, 1e-12)
	})
	t.Run("missing brand earns no brand bonus", func(t *testing.T) {
		bonus := dc.Bonus(&models.Product{CategoryMain: "tops", PrimaryColor: "black"}, profile)
		assert.Equal(t, 0.0, bonus)
	})
}

func TestDiversityController_ExplorationBonus(t *testing.T) {
	dc, _, _ := newDiversityFixture(t)

	assert.InDelta(t, 0.30, dc.ExplorationBonus(0), 1e-12)
	assert.InDelta(t, 0.20, dc.ExplorationBonus(10), 1e-12)
	assert.InDelta(t, 0.05, dc.ExplorationBonus(25), 1e-12, "floor reached")
	assert.InDelta(t, 0.05, dc.ExplorationBonus(500), 1e-12, "never below the floor")
}

func TestDiversityController_PickFromTop(t *testing.T) {
	dc, _, _ := newDiversityFixture(t)

	assert.Equal(t, 0, dc.PickFromTop(1))
	for i := 0; i < 100; i++ {
		idx := dc.PickFromTop(3)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 3)
	}
	for i := 0; i < 100; i++ {
		idx := dc.PickFromTop(50)
		assert.Less(t, idx, 5, "never beyond top K")
	}
}

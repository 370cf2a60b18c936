package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/services"
)

func newTestLoader() (*Loader, *database.MemoryProductRepository) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	repo := database.NewMemoryProductRepository()
	return NewLoader(repo, services.NewFeatureExtractor(), logger), repo
}

func TestLoader_LoadCSV(t *testing.T) {
	ctx := context.Background()
	loader, repo := newTestLoader()

	csv := strings.Join([]string{
		"product_id,name,brand,category_main,primary_color,occasion,season,style,price",
		"p-1,Linen Shirt,acme,tops,white,casual,summer,classic,39.90",
		"p-2,Navy Chinos,zara,bottoms,navy,formal,fall,minimalist,59.00",
	}, "\n")

	result, err := loader.LoadCSV(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 0, result.Skipped)

	p, err := repo.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", p.Name)
	assert.Equal(t, 39.90, p.Price)
	assert.True(t, p.HasValidFeatureVector())

	p2, err := repo.Get(ctx, "p-2")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p2.FeatureVector[8], "navy folded to the blue slot")
	assert.Equal(t, 1.0, p2.FeatureVector[19], "fall folded to the autumn slot")
}

func TestLoader_SkipsBadRows(t *testing.T) {
	ctx := context.Background()
	loader, repo := newTestLoader()

	csv := strings.Join([]string{
		"product_id,name,brand,category_main,primary_color,price",
		"p-1,Good Item,acme,tops,black,25",
		",Missing ID,acme,tops,black,25",
		"p-3,Bad Price,acme,tops,black,not-a-number",
		"p-4,Negative,acme,tops,black,-5",
	}, "\n")

	result, err := loader.LoadCSV(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loaded)
	assert.Equal(t, 3, result.Skipped)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoader_MissingRequiredColumn(t *testing.T) {
	loader, _ := newTestLoader()
	_, err := loader.LoadCSV(context.Background(), strings.NewReader("product_id,name\np-1,Item"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category_main")
}

func TestLoader_OptionalColumnsDefault(t *testing.T) {
	ctx := context.Background()
	loader, repo := newTestLoader()

	csv := "product_id,name,category_main,price\np-1,Bare Minimum,shoes,45\n"
	result, err := loader.LoadCSV(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loaded)

	p, err := repo.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.FeatureVector[4], "shoes slot")
	assert.Equal(t, 1.0, p.FeatureVector[13], "occasion defaults to casual")
	assert.Equal(t, 1.0, p.FeatureVector[21], "style defaults to classic")
}

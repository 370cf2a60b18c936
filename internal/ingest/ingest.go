package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/services"
	"github.com/threadpick/threadpick/pkg/models"
)

// Loader ingests catalog CSVs, computing feature vectors as it goes.
type Loader struct {
	products  database.ProductRepository
	extractor *services.FeatureExtractor
	logger    *logrus.Logger
}

// Result summarizes one ingestion run.
type Result struct {
	Loaded  int
	Skipped int
}

func NewLoader(products database.ProductRepository, extractor *services.FeatureExtractor, logger *logrus.Logger) *Loader {
	return &Loader{products: products, extractor: extractor, logger: logger}
}

// LoadCSV reads a catalog file with a header row and upserts every record.
// Required columns: product_id, name, category_main, price. Rows missing them
// or carrying an unparsable price are skipped with a warning, not fatal.
func (l *Loader) LoadCSV(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"product_id", "name", "category_main", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	result := &Result{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			l.logger.WithError(err).WithField("line", line).Warn("Skipping malformed CSV record")
			result.Skipped++
			continue
		}

		product := &models.Product{
			ProductID:    field(record, "product_id"),
			Name:         field(record, "name"),
			Brand:        field(record, "brand"),
			CategoryMain: field(record, "category_main"),
			PrimaryColor: field(record, "primary_color"),
			Occasion:     field(record, "occasion"),
			Season:       field(record, "season"),
			Style:        field(record, "style"),
			Description:  field(record, "description"),
			ImageURL:     field(record, "image_url"),
			CreatedAt:    time.Now().UTC(),
		}
		if product.ProductID == "" || product.Name == "" || product.CategoryMain == "" {
			l.logger.WithField("line", line).Warn("Skipping record with missing required fields")
			result.Skipped++
			continue
		}

		price, err := strconv.ParseFloat(field(record, "price"), 64)
		if err != nil || price < 0 {
			l.logger.WithField("line", line).Warn("Skipping record with invalid price")
			result.Skipped++
			continue
		}
		product.Price = price

		product.FeatureVector = l.extractor.Extract(product)
		if !product.HasValidFeatureVector() {
			l.logger.WithFields(logrus.Fields{
				"line":       line,
				"product_id": product.ProductID,
			}).Warn("Skipping record with invalid feature vector")
			result.Skipped++
			continue
		}

		if err := l.products.Upsert(ctx, product); err != nil {
			return result, fmt.Errorf("failed to upsert product %s: %w", product.ProductID, err)
		}
		result.Loaded++
	}

	return result, nil
}

package database

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threadpick/threadpick/pkg/models"
)

// In-memory repository implementations. Used when database.url is unset and
// by tests. Same contracts as the Postgres implementations.

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*models.Product
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*models.Product)}
}

func (r *MemoryProductRepository) Upsert(_ context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.products[p.ProductID] = &cp
	return nil
}

func (r *MemoryProductRepository) Get(_ context.Context, productID string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProductRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.products), nil
}

func (r *MemoryProductRepository) Candidates(_ context.Context, q models.CandidateQuery) ([]*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	avoidCategory := toSet(q.AvoidCategories)
	avoidColor := toSet(q.AvoidColors)
	avoidBrand := toSet(q.AvoidBrands)

	var matched []*models.Product
	for _, p := range r.products {
		if _, skip := excluded[p.ProductID]; skip {
			continue
		}
		if q.Category != "" && p.CategoryMain != q.Category {
			continue
		}
		if q.MinPrice != nil && p.Price < *q.MinPrice {
			continue
		}
		if q.MaxPrice != nil && p.Price > *q.MaxPrice {
			continue
		}
		if avoidCategory[p.CategoryMain] || avoidColor[p.PrimaryColor] || avoidBrand[p.Brand] {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}

	rand.Shuffle(len(matched), func(i, j int) {
		matched[i], matched[j] = matched[j], matched[i]
	})
	if q.SampleSize > 0 && len(matched) > q.SampleSize {
		matched = matched[:q.SampleSize]
	}
	return matched, nil
}

type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.Session
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[uuid.UUID]*models.Session)}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, sessionID uuid.UUID) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySessionRepository) Update(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sessions[s.SessionID]
	if !ok {
		return ErrNotFound
	}
	existing.Alpha = s.Alpha
	existing.TotalInteractions = s.TotalInteractions
	existing.Status = s.Status
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

type MemoryHistoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[uuid.UUID][]models.HistoryEntry
}

func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{entries: make(map[uuid.UUID][]models.HistoryEntry)}
}

func (r *MemoryHistoryRepository) Append(_ context.Context, sessionID uuid.UUID, productIDs []string, shownAt time.Time, maxEntries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pid := range productIDs {
		r.nextID++
		r.entries[sessionID] = append(r.entries[sessionID], models.HistoryEntry{
			ID:        r.nextID,
			SessionID: sessionID,
			ProductID: pid,
			ShownAt:   shownAt,
		})
	}
	if n := len(r.entries[sessionID]); maxEntries > 0 && n > maxEntries {
		r.entries[sessionID] = r.entries[sessionID][n-maxEntries:]
	}
	return nil
}

func (r *MemoryHistoryRepository) Recent(_ context.Context, sessionID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.entries[sessionID]
	out := make([]models.HistoryEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ShownAt.Equal(out[j].ShownAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ShownAt.After(out[j].ShownAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryHistoryRepository) MarkAction(_ context.Context, sessionID uuid.UUID, productID string, action models.Action, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[sessionID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ProductID == productID {
			a := action
			ts := at
			entries[i].UserAction = &a
			entries[i].ActionTimestamp = &ts
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryHistoryRepository) ClearAction(_ context.Context, sessionID uuid.UUID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[sessionID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ProductID == productID {
			entries[i].UserAction = nil
			entries[i].ActionTimestamp = nil
			return nil
		}
	}
	return nil
}

func (r *MemoryHistoryRepository) Count(_ context.Context, sessionID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[sessionID]), nil
}

type MemoryInteractionRepository struct {
	mu           sync.RWMutex
	nextID       int64
	interactions map[uuid.UUID][]models.Interaction
}

func NewMemoryInteractionRepository() *MemoryInteractionRepository {
	return &MemoryInteractionRepository{interactions: make(map[uuid.UUID][]models.Interaction)}
}

func (r *MemoryInteractionRepository) Insert(_ context.Context, in *models.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	in.ID = r.nextID
	cp := *in
	cp.FeatureVector = append([]float64(nil), in.FeatureVector...)
	r.interactions[in.SessionID] = append(r.interactions[in.SessionID], cp)
	return nil
}

func (r *MemoryInteractionRepository) BySession(_ context.Context, sessionID uuid.UUID) ([]models.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.interactions[sessionID]
	out := make([]models.Interaction, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

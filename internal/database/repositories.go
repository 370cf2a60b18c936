package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/threadpick/threadpick/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Querier abstracts the pgx pool so repositories can run against pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProductRepository is the catalog read/write surface.
type ProductRepository interface {
	Upsert(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, productID string) (*models.Product, error)
	Count(ctx context.Context) (int, error)
	Candidates(ctx context.Context, q models.CandidateQuery) ([]*models.Product, error)
}

// SessionRepository persists per-session bandit configuration.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
}

// HistoryRepository records which products a session has been shown.
type HistoryRepository interface {
	Append(ctx context.Context, sessionID uuid.UUID, productIDs []string, shownAt time.Time, maxEntries int) error
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.HistoryEntry, error)
	MarkAction(ctx context.Context, sessionID uuid.UUID, productID string, action models.Action, at time.Time) (bool, error)
	ClearAction(ctx context.Context, sessionID uuid.UUID, productID string) error
	Count(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// InteractionRepository is the append-only reward event log.
type InteractionRepository interface {
	Insert(ctx context.Context, in *models.Interaction) error
	BySession(ctx context.Context, sessionID uuid.UUID) ([]models.Interaction, error)
}

type pgProductRepository struct {
	db Querier
}

func NewProductRepository(db Querier) ProductRepository {
	return &pgProductRepository{db: db}
}

func (r *pgProductRepository) Upsert(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (product_id, name, brand, category_main, primary_color,
			price, occasion, season, style, description, image_url, feature_vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (product_id) DO UPDATE SET
			name = EXCLUDED.name, brand = EXCLUDED.brand,
			category_main = EXCLUDED.category_main, primary_color = EXCLUDED.primary_color,
			price = EXCLUDED.price, occasion = EXCLUDED.occasion,
			season = EXCLUDED.season, style = EXCLUDED.style,
			description = EXCLUDED.description, image_url = EXCLUDED.image_url,
			feature_vector = EXCLUDED.feature_vector
	`
	_, err := r.db.Exec(ctx, query,
		p.ProductID, p.Name, p.Brand, p.CategoryMain, p.PrimaryColor,
		p.Price, p.Occasion, p.Season, p.Style, p.Description, p.ImageURL, p.FeatureVector)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ProductID, err)
	}
	return nil
}

const productColumns = `product_id, name, brand, category_main, primary_color,
	price, occasion, season, style, description, image_url, feature_vector, created_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ProductID, &p.Name, &p.Brand, &p.CategoryMain, &p.PrimaryColor,
		&p.Price, &p.Occasion, &p.Season, &p.Style, &p.Description, &p.ImageURL,
		&p.FeatureVector, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgProductRepository) Get(ctx context.Context, productID string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`
	p, err := scanProduct(r.db.QueryRow(ctx, query, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}
	return p, nil
}

func (r *pgProductRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// Candidates samples up to q.SampleSize products matching the hard filters.
// Random ordering keeps the sample unbiased at catalog scale.
func (r *pgProductRepository) Candidates(ctx context.Context, q models.CandidateQuery) ([]*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	idx := 1

	if q.Category != "" {
		query += fmt.Sprintf(" AND category_main = $%d", idx)
		args = append(args, q.Category)
		idx++
	}
	if q.MinPrice != nil {
		query += fmt.Sprintf(" AND price >= $%d", idx)
		args = append(args, *q.MinPrice)
		idx++
	}
	if q.MaxPrice != nil {
		query += fmt.Sprintf(" AND price <= $%d", idx)
		args = append(args, *q.MaxPrice)
		idx++
	}
	if len(q.ExcludeIDs) > 0 {
		query += fmt.Sprintf(" AND product_id != ALL($%d)", idx)
		args = append(args, q.ExcludeIDs)
		idx++
	}
	if len(q.AvoidCategories) > 0 {
		query += fmt.Sprintf(" AND category_main != ALL($%d)", idx)
		args = append(args, q.AvoidCategories)
		idx++
	}
	if len(q.AvoidColors) > 0 {
		query += fmt.Sprintf(" AND primary_color != ALL($%d)", idx)
		args = append(args, q.AvoidColors)
		idx++
	}
	if len(q.AvoidBrands) > 0 {
		query += fmt.Sprintf(" AND brand != ALL($%d)", idx)
		args = append(args, q.AvoidBrands)
		idx++
	}

	query += fmt.Sprintf(" ORDER BY random() LIMIT $%d", idx)
	args = append(args, q.SampleSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type pgSessionRepository struct {
	db Querier
}

func NewSessionRepository(db Querier) SessionRepository {
	return &pgSessionRepository{db: db}
}

func (r *pgSessionRepository) Create(ctx context.Context, s *models.Session) error {
	contextJSON, err := json.Marshal(s.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}
	query := `
		INSERT INTO user_sessions (session_id, user_id, alpha, dimensions,
			total_interactions, status, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		s.SessionID, s.UserID, s.Alpha, s.Dimensions,
		s.TotalInteractions, s.Status, contextJSON, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *pgSessionRepository) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	query := `
		SELECT session_id, user_id, alpha, dimensions, total_interactions,
			status, context, created_at, updated_at
		FROM user_sessions WHERE session_id = $1
	`
	var s models.Session
	var contextJSON []byte
	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&s.SessionID, &s.UserID, &s.Alpha, &s.Dimensions, &s.TotalInteractions,
		&s.Status, &contextJSON, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &s.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
		}
	}
	return &s, nil
}

func (r *pgSessionRepository) Update(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE user_sessions
		SET alpha = $2, total_interactions = $3, status = $4, updated_at = $5
		WHERE session_id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		s.SessionID, s.Alpha, s.TotalInteractions, s.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.SessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgHistoryRepository struct {
	db Querier
}

func NewHistoryRepository(db Querier) HistoryRepository {
	return &pgHistoryRepository{db: db}
}

func (r *pgHistoryRepository) Append(ctx context.Context, sessionID uuid.UUID, productIDs []string, shownAt time.Time, maxEntries int) error {
	for _, pid := range productIDs {
		_, err := r.db.Exec(ctx,
			`INSERT INTO session_history (session_id, product_id, shown_at) VALUES ($1, $2, $3)`,
			sessionID, pid, shownAt)
		if err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	// Trim to the retention cap, newest entries win.
	trim := `
		DELETE FROM session_history
		WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM session_history
			WHERE session_id = $1
			ORDER BY shown_at DESC, id DESC
			LIMIT $2
		)
	`
	if _, err := r.db.Exec(ctx, trim, sessionID, maxEntries); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *pgHistoryRepository) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, session_id, product_id, shown_at, user_action, action_timestamp
		FROM session_history
		WHERE session_id = $1
		ORDER BY shown_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		var action *string
		if err := rows.Scan(&h.ID, &h.SessionID, &h.ProductID, &h.ShownAt, &action, &h.ActionTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if action != nil {
			a := models.Action(*action)
			h.UserAction = &a
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *pgHistoryRepository) MarkAction(ctx context.Context, sessionID uuid.UUID, productID string, action models.Action, at time.Time) (bool, error) {
	query := `
		UPDATE session_history
		SET user_action = $3, action_timestamp = $4
		WHERE id = (
			SELECT id FROM session_history
			WHERE session_id = $1 AND product_id = $2
			ORDER BY shown_at DESC, id DESC
			LIMIT 1
		)
	`
	tag, err := r.db.Exec(ctx, query, sessionID, productID, string(action), at)
	if err != nil {
		return false, fmt.Errorf("failed to mark history action: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgHistoryRepository) ClearAction(ctx context.Context, sessionID uuid.UUID, productID string) error {
	query := `
		UPDATE session_history
		SET user_action = NULL, action_timestamp = NULL
		WHERE id = (
			SELECT id FROM session_history
			WHERE session_id = $1 AND product_id = $2
			ORDER BY shown_at DESC, id DESC
			LIMIT 1
		)
	`
	if _, err := r.db.Exec(ctx, query, sessionID, productID); err != nil {
		return fmt.Errorf("failed to clear history action: %w", err)
	}
	return nil
}

func (r *pgHistoryRepository) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_history WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

type pgInteractionRepository struct {
	db Querier
}

func NewInteractionRepository(db Querier) InteractionRepository {
	return &pgInteractionRepository{db: db}
}

func (r *pgInteractionRepository) Insert(ctx context.Context, in *models.Interaction) error {
	query := `
		INSERT INTO interactions (session_id, product_id, action, reward,
			feature_vector, score_before, score_after, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		in.SessionID, in.ProductID, string(in.Action), in.Reward,
		in.FeatureVector, in.ScoreBefore, in.ScoreAfter, in.Timestamp).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// BySession returns the session's interactions in timestamp order, oldest
// first. Model replay depends on this ordering.
func (r *pgInteractionRepository) BySession(ctx context.Context, sessionID uuid.UUID) ([]models.Interaction, error) {
	query := `
		SELECT id, session_id, product_id, action, reward, feature_vector,
			score_before, score_after, timestamp
		FROM interactions
		WHERE session_id = $1
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var action string
		if err := rows.Scan(&in.ID, &in.SessionID, &in.ProductID, &action, &in.Reward,
			&in.FeatureVector, &in.ScoreBefore, &in.ScoreAfter, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.Action = models.Action(action)
		out = append(out, in)
	}
	return out, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kgdatatech/securestack/internal/model"
)

// AnalyticsRepository persists and reads back auth analytics events.
type AnalyticsRepository interface {
	Insert(ctx context.Context, e *model.AnalyticsEvent) error
	ListRecent(ctx context.Context, limit int) ([]model.AnalyticsEvent, error)
}

// PostgresAnalyticsRepository stores events in analytics_events.
type PostgresAnalyticsRepository struct {
	db *sql.DB
}

func NewPostgresAnalyticsRepository(db *sql.DB) *PostgresAnalyticsRepository {
	return &PostgresAnalyticsRepository{db: db}
}

var _ AnalyticsRepository = (*PostgresAnalyticsRepository)(nil)

func (r *PostgresAnalyticsRepository) Insert(ctx context.Context, e *model.AnalyticsEvent) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	query := `INSERT INTO analytics_events (id, event_type, user_id, ip, referrer, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		id, e.Type, nullString(e.UserID), e.IP, e.Referrer,
		defaultString(e.Status, model.EventSuccess), detailsJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events first.
func (r *PostgresAnalyticsRepository) ListRecent(ctx context.Context, limit int) ([]model.AnalyticsEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT id, event_type, user_id, ip, referrer, status, details, created_at
		FROM analytics_events ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	var events []model.AnalyticsEvent
	for rows.Next() {
		var (
			e           model.AnalyticsEvent
			userID      sql.NullString
			detailsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &userID, &e.IP, &e.Referrer, &e.Status, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics event: %w", err)
		}
		e.UserID = userID.String
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, fmt.Errorf("decode event details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-power/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertEventsRepository 告警事件归档仓库
// 告警的权威状态在 Redis（冷却、最近列表），PostgreSQL 仅做长期留存
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建告警事件归档仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlertEvent 写入一条告警事件归档记录
// event_id 为空时自动生成，created_at 为零值时取当前时间
func (r *AlertEventsRepository) CreateAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.UPSName == "" {
		return fmt.Errorf("ups_name is required")
	}
	if event.Message == "" {
		return fmt.Errorf("message is required")
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO power_alert_events (
			event_id,
			ups_name,
			message,
			fingerprint,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.UPSName,
		event.Message,
		event.Fingerprint,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create alert event: %w", err)
	}

	return nil
}

// ListRecentAlertEvents 查询某台 UPS 最近的告警归档记录（新到旧）
func (r *AlertEventsRepository) ListRecentAlertEvents(ctx context.Context, upsName string, limit int) ([]*models.AlertEvent, error) {
	if upsName == "" {
		return nil, fmt.Errorf("ups_name is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			event_id,
			ups_name,
			message,
			fingerprint,
			created_at
		FROM power_alert_events
		WHERE ups_name = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, upsName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlertEvent{}
	for rows.Next() {
		var event models.AlertEvent
		if err := rows.Scan(
			&event.EventID,
			&event.UPSName,
			&event.Message,
			&event.Fingerprint,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return events, nil
}

// CountAlertEventsSince 统计某台 UPS 自指定时间以来的告警数量
func (r *AlertEventsRepository) CountAlertEventsSince(ctx context.Context, upsName string, since time.Time) (int, error) {
	if upsName == "" {
		return 0, fmt.Errorf("ups_name is required")
	}

	query := `
		SELECT COUNT(*)
		FROM power_alert_events
		WHERE ups_name = $1
		  AND created_at >= $2
	`

	var total int
	if err := r.db.QueryRowContext(ctx, query, upsName, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	return total, nil
}

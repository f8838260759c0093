package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// AlertsRepository persists local alert records. remote_alert_id carries a
// unique constraint so concurrent workers racing on the same alert degrade
// to an update instead of a duplicate row.
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

const alertColumns = `
	alert_id,
	remote_alert_id,
	device_id,
	severity,
	status,
	title,
	description,
	raw_payload,
	triggered_at,
	acknowledged_at,
	resolved_at,
	created_at,
	updated_at
`

func scanAlert(scanner interface{ Scan(...any) error }) (*models.Alert, error) {
	var a models.Alert
	var deviceID sql.NullString
	var ackAt, resolvedAt sql.NullTime
	var rawPayload []byte

	err := scanner.Scan(
		&a.AlertID,
		&a.RemoteAlertID,
		&deviceID,
		&a.Severity,
		&a.Status,
		&a.Title,
		&a.Description,
		&rawPayload,
		&a.TriggeredAt,
		&ackAt,
		&resolvedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		a.DeviceID = &deviceID.String
	}
	if ackAt.Valid {
		a.AcknowledgedAt = &ackAt.Time
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if len(rawPayload) > 0 {
		a.RawPayload = rawPayload
	} else {
		a.RawPayload = json.RawMessage("{}")
	}

	return &a, nil
}

// GetByRemoteAlertID looks up an alert by its natural key.
// Returns (nil, nil) when no row exists.
func (r *AlertsRepository) GetByRemoteAlertID(ctx context.Context, remoteAlertID string) (*models.Alert, error) {
	if remoteAlertID == "" {
		return nil, fmt.Errorf("remote_alert_id is required")
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE remote_alert_id = $1
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, remoteAlertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert by remote id: %w", err)
	}

	return alert, nil
}

// Insert creates a new alert row. ON CONFLICT DO NOTHING keeps the insert
// atomic under concurrent workers; the returned bool is false when another
// worker won the race, in which case the caller should re-read and update.
func (r *AlertsRepository) Insert(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert == nil {
		return false, fmt.Errorf("alert is required")
	}
	if alert.RemoteAlertID == "" {
		return false, fmt.Errorf("remote_alert_id is required")
	}

	var deviceID sql.NullString
	if alert.DeviceID != nil {
		deviceID = sql.NullString{String: *alert.DeviceID, Valid: true}
	}
	var ackAt, resolvedAt sql.NullTime
	if alert.AcknowledgedAt != nil {
		ackAt = sql.NullTime{Time: *alert.AcknowledgedAt, Valid: true}
	}
	if alert.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *alert.ResolvedAt, Valid: true}
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			remote_alert_id,
			device_id,
			severity,
			status,
			title,
			description,
			raw_payload,
			triggered_at,
			acknowledged_at,
			resolved_at,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (remote_alert_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.RemoteAlertID,
		deviceID,
		alert.Severity,
		alert.Status,
		alert.Title,
		alert.Description,
		[]byte(alert.RawPayload),
		alert.TriggeredAt,
		ackAt,
		resolvedAt,
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Update applies a partial update to an alert row.
func (r *AlertsRepository) Update(ctx context.Context, alertID string, updates map[string]interface{}) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if len(updates) == 0 {
		return fmt.Errorf("updates cannot be empty")
	}

	allowedFields := map[string]bool{
		"severity":        true,
		"status":          true,
		"title":           true,
		"description":     true,
		"raw_payload":     true,
		"device_id":       true,
		"acknowledged_at": true,
		"resolved_at":     true,
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedFields[field] {
			return fmt.Errorf("field '%s' is not allowed to update", field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}

	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, alertID)
	query := fmt.Sprintf(`
		UPDATE alerts
		SET %s
		WHERE alert_id = $%d
	`, strings.Join(setParts, ", "), argN)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert not found: alert_id=%s", alertID)
	}

	return nil
}

// SweepResolved deletes resolved alerts older than the retention window.
// Idempotent: a second run right after deletes nothing.
func (r *AlertsRepository) SweepResolved(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention_days must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	query := `
		DELETE FROM alerts
		WHERE status = 'resolved'
		  AND resolved_at IS NOT NULL
		  AND resolved_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep resolved alerts: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Swept resolved alerts past retention",
			zap.Int64("deleted", deleted),
			zap.Int("retention_days", retentionDays),
		)
	}

	return deleted, nil
}

// AlertFilters narrows ListAlerts results.
type AlertFilters struct {
	DeviceID  *string
	Severity  *string
	Status    *string
	Statuses  []string
	StartTime *time.Time // triggered_at >= StartTime
	EndTime   *time.Time // triggered_at <= EndTime
}

// ListAlerts returns alerts matching the filters, newest first, paginated.
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.Alert, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	argN := 1

	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", argN))
		args = append(args, *filters.DeviceID)
		argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, *filters.Severity)
		argN++
	}
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, *filters.Status)
		argN++
	}
	if len(filters.Statuses) > 0 {
		where = append(where, fmt.Sprintf("status = ANY($%d)", argN))
		args = append(args, pq.Array(filters.Statuses))
		argN++
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("triggered_at >= $%d", argN))
		args = append(args, *filters.StartTime)
		argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("triggered_at <= $%d", argN))
		args = append(args, *filters.EndTime)
		argN++
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	queryCount := `
		SELECT COUNT(*)
		FROM alerts
		` + whereClause
	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, alertColumns, whereClause, argN, argN+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}

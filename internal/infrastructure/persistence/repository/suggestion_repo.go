package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// SuggestionLogRepository implements port.SuggestionLogRepository
type SuggestionLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSuggestionLogRepository creates a new suggestion log repository
func NewSuggestionLogRepository(db *sql.DB, logger *zap.Logger) port.SuggestionLogRepository {
	return &SuggestionLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a suggestion log entry, assigning its ID
func (r *SuggestionLogRepository) Create(ctx context.Context, log *workflow.AutoSuggestionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}

	query := `
		INSERT INTO auto_suggestion_logs (
			id, instance_id, org_id, suggested_state, reason, strategy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.InstanceID,
		log.OrgID,
		log.SuggestedState,
		log.Reason,
		log.Strategy,
		log.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create suggestion log", zap.String("instance_id", log.InstanceID), zap.Error(err))
		return fmt.Errorf("failed to create suggestion log: %w", err)
	}
	return nil
}

// FindByInstanceID retrieves the suggestion logs of an instance, oldest first
func (r *SuggestionLogRepository) FindByInstanceID(ctx context.Context, instanceID string) ([]*workflow.AutoSuggestionLog, error) {
	query := `
		SELECT id, instance_id, org_id, suggested_state, reason, strategy, created_at
		FROM auto_suggestion_logs
		WHERE instance_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to get suggestion logs", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get suggestion logs: %w", err)
	}
	defer rows.Close()

	var logs []*workflow.AutoSuggestionLog
	for rows.Next() {
		var log workflow.AutoSuggestionLog
		err := rows.Scan(
			&log.ID,
			&log.InstanceID,
			&log.OrgID,
			&log.SuggestedState,
			&log.Reason,
			&log.Strategy,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion log: %w", err)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// Verify interface compliance
var _ port.SuggestionLogRepository = (*SuggestionLogRepository)(nil)

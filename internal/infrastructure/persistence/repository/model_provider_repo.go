package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/entity"
)

// ModelProviderRepository implements port.ModelProviderRepository
type ModelProviderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewModelProviderRepository creates a new model provider repository
func NewModelProviderRepository(db *sql.DB, logger *zap.Logger) port.ModelProviderRepository {
	return &ModelProviderRepository{
		db:     db,
		logger: logger,
	}
}

// FindDefault prefers the organization's default provider over the global one
func (r *ModelProviderRepository) FindDefault(ctx context.Context, orgID string) (*entity.ModelProvider, error) {
	query := `
		SELECT id, org_id, name, api_key, base_url, model, is_default, created_at, updated_at
		FROM model_providers
		WHERE is_default = 1 AND (org_id = ? OR org_id = '')
		ORDER BY CASE WHEN org_id = ? THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1
	`

	var p entity.ModelProvider
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, orgID, orgID).Scan(
		&p.ID,
		&p.OrgID,
		&p.Name,
		&p.APIKey,
		&p.BaseURL,
		&p.Model,
		&p.IsDefault,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get default model provider", zap.String("org_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("failed to get model provider: %w", err)
	}
	return &p, nil
}

// Save inserts or updates a provider, assigning an ID to new ones
func (r *ModelProviderRepository) Save(ctx context.Context, provider *entity.ModelProvider) error {
	now := time.Now()
	if provider.ID == "" {
		provider.ID = uuid.NewString()
	}
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now

	query := `
		INSERT INTO model_providers (
			id, org_id, name, api_key, base_url, model, is_default, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			api_key = excluded.api_key,
			base_url = excluded.base_url,
			model = excluded.model,
			is_default = excluded.is_default,
			updated_at = excluded.updated_at
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		provider.ID,
		provider.OrgID,
		provider.Name,
		provider.APIKey,
		provider.BaseURL,
		provider.Model,
		provider.IsDefault,
		provider.CreatedAt,
		provider.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save model provider", zap.String("name", provider.Name), zap.Error(err))
		return fmt.Errorf("failed to save model provider: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.ModelProviderRepository = (*ModelProviderRepository)(nil)

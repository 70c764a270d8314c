package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// CreateDefinitionInput carries the fields of a new workflow definition
type CreateDefinitionInput struct {
	OrgID       string                `json:"-"`
	Name        string                `json:"name" yaml:"name"`
	EntityType  string                `json:"entity_type" yaml:"entity_type"`
	Version     string                `json:"version,omitempty" yaml:"version,omitempty"`
	States      []workflow.State      `json:"states" yaml:"states"`
	Transitions []workflow.Transition `json:"transitions" yaml:"transitions"`
	Metadata    map[string]any        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Activate    bool                  `json:"activate,omitempty" yaml:"activate,omitempty"`
}

// DefinitionService manages workflow definitions
type DefinitionService interface {
	CreateDefinition(ctx context.Context, input CreateDefinitionInput) (*workflow.Definition, error)
	ActivateDefinition(ctx context.Context, id, orgID string) (*workflow.Definition, error)
	GetDefinition(ctx context.Context, id, orgID string) (*workflow.Definition, error)
	ListDefinitions(ctx context.Context, orgID, entityType string) ([]*workflow.Definition, error)

	// ImportYAML creates every definition of a `workflows:` document in one transaction
	ImportYAML(ctx context.Context, orgID string, r io.Reader) ([]*workflow.Definition, error)
}

type definitionServiceImpl struct {
	definitionRepo port.DefinitionRepository
	txManager      port.TransactionManager
	logger         Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	definitionRepo port.DefinitionRepository,
	txManager port.TransactionManager,
	logger Logger,
) DefinitionService {
	if logger == nil {
		logger = nopLogger{}
	}
	return &definitionServiceImpl{
		definitionRepo: definitionRepo,
		txManager:      txManager,
		logger:         logger,
	}
}

// CreateDefinition validates and stores a definition, activating it when requested
func (s *definitionServiceImpl) CreateDefinition(ctx context.Context, input CreateDefinitionInput) (*workflow.Definition, error) {
	def, err := buildDefinition(input)
	if err != nil {
		return nil, err
	}

	if err := s.definitionRepo.Save(ctx, def); err != nil {
		s.logger.Error("Failed to save definition", "error", err, "name", def.Name(), "org_id", def.OrgID())
		return nil, fmt.Errorf("save definition: %w", err)
	}

	s.logger.Info("Definition created",
		"id", def.ID(),
		"org_id", def.OrgID(),
		"name", def.Name(),
		"entity_type", def.EntityType(),
		"status", def.Status(),
	)
	return def, nil
}

// ActivateDefinition makes a definition startable
func (s *definitionServiceImpl) ActivateDefinition(ctx context.Context, id, orgID string) (*workflow.Definition, error) {
	def, err := s.GetDefinition(ctx, id, orgID)
	if err != nil {
		return nil, err
	}
	if def.IsActive() {
		return def, nil
	}

	if err := def.Activate(); err != nil {
		return nil, err
	}
	if err := s.definitionRepo.Save(ctx, def); err != nil {
		s.logger.Error("Failed to activate definition", "error", err, "id", id)
		return nil, fmt.Errorf("save definition: %w", err)
	}

	s.logger.Info("Definition activated", "id", id, "org_id", orgID)
	return def, nil
}

// GetDefinition returns ErrNotFound when the definition is absent from the organization
func (s *definitionServiceImpl) GetDefinition(ctx context.Context, id, orgID string) (*workflow.Definition, error) {
	def, err := s.definitionRepo.FindByID(ctx, id, orgID)
	if err != nil {
		return nil, fmt.Errorf("find definition %s: %w", id, err)
	}
	if def == nil {
		return nil, fmt.Errorf("definition %s: %w", id, ErrNotFound)
	}
	return def, nil
}

// ListDefinitions lists an organization's definitions
func (s *definitionServiceImpl) ListDefinitions(ctx context.Context, orgID, entityType string) ([]*workflow.Definition, error) {
	defs, err := s.definitionRepo.FindAll(ctx, orgID, entityType)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

type importDocument struct {
	Workflows []CreateDefinitionInput `yaml:"workflows"`
}

// ImportYAML implements DefinitionService
func (s *definitionServiceImpl) ImportYAML(ctx context.Context, orgID string, r io.Reader) ([]*workflow.Definition, error) {
	var doc importDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}
	if len(doc.Workflows) == 0 {
		return nil, fmt.Errorf("workflow document contains no workflows")
	}

	defs := make([]*workflow.Definition, 0, len(doc.Workflows))
	for i, input := range doc.Workflows {
		input.OrgID = orgID
		def, err := buildDefinition(input)
		if err != nil {
			return nil, fmt.Errorf("workflow %d (%s): %w", i+1, input.Name, err)
		}
		defs = append(defs, def)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, def := range defs {
			if err := s.definitionRepo.Save(txCtx, def); err != nil {
				return fmt.Errorf("save definition %s: %w", def.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to import definitions", "error", err, "org_id", orgID)
		return nil, err
	}

	s.logger.Info("Definitions imported", "org_id", orgID, "count", len(defs))
	return defs, nil
}

func buildDefinition(input CreateDefinitionInput) (*workflow.Definition, error) {
	def, err := workflow.NewDefinition(workflow.DefinitionParams{
		ID:          uuid.NewString(),
		OrgID:       input.OrgID,
		Name:        input.Name,
		EntityType:  input.EntityType,
		States:      input.States,
		Transitions: input.Transitions,
		Version:     input.Version,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if input.Activate {
		if err := def.Activate(); err != nil {
			return nil, err
		}
	}
	return def, nil
}

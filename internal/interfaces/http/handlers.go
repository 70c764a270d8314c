package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/application/service"
	appworkflow "github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	definitions service.DefinitionService
	instances   service.InstanceService
	engine      appworkflow.TransitionEngine
	logger      Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	definitions service.DefinitionService,
	instances service.InstanceService,
	engine appworkflow.TransitionEngine,
	logger Logger,
) *Handlers {
	return &Handlers{
		definitions: definitions,
		instances:   instances,
		engine:      engine,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TransitionRequest is the body of POST /instances/:id/transitions
type TransitionRequest struct {
	ToState string         `json:"to_state" binding:"required"`
	Entity  map[string]any `json:"entity"`
}

// CompleteRequest is the body of POST /instances/:id/complete
type CompleteRequest struct {
	FinalState string `json:"final_state" binding:"required"`
}

// ListInstancesQuery holds the filters of GET /instances
type ListInstancesQuery struct {
	DefinitionID string `form:"definition_id"`
	EntityType   string `form:"entity_type"`
	EntityID     string `form:"entity_id"`
	Status       string `form:"status"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateDefinition handles POST /api/v1/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var input service.CreateDefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	input.OrgID = orgID(c)

	def, err := h.definitions.CreateDefinition(c.Request.Context(), input)
	if err != nil {
		h.fail(c, "create_definition", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: def.Snapshot()})
}

// ListDefinitions handles GET /api/v1/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	defs, err := h.definitions.ListDefinitions(c.Request.Context(), orgID(c), c.Query("entity_type"))
	if err != nil {
		h.fail(c, "list_definitions", err)
		return
	}

	data := make([]workflow.DefinitionSnapshot, 0, len(defs))
	for _, def := range defs {
		data = append(data, def.Snapshot())
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// GetDefinition handles GET /api/v1/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	def, err := h.definitions.GetDefinition(c.Request.Context(), c.Param("id"), orgID(c))
	if err != nil {
		h.fail(c, "get_definition", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def.Snapshot()})
}

// ActivateDefinition handles POST /api/v1/definitions/:id/activate
func (h *Handlers) ActivateDefinition(c *gin.Context) {
	def, err := h.definitions.ActivateDefinition(c.Request.Context(), c.Param("id"), orgID(c))
	if err != nil {
		h.fail(c, "activate_definition", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def.Snapshot()})
}

// StartInstance handles POST /api/v1/instances
func (h *Handlers) StartInstance(c *gin.Context) {
	var input service.StartInstanceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if input.DefinitionID == "" {
		badRequest(c, "definition_id is required")
		return
	}
	input.OrgID = orgID(c)
	input.StartedBy = userID(c)

	inst, err := h.instances.StartInstance(c.Request.Context(), input)
	if err != nil {
		h.fail(c, "start_instance", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: inst.Snapshot()})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var q ListInstancesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	insts, err := h.instances.ListInstances(c.Request.Context(), orgID(c), port.InstanceFilter{
		DefinitionID: q.DefinitionID,
		EntityType:   q.EntityType,
		EntityID:     q.EntityID,
		Status:       workflow.InstanceStatus(q.Status),
	})
	if err != nil {
		h.fail(c, "list_instances", err)
		return
	}

	data := make([]workflow.InstanceSnapshot, 0, len(insts))
	for _, inst := range insts {
		data = append(data, inst.Snapshot())
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	inst, err := h.instances.GetInstance(c.Request.Context(), c.Param("id"), orgID(c))
	if err != nil {
		h.fail(c, "get_instance", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst.Snapshot()})
}

// ExecuteTransition handles POST /api/v1/instances/:id/transitions.
// A rejected transition answers 422 with the full result as data.
func (h *Handlers) ExecuteTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.ExecuteTransition(c.Request.Context(), appworkflow.TransitionRequest{
		InstanceID:  c.Param("id"),
		OrgID:       orgID(c),
		ToState:     req.ToState,
		TriggeredBy: userID(c),
		Entity:      req.Entity,
	})
	if err != nil {
		h.fail(c, "execute_transition", err)
		return
	}

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Data: result, Error: result.Error})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// CancelInstance handles POST /api/v1/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	inst, err := h.instances.CancelInstance(c.Request.Context(), c.Param("id"), orgID(c), userID(c))
	if err != nil {
		h.fail(c, "cancel_instance", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst.Snapshot()})
}

// CompleteInstance handles POST /api/v1/instances/:id/complete
func (h *Handlers) CompleteInstance(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	inst, err := h.instances.CompleteInstance(c.Request.Context(), c.Param("id"), orgID(c), req.FinalState, userID(c))
	if err != nil {
		h.fail(c, "complete_instance", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst.Snapshot()})
}

// History handles GET /api/v1/instances/:id/history
func (h *Handlers) History(c *gin.Context) {
	entries, err := h.instances.History(c.Request.Context(), c.Param("id"), orgID(c))
	if err != nil {
		h.fail(c, "history", err)
		return
	}
	if entries == nil {
		entries = []*workflow.HistoryEntry{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// Suggestions handles GET /api/v1/instances/:id/suggestions
func (h *Handlers) Suggestions(c *gin.Context) {
	logs, err := h.instances.Suggestions(c.Request.Context(), c.Param("id"), orgID(c))
	if err != nil {
		h.fail(c, "suggestions", err)
		return
	}
	if logs == nil {
		logs = []*workflow.AutoSuggestionLog{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: logs})
}

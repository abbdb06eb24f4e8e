package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/weftlabs/weft/cmd/orchestrator/compiler"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/logger"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
	"github.com/weftlabs/weft/common/validation"
)

// DefinitionStore is the persistence surface the workflow service needs.
// *repository.WorkflowRepository satisfies it.
type DefinitionStore interface {
	Create(ctx context.Context, def *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error)
	GetByIDForOrg(ctx context.Context, id uuid.UUID, orgID string) (*models.WorkflowDefinition, error)
	GetByIDForUser(ctx context.Context, id uuid.UUID, userID string, orgID *string) (*models.WorkflowDefinition, error)
	Update(ctx context.Context, def *models.WorkflowDefinition, expectedVersion int, now time.Time) (*models.WorkflowDefinition, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus, allowedFrom []models.WorkflowStatus, now time.Time) (*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.WorkflowDefinition, error)
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*models.WorkflowDefinition, error)
}

// WorkflowService handles definition lifecycle: create, update, patch,
// publish, archive, delete. Every mutation validates the resulting graph
// before it touches the store.
type WorkflowService struct {
	store   DefinitionStore
	patches *validation.PatchValidator
	clock   sdk.Clock
	newID   sdk.IDFunc
	log     *logger.Logger
}

// WorkflowServiceOpts configures the workflow service.
type WorkflowServiceOpts struct {
	Store  DefinitionStore
	Clock  sdk.Clock
	NewID  sdk.IDFunc
	Logger *logger.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(opts WorkflowServiceOpts) *WorkflowService {
	clock := opts.Clock
	if clock == nil {
		clock = sdk.SystemClock{}
	}
	newID := opts.NewID
	if newID == nil {
		newID = sdk.NewID
	}
	return &WorkflowService{
		store:   opts.Store,
		patches: validation.NewPatchValidator(),
		clock:   clock,
		newID:   newID,
		log:     opts.Logger,
	}
}

// CreateWorkflowRequest carries a new draft definition.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Tags        []string               `json:"tags"`
	Nodes       []models.Node          `json:"nodes"`
	Edges       []models.Edge          `json:"edges"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// UpdateWorkflowRequest replaces a draft definition's editable fields.
// ExpectedVersion guards against concurrent editors; zero means "whatever
// version I just read".
type UpdateWorkflowRequest struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Tags            []string               `json:"tags"`
	Nodes           []models.Node          `json:"nodes"`
	Edges           []models.Edge          `json:"edges"`
	InputSchema     map[string]interface{} `json:"inputSchema"`
	ExpectedVersion int                    `json:"expectedVersion"`
}

// workflowDocument is the patchable JSON view of a definition. Identity,
// status, and version are not patchable.
type workflowDocument struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Nodes       []models.Node          `json:"nodes"`
	Edges       []models.Edge          `json:"edges"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// CreateWorkflow validates and persists a new draft definition.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, owner models.Owner, req *CreateWorkflowRequest) (*models.WorkflowDefinition, error) {
	if req.Name == "" {
		return nil, apperr.New(apperr.KindValidation, "workflow name is required")
	}

	now := s.clock.Now()
	def := &models.WorkflowDefinition{
		ID:          s.newID(),
		UserID:      optional(owner.UserID),
		OrgID:       optional(owner.OrgID),
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowDraft,
		Version:     1,
		Tags:        req.Tags,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		InputSchema: req.InputSchema,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.validateDefinition(def); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	s.log.Info("workflow created",
		"workflow_id", def.ID,
		"name", def.Name,
		"nodes", len(def.Nodes),
		"edges", len(def.Edges))
	return def, nil
}

// GetWorkflow returns a definition the owner can see.
func (s *WorkflowService) GetWorkflow(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.WorkflowDefinition, error) {
	return s.getScoped(ctx, owner, id)
}

// ListWorkflows lists the owner's definitions, most recently updated first.
func (s *WorkflowService) ListWorkflows(ctx context.Context, owner models.Owner, limit int) ([]*models.WorkflowDefinition, error) {
	if limit <= 0 {
		limit = 50
	}
	switch {
	case owner.UserID != "":
		return s.store.ListByUser(ctx, owner.UserID, limit)
	case owner.OrgID != "":
		return s.store.ListByOrg(ctx, owner.OrgID, limit)
	default:
		return nil, apperr.New(apperr.KindValidation, "listing workflows requires an owner scope")
	}
}

// UpdateWorkflow replaces a draft definition's content and bumps its
// version. Published and archived definitions are immutable.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, owner models.Owner, id uuid.UUID, req *UpdateWorkflowRequest) (*models.WorkflowDefinition, error) {
	def, err := s.getScoped(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if def.Status != models.WorkflowDraft {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s is %s; only drafts can be updated", id, def.Status)
	}
	if req.Name == "" {
		return nil, apperr.New(apperr.KindValidation, "workflow name is required")
	}

	expected := req.ExpectedVersion
	if expected == 0 {
		expected = def.Version
	}

	updated := *def
	updated.Name = req.Name
	updated.Description = req.Description
	updated.Tags = req.Tags
	updated.Nodes = req.Nodes
	updated.Edges = req.Edges
	updated.InputSchema = req.InputSchema

	if err := s.validateDefinition(&updated); err != nil {
		return nil, err
	}

	saved, err := s.store.Update(ctx, &updated, expected, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}
	if saved == nil {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s was modified concurrently (expected version %d)", id, expected)
	}

	s.log.Info("workflow updated",
		"workflow_id", id,
		"version", saved.Version)
	return saved, nil
}

// PatchWorkflow applies an RFC 6902 patch to a draft definition's
// document view, validates the result, and bumps the version.
func (s *WorkflowService) PatchWorkflow(ctx context.Context, owner models.Owner, id uuid.UUID, operations []map[string]interface{}) (*models.WorkflowDefinition, error) {
	def, err := s.getScoped(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if def.Status != models.WorkflowDraft {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s is %s; only drafts can be patched", id, def.Status)
	}
	if len(operations) == 0 {
		return nil, apperr.New(apperr.KindValidation, "patch requires at least one operation")
	}

	// 1. Screen the operations before touching the document
	if err := s.patches.ValidateOperations(operations); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid patch", err)
	}

	// 2. Apply the patch to the editable document view
	doc := workflowDocument{
		Name:        def.Name,
		Description: def.Description,
		Tags:        def.Tags,
		Nodes:       def.Nodes,
		Edges:       def.Edges,
		InputSchema: def.InputSchema,
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow document: %w", err)
	}
	opsJSON, err := json.Marshal(operations)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "patch operations are not JSON-encodable", err)
	}
	patch, err := jsonpatch.DecodePatch(opsJSON)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid patch", err)
	}
	patchedJSON, err := patch.Apply(docJSON)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to apply patch", err)
	}
	var patched workflowDocument
	if err := json.Unmarshal(patchedJSON, &patched); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "patched workflow is not well-formed", err)
	}
	if patched.Name == "" {
		return nil, apperr.New(apperr.KindValidation, "patched workflow has no name")
	}

	// 3. The patched graph must still compile
	updated := *def
	updated.Name = patched.Name
	updated.Description = patched.Description
	updated.Tags = patched.Tags
	updated.Nodes = patched.Nodes
	updated.Edges = patched.Edges
	updated.InputSchema = patched.InputSchema
	if err := s.validateDefinition(&updated); err != nil {
		return nil, err
	}

	saved, err := s.store.Update(ctx, &updated, def.Version, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to save patched workflow: %w", err)
	}
	if saved == nil {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s was modified concurrently", id)
	}

	s.log.Info("workflow patched",
		"workflow_id", id,
		"operations", len(operations),
		"version", saved.Version)
	return saved, nil
}

// PublishWorkflow moves a draft to published. Published definitions can
// back runs but can no longer be edited in place.
func (s *WorkflowService) PublishWorkflow(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.WorkflowDefinition, error) {
	def, err := s.getScoped(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	published, err := s.store.UpdateStatus(ctx, id, models.WorkflowPublished,
		[]models.WorkflowStatus{models.WorkflowDraft}, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}
	if published == nil {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s is %s; only drafts can be published", id, def.Status)
	}

	s.log.Info("workflow published", "workflow_id", id, "version", published.Version)
	return published, nil
}

// ArchiveWorkflow retires a published definition. Existing runs keep
// their pinned version; new runs are rejected.
func (s *WorkflowService) ArchiveWorkflow(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.WorkflowDefinition, error) {
	def, err := s.getScoped(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	archived, err := s.store.UpdateStatus(ctx, id, models.WorkflowArchived,
		[]models.WorkflowStatus{models.WorkflowPublished}, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}
	if archived == nil {
		return nil, apperr.Newf(apperr.KindConflict, "workflow %s is %s; only published workflows can be archived", id, def.Status)
	}

	s.log.Info("workflow archived", "workflow_id", id)
	return archived, nil
}

// DeleteWorkflow removes a draft definition. Published and archived
// definitions are kept for run history.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, owner models.Owner, id uuid.UUID) error {
	if _, err := s.getScoped(ctx, owner, id); err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if !deleted {
		return apperr.Newf(apperr.KindConflict, "workflow %s is not a draft; archive it instead", id)
	}

	s.log.Info("workflow deleted", "workflow_id", id)
	return nil
}

// getScoped fetches a definition visible to the owner, mapping absence
// and cross-tenant misses to not-found.
func (s *WorkflowService) getScoped(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.WorkflowDefinition, error) {
	var (
		def *models.WorkflowDefinition
		err error
	)
	switch {
	case owner.UserID != "":
		def, err = s.store.GetByIDForUser(ctx, id, owner.UserID, optional(owner.OrgID))
	case owner.OrgID != "":
		def, err = s.store.GetByIDForOrg(ctx, id, owner.OrgID)
	default:
		def, err = s.store.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if def == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "workflow %s not found", id)
	}
	return def, nil
}

// validateDefinition runs the graph and input-schema checks shared by
// every definition mutation.
func (s *WorkflowService) validateDefinition(def *models.WorkflowDefinition) error {
	if _, err := compiler.Compile(def); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid workflow graph", err)
	}
	if _, err := compileInputSchema(def.InputSchema); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid input schema", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

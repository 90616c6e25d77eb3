package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// workflowRecord is the row shape of one workflow instance.
type workflowRecord struct {
	ID        string                                   `gorm:"type:uuid;primaryKey"`
	Status    string                                   `gorm:"type:varchar(20);not null;index"`
	Input     datatypes.JSONType[domain.WorkflowInput] `gorm:"type:jsonb;not null"`
	Steps     datatypes.JSONSlice[domain.StepResult]   `gorm:"type:jsonb;not null"`
	Output    datatypes.JSON                           `gorm:"type:jsonb"`
	Error     *string                                  `gorm:"type:text"`
	CreatedAt time.Time                                `gorm:"not null;index"`
	UpdatedAt time.Time                                `gorm:"not null"`
}

func (workflowRecord) TableName() string { return "workflow_instances" }

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a WorkflowStore backed by Postgres. Call
// Migrate once before first use.
func NewWorkflowRepository(db *gorm.DB) ports.WorkflowStore {
	return &workflowRepository{db: db}
}

// Migrate creates or updates the workflow_instances table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&workflowRecord{})
}

func (r *workflowRepository) Create(ctx context.Context, input domain.WorkflowInput) (*domain.WorkflowInstance, error) {
	wf := domain.NewWorkflow(input)
	// Postgres keeps microseconds; match what a later read returns.
	wf.CreatedAt = wf.CreatedAt.Truncate(time.Microsecond)
	wf.UpdatedAt = wf.CreatedAt

	rec := workflowRecord{
		ID:        wf.ID,
		Status:    string(wf.Status),
		Input:     datatypes.NewJSONType(wf.Input),
		Steps:     datatypes.JSONSlice[domain.StepResult]{},
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to insert workflow: %w", err)
	}
	return wf, nil
}

func (r *workflowRepository) Get(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	if !validID(id) {
		return nil, domain.ErrWorkflowNotFound
	}
	var rec workflowRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return rec.toDomain()
}

func (r *workflowRepository) List(ctx context.Context, filter ports.WorkflowFilter) ([]*domain.WorkflowInstance, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var recs []workflowRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	out := make([]*domain.WorkflowInstance, 0, len(recs))
	for i := range recs {
		wf, err := recs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (r *workflowRepository) UpdateStatus(ctx context.Context, id string, status domain.WorkflowStatus) error {
	return r.transition(ctx, id, status, map[string]any{})
}

// AppendStep locks the row so the read-modify-write of the steps array is
// not interleaved with another writer.
func (r *workflowRepository) AppendStep(ctx context.Context, id string, result domain.StepResult) error {
	if !validID(id) {
		return domain.ErrWorkflowNotFound
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec workflowRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&rec).Error
		if err != nil {
			return mapNotFound(err)
		}
		if domain.WorkflowStatus(rec.Status) != domain.WorkflowRunning {
			return fmt.Errorf("%w: cannot record step %s while %s", domain.ErrInvalidTransition, result.Step, rec.Status)
		}

		steps := append(rec.Steps, result)
		return tx.Model(&workflowRecord{}).Where("id = ?", id).Updates(map[string]any{
			"steps":      steps,
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

func (r *workflowRepository) Complete(ctx context.Context, id string, output *domain.WorkflowOutput) error {
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return r.transition(ctx, id, domain.WorkflowCompleted, map[string]any{"output": datatypes.JSON(raw)})
}

func (r *workflowRepository) Fail(ctx context.Context, id string, message string) error {
	return r.transition(ctx, id, domain.WorkflowFailed, map[string]any{"error": message})
}

// transition applies a status change guarded in the WHERE clause, so a
// terminal row can never be moved again.
func (r *workflowRepository) transition(ctx context.Context, id string, to domain.WorkflowStatus, fields map[string]any) error {
	if !validID(id) {
		return domain.ErrWorkflowNotFound
	}
	var from []string
	for _, s := range []domain.WorkflowStatus{domain.WorkflowPending, domain.WorkflowRunning, domain.WorkflowCompleted, domain.WorkflowFailed} {
		if domain.CanTransition(s, to) {
			from = append(from, string(s))
		}
	}

	fields["status"] = string(to)
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&workflowRecord{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update workflow %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current workflowRecord
	if err := r.db.WithContext(ctx).Select("status").Where("id = ?", id).First(&current).Error; err != nil {
		return mapNotFound(err)
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
}

func (rec *workflowRecord) toDomain() (*domain.WorkflowInstance, error) {
	wf := &domain.WorkflowInstance{
		ID:        rec.ID,
		Status:    domain.WorkflowStatus(rec.Status),
		Input:     rec.Input.Data(),
		Steps:     []domain.StepResult(rec.Steps),
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
	if wf.Steps == nil {
		wf.Steps = []domain.StepResult{}
	}
	if len(rec.Output) > 0 && string(rec.Output) != "null" {
		var out domain.WorkflowOutput
		if err := json.Unmarshal(rec.Output, &out); err != nil {
			return nil, fmt.Errorf("failed to decode output of %s: %w", rec.ID, err)
		}
		wf.Output = &out
	}
	return wf, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrWorkflowNotFound
	}
	return err
}

// validID keeps malformed ids away from the uuid column, where they would
// surface as a syntax error instead of a miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

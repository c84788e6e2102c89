package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/conductor-ai/conductor/types"
	"github.com/conductor-ai/conductor/workflow"
)

// WorkflowStore is the relational workflow.DefinitionStore.
type WorkflowStore struct {
	db *DB
}

var _ workflow.DefinitionStore = (*WorkflowStore)(nil)

func workflowToRow(def *workflow.Definition) (*workflowRow, error) {
	doc, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	return &workflowRow{
		ID:        def.ID,
		Name:      def.Name,
		IsDefault: def.IsDefault,
		Document:  doc,
		CreatedAt: def.CreatedAt,
		UpdatedAt: def.UpdatedAt,
	}, nil
}

func rowToWorkflow(row *workflowRow) (*workflow.Definition, error) {
	var def workflow.Definition
	if err := json.Unmarshal(row.Document, &def); err != nil {
		return nil, err
	}
	// Column values win over the stored document.
	def.IsDefault = row.IsDefault
	def.CreatedAt = row.CreatedAt
	def.UpdatedAt = row.UpdatedAt
	return &def, nil
}

func (s *WorkflowStore) Create(ctx context.Context, def *workflow.Definition) error {
	if err := workflow.Validate(def).Err(); err != nil {
		return err
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	row, err := workflowToRow(def)
	if err != nil {
		return err
	}
	return s.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&workflowRow{}).Where("id = ?", def.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return types.NewErrorf(types.ErrInvalidState, "workflow already exists: %s", def.ID)
		}
		if def.IsDefault {
			if err := tx.Model(&workflowRow{}).Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(row).Error
	})
}

func (s *WorkflowStore) Get(ctx context.Context, id string) (*workflow.Definition, error) {
	var row workflowRow
	err := s.db.gorm.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return rowToWorkflow(&row)
}

func (s *WorkflowStore) List(ctx context.Context) ([]*workflow.Definition, error) {
	var rows []workflowRow
	if err := s.db.gorm.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*workflow.Definition, 0, len(rows))
	for i := range rows {
		def, err := rowToWorkflow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *WorkflowStore) Update(ctx context.Context, def *workflow.Definition) error {
	if err := workflow.Validate(def).Err(); err != nil {
		return err
	}
	def.UpdatedAt = time.Now()
	row, err := workflowToRow(def)
	if err != nil {
		return err
	}
	return s.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing workflowRow
		err := tx.First(&existing, "id = ?", def.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("workflow", def.ID)
		}
		if err != nil {
			return err
		}
		row.CreatedAt = existing.CreatedAt
		if def.IsDefault && !existing.IsDefault {
			if err := tx.Model(&workflowRow{}).Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(row).Error
	})
}

func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	res := s.db.gorm.WithContext(ctx).Delete(&workflowRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NotFound("workflow", id)
	}
	return nil
}

func (s *WorkflowStore) GetDefault(ctx context.Context) (*workflow.Definition, error) {
	var row workflowRow
	err := s.db.gorm.WithContext(ctx).First(&row, "is_default = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("workflow", "default")
	}
	if err != nil {
		return nil, err
	}
	return rowToWorkflow(&row)
}

// SetDefault clears any previous default and marks the given workflow in one
// transaction; the single-default invariant spans rows.
func (s *WorkflowStore) SetDefault(ctx context.Context, id string) error {
	return s.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row workflowRow
		err := tx.First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("workflow", id)
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&workflowRow{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&workflowRow{}).Where("id = ?", id).
			Update("is_default", true).Error
	})
}

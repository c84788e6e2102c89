package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/conductor-ai/conductor/executor"
	"github.com/conductor-ai/conductor/types"
)

// ExecutionStore is the relational executor.Store. The node map travels as a
// JSON document; status and workflow id are columns for filtering.
type ExecutionStore struct {
	db *DB
}

var _ executor.Store = (*ExecutionStore)(nil)

func executionToRow(exec *executor.Execution) (*executionRow, error) {
	doc, err := json.Marshal(exec)
	if err != nil {
		return nil, err
	}
	return &executionRow{
		ID:          exec.ID,
		WorkflowID:  exec.WorkflowID,
		SessionID:   exec.SessionID,
		Status:      string(exec.Status),
		Iterations:  exec.Iterations,
		Error:       exec.Error,
		Document:    doc,
		CreatedAt:   exec.CreatedAt,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
	}, nil
}

func rowToExecution(row *executionRow) (*executor.Execution, error) {
	var exec executor.Execution
	if err := json.Unmarshal(row.Document, &exec); err != nil {
		return nil, err
	}
	if exec.Nodes == nil {
		exec.Nodes = make(map[string]*executor.NodeExecution)
	}
	return &exec, nil
}

func (s *ExecutionStore) Save(ctx context.Context, exec *executor.Execution) error {
	row, err := executionToRow(exec)
	if err != nil {
		return err
	}
	return s.db.gorm.WithContext(ctx).Create(row).Error
}

func (s *ExecutionStore) Get(ctx context.Context, id string) (*executor.Execution, error) {
	var row executionRow
	err := s.db.gorm.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	return rowToExecution(&row)
}

func (s *ExecutionStore) Update(ctx context.Context, exec *executor.Execution) error {
	row, err := executionToRow(exec)
	if err != nil {
		return err
	}
	res := s.db.gorm.WithContext(ctx).Save(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NotFound("execution", exec.ID)
	}
	return nil
}

func (s *ExecutionStore) List(ctx context.Context, workflowID string) ([]*executor.Execution, error) {
	q := s.db.gorm.WithContext(ctx).Model(&executionRow{}).Order("created_at")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	var rows []executionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*executor.Execution, 0, len(rows))
	for i := range rows {
		exec, err := rowToExecution(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *ExecutionStore) Delete(ctx context.Context, id string) error {
	res := s.db.gorm.WithContext(ctx).Delete(&executionRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NotFound("execution", id)
	}
	return nil
}

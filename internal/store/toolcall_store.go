package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/conductor-ai/conductor/toolcall"
	"github.com/conductor-ai/conductor/types"
)

// ToolCallStore is the relational toolcall.Store.
type ToolCallStore struct {
	db *DB
}

var _ toolcall.Store = (*ToolCallStore)(nil)

func toolCallToRow(tc *toolcall.ToolCall) *toolCallRow {
	return &toolCallRow{
		ID:              tc.ID,
		ExecutionID:     tc.ExecutionID,
		NodeExecutionID: tc.NodeExecutionID,
		ToolName:        tc.ToolName,
		Input:           tc.Input,
		Output:          tc.Output,
		Status:          string(tc.Status),
		ErrorMessage:    tc.ErrorMessage,
		StartedAt:       tc.StartedAt,
		CompletedAt:     tc.CompletedAt,
	}
}

func rowToToolCall(row *toolCallRow) *toolcall.ToolCall {
	return &toolcall.ToolCall{
		ID:              row.ID,
		ExecutionID:     row.ExecutionID,
		NodeExecutionID: row.NodeExecutionID,
		ToolName:        row.ToolName,
		Input:           row.Input,
		Output:          row.Output,
		Status:          toolcall.Status(row.Status),
		ErrorMessage:    row.ErrorMessage,
		StartedAt:       row.StartedAt,
		CompletedAt:     row.CompletedAt,
	}
}

func (s *ToolCallStore) Save(ctx context.Context, tc *toolcall.ToolCall) error {
	return s.db.gorm.WithContext(ctx).Create(toolCallToRow(tc)).Error
}

func (s *ToolCallStore) Get(ctx context.Context, id string) (*toolcall.ToolCall, error) {
	var row toolCallRow
	err := s.db.gorm.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("tool call", id)
	}
	if err != nil {
		return nil, err
	}
	return rowToToolCall(&row), nil
}

func (s *ToolCallStore) Update(ctx context.Context, tc *toolcall.ToolCall) error {
	res := s.db.gorm.WithContext(ctx).Save(toolCallToRow(tc))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NotFound("tool call", tc.ID)
	}
	return nil
}

func (s *ToolCallStore) List(ctx context.Context, filter toolcall.ListFilter) ([]*toolcall.ToolCall, error) {
	q := s.db.gorm.WithContext(ctx).Model(&toolCallRow{})
	if filter.ExecutionID != "" {
		q = q.Where("execution_id = ?", filter.ExecutionID)
	}
	if filter.NodeExecutionID != "" {
		q = q.Where("node_execution_id = ?", filter.NodeExecutionID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.NewestFirst {
		q = q.Order("started_at DESC")
	} else {
		q = q.Order("started_at ASC")
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []toolCallRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*toolcall.ToolCall, 0, len(rows))
	for i := range rows {
		out = append(out, rowToToolCall(&rows[i]))
	}
	return out, nil
}

func (s *ToolCallStore) DeleteByExecution(ctx context.Context, executionID string) error {
	return s.db.gorm.WithContext(ctx).
		Delete(&toolCallRow{}, "execution_id = ?", executionID).Error
}

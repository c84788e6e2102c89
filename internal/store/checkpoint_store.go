package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/types"
)

// CheckpointStore is the relational checkpoint.Store.
type CheckpointStore struct {
	db *DB
}

var _ checkpoint.Store = (*CheckpointStore)(nil)

func checkpointToRow(cp *checkpoint.Checkpoint) (*checkpointRow, error) {
	options, err := json.Marshal(cp.Options)
	if err != nil {
		return nil, err
	}
	return &checkpointRow{
		ID:              cp.ID,
		ExecutionID:     cp.ExecutionID,
		NodeExecutionID: cp.NodeExecutionID,
		CheckpointType:  string(cp.CheckpointType),
		PromptMessage:   cp.PromptMessage,
		Options:         options,
		Decision:        cp.Decision,
		Feedback:        cp.Feedback,
		CreatedAt:       cp.CreatedAt,
		DecidedAt:       cp.DecidedAt,
	}, nil
}

func rowToCheckpoint(row *checkpointRow) (*checkpoint.Checkpoint, error) {
	var options []string
	if len(row.Options) > 0 {
		if err := json.Unmarshal(row.Options, &options); err != nil {
			return nil, err
		}
	}
	return &checkpoint.Checkpoint{
		ID:              row.ID,
		ExecutionID:     row.ExecutionID,
		NodeExecutionID: row.NodeExecutionID,
		CheckpointType:  checkpoint.Type(row.CheckpointType),
		PromptMessage:   row.PromptMessage,
		Options:         options,
		Decision:        row.Decision,
		Feedback:        row.Feedback,
		CreatedAt:       row.CreatedAt,
		DecidedAt:       row.DecidedAt,
	}, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	row, err := checkpointToRow(cp)
	if err != nil {
		return err
	}
	return s.db.gorm.WithContext(ctx).Create(row).Error
}

func (s *CheckpointStore) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	var row checkpointRow
	err := s.db.gorm.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("checkpoint", id)
	}
	if err != nil {
		return nil, err
	}
	return rowToCheckpoint(&row)
}

func (s *CheckpointStore) Update(ctx context.Context, cp *checkpoint.Checkpoint) error {
	row, err := checkpointToRow(cp)
	if err != nil {
		return err
	}
	res := s.db.gorm.WithContext(ctx).Model(&checkpointRow{}).
		Where("id = ?", cp.ID).Updates(map[string]any{
		"decision":   row.Decision,
		"feedback":   row.Feedback,
		"decided_at": row.DecidedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NotFound("checkpoint", cp.ID)
	}
	return nil
}

// ListByExecution returns an execution's checkpoints newest first.
func (s *CheckpointStore) ListByExecution(ctx context.Context, executionID string) ([]*checkpoint.Checkpoint, error) {
	var rows []checkpointRow
	err := s.db.gorm.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*checkpoint.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rowToCheckpoint(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *CheckpointStore) DeleteByExecution(ctx context.Context, executionID string) error {
	return s.db.gorm.WithContext(ctx).
		Delete(&checkpointRow{}, "execution_id = ?", executionID).Error
}

package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/conductor-ai/conductor/review"
	"github.com/conductor-ai/conductor/types"
)

// PanelStore is the relational review.Store. Panels and their votes live in
// separate tables; votes are append-only rows keyed by the panel id.
type PanelStore struct {
	db *DB
}

var _ review.Store = (*PanelStore)(nil)

func panelToRow(p *review.PanelExecution) (*panelRow, error) {
	config, err := json.Marshal(p.Config)
	if err != nil {
		return nil, err
	}
	var summary []byte
	if p.Summary != nil {
		if summary, err = json.Marshal(p.Summary); err != nil {
			return nil, err
		}
	}
	return &panelRow{
		ID:              p.ID,
		ExecutionID:     p.ExecutionID,
		NodeExecutionID: p.NodeExecutionID,
		Status:          string(p.Status),
		Config:          config,
		Outcome:         string(p.Outcome),
		Summary:         summary,
		Error:           p.Error,
		CreatedAt:       p.CreatedAt,
		CompletedAt:     p.CompletedAt,
	}, nil
}

func voteToRow(v *review.ReviewerVote) (*voteRow, error) {
	var issues []byte
	if len(v.Issues) > 0 {
		var err error
		if issues, err = json.Marshal(v.Issues); err != nil {
			return nil, err
		}
	}
	return &voteRow{
		ID:               v.ID,
		PanelExecutionID: v.PanelExecutionID,
		ReviewerID:       v.ReviewerID,
		Vote:             string(v.Vote),
		Feedback:         v.Feedback,
		Issues:           issues,
		Weight:           v.Weight,
		CreatedAt:        v.CreatedAt,
	}, nil
}

func rowToPanel(row *panelRow, votes []voteRow) (*review.PanelExecution, error) {
	p := &review.PanelExecution{
		ID:              row.ID,
		ExecutionID:     row.ExecutionID,
		NodeExecutionID: row.NodeExecutionID,
		Status:          review.PanelStatus(row.Status),
		Outcome:         review.Outcome(row.Outcome),
		Error:           row.Error,
		CreatedAt:       row.CreatedAt,
		CompletedAt:     row.CompletedAt,
	}
	if err := json.Unmarshal(row.Config, &p.Config); err != nil {
		return nil, err
	}
	if len(row.Summary) > 0 {
		p.Summary = &review.VoteSummary{}
		if err := json.Unmarshal(row.Summary, p.Summary); err != nil {
			return nil, err
		}
	}
	for i := range votes {
		v := &review.ReviewerVote{
			ID:               votes[i].ID,
			PanelExecutionID: votes[i].PanelExecutionID,
			ReviewerID:       votes[i].ReviewerID,
			Vote:             review.VoteKind(votes[i].Vote),
			Feedback:         votes[i].Feedback,
			Weight:           votes[i].Weight,
			CreatedAt:        votes[i].CreatedAt,
		}
		if len(votes[i].Issues) > 0 {
			if err := json.Unmarshal(votes[i].Issues, &v.Issues); err != nil {
				return nil, err
			}
		}
		p.Votes = append(p.Votes, v)
	}
	return p, nil
}

func (s *PanelStore) Save(ctx context.Context, panel *review.PanelExecution) error {
	row, err := panelToRow(panel)
	if err != nil {
		return err
	}
	return s.db.gorm.WithContext(ctx).Create(row).Error
}

func (s *PanelStore) Get(ctx context.Context, id string) (*review.PanelExecution, error) {
	var row panelRow
	err := s.db.gorm.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("review panel", id)
	}
	if err != nil {
		return nil, err
	}
	votes, err := s.votesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return rowToPanel(&row, votes)
}

// Update writes the panel row and inserts any votes not yet persisted. Vote
// rows are append-only; existing ones are never rewritten.
func (s *PanelStore) Update(ctx context.Context, panel *review.PanelExecution) error {
	row, err := panelToRow(panel)
	if err != nil {
		return err
	}
	return s.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Save(row)
		if res.Error != nil {
			return res.Error
		}
		for _, vote := range panel.Votes {
			vr, err := voteToRow(vote)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(vr).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PanelStore) ListByExecution(ctx context.Context, executionID string) ([]*review.PanelExecution, error) {
	var rows []panelRow
	err := s.db.gorm.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*review.PanelExecution, 0, len(rows))
	for i := range rows {
		votes, err := s.votesFor(ctx, rows[i].ID)
		if err != nil {
			return nil, err
		}
		panel, err := rowToPanel(&rows[i], votes)
		if err != nil {
			return nil, err
		}
		out = append(out, panel)
	}
	return out, nil
}

func (s *PanelStore) DeleteByExecution(ctx context.Context, executionID string) error {
	return s.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&panelRow{}).Where("execution_id = ?", executionID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Delete(&voteRow{}, "panel_execution_id IN ?", ids).Error; err != nil {
			return err
		}
		return tx.Delete(&panelRow{}, "execution_id = ?", executionID).Error
	})
}

// votesFor loads a panel's votes in arrival order.
func (s *PanelStore) votesFor(ctx context.Context, panelID string) ([]voteRow, error) {
	var votes []voteRow
	err := s.db.gorm.WithContext(ctx).
		Where("panel_execution_id = ?", panelID).
		Order("created_at ASC").
		Find(&votes).Error
	return votes, err
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/id"
	"github.com/openbiome/stratagem/internal/jsonutil"
)

// UpsertStrategy writes a strategy and replaces its step rows in one
// transaction.
func (s *Store) UpsertStrategy(ctx context.Context, strategy *domain.Strategy) error {
	if strategy.ID == "" {
		strategy.ID = id.NewStrategy()
	}
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO strategies (id, name, description, site_id, record_type, wdk_id, wdk_url, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				site_id = EXCLUDED.site_id,
				record_type = EXCLUDED.record_type,
				wdk_id = EXCLUDED.wdk_id,
				wdk_url = EXCLUDED.wdk_url,
				updated_at = EXCLUDED.updated_at`

		_, err := s.conn(ctx).Exec(ctx, query,
			strategy.ID, strategy.Name, strategy.Description, strategy.SiteID,
			strategy.RecordType, strategy.WDKID, strategy.WDKURL, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upsert strategy: %w", err)
		}
		return s.replaceSteps(ctx, strategy.ID, strategy.Steps)
	})
}

func (s *Store) replaceSteps(ctx context.Context, strategyID string, steps []domain.Step) error {
	if _, err := s.conn(ctx).Exec(ctx, `DELETE FROM strategy_steps WHERE strategy_id = $1`, strategyID); err != nil {
		return fmt.Errorf("clear strategy steps: %w", err)
	}
	query := `
		INSERT INTO strategy_steps
			(strategy_id, step_id, position, kind, display_name, search_name, operator,
			 primary_input_step_id, secondary_input_step_id, parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i, step := range steps {
		var params any
		if step.Parameters != nil {
			params = jsonutil.MustJSON(step.Parameters)
		}
		_, err := s.conn(ctx).Exec(ctx, query,
			strategyID, step.ID, i, step.Kind, step.DisplayName, step.SearchName,
			step.Operator, step.PrimaryInputStepID, step.SecondaryInputStepID, params)
		if err != nil {
			return fmt.Errorf("insert strategy step: %w", err)
		}
	}
	return nil
}

func (s *Store) GetStrategy(ctx context.Context, strategyID string) (*domain.Strategy, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), site_id, COALESCE(record_type, ''),
			COALESCE(wdk_id, 0), COALESCE(wdk_url, '')
		FROM strategies
		WHERE id = $1 AND deleted_at IS NULL`

	strategy := &domain.Strategy{}
	err := s.conn(ctx).QueryRow(ctx, query, strategyID).Scan(
		&strategy.ID, &strategy.Name, &strategy.Description, &strategy.SiteID,
		&strategy.RecordType, &strategy.WDKID, &strategy.WDKURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy: %w", err)
	}

	steps, err := s.listSteps(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	strategy.Steps = steps
	return strategy, nil
}

func (s *Store) listSteps(ctx context.Context, strategyID string) ([]domain.Step, error) {
	query := `
		SELECT step_id, kind, display_name, COALESCE(search_name, ''), COALESCE(operator, ''),
			COALESCE(primary_input_step_id, ''), COALESCE(secondary_input_step_id, ''),
			COALESCE(parameters::text, '')
		FROM strategy_steps
		WHERE strategy_id = $1
		ORDER BY position ASC`

	rows, err := s.conn(ctx).Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("list strategy steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		var step domain.Step
		var params string
		if err := rows.Scan(
			&step.ID, &step.Kind, &step.DisplayName, &step.SearchName, &step.Operator,
			&step.PrimaryInputStepID, &step.SecondaryInputStepID, &params); err != nil {
			return nil, fmt.Errorf("scan strategy step: %w", err)
		}
		if params != "" {
			step.Parameters = jsonutil.ParseJSON(params)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *Store) ListStrategies(ctx context.Context, siteID string, limit, offset int) ([]domain.StrategySummary, error) {
	query := `
		SELECT id, name, site_id, COALESCE(record_type, '')
		FROM strategies
		WHERE site_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.conn(ctx).Query(ctx, query, siteID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var summaries []domain.StrategySummary
	for rows.Next() {
		var summary domain.StrategySummary
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.SiteID, &summary.RecordType); err != nil {
			return nil, fmt.Errorf("scan strategy summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *Store) SetStrategyWDKLink(ctx context.Context, strategyID string, wdkID int64, wdkURL string) error {
	query := `
		UPDATE strategies
		SET wdk_id = $2, wdk_url = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.conn(ctx).Exec(ctx, query, strategyID, wdkID, wdkURL)
	if err != nil {
		return fmt.Errorf("set strategy wdk link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteStrategy(ctx context.Context, strategyID string) error {
	query := `UPDATE strategies SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := s.conn(ctx).Exec(ctx, query, strategyID)
	if err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

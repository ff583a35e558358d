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

func (s *Store) UpsertOptimizationRun(ctx context.Context, run *domain.OptimizationRun) error {
	if run.ID == "" {
		run.ID = id.NewRun()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	query := `
		INSERT INTO optimization_runs (id, conversation_id, strategy_id, status, best_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			best_score = EXCLUDED.best_score,
			updated_at = EXCLUDED.updated_at`

	_, err := s.conn(ctx).Exec(ctx, query,
		run.ID, run.ConversationID, run.StrategyID, run.Status, run.BestScore, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert optimization run: %w", err)
	}
	return nil
}

func (s *Store) GetOptimizationRun(ctx context.Context, runID string) (*domain.OptimizationRun, error) {
	query := `
		SELECT id, COALESCE(conversation_id, ''), COALESCE(strategy_id, ''), status, best_score, created_at, updated_at
		FROM optimization_runs
		WHERE id = $1`

	run := &domain.OptimizationRun{}
	err := s.conn(ctx).QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.ConversationID, &run.StrategyID, &run.Status,
		&run.BestScore, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get optimization run: %w", err)
	}
	return run, nil
}

func (s *Store) ListOptimizationRuns(ctx context.Context, limit, offset int) ([]*domain.OptimizationRun, error) {
	query := `
		SELECT id, COALESCE(conversation_id, ''), COALESCE(strategy_id, ''), status, best_score, created_at, updated_at
		FROM optimization_runs
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list optimization runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.OptimizationRun
	for rows.Next() {
		run := &domain.OptimizationRun{}
		if err := rows.Scan(
			&run.ID, &run.ConversationID, &run.StrategyID, &run.Status,
			&run.BestScore, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan optimization run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpsertTrials merges a progress batch into a run's trial rows. A
// repeated trial number takes the newer values.
func (s *Store) UpsertTrials(ctx context.Context, runID string, trials []domain.OptimizationTrial) error {
	query := `
		INSERT INTO optimization_trials
			(run_id, trial_number, score, recall, false_positive_rate, result_count, parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, trial_number) DO UPDATE SET
			score = EXCLUDED.score,
			recall = EXCLUDED.recall,
			false_positive_rate = EXCLUDED.false_positive_rate,
			result_count = EXCLUDED.result_count,
			parameters = EXCLUDED.parameters`

	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, trial := range trials {
			var params any
			if trial.Parameters != nil {
				params = jsonutil.MustJSON(trial.Parameters)
			}
			_, err := s.conn(ctx).Exec(ctx, query,
				runID, trial.Number, trial.Score, trial.Recall,
				trial.FalsePositiveRate, trial.ResultCount, params)
			if err != nil {
				return fmt.Errorf("upsert optimization trial: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) ListTrials(ctx context.Context, runID string) ([]domain.OptimizationTrial, error) {
	query := `
		SELECT trial_number, score, COALESCE(recall, 0), COALESCE(false_positive_rate, 0),
			COALESCE(result_count, 0), COALESCE(parameters::text, '')
		FROM optimization_trials
		WHERE run_id = $1
		ORDER BY trial_number ASC`

	rows, err := s.conn(ctx).Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list optimization trials: %w", err)
	}
	defer rows.Close()

	var trials []domain.OptimizationTrial
	for rows.Next() {
		var trial domain.OptimizationTrial
		var params string
		if err := rows.Scan(
			&trial.Number, &trial.Score, &trial.Recall, &trial.FalsePositiveRate,
			&trial.ResultCount, &params); err != nil {
			return nil, fmt.Errorf("scan optimization trial: %w", err)
		}
		if params != "" {
			trial.Parameters = jsonutil.ParseJSON(params)
		}
		trials = append(trials, trial)
	}
	return trials, rows.Err()
}

package reconcile

import (
	"sort"

	"github.com/openbiome/stratagem/internal/domain"
)

// normalizeProgress parses an optimization_progress payload and
// merges its trials with the turn's previously seen trials: keyed by
// trial number, later payload wins, sorted ascending. When the merge
// yields nothing the raw incoming list is used as-is.
func normalizeProgress(data map[string]any, prev *domain.OptimizationProgress) *domain.OptimizationProgress {
	out := &domain.OptimizationProgress{
		RunID:  stringField(data, "runId", "run_id"),
		Status: stringField(data, "status"),
	}
	if best, ok := floatField(data, "bestScore", "best_score"); ok {
		out.BestScore = best
	} else if prev != nil {
		out.BestScore = prev.BestScore
	}
	if out.RunID == "" && prev != nil {
		out.RunID = prev.RunID
	}
	if out.Status == "" && prev != nil {
		out.Status = prev.Status
	}

	incoming := parseTrials(sliceField(data, "trials"))
	var prior []domain.OptimizationTrial
	if prev != nil {
		prior = prev.Trials
	}
	merged := mergeTrials(prior, incoming)
	if len(merged) == 0 {
		merged = incoming
	}
	out.Trials = merged
	return out
}

func parseTrials(raw []any) []domain.OptimizationTrial {
	if len(raw) == 0 {
		return nil
	}
	trials := make([]domain.OptimizationTrial, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		number, ok := intField(m, "trialNumber", "trial_number", "number", "trial")
		if !ok {
			continue
		}
		t := domain.OptimizationTrial{Number: int(number)}
		if score, ok := floatField(m, "score"); ok {
			t.Score = score
		}
		if recall, ok := floatField(m, "recall"); ok {
			t.Recall = recall
		}
		if fpr, ok := floatField(m, "falsePositiveRate", "false_positive_rate"); ok {
			t.FalsePositiveRate = fpr
		}
		if count, ok := intField(m, "resultCount", "result_count"); ok {
			t.ResultCount = count
		}
		if params := mapField(m, "parameters", "params"); params != nil {
			t.Parameters = params
		}
		trials = append(trials, t)
	}
	return trials
}

func mergeTrials(prior, incoming []domain.OptimizationTrial) []domain.OptimizationTrial {
	if len(prior) == 0 && len(incoming) == 0 {
		return nil
	}
	byNumber := make(map[int]domain.OptimizationTrial, len(prior)+len(incoming))
	for _, t := range prior {
		byNumber[t.Number] = t
	}
	for _, t := range incoming {
		byNumber[t.Number] = t
	}
	merged := make([]domain.OptimizationTrial, 0, len(byNumber))
	for _, t := range byNumber {
		merged = append(merged, t)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Number < merged[j].Number })
	return merged
}

package reconcile

import (
	"context"

	"github.com/openbiome/stratagem/internal/domain"
)

// resolveTarget picks the strategy id an event applies to and
// enforces turn pinning: when the turn started on a specific
// strategy, events for any other strategy are dropped.
func (c *Context) resolveTarget(explicit string) (string, bool) {
	target := explicit
	if target == "" {
		target = c.StartStrategyID
	}
	if target == "" {
		return "", false
	}
	if c.StartStrategyID != "" && target != c.StartStrategyID {
		return "", false
	}
	return target, true
}

func handleStrategyUpdate(c *Context, data map[string]any) {
	step := mapField(data, "step")
	explicit := stringField(data, "strategyId", "graphId")
	if explicit == "" && step != nil {
		explicit = stringField(step, "graphId", "strategyId")
	}
	target, ok := c.resolveTarget(explicit)
	if !ok {
		return
	}

	if !c.Session.HasUndo() && c.Strategy.SnapshotStrategy != nil {
		c.Session.CaptureUndo(c.Strategy.SnapshotStrategy(target))
	}

	if step != nil {
		name := stringField(step, "strategyName", "graphName")
		description := stringField(step, "strategyDescription")
		recordType := stringField(step, "recordType", "record_type")
		if (name != "" || description != "" || recordType != "") && c.Strategy.SetStrategyMeta != nil {
			c.Strategy.SetStrategyMeta(domain.StrategyMeta{
				ID:          target,
				Name:        name,
				Description: description,
				RecordType:  recordType,
			})
		}

		if c.Strategy.AddStep != nil {
			c.Strategy.AddStep(target, stepFromPayload(step))
			c.Session.MarkUndoApplied()
		}
	}
}

func handleGraphSnapshot(c *Context, data map[string]any) {
	snapshot := mapField(data, "snapshot")
	if snapshot == nil {
		return
	}
	if c.Strategy.ApplyGraphSnapshot != nil {
		c.Strategy.ApplyGraphSnapshot(snapshot)
	}
}

func handleStrategyLink(c *Context, data map[string]any) {
	explicit := stringField(data, "strategyId", "snapshotStrategyId")
	target, ok := c.resolveTarget(explicit)
	if !ok {
		return
	}

	wdkID, hasWDK := intField(data, "wdkStrategyId", "wdkId")
	url := stringField(data, "url", "wdkUrl")
	name := stringField(data, "name")
	description := stringField(data, "description")

	if hasWDK && c.Strategy.SetWDKLink != nil {
		c.Strategy.SetWDKLink(wdkID, url, name, description)
	}
	if (name != "" || description != "") && c.Strategy.SetStrategyMeta != nil {
		c.Strategy.SetStrategyMeta(domain.StrategyMeta{
			ID:          target,
			Name:        name,
			Description: description,
		})
	}

	if c.CurrentStrategy != nil {
		executed := c.CurrentStrategy.Clone()
		if name != "" {
			executed.Name = name
		}
		if description != "" {
			executed.Description = description
		}
		if hasWDK {
			executed.WDKID = wdkID
			executed.WDKURL = url
		}
		if c.Strategy.AddExecutedStrategy != nil {
			c.Strategy.AddExecutedStrategy(executed)
		}
		return
	}

	// No strategy in hand: fetch it detached and register on
	// arrival. Best effort, a failed fetch is dropped.
	if c.Strategy.GetStrategy == nil || c.Strategy.AddExecutedStrategy == nil {
		return
	}
	fetch := c.Strategy.GetStrategy
	register := c.Strategy.AddExecutedStrategy
	c.spawnBestEffort(func() {
		s, err := fetch(context.Background(), target)
		if err != nil || s == nil {
			return
		}
		if hasWDK {
			s.WDKID = wdkID
			s.WDKURL = url
		}
		register(s)
	})
}

func handleStrategyMeta(c *Context, data map[string]any) {
	target, ok := c.resolveTarget(stringField(data, "strategyId", "graphId"))
	if !ok {
		return
	}
	name := stringField(data, "name")
	if name == "" {
		name = stringField(data, "graphName")
	}
	if c.Strategy.SetStrategyMeta != nil {
		c.Strategy.SetStrategyMeta(domain.StrategyMeta{
			ID:          target,
			Name:        name,
			Description: stringField(data, "description"),
			RecordType:  stringField(data, "recordType", "record_type"),
		})
	}
}

func handleStrategyCleared(c *Context, data map[string]any) {
	target, ok := c.resolveTarget(stringField(data, "strategyId", "graphId"))
	if !ok {
		return
	}
	if c.Strategy.ClearStrategy != nil {
		c.Strategy.ClearStrategy(target)
	}
}

func strategyFromPayload(m map[string]any) *domain.Strategy {
	s := &domain.Strategy{
		ID:          stringField(m, "id", "strategyId"),
		Name:        stringField(m, "name"),
		Description: stringField(m, "description"),
		SiteID:      stringField(m, "siteId", "site_id"),
		RecordType:  stringField(m, "recordType", "record_type"),
	}
	if wdkID, ok := intField(m, "wdkStrategyId", "wdkId"); ok {
		s.WDKID = wdkID
	}
	s.WDKURL = stringField(m, "wdkUrl", "url")
	for _, item := range sliceField(m, "steps") {
		if stepMap, ok := item.(map[string]any); ok {
			s.Steps = append(s.Steps, stepFromPayload(stepMap))
		}
	}
	return s
}

func stepFromPayload(m map[string]any) domain.Step {
	kind := stringField(m, "kind", "type")
	display := stringField(m, "displayName", "name")
	if display == "" {
		display = kind
	}
	if display == "" {
		display = "Unnamed step"
	}
	if kind == "" {
		kind = domain.StepKindSearch
	}
	return domain.Step{
		ID:                   stringField(m, "id", "stepId"),
		Kind:                 kind,
		DisplayName:          display,
		SearchName:           stringField(m, "searchName", "search_name"),
		Operator:             stringField(m, "operator"),
		PrimaryInputStepID:   stringField(m, "primaryInputStepId", "primaryInput"),
		SecondaryInputStepID: stringField(m, "secondaryInputStepId", "secondaryInput"),
		Parameters:           mapField(m, "parameters", "params"),
	}
}

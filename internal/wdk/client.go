// Package wdk talks to the external WDK strategy service.
package wdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openbiome/stratagem/internal/domain"
	"github.com/openbiome/stratagem/internal/httpclient"
	"github.com/openbiome/stratagem/internal/metrics"
	"github.com/openbiome/stratagem/internal/telemetry"
)

type Client struct {
	baseURL string
	siteID  string
	client  *http.Client
}

func NewClient(baseURL, siteID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		siteID:  siteID,
		client:  httpclient.New(),
	}
}

// StrategyURL returns the browser-facing URL for an exported strategy.
func (c *Client) StrategyURL(wdkID int64) string {
	return fmt.Sprintf("%s/workspace/strategies/%d", c.baseURL, wdkID)
}

type strategyResponse struct {
	StrategyID  int64  `json:"strategyId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	RecordType  string `json:"recordClassName"`
	Steps       map[string]struct {
		ID             int64          `json:"id"`
		DisplayName    string         `json:"customName"`
		SearchName     string         `json:"searchName"`
		SearchConfig   map[string]any `json:"searchConfig"`
		PrimaryInput   int64          `json:"primaryInputStepId"`
		SecondaryInput int64          `json:"secondaryInputStepId"`
	} `json:"steps"`
}

// GetStrategy fetches an exported strategy by its WDK-side numeric ID.
func (c *Client) GetStrategy(ctx context.Context, wdkID int64) (*domain.Strategy, error) {
	url := fmt.Sprintf("%s/service/users/current/strategies/%d", c.baseURL, wdkID)

	ctx, span := telemetry.Tracer("stratagem-wdk").Start(ctx, "wdk.get_strategy",
		trace.WithAttributes(
			attribute.Int64("wdk.strategy_id", wdkID),
			attribute.String("wdk.site_id", c.siteID),
		))
	defer span.End()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create request failed")
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.WDKRequestsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send request failed")
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	metrics.WDKRequestDuration.Observe(time.Since(start).Seconds())
	metrics.WDKRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("wdk error (status %d): %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, "wdk service error")
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response failed")
		return nil, fmt.Errorf("read response: %w", err)
	}

	var sr strategyResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		slog.Error("wdk: failed to parse strategy response", "error", err, "strategy_id", wdkID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse response failed")
		return nil, fmt.Errorf("parse response: %w", err)
	}

	strategy := c.toStrategy(&sr)
	slog.Debug("wdk: fetched strategy", "strategy_id", wdkID, "steps", len(strategy.Steps))
	return strategy, nil
}

func (c *Client) toStrategy(sr *strategyResponse) *domain.Strategy {
	strategy := &domain.Strategy{
		Name:        sr.Name,
		Description: sr.Description,
		SiteID:      c.siteID,
		RecordType:  sr.RecordType,
		WDKID:       sr.StrategyID,
		WDKURL:      c.StrategyURL(sr.StrategyID),
	}
	for stepID, s := range sr.Steps {
		kind := domain.StepKindSearch
		if s.SecondaryInput != 0 {
			kind = domain.StepKindCombine
		} else if s.PrimaryInput != 0 {
			kind = domain.StepKindTransform
		}
		step := domain.Step{
			ID:          stepID,
			Kind:        kind,
			DisplayName: s.DisplayName,
			SearchName:  s.SearchName,
			Parameters:  s.SearchConfig,
		}
		if s.PrimaryInput != 0 {
			step.PrimaryInputStepID = strconv.FormatInt(s.PrimaryInput, 10)
		}
		if s.SecondaryInput != 0 {
			step.SecondaryInputStepID = strconv.FormatInt(s.SecondaryInput, 10)
		}
		strategy.Steps = append(strategy.Steps, step)
	}
	return strategy
}

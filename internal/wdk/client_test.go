package wdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openbiome/stratagem/internal/domain"
)

func TestGetStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/service/users/current/strategies/4821" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"strategyId": 4821,
			"name": "Kinases under selection",
			"recordClassName": "transcript",
			"steps": {
				"a": {"id": 1, "customName": "Genes by GO term", "searchName": "GenesByGoTerm",
					"searchConfig": {"go_term": "GO:0004672"}},
				"b": {"id": 2, "customName": "Intersect", "primaryInputStepId": 1, "secondaryInputStepId": 3}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "PlasmoDB")
	strategy, err := c.GetStrategy(context.Background(), 4821)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strategy.Name != "Kinases under selection" {
		t.Errorf("unexpected name: %s", strategy.Name)
	}
	if strategy.WDKID != 4821 {
		t.Errorf("unexpected wdk id: %d", strategy.WDKID)
	}
	if strategy.WDKURL != srv.URL+"/workspace/strategies/4821" {
		t.Errorf("unexpected wdk url: %s", strategy.WDKURL)
	}
	if len(strategy.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(strategy.Steps))
	}

	kinds := map[string]string{}
	for _, s := range strategy.Steps {
		kinds[s.ID] = s.Kind
	}
	if kinds["a"] != domain.StepKindSearch {
		t.Errorf("step a: expected search kind, got %s", kinds["a"])
	}
	if kinds["b"] != domain.StepKindCombine {
		t.Errorf("step b: expected combine kind, got %s", kinds["b"])
	}
}

func TestGetStrategyNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "PlasmoDB")
	_, err := c.GetStrategy(context.Background(), 999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetStrategyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "PlasmoDB")
	_, err := c.GetStrategy(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStrategyURL(t *testing.T) {
	c := NewClient("https://plasmodb.org/plasmo/", "PlasmoDB")
	got := c.StrategyURL(77)
	want := "https://plasmodb.org/plasmo/workspace/strategies/77"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

// Package server exposes the HTTP and websocket surface: REST for
// reads and conversation management, websocket for the live event
// stream between browsers, the planning agent, and the executor.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openbiome/stratagem/internal/config"
	"github.com/openbiome/stratagem/internal/services"
	"github.com/openbiome/stratagem/internal/store"
)

const ReadTimeout = 30 * time.Second

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
	hub    *Hub
	store  *store.Store
}

func NewServer(cfg *config.Config, s *store.Store, coordinator *services.TurnCoordinator, hub *Hub) *Server {
	router := chi.NewRouter()

	router.Use(Recovery)
	router.Use(Logger)
	router.Use(CORS(cfg.Server.AllowedOrigins))

	dbPing := func(ctx context.Context) error { return s.Pool().Ping(ctx) }
	router.Get("/health", readiness(dbPing))
	router.Get("/health/ready", readiness(dbPing))
	router.Get("/health/live", liveness)
	router.Handle("/metrics", promhttp.Handler())

	wsHandler := NewWSHandler(hub, cfg, s, coordinator)
	router.Get("/api/v1/ws", wsHandler.ServeHTTP)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthWithConfig(AuthConfig{RequireAuth: cfg.Server.RequireAuth}))

		convH := NewConversationHandler(s, coordinator, cfg.WDK.SiteID)
		r.Post("/conversations", convH.Create)
		r.Get("/conversations", convH.List)
		r.Get("/conversations/{id}", convH.Get)
		r.Patch("/conversations/{id}", convH.Update)
		r.Delete("/conversations/{id}", convH.Delete)
		r.Get("/conversations/{id}/messages", convH.Messages)
		r.Get("/conversations/{id}/transcript", convH.Transcript)
		r.Get("/conversations/{id}/strategy", convH.Strategy)

		stratH := NewStrategyHandler(s, cfg.WDK.SiteID)
		r.Get("/strategies", stratH.List)
		r.Get("/strategies/{id}", stratH.Get)
		r.Delete("/strategies/{id}", stratH.Delete)

		optH := NewOptimizationHandler(s)
		r.Get("/optimizations", optH.List)
		r.Get("/optimizations/{id}", optH.Get)
	})

	return &Server{
		cfg:    cfg,
		router: router,
		hub:    hub,
		store:  s,
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: 0,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

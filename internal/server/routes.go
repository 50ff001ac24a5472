package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/swaggest/swgui/v5emb"

	"github.com/reelparty/reelroom/internal/claims"
	"github.com/reelparty/reelroom/internal/room"
)

func AddRoutes(r chi.Router, logger *slog.Logger, rdb *redis.Client, repo *room.Repository, reg *claims.Registry, ttl time.Duration) {
	hub := NewHub()

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("ReelRoom API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, rdb))

	r.Get("/ws", handleWS(wsDeps{
		logger: logger,
		repo:   repo,
		claims: reg,
		hub:    hub,
		ttl:    ttl,
	}))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", handleOpenRoom(logger, repo, randomCodes{}, ttl))
		r.Delete("/{code}", handleCloseRoom(logger, repo, hub))
		r.Post("/{code}/claims", handleRoomClaims(logger, repo, reg))
	})
}

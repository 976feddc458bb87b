/*
Package handler provides the HTTP handlers and routing setup for the
communication hub.

This file defines the main Router, applying middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers
(API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"commhub/internal/pkg/auth/jwt"
	"commhub/internal/pkg/limiter"
	"commhub/internal/pkg/logx"
	"commhub/internal/pkg/resp"
)

const (
	CreateRate  = 0.05
	CreateBurst = 2
	JoinRate    = 0.2
	JoinBurst   = 5
)

// Router sets up the main HTTP routing table (chi.Router) for the service.
// It initializes IP-based rate limiters, configures CORS, and applies global
// and per-route middleware before mounting the API and websocket endpoints.
func Router(deps *AppDeps) http.Handler {
	createLimiter := limiter.NewIPRateLimiter(rate.Limit(CreateRate), CreateBurst)
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":      "ok",
			"service":     "Communication Hub",
			"onlineUsers": deps.Registry.OnlineUsers(),
			"connections": deps.Table.Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/chats", func(chats chi.Router) {
			rateLimitedCreate := createLimiter.Middleware(HandleCreateChat(deps))
			chats.Post("/", http.HandlerFunc(rateLimitedCreate.ServeHTTP))
			chats.Get("/", HandleListChats(deps))
			chats.Get("/user/{userID}", HandleChatsForUser(deps))
			chats.Get("/{chatID}", HandleGetChat(deps))

			chats.Put("/{chatID}/messages", HandleAddMessage(deps))
			chats.Patch("/{chatID}/messages/{messageID}/status", HandleUpdateMessageStatus(deps))

			chats.Post("/{chatID}/participants", HandleAddParticipant(deps))
			chats.Delete("/{chatID}/participants/{userID}", HandleRemoveParticipant(deps))
		})

		api.Post("/notifications", HandleSendNotification(deps))

		api.Post("/files/presign-upload", HandlePresignUpload(deps))
		api.Get("/files/presign-download", HandlePresignDownload(deps))
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, joinLimiter, deps))

	return r
}

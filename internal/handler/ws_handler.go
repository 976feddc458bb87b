/*
Package handler provides the HTTP handlers and routing setup for the
communication hub.

This file contains the websocket upgrade handler: it rate-limits and
authenticates the request, upgrades the connection, assigns the physical
connection ID, and hands the session to the hub's lifecycle path.
*/
package handler

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"commhub/internal/app/hub"
	"commhub/internal/app/ws"
	"commhub/internal/pkg/auth/jwt"
	"commhub/internal/pkg/errs"
	"commhub/internal/pkg/limiter"
	"commhub/internal/pkg/logx"
	"commhub/internal/pkg/resp"
)

// wsIdentity resolves the session identity for an upgrade request. The
// upgrade route sits outside the API middleware chain, so the bearer token
// is parsed here directly; browsers cannot set headers on websocket
// requests, so a "token" query parameter is accepted as well.
func wsIdentity(r *http.Request, secret string) *jwt.Payload {
	token := ""

	authHeader := r.Header.Get("Authorization")
	if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		token = parts[1]
	}

	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil
	}

	payload, err := jwt.ParseToken(token, secret)
	if err != nil {
		logx.Warn("Websocket upgrade with invalid token", "error", err)
		return nil
	}
	return payload
}

// HandleWebSocket creates the HandlerFunc processing websocket connection
// requests. Identity is checked before the upgrade; the membership preload
// inside Hub.Connect can still refuse the session afterwards, in which case
// the socket is closed with a policy-violation frame.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("Websocket connection rejected: rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		identity := wsIdentity(r, deps.Config.JWTSecret)
		if identity == nil || identity.UserID == "" {
			logx.Warn("Websocket connection rejected: missing user identity.")
			resp.RespondError(w, r, errs.NewError(errs.ErrIdentityMissing))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to websocket")
			return
		}

		connID := uuid.NewString()
		client := ws.NewClient(connID, identity.UserID, conn)

		deps.Table.Add(client)
		go client.WritePump()

		if connErr := deps.Hub.Connect(r.Context(), connID, hub.Identity{
			UserID:      identity.UserID,
			DisplayName: identity.Name,
			Language:    identity.Language,
		}); connErr != nil {
			deps.Table.Remove(connID)

			closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, connErr.Message)
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
				logx.Warn("Failed to send refusal close frame.", "conn_id", connID)
			}
			client.CloseSend()
			conn.Close()
			return
		}

		logx.Info("Websocket connection established",
			"conn_id", connID,
			"user_id", identity.UserID,
		)

		client.ReadPump(func() {
			deps.Hub.Disconnect(connID)
			deps.Table.Remove(connID)
		})
	}
}

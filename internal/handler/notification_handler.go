package handler

import (
	"net/http"

	"commhub/internal/app/hub"
	"commhub/internal/pkg/auth/jwt"
	"commhub/internal/pkg/errs"
	"commhub/internal/pkg/req"
	"commhub/internal/pkg/resp"
)

// NotificationInput is the request body for pushing a notification.
type NotificationInput struct {
	UserIDs []string `json:"userIds"`
	Content string   `json:"content"`
}

// HandleSendNotification pushes an out-of-band notification to the live
// connections of the named users. Offline users are skipped; the response
// reports how many connections were reached.
func HandleSendNotification(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input NotificationInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if len(input.UserIDs) == 0 || input.Content == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		targets, customErr := deps.Hub.SendNotification(r.Context(), hub.Notification{
			UserIDs: input.UserIDs,
			Content: input.Content,
		})
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]int{"reached": len(targets)})
	}
}

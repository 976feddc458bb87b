/*
Package handler provides the HTTP handlers and routing setup for the
communication hub.

This file contains the conversation endpoints: creation, retrieval, message
append (which triggers fan-out), message status updates, and participant
management.
*/
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"commhub/internal/app/chatstore"
	"commhub/internal/app/hub"
	"commhub/internal/pkg/auth/jwt"
	"commhub/internal/pkg/errs"
	"commhub/internal/pkg/logx"
	"commhub/internal/pkg/req"
	"commhub/internal/pkg/resp"
)

// MessageInput is the request body for a message inside a chat payload.
type MessageInput struct {
	Content     string                 `json:"content"`
	SenderID    string                 `json:"senderId"`
	ReceiverID  string                 `json:"receiverId,omitempty"`
	Type        string                 `json:"type,omitempty"`
	Attachments []chatstore.Attachment `json:"attachments,omitempty"`
}

// CreateChatInput is the request body for conversation creation.
type CreateChatInput struct {
	Type         string         `json:"type"`
	Name         string         `json:"name,omitempty"`
	Participants []string       `json:"participants"`
	Messages     []MessageInput `json:"messages,omitempty"`
}

// validateMessage applies the shared content and attachment limits.
func validateMessage(in MessageInput) *errs.CustomError {
	if in.SenderID == "" || (in.Content == "" && len(in.Attachments) == 0) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if len(in.Content) > chatstore.MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}

	if len(in.Attachments) > chatstore.MaxAttachmentsCount {
		return errs.NewError(errs.ErrAttachmentCountInvalid, chatstore.MaxAttachmentsCount)
	}

	for _, a := range in.Attachments {
		if customErr := chatstore.ValidateFileType(a.Name, a.MimeType); customErr != nil {
			return customErr
		}
		if customErr := chatstore.ValidateFileSize(a.Size); customErr != nil {
			return customErr
		}
	}

	return nil
}

// storeErr maps chat store sentinel errors onto client-facing error codes.
func storeErr(err error) *errs.CustomError {
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		return errs.NewError(errs.ErrChatNotFound)
	case errors.Is(err, chatstore.ErrMessageNotFound):
		return errs.NewError(errs.ErrMessageNotFound)
	case errors.Is(err, chatstore.ErrParticipantExists):
		return errs.NewError(errs.ErrParticipantExists)
	case errors.Is(err, chatstore.ErrNotGroup):
		return errs.NewError(errs.ErrNotGroupChat)
	default:
		return errs.NewError(errs.ErrPersistenceFailed)
	}
}

// HandleCreateChat creates a conversation, persisting any bootstrap messages
// with it. Initial messages are not fanned out; delivery starts with the
// first message sent through the message endpoint.
func HandleCreateChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateChatInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		chatType := chatstore.ChatType(input.Type)
		if !chatType.Valid() {
			resp.RespondError(w, r, errs.NewError(errs.ErrChatTypeInvalid))
			return
		}

		if len(input.Participants) == 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		for _, m := range input.Messages {
			if customErr := validateMessage(m); customErr != nil {
				resp.RespondError(w, r, customErr)
				return
			}
		}

		conv, err := deps.Store.Create(r.Context(), chatstore.Conversation{
			Name:         input.Name,
			Type:         chatType,
			Participants: input.Participants,
		})
		if err != nil {
			logx.Error(err, "Error creating conversation")
			resp.RespondError(w, r, storeErr(err))
			return
		}

		for _, m := range input.Messages {
			msg := chatstore.Message{
				SenderID:   m.SenderID,
				ReceiverID: m.ReceiverID,
				Content:    m.Content,
			}
			if len(m.Attachments) > 0 {
				raw, err := json.Marshal(m.Attachments)
				if err != nil {
					resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentInvalid))
					return
				}
				msg.Attachments = raw
			}

			_, stored, err := deps.Store.AppendMessage(r.Context(), conv.ID, msg)
			if err != nil {
				logx.Error(err, "Error persisting bootstrap message", "chat_id", conv.ID)
				resp.RespondError(w, r, storeErr(err))
				return
			}
			conv.Messages = append(conv.Messages, stored)
		}

		resp.RespondSuccess(w, r, conv)
	}
}

// HandleListChats returns every conversation without message history.
func HandleListChats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		convs, err := deps.Store.List(r.Context())
		if err != nil {
			logx.Error(err, "Error listing conversations")
			resp.RespondError(w, r, storeErr(err))
			return
		}

		resp.RespondSuccess(w, r, convs)
	}
}

// HandleGetChat returns one conversation with its full message history.
func HandleGetChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if chatID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conv, err := deps.Store.GetByID(r.Context(), chatID)
		if err != nil {
			resp.RespondError(w, r, storeErr(err))
			return
		}

		resp.RespondSuccess(w, r, conv)
	}
}

// HandleChatsForUser returns the conversations a user participates in.
func HandleChatsForUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		userID := chi.URLParam(r, "userID")
		if userID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		convs, err := deps.Store.ListForParticipant(r.Context(), userID)
		if err != nil {
			logx.Error(err, "Error listing conversations for participant", "user_id", userID)
			resp.RespondError(w, r, storeErr(err))
			return
		}

		resp.RespondSuccess(w, r, convs)
	}
}

// HandleAddMessage persists a message to the conversation and fans it out to
// every live connection the hub resolves.
func HandleAddMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if chatID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input MessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := validateMessage(input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		result, customErr := deps.Hub.SendMessage(r.Context(), hub.MessageInput{
			ConversationID: chatID,
			Type:           chatstore.ChatType(input.Type),
			SenderID:       input.SenderID,
			ReceiverID:     input.ReceiverID,
			Content:        input.Content,
			Attachments:    input.Attachments,
		})
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, result)
	}
}

// UpdateStatusInput is the request body for message status updates.
type UpdateStatusInput struct {
	Status string `json:"status"`
}

// HandleUpdateMessageStatus moves a message to a new read-lifecycle status.
func HandleUpdateMessageStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatID := chi.URLParam(r, "chatID")
		messageID := chi.URLParam(r, "messageID")
		if chatID == "" || messageID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input UpdateStatusInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		status := chatstore.MessageStatus(input.Status)
		if !status.Valid() {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		msg, err := deps.Store.UpdateMessageStatus(r.Context(), chatID, messageID, status)
		if err != nil {
			resp.RespondError(w, r, storeErr(err))
			return
		}

		resp.RespondSuccess(w, r, msg)
	}
}

// AddParticipantInput is the request body for adding a participant.
type AddParticipantInput struct {
	ParticipantID string `json:"participantId"`
}

// HandleAddParticipant adds a user to a group conversation and subscribes
// their live connections to the room, so they receive broadcasts without
// reconnecting.
func HandleAddParticipant(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if chatID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input AddParticipantInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if input.ParticipantID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conv, err := deps.Store.AddParticipant(r.Context(), chatID, input.ParticipantID)
		if err != nil {
			resp.RespondError(w, r, storeErr(err))
			return
		}

		deps.Hub.JoinRoom(input.ParticipantID, chatID)

		resp.RespondSuccess(w, r, conv)
	}
}

// HandleRemoveParticipant removes a user from a conversation and drops the
// room from their live connections' cache.
func HandleRemoveParticipant(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatID := chi.URLParam(r, "chatID")
		userID := chi.URLParam(r, "userID")
		if chatID == "" || userID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conv, err := deps.Store.RemoveParticipant(r.Context(), chatID, userID)
		if err != nil {
			resp.RespondError(w, r, storeErr(err))
			return
		}

		deps.Hub.LeaveRoom(userID, chatID)

		resp.RespondSuccess(w, r, conv)
	}
}

/*
Package errs provides the custom error type and application-level error code
constants shared by the communication hub.

This file maps every error code to its CustomError template, standardizing
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
// A zero Status defaults to HTTP 200 with a non-zero business code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Request body is not valid JSON.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Conversation and Message Business Logic Errors
	ErrChatNotFound:           {Code: ErrChatNotFound, Message: "Conversation not found.", Status: http.StatusNotFound},
	ErrMessageNotFound:        {Code: ErrMessageNotFound, Message: "Message not found in conversation.", Status: http.StatusNotFound},
	ErrChatTypeInvalid:        {Code: ErrChatTypeInvalid, Message: "Invalid conversation type.", Status: http.StatusBadRequest},
	ErrParticipantExists:      {Code: ErrParticipantExists, Message: "Participant is already in the conversation.", Status: http.StatusBadRequest},
	ErrNotGroupChat:           {Code: ErrNotGroupChat, Message: "Participants can only be managed on group conversations.", Status: http.StatusBadRequest},
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrAttachmentCountInvalid: {Code: ErrAttachmentCountInvalid, Message: "A message carries between 1 and %d attachments.", Status: http.StatusBadRequest},
	ErrAttachmentInvalid:      {Code: ErrAttachmentInvalid, Message: "Invalid attachment.", Status: http.StatusBadRequest},
	ErrFileSizeTooLarge:       {Code: ErrFileSizeTooLarge, Message: "File is too large.", Status: http.StatusBadRequest},

	// 3xxx: Identity and Session Errors
	ErrUnauthorized:    {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrIdentityMissing: {Code: ErrIdentityMissing, Message: "Invalid user identity. Connection refused.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPersistenceFailed: {Code: ErrPersistenceFailed, Message: "Storage error. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File operation failed. Please try again.", Status: http.StatusInternalServerError},
}

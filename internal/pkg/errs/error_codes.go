/*
Package errs provides the custom error type and application-level error code
constants shared by the communication hub.

The codes identify specific business or system errors both inside the server
and in responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate exceeded the configured limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Conversation and Message Business Logic Errors
const (
	// ErrChatNotFound indicates that the referenced conversation does not exist.
	ErrChatNotFound = 2101

	// ErrMessageNotFound indicates that the referenced message does not exist in the conversation.
	ErrMessageNotFound = 2102

	// ErrChatTypeInvalid indicates an unknown conversation type tag.
	ErrChatTypeInvalid = 2103

	// ErrParticipantExists indicates the participant is already part of the conversation.
	ErrParticipantExists = 2104

	// ErrNotGroupChat indicates a group-only operation was attempted on an individual conversation.
	ErrNotGroupChat = 2105

	// ErrMessageContentTooLong indicates the message content exceeded the length limit.
	ErrMessageContentTooLong = 2201

	// ErrAttachmentCountInvalid indicates zero or too many attachments on a message.
	ErrAttachmentCountInvalid = 2202

	// ErrAttachmentInvalid indicates an attachment with a disallowed name or MIME type.
	ErrAttachmentInvalid = 2203

	// ErrFileSizeTooLarge indicates the attachment exceeds the size limit.
	ErrFileSizeTooLarge = 2204
)

// 3xxx: Identity and Session Errors
const (
	// ErrUnauthorized indicates a request without a valid identity token.
	ErrUnauthorized = 3001

	// ErrIdentityMissing indicates a connection attempt whose token carries no user ID.
	// Connections failing this check are refused, never admitted anonymously.
	ErrIdentityMissing = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000

	// ErrPersistenceFailed indicates an unexpected chat store failure.
	ErrPersistenceFailed = 5001

	// ErrFileStorageFailed indicates an object storage (S3) operation failure.
	ErrFileStorageFailed = 5002
)

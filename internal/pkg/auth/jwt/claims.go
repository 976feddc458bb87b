package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims used by the communication hub.
// Besides the standard validity claims it carries the identity attributes the
// hub reads at connect time: the stable user ID, the display name shown to
// other participants, and the user's preferred language.
type Payload struct {
	// StandardClaims embeds Exp, Iat and Iss, used for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the stable identifier assigned by the identity service.
	UserID string `json:"userID"`

	// Name is the user's display name, immutable for a session's lifetime.
	Name string `json:"Name"`

	// Language is the user's preferred language tag (e.g. "en", "pt").
	Language string `json:"language"`
}

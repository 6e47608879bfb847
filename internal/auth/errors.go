package auth

import (
	"errors"
	"strings"
)

// Error is an authentication failure with the message shown to the user.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

const genericMessage = "Authentication failed. Please try again."

// Provider error codes, as reported by the identity REST API.
const (
	codeInvalidEmail       = "INVALID_EMAIL"
	codeUserDisabled       = "USER_DISABLED"
	codeEmailNotFound      = "EMAIL_NOT_FOUND"
	codeInvalidPassword    = "INVALID_PASSWORD"
	codeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
	codeEmailExists        = "EMAIL_EXISTS"
	codeWeakPassword       = "WEAK_PASSWORD"
)

var messages = map[string]string{
	codeInvalidEmail:       "Invalid email address format.",
	codeUserDisabled:       "This user has been disabled.",
	codeEmailNotFound:      "No user found with this email.",
	codeInvalidPassword:    "Incorrect password or credentials.",
	codeInvalidCredentials: "Incorrect password or credentials.",
	codeEmailExists:        "Email is already in use.",
	codeWeakPassword:       "Password should be at least 6 characters.",
}

// ErrInvalidSession is returned for a missing, malformed or expired token.
var ErrInvalidSession = errors.New("invalid or expired session")

// mapProviderError turns the provider's message into an *Error. Messages
// look like "WEAK_PASSWORD : Password should be at least 6 characters".
func mapProviderError(providerMessage string) *Error {
	code, detail, _ := strings.Cut(providerMessage, " : ")
	code = strings.TrimSpace(code)

	if msg, ok := messages[code]; ok {
		return &Error{Code: code, Message: msg}
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		return &Error{Code: code, Message: detail}
	}
	if code == "" {
		return &Error{Message: genericMessage}
	}
	return &Error{Code: code, Message: genericMessage}
}

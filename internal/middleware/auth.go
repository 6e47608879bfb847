package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/bilgisen/anitory/internal/auth"
	"github.com/bilgisen/anitory/internal/logger"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/bilgisen/anitory/internal/notify"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

// Locals keys set by the middleware in this package.
const (
	ClaimsKey  = "claims"
	ProfileKey = "profile"
)

// TabHeader carries the id of the browser tab making the request.
const TabHeader = "X-Tab-Id"

// AuthConfig defines the config for the auth middleware
type AuthConfig struct {
	// Skip defines a function to skip middleware.
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// Verifier checks the session token.
	// Required.
	Verifier func(token string) (*auth.Claims, error)

	// Optional lets requests without a token through anonymously. A token
	// that is present must still be valid.
	Optional bool

	// ErrorHandler defines a function which is executed for an invalid token.
	// Optional. Default: 401 Please sign in to continue.
	ErrorHandler fiber.ErrorHandler

	// Header is the header the bearer token is read from.
	// Optional. Default: "Authorization"
	Header string
}

// ConfigDefault is the default config
var ConfigDefault = AuthConfig{
	Next: nil,
	ErrorHandler: func(c *fiber.Ctx, err error) error {
		logger.Get().Warn().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Err(err).
			Msg("Authentication failed")

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Please sign in to continue.",
		})
	},
	Header: fiber.HeaderAuthorization,
}

// NewAuth verifies the session token and stores its claims in Locals.
func NewAuth(config AuthConfig) fiber.Handler {
	cfg := config
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = ConfigDefault.ErrorHandler
	}
	if cfg.Header == "" {
		cfg.Header = ConfigDefault.Header
	}
	if cfg.Verifier == nil {
		panic("middleware: AuthConfig.Verifier is required")
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		header := c.Get(cfg.Header)
		if header == "" {
			if cfg.Optional {
				return c.Next()
			}
			return cfg.ErrorHandler(c, errors.New("missing session token"))
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := cfg.Verifier(token)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(ClaimsKey, claims)
		return c.Next()
	}
}

// ClaimsFrom returns the verified claims of the request, or nil.
func ClaimsFrom(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(ClaimsKey).(*auth.Claims)
	return claims
}

// UserID returns the signed-in user id, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	if claims := ClaimsFrom(c); claims != nil {
		return claims.UID
	}
	return ""
}

// ProfileLoader loads the profile of the signed-in user.
type ProfileLoader interface {
	GetUserProfile(ctx context.Context, uid, email, displayName string) (*models.UserProfile, error)
}

// LoadProfile stores the signed-in user's profile in Locals. Anonymous
// requests pass through untouched.
func LoadProfile(profiles ProfileLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return c.Next()
		}
		profile, err := profiles.GetUserProfile(c.UserContext(), claims.UID, claims.Email, claims.DisplayName)
		if err != nil {
			return err
		}
		c.Locals(ProfileKey, profile)
		return c.Next()
	}
}

// ProfileFrom returns the profile stored by LoadProfile, or nil.
func ProfileFrom(c *fiber.Ctx) *models.UserProfile {
	profile, _ := c.Locals(ProfileKey).(*models.UserProfile)
	return profile
}

// AdminOnly is a middleware that checks if the request is from an admin.
// It must run after LoadProfile.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		profile := ProfileFrom(c)
		if profile == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Please sign in to continue.",
			})
		}

		if !profile.IsAdmin() {
			logger.Get().Warn().
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Str("user_id", profile.ID).
				Msg("Unauthorized admin access attempt")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}

// TabOrigin tags the request context with the calling tab, so the change
// notifications it causes are not echoed back to that tab. The header is
// copied since events outlive the request buffer.
func TabOrigin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tab := c.Get(TabHeader); tab != "" {
			c.SetUserContext(notify.WithOrigin(c.UserContext(), fiberutils.CopyString(tab)))
		}
		return c.Next()
	}
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/bilgisen/anitory/internal/ai"
	"github.com/bilgisen/anitory/internal/auth"
	"github.com/bilgisen/anitory/internal/docstore"
	"github.com/bilgisen/anitory/internal/editor"
	"github.com/bilgisen/anitory/internal/logger"
	"github.com/bilgisen/anitory/internal/media"
	"github.com/bilgisen/anitory/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const validatedKey = "validated"

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate validates the request body against the provided struct
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// ValidationError lists the failed rule per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "Validation failed"
}

var defaultValidator = NewValidator()

// ValidateBody parses the JSON body into a fresh T per request and
// validates it. Handlers read the result with Validated.
func ValidateBody[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dst := new(T)
		if err := c.BodyParser(dst); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
				"msg":   err.Error(),
			})
		}
		if err := defaultValidator.Validate(dst); err != nil {
			return err
		}
		c.Locals(validatedKey, dst)
		return c.Next()
	}
}

// ValidateQuery does for query parameters what ValidateBody does for bodies.
func ValidateQuery[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dst := new(T)
		if err := c.QueryParser(dst); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query parameters",
				"msg":   err.Error(),
			})
		}
		if err := defaultValidator.Validate(dst); err != nil {
			return err
		}
		c.Locals(validatedKey, dst)
		return c.Next()
	}
}

// Validated returns the value stored by ValidateBody or ValidateQuery.
func Validated[T any](c *fiber.Ctx) *T {
	v, _ := c.Locals(validatedKey).(*T)
	if v == nil {
		return new(T)
	}
	return v
}

// statusError pairs a status with the message shown to the user.
type statusError struct {
	code    int
	message string
}

var generic = map[int]string{
	fiber.StatusForbidden:           "Permission denied. You may not have the rights to perform this action.",
	fiber.StatusNotFound:            "Not found.",
	fiber.StatusServiceUnavailable:  "The service is temporarily unavailable. Please try again.",
	fiber.StatusInternalServerError: "Something went wrong. Please try again.",
}

func classify(err error) statusError {
	var authErr *auth.Error
	var fiberErr *fiber.Error
	var validationErr *ValidationError

	switch {
	case errors.As(err, &validationErr):
		return statusError{fiber.StatusUnprocessableEntity, validationErr.Error()}
	case errors.As(err, &authErr):
		return statusError{fiber.StatusBadRequest, authErr.Message}
	case errors.Is(err, auth.ErrInvalidSession):
		return statusError{fiber.StatusUnauthorized, "Please sign in to continue."}
	case errors.Is(err, editor.ErrInvalidStory):
		return statusError{fiber.StatusBadRequest, editor.ErrInvalidStory.Error()}
	case errors.Is(err, editor.ErrForbidden):
		return statusError{fiber.StatusForbidden, editor.ErrForbidden.Error()}
	case errors.Is(err, media.ErrCoverTooLarge):
		return statusError{fiber.StatusRequestEntityTooLarge, media.ErrCoverTooLarge.Error()}
	case errors.Is(err, media.ErrInvalidDataURI), errors.Is(err, media.ErrUnsupportedType):
		return statusError{fiber.StatusBadRequest, "The cover image could not be read. Please use a JPEG, PNG, WebP or GIF image."}
	case errors.Is(err, ai.ErrUnknownAction):
		return statusError{fiber.StatusBadRequest, ai.ErrUnknownAction.Error()}
	case errors.Is(err, ai.ErrUnavailable):
		return statusError{fiber.StatusBadGateway, ai.ErrUnavailable.Error()}
	case errors.Is(err, storage.ErrMissingAuthor), errors.Is(err, storage.ErrMissingIdentity):
		return statusError{fiber.StatusBadRequest, err.Error()}
	case errors.Is(err, docstore.ErrNotFound):
		return statusError{fiber.StatusNotFound, generic[fiber.StatusNotFound]}
	case errors.Is(err, docstore.ErrPermissionDenied):
		return statusError{fiber.StatusForbidden, generic[fiber.StatusForbidden]}
	case errors.Is(err, docstore.ErrUnavailable):
		return statusError{fiber.StatusServiceUnavailable, generic[fiber.StatusServiceUnavailable]}
	case errors.As(err, &fiberErr):
		return statusError{fiberErr.Code, fiberErr.Message}
	}
	return statusError{fiber.StatusInternalServerError, generic[fiber.StatusInternalServerError]}
}

// StatusFor returns the HTTP status ErrorHandler will answer err with.
func StatusFor(err error) int {
	return classify(err).code
}

// ErrorHandler maps errors to a status code and a user-facing message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	se := classify(err)

	event := logger.Get().Warn()
	if se.code >= fiber.StatusInternalServerError {
		event = logger.Get().Error()
	}
	event.
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", se.code).
		Msg("HTTP error")

	message := se.message
	if message == "" {
		message = http.StatusText(se.code)
	}
	body := fiber.Map{"error": message}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		body["fields"] = validationErr.Fields
	}
	return c.Status(se.code).JSON(body)
}

package api

import (
	"time"

	"github.com/bilgisen/anitory/internal/ai"
	"github.com/bilgisen/anitory/internal/auth"
	"github.com/bilgisen/anitory/internal/config"
	"github.com/bilgisen/anitory/internal/editor"
	"github.com/bilgisen/anitory/internal/feed"
	"github.com/bilgisen/anitory/internal/logger"
	"github.com/bilgisen/anitory/internal/middleware"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/bilgisen/anitory/internal/storage"
	"github.com/gofiber/fiber/v2"
)

const version = "1.0.0"

// Handlers holds the services behind the HTTP API.
type Handlers struct {
	config  *config.Config
	storage *storage.Service
	feed    *feed.Processor
	editor  *editor.Editor
	auth    *auth.Service
	gemini  *ai.GeminiClient
}

// NewHandlers wires the handlers. gemini may be nil when no AI key is set;
// the AI endpoints then answer with the unavailability message.
func NewHandlers(cfg *config.Config, st *storage.Service, fp *feed.Processor, ed *editor.Editor, as *auth.Service, gemini *ai.GeminiClient) *Handlers {
	return &Handlers{
		config:  cfg,
		storage: st,
		feed:    fp,
		editor:  ed,
		auth:    as,
		gemini:  gemini,
	}
}

// HealthCheck handles the /health endpoint
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": version,
		"store":   h.config.StoreDriver,
		"ai":      h.gemini != nil,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// --- Auth ---

type signUpRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=100"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignUp handles POST /auth/signup
func (h *Handlers) SignUp(c *fiber.Ctx) error {
	req := middleware.Validated[signUpRequest](c)
	res, err := h.auth.SignUp(c.UserContext(), req.Email, req.Password, req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// SignIn handles POST /auth/signin
func (h *Handlers) SignIn(c *fiber.Ctx) error {
	req := middleware.Validated[signInRequest](c)
	res, err := h.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// --- Profile ---

type updateProfileRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=100"`
	Bio    *string `json:"bio" validate:"omitempty,max=1000"`
	Avatar *string `json:"avatar"`
	Role   *string `json:"role" validate:"omitempty,oneof=user admin"`
}

// GetMe handles GET /me
func (h *Handlers) GetMe(c *fiber.Ctx) error {
	return c.JSON(middleware.ProfileFrom(c))
}

// UpdateMe handles PUT /me. Only administrators can change a role.
func (h *Handlers) UpdateMe(c *fiber.Ctx) error {
	current := middleware.ProfileFrom(c)
	req := middleware.Validated[updateProfileRequest](c)

	updated := *current
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Bio != nil {
		updated.Bio = *req.Bio
	}
	if req.Avatar != nil {
		updated.Avatar = *req.Avatar
	}
	if req.Role != nil && *req.Role != current.Role {
		if !current.IsAdmin() {
			logger.Get().Warn().Str("user_id", current.ID).Str("role", *req.Role).Msg("Ignoring role change from non-admin")
		} else {
			updated.Role = *req.Role
		}
	}

	if err := h.storage.UpdateUserProfile(c.UserContext(), updated); err != nil {
		return err
	}
	return c.JSON(updated)
}

// --- Drafts ---

// GetDraft handles GET /drafts/:id
func (h *Handlers) GetDraft(c *fiber.Ctx) error {
	draft := h.storage.GetDraft(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if draft == nil {
		return fiber.NewError(fiber.StatusNotFound, "Draft not found.")
	}
	return c.JSON(draft)
}

// SaveDraft handles PUT /drafts/:id
func (h *Handlers) SaveDraft(c *fiber.Ctx) error {
	draft := middleware.Validated[models.Draft](c)
	if err := h.storage.SaveDraft(c.UserContext(), middleware.UserID(c), c.Params("id"), *draft); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteDraft handles DELETE /drafts/:id
func (h *Handlers) DeleteDraft(c *fiber.Ctx) error {
	if err := h.storage.DeleteDraft(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CancelDraft handles POST /drafts/:id/cancel. Cancelling the new-story
// draft discards it; drafts of existing stories are kept.
func (h *Handlers) CancelDraft(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == models.NewStoryDraftID {
		storyID = ""
	}
	if err := h.editor.Cancel(c.UserContext(), *middleware.ProfileFrom(c), storyID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- AI ---

type enhanceRequest struct {
	Text   string `json:"text"`
	Action string `json:"action" validate:"required,oneof=POLISH EXPAND SUMMARIZE TITLE INSIGHTS"`
}

type textRequest struct {
	Text string `json:"text"`
}

type researchRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

// Enhance handles POST /ai/enhance
func (h *Handlers) Enhance(c *fiber.Ctx) error {
	if h.gemini == nil {
		return ai.ErrUnavailable
	}
	req := middleware.Validated[enhanceRequest](c)
	text, err := h.gemini.GenerateStoryEnhancement(c.UserContext(), req.Text, ai.Action(req.Action))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"text": text})
}

// SuggestTags handles POST /ai/tags
func (h *Handlers) SuggestTags(c *fiber.Ctx) error {
	if h.gemini == nil {
		return c.JSON(fiber.Map{"tags": []string{}})
	}
	req := middleware.Validated[textRequest](c)
	return c.JSON(fiber.Map{"tags": h.gemini.SuggestTags(c.UserContext(), req.Text)})
}

// Research handles POST /ai/research
func (h *Handlers) Research(c *fiber.Ctx) error {
	if h.gemini == nil {
		return c.JSON(ai.Research{Text: "Failed to retrieve information.", Sources: []ai.Source{}})
	}
	req := middleware.Validated[researchRequest](c)
	return c.JSON(h.gemini.GetResearchContext(c.UserContext(), req.Query))
}

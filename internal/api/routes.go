package api

import (
	"github.com/bilgisen/anitory/internal/editor"
	"github.com/bilgisen/anitory/internal/middleware"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api/v1", middleware.TabOrigin())

	// Health check endpoint
	api.Get("/health", h.HealthCheck)

	anonymous := middleware.NewAuth(middleware.AuthConfig{Verifier: h.auth.Verify, Optional: true})
	signedIn := []fiber.Handler{
		middleware.NewAuth(middleware.AuthConfig{Verifier: h.auth.Verify}),
		middleware.LoadProfile(h.storage),
	}

	// Auth endpoints
	authGroup := api.Group("/auth")
	{
		authGroup.Post("/signup", middleware.ValidateBody[signUpRequest](), h.SignUp)
		authGroup.Post("/signin", middleware.ValidateBody[signInRequest](), h.SignIn)
	}

	// Profile endpoints
	me := api.Group("/me", signedIn...)
	{
		me.Get("", h.GetMe)
		me.Put("", middleware.ValidateBody[updateProfileRequest](), h.UpdateMe)
		me.Get("/stories", h.Dashboard)
	}

	// Story endpoints
	api.Get("/stories", anonymous, middleware.ValidateQuery[storiesQuery](), h.ListStories)
	api.Get("/stories/featured", anonymous, h.ListFeatured)
	api.Post("/stories", append(signedIn, middleware.ValidateBody[editor.Input](), h.CreateStory)...)

	users := api.Group("/users/:authorId/stories")
	{
		users.Get("", h.ListAuthorStories)
		users.Get("/:id", h.GetStory)
		users.Post("/:id/view", h.ViewStory)
		users.Put("/:id", append(signedIn, middleware.ValidateBody[editor.Input](), h.UpdateStory)...)
		users.Delete("/:id", append(signedIn, h.DeleteStory)...)
		users.Post("/:id/like", append(signedIn, h.LikeStory)...)
		users.Post("/:id/comments", append(signedIn, middleware.ValidateBody[commentRequest](), h.AddComment)...)
	}

	// Draft endpoints
	drafts := api.Group("/drafts", signedIn...)
	{
		drafts.Get("/:id", h.GetDraft)
		drafts.Put("/:id", middleware.ValidateBody[models.Draft](), h.SaveDraft)
		drafts.Delete("/:id", h.DeleteDraft)
		drafts.Post("/:id/cancel", h.CancelDraft)
	}

	// AI endpoints
	aiGroup := api.Group("/ai", signedIn...)
	{
		aiGroup.Post("/enhance", middleware.ValidateBody[enhanceRequest](), h.Enhance)
		aiGroup.Post("/tags", middleware.ValidateBody[textRequest](), h.SuggestTags)
		aiGroup.Post("/research", middleware.ValidateBody[researchRequest](), h.Research)
	}

	// Admin endpoints
	admin := api.Group("/admin", append(signedIn, middleware.AdminOnly())...)
	{
		admin.Post("/users/:authorId/stories/:id/feature", h.ToggleFeature)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}

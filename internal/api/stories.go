package api

import (
	"github.com/bilgisen/anitory/internal/editor"
	"github.com/bilgisen/anitory/internal/feed"
	"github.com/bilgisen/anitory/internal/middleware"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/gofiber/fiber/v2"
)

type storiesQuery struct {
	Q        string `query:"q" validate:"max=200"`
	Featured bool   `query:"featured"`
	Tag      string `query:"tag" validate:"max=50"`
	Author   string `query:"author"`
}

type commentRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

var errStoryNotFound = fiber.NewError(fiber.StatusNotFound, "Story not found.")

// story loads the story addressed by the :authorId and :id params.
func (h *Handlers) story(c *fiber.Ctx) (*models.Story, error) {
	story := h.storage.GetStoryByID(c.UserContext(), c.Params("authorId"), c.Params("id"))
	if story == nil {
		return nil, errStoryNotFound
	}
	return story, nil
}

// ListStories handles GET /stories
func (h *Handlers) ListStories(c *fiber.Ctx) error {
	q := middleware.Validated[storiesQuery](c)
	stories := h.feed.Stories(c.UserContext(), middleware.UserID(c), feed.Filter{
		Query:    q.Q,
		Featured: q.Featured,
		Tag:      q.Tag,
		AuthorID: q.Author,
	})
	return c.JSON(fiber.Map{
		"total": len(stories),
		"items": stories,
	})
}

// ListFeatured handles GET /stories/featured
func (h *Handlers) ListFeatured(c *fiber.Ctx) error {
	stories := h.feed.Featured(c.UserContext(), middleware.UserID(c))
	return c.JSON(fiber.Map{
		"total": len(stories),
		"items": stories,
	})
}

// Dashboard handles GET /me/stories
func (h *Handlers) Dashboard(c *fiber.Ctx) error {
	stories := h.feed.Dashboard(c.UserContext(), middleware.UserID(c))
	return c.JSON(fiber.Map{
		"total": len(stories),
		"items": stories,
	})
}

// ListAuthorStories handles GET /users/:authorId/stories
func (h *Handlers) ListAuthorStories(c *fiber.Ctx) error {
	stories := h.storage.GetStoriesByAuthor(c.UserContext(), c.Params("authorId"))
	return c.JSON(fiber.Map{
		"total": len(stories),
		"items": stories,
	})
}

// GetStory handles GET /users/:authorId/stories/:id
func (h *Handlers) GetStory(c *fiber.Ctx) error {
	story, err := h.story(c)
	if err != nil {
		return err
	}
	return c.JSON(story)
}

// CreateStory handles POST /stories
func (h *Handlers) CreateStory(c *fiber.Ctx) error {
	in := middleware.Validated[editor.Input](c)
	story, err := h.editor.Publish(c.UserContext(), *middleware.ProfileFrom(c), nil, *in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(story)
}

// UpdateStory handles PUT /users/:authorId/stories/:id
func (h *Handlers) UpdateStory(c *fiber.Ctx) error {
	existing, err := h.story(c)
	if err != nil {
		return err
	}
	in := middleware.Validated[editor.Input](c)
	story, err := h.editor.Publish(c.UserContext(), *middleware.ProfileFrom(c), existing, *in)
	if err != nil {
		return err
	}
	return c.JSON(story)
}

// DeleteStory handles DELETE /users/:authorId/stories/:id
func (h *Handlers) DeleteStory(c *fiber.Ctx) error {
	story, err := h.story(c)
	if err != nil {
		return err
	}
	if !middleware.ProfileFrom(c).CanDelete(*story) {
		return fiber.NewError(fiber.StatusForbidden, "You can only delete your own stories.")
	}
	h.storage.DeleteStory(c.UserContext(), story.ID, story.AuthorID)
	return c.SendStatus(fiber.StatusNoContent)
}

// ViewStory handles POST /users/:authorId/stories/:id/view. The returned
// count is the optimistic value; the write happens best-effort.
func (h *Handlers) ViewStory(c *fiber.Ctx) error {
	story, err := h.story(c)
	if err != nil {
		return err
	}
	h.storage.IncrementStoryView(c.UserContext(), *story)
	return c.JSON(fiber.Map{"views": story.Views + 1})
}

// LikeStory handles POST /users/:authorId/stories/:id/like
func (h *Handlers) LikeStory(c *fiber.Ctx) error {
	story, err := h.story(c)
	if err != nil {
		return err
	}
	liked, err := h.storage.ToggleStoryLike(c.UserContext(), *story, middleware.UserID(c))
	if err != nil {
		return err
	}

	likes := story.Likes
	switch {
	case liked:
		likes++
	case middleware.ProfileFrom(c).HasLiked(story.ID):
		likes = max(likes-1, 0)
	}
	return c.JSON(fiber.Map{"liked": liked, "likes": likes})
}

// AddComment handles POST /users/:authorId/stories/:id/comments
func (h *Handlers) AddComment(c *fiber.Ctx) error {
	story, err := h.story(c)
	if err != nil {
		return err
	}
	req := middleware.Validated[commentRequest](c)
	comment, err := h.storage.AddComment(c.UserContext(), *story, req.Text, *middleware.ProfileFrom(c))
	if err != nil {
		return err
	}
	if comment == nil {
		return errStoryNotFound
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// ToggleFeature handles POST /admin/users/:authorId/stories/:id/feature
func (h *Handlers) ToggleFeature(c *fiber.Ctx) error {
	story, err := h.story(c)
	if err != nil {
		return err
	}
	if err := h.storage.ToggleStoryFeature(c.UserContext(), story.ID, story.AuthorID, story.IsFeatured); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"isFeatured": !story.IsFeatured})
}

// Package editor implements saving a story from the editor: validation,
// generated insights and transcript, cover resolution and draft cleanup.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/anitory/internal/ai"
	"github.com/bilgisen/anitory/internal/feed"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidStory = errors.New("Please provide a title and either content or a URL.")
	ErrForbidden    = errors.New("You can only edit your own stories.")
)

// Input is what the editor form submits.
type Input struct {
	Title      string   `json:"title" validate:"max=300"`
	Content    string   `json:"content"`
	StoryURL   string   `json:"storyUrl" validate:"omitempty,url"`
	Tags       []string `json:"tags" validate:"max=20,dive,max=50"`
	CoverImage string   `json:"coverImage"`
}

// Store persists stories and drafts.
type Store interface {
	SaveStory(ctx context.Context, story models.Story) error
	DeleteDraft(ctx context.Context, owner, id string) error
}

type Enhancer interface {
	GenerateStoryEnhancement(ctx context.Context, text string, action ai.Action) (string, error)
}

type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (*feed.Page, error)
}

type CoverResolver interface {
	Resolve(ctx context.Context, storyID, cover string) (string, error)
}

type Editor struct {
	store  Store
	ai     Enhancer
	pages  PageFetcher
	covers CoverResolver
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// New wires an editor. pages may be nil, in which case URL stories are
// described to the model by URL and title only.
func New(store Store, enhancer Enhancer, pages PageFetcher, covers CoverResolver, log zerolog.Logger) *Editor {
	return &Editor{
		store:  store,
		ai:     enhancer,
		pages:  pages,
		covers: covers,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Validate checks the minimum a story needs before it can be saved.
func Validate(in Input) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidStory
	}
	if strings.TrimSpace(in.Content) == "" && strings.TrimSpace(in.StoryURL) == "" {
		return ErrInvalidStory
	}
	return nil
}

// Publish saves in as a new story authored by user, or as an edit of
// existing. The draft the editor was writing to is removed afterwards.
func (e *Editor) Publish(ctx context.Context, user models.UserProfile, existing *models.Story, in Input) (*models.Story, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	if existing != nil && !user.CanEdit(*existing) {
		return nil, ErrForbidden
	}

	story := models.Story{
		Title:    in.Title,
		Content:  in.Content,
		StoryURL: in.StoryURL,
		Tags:     in.Tags,
	}
	if story.Tags == nil {
		story.Tags = []string{}
	}

	if existing != nil {
		story.ID = existing.ID
		story.Author = existing.Author
		story.AuthorID = existing.AuthorID
		story.CreatedAt = existing.CreatedAt
		story.Likes = existing.Likes
		story.Views = existing.Views
		story.Comments = existing.Comments
		story.IsFeatured = existing.IsFeatured
		story.Insights = existing.Insights
		story.Transcript = existing.Transcript
	} else {
		story.ID = e.newID()
		story.Author = user.Name
		story.AuthorID = user.ID
		story.CreatedAt = e.now().UnixMilli()
	}
	if story.Comments == nil {
		story.Comments = []models.Comment{}
	}

	log := e.log.With().Str("story_id", story.ID).Str("author_id", story.AuthorID).Logger()

	if story.Insights == "" {
		story.Insights = e.insights(ctx, log, in)
	}
	if story.Transcript == "" && in.Content != "" {
		story.Transcript = in.Content
	}
	story.ReadTimeMinutes = models.ReadTimeMinutes(story.Content)

	cover, err := e.covers.Resolve(ctx, story.ID, in.CoverImage)
	if err != nil {
		return nil, fmt.Errorf("resolve cover: %w", err)
	}
	story.CoverImage = cover

	if err := e.store.SaveStory(ctx, story); err != nil {
		return nil, err
	}

	draftID := models.NewStoryDraftID
	if existing != nil {
		draftID = models.DraftID(existing.ID)
	}
	if err := e.store.DeleteDraft(ctx, user.ID, draftID); err != nil {
		log.Warn().Err(err).Str("draft_id", draftID).Msg("Failed to delete draft after save")
	}

	log.Info().Bool("new", existing == nil).Msg("Story saved")
	return &story, nil
}

// insights asks the model for insights on the content, or on a description
// of the linked page. Failures leave the story without insights.
func (e *Editor) insights(ctx context.Context, log zerolog.Logger, in Input) string {
	if e.ai == nil {
		return ""
	}
	prompt := in.Content
	if prompt == "" {
		prompt = e.describeURL(ctx, log, in)
	}

	result, err := e.ai.GenerateStoryEnhancement(ctx, prompt, ai.ActionInsights)
	if err != nil {
		log.Warn().Err(err).Msg("Auto-insights failed")
		return ""
	}
	return result
}

func (e *Editor) describeURL(ctx context.Context, log zerolog.Logger, in Input) string {
	prompt := fmt.Sprintf("The story is located at this URL: %s. Title: %s.", in.StoryURL, in.Title)
	if e.pages == nil {
		return prompt
	}
	page, err := e.pages.FetchPage(ctx, in.StoryURL)
	if err != nil {
		log.Debug().Err(err).Str("url", in.StoryURL).Msg("Story page not reachable")
		return prompt
	}
	if page.Text == "" {
		return prompt
	}
	return prompt + "\n\nPage text: " + page.Text
}

// Cancel abandons the editor. Only a story that was never saved loses its
// draft; edits of an existing story keep theirs.
func (e *Editor) Cancel(ctx context.Context, user models.UserProfile, storyID string) error {
	if storyID != "" {
		return nil
	}
	return e.store.DeleteDraft(ctx, user.ID, models.NewStoryDraftID)
}

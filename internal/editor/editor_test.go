package editor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bilgisen/anitory/internal/ai"
	"github.com/bilgisen/anitory/internal/feed"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	saved         []models.Story
	deletedDrafts []string
	saveErr       error
}

func (f *fakeStore) SaveStory(ctx context.Context, story models.Story) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, story)
	return nil
}

func (f *fakeStore) DeleteDraft(ctx context.Context, owner, id string) error {
	f.deletedDrafts = append(f.deletedDrafts, owner+"/"+id)
	return nil
}

type fakeAI struct {
	prompts []string
	err     error
}

func (f *fakeAI) GenerateStoryEnhancement(ctx context.Context, text string, action ai.Action) (string, error) {
	f.prompts = append(f.prompts, text)
	if f.err != nil {
		return "", f.err
	}
	return "insight about " + string(action), nil
}

type fakePages struct {
	page *feed.Page
	err  error
}

func (f *fakePages) FetchPage(ctx context.Context, rawURL string) (*feed.Page, error) {
	return f.page, f.err
}

type fakeCovers struct{}

func (fakeCovers) Resolve(ctx context.Context, storyID, cover string) (string, error) {
	if cover == "" {
		return "placeholder", nil
	}
	return cover, nil
}

func newEditor(store *fakeStore, enhancer *fakeAI, pages PageFetcher) *Editor {
	e := New(store, enhancer, pages, fakeCovers{}, zerolog.Nop())
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	e.newID = func() string { return "new-id" }
	return e
}

var ada = models.UserProfile{ID: "u1", Name: "Ada"}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		ok   bool
	}{
		{"title and content", Input{Title: "T", Content: "c"}, true},
		{"title and url", Input{Title: "T", StoryURL: "https://x.io"}, true},
		{"missing title", Input{Content: "c"}, false},
		{"blank title", Input{Title: "   ", Content: "c"}, false},
		{"no body", Input{Title: "T", Content: "  "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.ok && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidStory) {
				t.Errorf("Expected ErrInvalidStory, got %v", err)
			}
		})
	}
}

func TestPublishNewStory(t *testing.T) {
	store := &fakeStore{}
	enhancer := &fakeAI{}
	e := newEditor(store, enhancer, nil)

	content := strings.TrimSpace(strings.Repeat("word ", 400))
	story, err := e.Publish(context.Background(), ada, nil, Input{Title: "Long", Content: content})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if story.ID != "new-id" || story.AuthorID != "u1" || story.Author != "Ada" {
		t.Errorf("Unexpected identity fields %+v", story)
	}
	if story.CreatedAt != 1700000000000 {
		t.Errorf("Expected createdAt from clock, got %d", story.CreatedAt)
	}
	if story.ReadTimeMinutes != 2 {
		t.Errorf("Expected read time 2, got %d", story.ReadTimeMinutes)
	}
	if story.Transcript != content {
		t.Error("Expected transcript to default to content")
	}
	if story.Insights != "insight about INSIGHTS" || enhancer.prompts[0] != content {
		t.Errorf("Expected insights from content, got %q", story.Insights)
	}
	if story.CoverImage != "placeholder" {
		t.Errorf("Expected placeholder cover, got %q", story.CoverImage)
	}
	if len(store.saved) != 1 {
		t.Fatalf("Expected one save, got %d", len(store.saved))
	}
	if len(store.deletedDrafts) != 1 || store.deletedDrafts[0] != "u1/new_story_draft" {
		t.Errorf("Expected new story draft deleted, got %v", store.deletedDrafts)
	}
}

func TestPublishExistingPreservesFields(t *testing.T) {
	store := &fakeStore{}
	enhancer := &fakeAI{}
	e := newEditor(store, enhancer, nil)

	existing := &models.Story{
		ID: "s1", Author: "Ada", AuthorID: "u1", CreatedAt: 42, Likes: 3, Views: 9,
		Insights: "kept", IsFeatured: true,
		Comments: []models.Comment{{ID: "c1", Text: "hi"}},
	}
	story, err := e.Publish(context.Background(), ada, existing, Input{Title: "New title", Content: "text", CoverImage: "https://img/x.png"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if story.ID != "s1" || story.CreatedAt != 42 || story.Likes != 3 || story.Views != 9 || !story.IsFeatured {
		t.Errorf("Expected preserved fields, got %+v", story)
	}
	if len(story.Comments) != 1 {
		t.Errorf("Expected comments preserved, got %v", story.Comments)
	}
	if story.Insights != "kept" || len(enhancer.prompts) != 0 {
		t.Error("Expected existing insights to be kept without an AI call")
	}
	if story.Title != "New title" || story.CoverImage != "https://img/x.png" {
		t.Errorf("Expected edited fields, got %+v", story)
	}
	if store.deletedDrafts[0] != "u1/s1" {
		t.Errorf("Expected story draft deleted, got %v", store.deletedDrafts)
	}
}

func TestPublishForbidden(t *testing.T) {
	e := newEditor(&fakeStore{}, &fakeAI{}, nil)
	admin := models.UserProfile{ID: "u9", Role: models.RoleAdmin}
	existing := &models.Story{ID: "s1", AuthorID: "u1"}

	if _, err := e.Publish(context.Background(), admin, existing, Input{Title: "T", Content: "c"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}

func TestPublishURLStory(t *testing.T) {
	store := &fakeStore{}
	enhancer := &fakeAI{}
	pages := &fakePages{page: &feed.Page{Text: "Once upon a time"}}
	e := newEditor(store, enhancer, pages)

	story, err := e.Publish(context.Background(), ada, nil, Input{Title: "Linked", StoryURL: "https://example.com/s"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	want := "The story is located at this URL: https://example.com/s. Title: Linked."
	if !strings.HasPrefix(enhancer.prompts[0], want) || !strings.Contains(enhancer.prompts[0], "Once upon a time") {
		t.Errorf("Unexpected prompt %q", enhancer.prompts[0])
	}
	if story.Transcript != "" {
		t.Errorf("Expected empty transcript for URL story, got %q", story.Transcript)
	}
	if story.ReadTimeMinutes != 1 {
		t.Errorf("Expected read time 1, got %d", story.ReadTimeMinutes)
	}

	pages.err = errors.New("unreachable")
	enhancer.prompts = nil
	if _, err := e.Publish(context.Background(), ada, nil, Input{Title: "Linked", StoryURL: "https://example.com/s"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if enhancer.prompts[0] != want {
		t.Errorf("Expected bare URL prompt, got %q", enhancer.prompts[0])
	}
}

func TestPublishInsightsFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	e := newEditor(store, &fakeAI{err: ai.ErrUnavailable}, nil)

	story, err := e.Publish(context.Background(), ada, nil, Input{Title: "T", Content: "c"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if story.Insights != "" || len(store.saved) != 1 {
		t.Errorf("Expected saved story without insights, got %+v", story)
	}
}

func TestCancel(t *testing.T) {
	store := &fakeStore{}
	e := newEditor(store, &fakeAI{}, nil)
	ctx := context.Background()

	if err := e.Cancel(ctx, ada, "s1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(store.deletedDrafts) != 0 {
		t.Errorf("Expected existing story draft kept, got %v", store.deletedDrafts)
	}
	if err := e.Cancel(ctx, ada, ""); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(store.deletedDrafts) != 1 || store.deletedDrafts[0] != "u1/new_story_draft" {
		t.Errorf("Expected new story draft deleted, got %v", store.deletedDrafts)
	}
}

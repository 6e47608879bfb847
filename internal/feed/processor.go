// Package feed builds the story lists the views show: the searchable feed,
// the featured shelf and an author's dashboard. It also fetches the pages
// behind story URLs.
package feed

import (
	"context"
	"strings"

	"github.com/bilgisen/anitory/internal/models"
)

// StorySource is the persistence layer the feed reads from.
type StorySource interface {
	GetStories(ctx context.Context, currentUserID string) []models.Story
	GetStoriesByAuthor(ctx context.Context, authorID string) []models.Story
}

// Filter narrows a story list. Zero values match everything.
type Filter struct {
	Query    string
	Featured bool
	AuthorID string
	Tag      string
}

// Apply returns the stories matching every set criterion, keeping order.
func (f Filter) Apply(stories []models.Story) []models.Story {
	query := strings.TrimSpace(f.Query)
	out := make([]models.Story, 0, len(stories))
	for _, s := range stories {
		if f.Featured && !s.IsFeatured {
			continue
		}
		if f.AuthorID != "" && s.AuthorID != f.AuthorID {
			continue
		}
		if f.Tag != "" && !s.HasTag(f.Tag) {
			continue
		}
		if !s.Matches(query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

type Processor struct {
	source StorySource
}

func NewProcessor(source StorySource) *Processor {
	return &Processor{source: source}
}

// Stories loads the feed for currentUserID and applies f. An author filter
// reads only that author's stories.
func (p *Processor) Stories(ctx context.Context, currentUserID string, f Filter) []models.Story {
	var stories []models.Story
	if f.AuthorID != "" {
		stories = p.source.GetStoriesByAuthor(ctx, f.AuthorID)
	} else {
		stories = p.source.GetStories(ctx, currentUserID)
	}
	return f.Apply(stories)
}

// Featured is the admin-curated shelf.
func (p *Processor) Featured(ctx context.Context, currentUserID string) []models.Story {
	return p.Stories(ctx, currentUserID, Filter{Featured: true})
}

// Dashboard lists the stories authored by userID.
func (p *Processor) Dashboard(ctx context.Context, userID string) []models.Story {
	return p.Stories(ctx, userID, Filter{AuthorID: userID})
}

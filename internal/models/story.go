package models

import (
	"math"
	"strings"
)

// WordsPerMinute is the reading speed behind ReadTimeMinutes.
const WordsPerMinute = 200

// Comment is immutable once created and belongs to exactly one story.
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	AuthorID  string `json:"authorId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// Story is a user-authored narrative stored under users/{authorId}/stories.
// Likes and Views are denormalised counters and may drift from LikedStories.
type Story struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	StoryURL        string    `json:"storyUrl,omitempty"`
	Insights        string    `json:"insights,omitempty"`
	Transcript      string    `json:"transcript,omitempty"`
	Author          string    `json:"author"`
	AuthorID        string    `json:"authorId,omitempty"`
	CreatedAt       int64     `json:"createdAt"`
	Tags            []string  `json:"tags"`
	Likes           int       `json:"likes"`
	Views           int       `json:"views"`
	ReadTimeMinutes int       `json:"readTimeMinutes"`
	CoverImage      string    `json:"coverImage,omitempty"`
	IsFeatured      bool      `json:"isFeatured,omitempty"`
	Comments        []Comment `json:"comments"`
}

// ReadTimeMinutes estimates reading time: max(1, ceil(words/200)).
func ReadTimeMinutes(content string) int {
	words := len(strings.Fields(content))
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// HasTag reports whether the story carries tag, ignoring case.
func (s Story) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Matches reports whether query occurs in the title, content, author or any tag.
func (s Story) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.Content), q) ||
		strings.Contains(strings.ToLower(s.Author), q) {
		return true
	}
	for _, t := range s.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

package models

// NewStoryDraftID is the draft key used while composing a story that has no id yet.
const NewStoryDraftID = "new_story_draft"

// Draft is an unpublished editor snapshot. Nil fields were never set, so a
// reload only overwrites what the draft actually carries.
type Draft struct {
	Title      *string  `json:"title,omitempty"`
	Content    *string  `json:"content,omitempty"`
	StoryURL   *string  `json:"storyUrl,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CoverImage *string  `json:"coverImage,omitempty"`
}

// DraftID returns the draft key for editing storyID, or the new-story key.
func DraftID(storyID string) string {
	if storyID == "" {
		return NewStoryDraftID
	}
	return storyID
}

// ApplyTo copies the fields present in the draft onto s.
func (d Draft) ApplyTo(s *Story) {
	if d.Title != nil {
		s.Title = *d.Title
	}
	if d.Content != nil {
		s.Content = *d.Content
	}
	if d.StoryURL != nil {
		s.StoryURL = *d.StoryURL
	}
	if d.Tags != nil {
		s.Tags = append([]string(nil), d.Tags...)
	}
	if d.CoverImage != nil {
		s.CoverImage = *d.CoverImage
	}
}

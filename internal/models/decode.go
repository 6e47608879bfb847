package models

import (
	"encoding/json"
	"fmt"
)

// Documents coming back from the store have whatever shape the writer gave
// them. Every read path goes through DecodeStory / DecodeUserProfile so the
// defaulting rules live here and nowhere else.

type rawComment struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	AuthorID  string   `json:"authorId"`
	Text      string   `json:"text"`
	CreatedAt *float64 `json:"createdAt"`
}

type rawStory struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Content         string       `json:"content"`
	StoryURL        string       `json:"storyUrl"`
	Insights        string       `json:"insights"`
	Transcript      string       `json:"transcript"`
	Author          string       `json:"author"`
	AuthorID        string       `json:"authorId"`
	CreatedAt       *float64     `json:"createdAt"`
	Tags            []string     `json:"tags"`
	Likes           *float64     `json:"likes"`
	Views           *float64     `json:"views"`
	ReadTimeMinutes *float64     `json:"readTimeMinutes"`
	CoverImage      string       `json:"coverImage"`
	IsFeatured      bool         `json:"isFeatured"`
	Comments        []rawComment `json:"comments"`
}

type rawProfile struct {
	Name         string   `json:"name"`
	Bio          string   `json:"bio"`
	Avatar       string   `json:"avatar"`
	Role         string   `json:"role"`
	Email        string   `json:"email"`
	LikedStories []string `json:"likedStories"`
}

func remarshal(doc map[string]any, out any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func counter(v *float64) int {
	if v == nil || *v < 0 {
		return 0
	}
	return int(*v)
}

// DecodeStory maps a stored document onto a Story. ownerID is the id of the
// sub-collection the document was read from and fills a missing authorId.
func DecodeStory(doc map[string]any, ownerID string) (Story, error) {
	var raw rawStory
	if err := remarshal(doc, &raw); err != nil {
		return Story{}, err
	}

	s := Story{
		ID:         raw.ID,
		Title:      raw.Title,
		Content:    raw.Content,
		StoryURL:   raw.StoryURL,
		Insights:   raw.Insights,
		Transcript: raw.Transcript,
		Author:     raw.Author,
		AuthorID:   raw.AuthorID,
		Tags:       raw.Tags,
		Likes:      counter(raw.Likes),
		Views:      counter(raw.Views),
		CoverImage: raw.CoverImage,
		IsFeatured: raw.IsFeatured,
		Comments:   make([]Comment, 0, len(raw.Comments)),
	}
	if raw.CreatedAt != nil {
		s.CreatedAt = int64(*raw.CreatedAt)
	}
	if s.AuthorID == "" {
		s.AuthorID = ownerID
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if raw.ReadTimeMinutes != nil && *raw.ReadTimeMinutes >= 1 {
		s.ReadTimeMinutes = int(*raw.ReadTimeMinutes)
	} else {
		s.ReadTimeMinutes = ReadTimeMinutes(s.Content)
	}
	for _, c := range raw.Comments {
		comment := Comment{ID: c.ID, Author: c.Author, AuthorID: c.AuthorID, Text: c.Text}
		if c.CreatedAt != nil {
			comment.CreatedAt = int64(*c.CreatedAt)
		}
		s.Comments = append(s.Comments, comment)
	}
	return s, nil
}

// EncodeStory produces the document written on save. Optional fields are
// left out when empty so a merge keeps whatever the store already has.
func EncodeStory(s Story) map[string]any {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := map[string]any{
		"id":              s.ID,
		"title":           s.Title,
		"content":         s.Content,
		"author":          s.Author,
		"authorId":        s.AuthorID,
		"createdAt":       s.CreatedAt,
		"tags":            tags,
		"likes":           max(s.Likes, 0),
		"views":           max(s.Views, 0),
		"readTimeMinutes": s.ReadTimeMinutes,
		"comments":        EncodeComments(s.Comments),
	}
	if s.StoryURL != "" {
		doc["storyUrl"] = s.StoryURL
	}
	if s.Insights != "" {
		doc["insights"] = s.Insights
	}
	if s.Transcript != "" {
		doc["transcript"] = s.Transcript
	}
	if s.CoverImage != "" {
		doc["coverImage"] = s.CoverImage
	}
	if s.IsFeatured {
		doc["isFeatured"] = true
	}
	return doc
}

// EncodeComment produces the stored shape of a single comment.
func EncodeComment(c Comment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"author":    c.Author,
		"authorId":  c.AuthorID,
		"text":      c.Text,
		"createdAt": c.CreatedAt,
	}
}

// EncodeComments encodes a comment list, never returning nil.
func EncodeComments(comments []Comment) []any {
	out := make([]any, 0, len(comments))
	for _, c := range comments {
		out = append(out, EncodeComment(c))
	}
	return out
}

// DecodeUserProfile maps a stored profile onto UserProfile, filling gaps from
// the identity (email, display name) the caller signed in with.
func DecodeUserProfile(doc map[string]any, id, email, displayName string) (UserProfile, error) {
	var raw rawProfile
	if err := remarshal(doc, &raw); err != nil {
		return UserProfile{}, err
	}

	u := UserProfile{
		ID:           id,
		Name:         raw.Name,
		Bio:          raw.Bio,
		Avatar:       raw.Avatar,
		Role:         raw.Role,
		Email:        raw.Email,
		LikedStories: raw.LikedStories,
	}
	if u.Name == "" {
		u.Name = displayName
	}
	if u.Name == "" {
		u.Name = DefaultName
	}
	if u.Avatar == "" {
		u.Avatar = AvatarURL(raw.Name)
	}
	if u.Role != RoleAdmin {
		u.Role = RoleUser
	}
	if u.Email == "" {
		u.Email = email
	}
	if u.LikedStories == nil {
		u.LikedStories = []string{}
	}
	return u, nil
}

// EncodeUserProfile produces the profile document.
func EncodeUserProfile(u UserProfile) map[string]any {
	liked := u.LikedStories
	if liked == nil {
		liked = []string{}
	}
	return map[string]any{
		"id":           u.ID,
		"name":         u.Name,
		"bio":          u.Bio,
		"avatar":       u.Avatar,
		"role":         u.Role,
		"email":        u.Email,
		"likedStories": liked,
	}
}

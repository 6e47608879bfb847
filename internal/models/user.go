package models

import (
	"net/url"
	"slices"
	"strings"
)

// Roles a profile can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	// DefaultName is used when neither a display name nor an email is known.
	DefaultName = "Storyteller"
	// DefaultBio is given to profiles created on first sign-in.
	DefaultBio = "I am a new storyteller on Anitory."
)

// UserProfile lives in the flat users collection keyed by the auth identity.
type UserProfile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Bio          string   `json:"bio"`
	Avatar       string   `json:"avatar"`
	Role         string   `json:"role"`
	Email        string   `json:"email"`
	LikedStories []string `json:"likedStories"`
}

// IsAdmin reports whether the profile has the administrator role.
func (u UserProfile) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasLiked reports whether storyID is in the liked list.
func (u UserProfile) HasLiked(storyID string) bool {
	return slices.Contains(u.LikedStories, storyID)
}

// CanEdit reports whether the profile may edit the story.
func (u UserProfile) CanEdit(s Story) bool {
	return u.ID != "" && u.ID == s.AuthorID
}

// CanDelete reports whether the profile may delete the story.
func (u UserProfile) CanDelete(s Story) bool {
	return u.CanEdit(s) || u.IsAdmin()
}

// AvatarURL builds the generated avatar image for a name.
func AvatarURL(name string) string {
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=d97757&color=fff"
}

// NewUserProfile builds the profile created the first time an identity signs in.
func NewUserProfile(id, email, displayName string) UserProfile {
	name := displayName
	if name == "" {
		if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
			name = local
		} else if email != "" {
			name = email
		} else {
			name = DefaultName
		}
	}

	avatarSeed := displayName
	if avatarSeed == "" {
		avatarSeed = DefaultName
	}

	return UserProfile{
		ID:           id,
		Name:         name,
		Bio:          DefaultBio,
		Avatar:       AvatarURL(avatarSeed),
		Role:         RoleUser,
		Email:        email,
		LikedStories: []string{},
	}
}

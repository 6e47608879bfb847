// Package storage is the persistence-access layer: story, profile, comment,
// like, view and draft operations over the document store, with the fallback
// strategies that keep reads from failing and change notifications after
// every write.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bilgisen/anitory/internal/cache"
	"github.com/bilgisen/anitory/internal/docstore"
	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/bilgisen/anitory/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrMissingAuthor   = errors.New("story must have an authorId")
	ErrMissingIdentity = errors.New("no user id provided")
)

// DraftKeyPrefix namespaces draft keys in the key/value cache.
const DraftKeyPrefix = "anitory_draft_"

const (
	fieldCreatedAt    = "createdAt"
	fieldLikes        = "likes"
	fieldViews        = "views"
	fieldComments     = "comments"
	fieldIsFeatured   = "isFeatured"
	fieldLikedStories = "likedStories"

	fallbackConcurrency = 8
)

type Service struct {
	store    docstore.Store
	notifier notify.Notifier
	drafts   cache.RedisInterface
	draftTTL time.Duration
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

// WithDraftTTL sets how long an untouched draft is kept. Zero keeps drafts
// until they are deleted.
func WithDraftTTL(ttl time.Duration) Option {
	return func(s *Service) { s.draftTTL = ttl }
}

// WithClock replaces the time source used for comment timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the comment id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store docstore.Store, notifier notify.Notifier, drafts cache.RedisInterface, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		drafts:   drafts,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// notifyUpdate publishes a change event. Failures are logged and never
// reach the write path.
func (s *Service) notifyUpdate(ctx context.Context, t notify.EventType, payload string) {
	e := notify.Event{Type: t, Payload: payload, Origin: notify.OriginFrom(ctx)}
	if err := s.notifier.Publish(ctx, e); err != nil {
		s.log.Error().Err(err).Str("type", string(t)).Msg("Failed to broadcast update")
	}
}

// --- User profiles ---

// GetUserProfile returns the stored profile or creates the default one on
// first sign-in.
func (s *Service) GetUserProfile(ctx context.Context, uid, email, displayName string) (*models.UserProfile, error) {
	if uid == "" {
		return nil, ErrMissingIdentity
	}

	doc, err := s.store.Get(ctx, docstore.UserPath(uid))
	if err == nil {
		u, err := models.DecodeUserProfile(doc, uid, email, displayName)
		if err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", uid, err)
		}
		return &u, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}

	u := models.NewUserProfile(uid, email, displayName)
	if err := s.store.Set(ctx, docstore.UserPath(uid), models.EncodeUserProfile(u)); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", uid, err)
	}
	s.log.Info().Str("user_id", uid).Msg("Created profile")
	return &u, nil
}

// UpdateUserProfile merges the profile into the stored one.
func (s *Service) UpdateUserProfile(ctx context.Context, u models.UserProfile) error {
	if u.ID == "" {
		return nil
	}
	if err := s.store.Set(ctx, docstore.UserPath(u.ID), models.EncodeUserProfile(u)); err != nil {
		return fmt.Errorf("update profile %s: %w", u.ID, err)
	}
	s.notifyUpdate(ctx, notify.UserUpdate, "")
	return nil
}

// --- Stories ---

func (s *Service) decodeAll(snaps []docstore.Snapshot, ownerID string) []models.Story {
	stories := make([]models.Story, 0, len(snaps))
	for _, snap := range snaps {
		owner := ownerID
		if owner == "" {
			owner = snap.OwnerID()
		}
		story, err := models.DecodeStory(snap.Data, owner)
		if err != nil {
			s.log.Warn().Err(err).Str("path", snap.Path).Msg("Skipping undecodable story")
			continue
		}
		if story.ID == "" {
			story.ID = snap.ID()
		}
		stories = append(stories, story)
	}
	return stories
}

func sortNewestFirst(stories []models.Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		return stories[i].CreatedAt > stories[j].CreatedAt
	})
}

func degradable(err error) bool {
	return errors.Is(err, docstore.ErrPermissionDenied) ||
		errors.Is(err, docstore.ErrFailedPrecondition) ||
		errors.Is(err, docstore.ErrUnavailable)
}

// GetStories returns every story, newest first. It never fails: when the
// cross-user query is refused it enumerates each author's stories, and when
// that is empty too it returns the current user's own stories.
func (s *Service) GetStories(ctx context.Context, currentUserID string) []models.Story {
	snaps, err := s.store.QueryGroup(ctx, docstore.StoriesCollection, fieldCreatedAt)
	if err == nil {
		return s.decodeAll(snaps, "")
	}
	if !degradable(err) {
		s.log.Error().Err(err).Msg("Failed to query stories")
		return []models.Story{}
	}

	s.log.Warn().Err(err).Msg("Story query refused, enumerating authors")
	metrics.StoreFallback("get_stories", "per_author")
	stories := s.storiesFallback(ctx)
	if len(stories) == 0 && currentUserID != "" {
		metrics.StoreFallback("get_stories", "current_user")
		return s.GetStoriesByAuthor(ctx, currentUserID)
	}
	return stories
}

// storiesFallback lists each user's sub-collection concurrently and merges
// the results. A failing author contributes nothing.
func (s *Service) storiesFallback(ctx context.Context) []models.Story {
	users, err := s.store.List(ctx, docstore.UsersCollection)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list users for story fallback")
		return []models.Story{}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all = []models.Story{}
	)
	semaphore := make(chan struct{}, fallbackConcurrency)

	for _, user := range users {
		uid := user.ID()
		wg.Add(1)
		go func() {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			snaps, err := s.store.List(ctx, docstore.UserStoriesPath(uid))
			if err != nil {
				s.log.Debug().Err(err).Str("author_id", uid).Msg("Skipping author in story fallback")
				return
			}
			// The sub-collection owner is authoritative here.
			stories := s.decodeAll(snaps, uid)
			for i := range stories {
				stories[i].AuthorID = uid
			}

			mu.Lock()
			all = append(all, stories...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sortNewestFirst(all)
	return all
}

// GetStoriesByAuthor returns the author's stories, newest first, or an empty
// list on failure.
func (s *Service) GetStoriesByAuthor(ctx context.Context, authorID string) []models.Story {
	if authorID == "" {
		return []models.Story{}
	}
	snaps, err := s.store.List(ctx, docstore.UserStoriesPath(authorID))
	if err != nil {
		s.log.Warn().Err(err).Str("author_id", authorID).Msg("Failed to list author stories")
		return []models.Story{}
	}
	stories := s.decodeAll(snaps, authorID)
	sortNewestFirst(stories)
	return stories
}

// GetStoryByID reads the story from its author's sub-collection, then from
// the legacy flat collection, or scans every story for the id when the
// author is unknown. It returns nil when the story cannot be found or read.
func (s *Service) GetStoryByID(ctx context.Context, authorID, storyID string) *models.Story {
	if storyID == "" {
		return nil
	}

	if authorID != "" {
		story, err := s.readStory(ctx, docstore.StoryPath(authorID, storyID), authorID, storyID)
		if errors.Is(err, docstore.ErrNotFound) {
			story, err = s.readStory(ctx, docstore.LegacyStoryPath(storyID), authorID, storyID)
			// A legacy story is only addressable under its own author.
			if err == nil && story.AuthorID != authorID {
				return nil
			}
		}
		if err != nil {
			if !errors.Is(err, docstore.ErrNotFound) {
				s.log.Warn().Err(err).Str("story_id", storyID).Msg("Failed to read story")
			}
			return nil
		}
		return story
	}

	snaps, err := s.store.QueryGroup(ctx, docstore.StoriesCollection, fieldCreatedAt)
	if err != nil {
		s.log.Warn().Err(err).Str("story_id", storyID).Msg("Failed to scan stories")
		return nil
	}
	for _, story := range s.decodeAll(snaps, "") {
		if story.ID == storyID {
			return &story
		}
	}
	return nil
}

func (s *Service) readStory(ctx context.Context, path, ownerID, storyID string) (*models.Story, error) {
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	story, err := models.DecodeStory(doc, ownerID)
	if err != nil {
		return nil, fmt.Errorf("decode story %s: %w", storyID, err)
	}
	if story.ID == "" {
		story.ID = storyID
	}
	return &story, nil
}

// SaveStory merges the story into its author's sub-collection.
func (s *Service) SaveStory(ctx context.Context, story models.Story) error {
	if story.AuthorID == "" {
		return ErrMissingAuthor
	}
	path := docstore.StoryPath(story.AuthorID, story.ID)
	if err := s.store.Set(ctx, path, models.EncodeStory(story)); err != nil {
		return fmt.Errorf("save story %s: %w", story.ID, err)
	}
	s.notifyUpdate(ctx, notify.StoryUpdate, "")
	return nil
}

// DeleteStory removes the story from its author's sub-collection and from
// the legacy flat collection. Failures are logged; the notification is
// always sent.
func (s *Service) DeleteStory(ctx context.Context, storyID, authorID string) {
	log := s.log.With().Str("story_id", storyID).Str("author_id", authorID).Logger()

	if authorID != "" {
		if err := s.store.Delete(ctx, docstore.StoryPath(authorID, storyID)); err != nil {
			log.Warn().Err(err).Msg("Failed to delete story")
		}
	}
	if err := s.store.Delete(ctx, docstore.LegacyStoryPath(storyID)); err != nil {
		log.Warn().Err(err).Msg("Failed to delete legacy story")
	}

	s.notifyUpdate(ctx, notify.StoryUpdate, "")
}

// ToggleStoryFeature sets isFeatured to the opposite of current.
func (s *Service) ToggleStoryFeature(ctx context.Context, storyID, authorID string, current bool) error {
	if authorID == "" {
		return ErrMissingAuthor
	}
	err := s.store.Update(ctx, docstore.StoryPath(authorID, storyID), docstore.Document{
		fieldIsFeatured: !current,
	})
	if err != nil {
		return fmt.Errorf("toggle feature %s: %w", storyID, err)
	}
	s.notifyUpdate(ctx, notify.StoryUpdate, "")
	return nil
}

// ToggleStoryLike flips the user's like on the story and reports whether the
// story is now liked. The liked list and the counter are two independent
// atomic writes; a failure between them leaves the two out of step.
func (s *Service) ToggleStoryLike(ctx context.Context, story models.Story, userID string) (bool, error) {
	if story.AuthorID == "" {
		return false, nil
	}
	if userID == "" {
		return false, ErrMissingIdentity
	}

	userPath := docstore.UserPath(userID)
	storyPath := docstore.StoryPath(story.AuthorID, story.ID)

	userDoc, err := s.store.Get(ctx, userPath)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read profile %s: %w", userID, err)
	}
	if _, err := s.store.Get(ctx, storyPath); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read story %s: %w", story.ID, err)
	}

	profile, err := models.DecodeUserProfile(userDoc, userID, "", "")
	if err != nil {
		return false, fmt.Errorf("decode profile %s: %w", userID, err)
	}

	liked := profile.HasLiked(story.ID)
	delta := int64(1)
	if liked {
		err = s.store.ArrayRemove(ctx, userPath, fieldLikedStories, story.ID)
		delta = -1
	} else {
		err = s.store.ArrayUnion(ctx, userPath, fieldLikedStories, story.ID)
	}
	if err != nil {
		return liked, fmt.Errorf("update liked stories: %w", err)
	}

	if err := s.store.Increment(ctx, storyPath, fieldLikes, delta); err != nil {
		return liked, fmt.Errorf("update like count: %w", err)
	}

	s.notifyUpdate(ctx, notify.StoryUpdate, "")
	return !liked, nil
}

// IncrementStoryView adds one view at the author path, falling back to the
// legacy flat location. Failures are logged only.
func (s *Service) IncrementStoryView(ctx context.Context, story models.Story) {
	log := s.log.With().Str("story_id", story.ID).Logger()

	if story.AuthorID != "" {
		err := s.store.Increment(ctx, docstore.StoryPath(story.AuthorID, story.ID), fieldViews, 1)
		if err == nil {
			return
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			log.Warn().Err(err).Msg("Could not increment view in user path")
		}
	}

	err := s.store.Increment(ctx, docstore.LegacyStoryPath(story.ID), fieldViews, 1)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		log.Warn().Err(err).Msg("Could not increment view in root path")
	}
}

// AddComment appends a comment by user to an existing story. It returns nil
// without error when the story has no author or does not exist.
func (s *Service) AddComment(ctx context.Context, story models.Story, text string, user models.UserProfile) (*models.Comment, error) {
	if story.AuthorID == "" {
		return nil, nil
	}

	path := docstore.StoryPath(story.AuthorID, story.ID)
	if _, err := s.store.Get(ctx, path); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read story %s: %w", story.ID, err)
	}

	author := user.Name
	if author == "" {
		author = "Anonymous"
	}
	comment := models.Comment{
		ID:        s.newID(),
		Author:    author,
		AuthorID:  user.ID,
		Text:      text,
		CreatedAt: s.now().UnixMilli(),
	}

	if err := s.store.ArrayUnion(ctx, path, fieldComments, models.EncodeComment(comment)); err != nil {
		return nil, fmt.Errorf("add comment to %s: %w", story.ID, err)
	}

	s.notifyUpdate(ctx, notify.StoryUpdate, "")
	return &comment, nil
}

// --- Drafts ---

// DraftKey derives the cache key of owner's draft id.
func DraftKey(owner, id string) string {
	return DraftKeyPrefix + owner + "_" + id
}

// SaveDraft stores the draft and announces its key.
func (s *Service) SaveDraft(ctx context.Context, owner, id string, draft models.Draft) error {
	if owner == "" {
		return ErrMissingIdentity
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	key := DraftKey(owner, id)
	if err := s.drafts.Set(ctx, key, data, s.draftTTL); err != nil {
		s.log.Error().Err(err).Str("draft", key).Msg("Failed to save draft")
		return fmt.Errorf("save draft: %w", err)
	}
	s.notifyUpdate(ctx, notify.DraftUpdate, key)
	return nil
}

// GetDraft returns the stored draft, or nil when it is absent or unreadable.
func (s *Service) GetDraft(ctx context.Context, owner, id string) *models.Draft {
	if owner == "" {
		return nil
	}
	key := DraftKey(owner, id)
	data, err := s.drafts.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Str("draft", key).Msg("Failed to read draft")
		}
		return nil
	}
	var draft models.Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		s.log.Warn().Err(err).Str("draft", key).Msg("Discarding unreadable draft")
		return nil
	}
	return &draft
}

// DeleteDraft removes the draft. Deleting a missing draft is not an error.
func (s *Service) DeleteDraft(ctx context.Context, owner, id string) error {
	if owner == "" {
		return ErrMissingIdentity
	}
	if err := s.drafts.Del(ctx, DraftKey(owner, id)); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

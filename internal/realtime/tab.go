// Package realtime keeps open browser sessions in sync. Each session is a
// Tab that listens to change notifications and pushes refreshed state.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bilgisen/anitory/internal/models"
	"github.com/bilgisen/anitory/internal/notify"
	"github.com/bilgisen/anitory/internal/storage"
	"github.com/rs/zerolog"
)

const refetchTimeout = 15 * time.Second

// Message types pushed to the browser.
const (
	MessageStories = "stories"
	MessageProfile = "profile"
	MessageDraft   = "draft"
)

// Message is one push to a tab.
type Message struct {
	Type    string              `json:"type"`
	Stories []models.Story      `json:"stories,omitempty"`
	Profile *models.UserProfile `json:"profile,omitempty"`
	Draft   *models.Draft       `json:"draft,omitempty"`
	DraftID string              `json:"draftId,omitempty"`
}

// Loader reads the state a tab shows.
type Loader interface {
	GetStories(ctx context.Context, currentUserID string) []models.Story
	GetUserProfile(ctx context.Context, uid, email, displayName string) (*models.UserProfile, error)
	GetDraft(ctx context.Context, owner, id string) *models.Draft
}

// Identity is the signed-in user behind a tab.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

type Tab struct {
	id       string
	identity Identity
	draftID  string
	loader   Loader
	send     func(Message)
	log      zerolog.Logger

	mu          sync.Mutex
	unsubscribe func()
	refetches   atomic.Int64
}

// NewTab creates a tab. draftID is the draft the tab's editor has open, or
// empty when no editor is open.
func NewTab(id string, identity Identity, draftID string, loader Loader, send func(Message), log zerolog.Logger) *Tab {
	return &Tab{
		id:       id,
		identity: identity,
		draftID:  draftID,
		loader:   loader,
		send:     send,
		log:      log.With().Str("tab", id).Str("user_id", identity.UID).Logger(),
	}
}

func (t *Tab) ID() string { return t.id }

// Refetches counts the full reloads triggered so far.
func (t *Tab) Refetches() int64 { return t.refetches.Load() }

// Attach subscribes the tab to n. Attaching twice keeps one subscription.
func (t *Tab) Attach(n notify.Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsubscribe != nil {
		return
	}
	t.unsubscribe = n.Subscribe(t.HandleEvent)
}

func (t *Tab) Detach() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// HandleEvent reacts to a notification. Events the tab caused itself are
// ignored.
func (t *Tab) HandleEvent(e notify.Event) {
	if e.Origin != "" && e.Origin == t.id {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	switch e.Type {
	case notify.StoryUpdate, notify.UserUpdate:
		t.Refetch(ctx)
	case notify.DraftUpdate:
		if t.draftID != "" && e.Payload == t.draftKey() {
			t.ReloadDraft(ctx)
		}
	}
}

func (t *Tab) draftKey() string {
	return storage.DraftKey(t.identity.UID, models.DraftID(t.draftID))
}

// Refetch reloads the feed and the profile and pushes both.
func (t *Tab) Refetch(ctx context.Context) {
	t.refetches.Add(1)

	stories := t.loader.GetStories(ctx, t.identity.UID)
	t.send(Message{Type: MessageStories, Stories: stories})

	if t.identity.UID == "" {
		return
	}
	profile, err := t.loader.GetUserProfile(ctx, t.identity.UID, t.identity.Email, t.identity.DisplayName)
	if err != nil {
		t.log.Warn().Err(err).Msg("Failed to reload profile")
		return
	}
	t.send(Message{Type: MessageProfile, Profile: profile})
}

// ReloadDraft pushes the stored draft. A missing draft sends nothing.
func (t *Tab) ReloadDraft(ctx context.Context) {
	draft := t.loader.GetDraft(ctx, t.identity.UID, models.DraftID(t.draftID))
	if draft == nil {
		return
	}
	t.send(Message{Type: MessageDraft, Draft: draft, DraftID: models.DraftID(t.draftID)})
}

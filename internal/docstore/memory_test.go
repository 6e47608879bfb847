package docstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryGetSetMerge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, UserPath("u1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := m.Set(ctx, UserPath("u1"), Document{"name": "Ana", "bio": "x"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Set(ctx, UserPath("u1"), Document{"bio": "y"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	doc, err := m.Get(ctx, UserPath("u1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc["name"] != "Ana" || doc["bio"] != "y" {
		t.Errorf("Expected merged document, got %v", doc)
	}

	// Returned documents are copies
	doc["name"] = "changed"
	again, _ := m.Get(ctx, UserPath("u1"))
	if again["name"] != "Ana" {
		t.Error("Mutating a returned document leaked into the store")
	}
}

func TestMemoryUpdateRequiresExisting(t *testing.T) {
	m := NewMemory()
	err := m.Update(context.Background(), StoryPath("a", "s1"), Document{"title": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryInvalidPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "users"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for collection path, got %v", err)
	}
	if _, err := m.List(ctx, "users/u1"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for document path, got %v", err)
	}
	if err := m.Set(ctx, "users//stories/s1", Document{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for empty segment, got %v", err)
	}
}

func TestMemoryQueryGroupOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Set(ctx, StoryPath("a", "s1"), Document{"createdAt": int64(100)})
	_ = m.Set(ctx, StoryPath("b", "s2"), Document{"createdAt": int64(300)})
	_ = m.Set(ctx, LegacyStoryPath("s3"), Document{"createdAt": int64(200)})
	_ = m.Set(ctx, UserPath("a"), Document{"name": "A"})

	snaps, err := m.QueryGroup(ctx, StoriesCollection, "createdAt")
	if err != nil {
		t.Fatalf("QueryGroup failed: %v", err)
	}

	want := []string{"s2", "s3", "s1"}
	if len(snaps) != len(want) {
		t.Fatalf("Expected %d stories, got %d", len(want), len(snaps))
	}
	for i, id := range want {
		if snaps[i].ID() != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, snaps[i].ID())
		}
	}
	if snaps[0].OwnerID() != "b" {
		t.Errorf("Expected owner b, got %q", snaps[0].OwnerID())
	}
	if snaps[1].OwnerID() != "" {
		t.Errorf("Expected no owner for legacy story, got %q", snaps[1].OwnerID())
	}
}

func TestMemoryListDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Set(ctx, UserPath("a"), Document{})
	_ = m.Set(ctx, UserPath("b"), Document{})
	_ = m.Set(ctx, StoryPath("a", "s1"), Document{})

	users, err := m.List(ctx, UsersCollection)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}

	stories, _ := m.List(ctx, UserStoriesPath("a"))
	if len(stories) != 1 || stories[0].ID() != "s1" {
		t.Errorf("Unexpected stories %+v", stories)
	}
}

func TestMemoryIncrementClampsAtZero(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	path := StoryPath("a", "s1")
	_ = m.Set(ctx, path, Document{"likes": 1})

	for _, tc := range []struct {
		delta int64
		want  int64
	}{
		{-1, 0},
		{-1, 0},
		{2, 2},
	} {
		if err := m.Increment(ctx, path, "likes", tc.delta); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		doc, _ := m.Get(ctx, path)
		if doc["likes"] != tc.want {
			t.Errorf("After %+d expected %d, got %v", tc.delta, tc.want, doc["likes"])
		}
	}

	if err := m.Increment(ctx, StoryPath("a", "missing"), "likes", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryArrayUnionRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	path := UserPath("u1")
	_ = m.Set(ctx, path, Document{"likedStories": []string{"s1"}})

	_ = m.ArrayUnion(ctx, path, "likedStories", "s1", "s2")
	doc, _ := m.Get(ctx, path)
	if got := doc["likedStories"].([]any); len(got) != 2 {
		t.Fatalf("Expected 2 liked stories, got %v", got)
	}

	_ = m.ArrayRemove(ctx, path, "likedStories", "s1", "nope")
	doc, _ = m.Get(ctx, path)
	got := doc["likedStories"].([]any)
	if len(got) != 1 || got[0] != "s2" {
		t.Errorf("Expected [s2], got %v", got)
	}

	// Union on a missing field creates it
	_ = m.ArrayUnion(ctx, path, "other", map[string]any{"id": "c1"})
	doc, _ = m.Get(ctx, path)
	if arr, ok := doc["other"].([]any); !ok || len(arr) != 1 {
		t.Errorf("Expected new array field, got %v", doc["other"])
	}
}

func TestMemoryFailOn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.FailOn(OpQueryGroup, "", ErrPermissionDenied)
	if _, err := m.QueryGroup(ctx, StoriesCollection, "createdAt"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected injected error, got %v", err)
	}
	if m.Calls(OpQueryGroup) != 1 {
		t.Errorf("Expected 1 call, got %d", m.Calls(OpQueryGroup))
	}

	m.FailOn(OpQueryGroup, "", nil)
	if _, err := m.QueryGroup(ctx, StoriesCollection, "createdAt"); err != nil {
		t.Errorf("Expected fault cleared, got %v", err)
	}

	m.FailOn(OpGet, UserPath("x"), ErrUnavailable)
	if _, err := m.Get(ctx, UserPath("y")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fault for one path should not affect another, got %v", err)
	}
}

// Package docstore is the document database port used by the storage layer.
//
// Documents are addressed by slash-separated paths in the hosted-store style:
// a document path has an even number of segments ("users/u1",
// "users/u1/stories/s1") and a collection path an odd number ("users",
// "users/u1/stories"). A collection group is every collection sharing the
// same last segment, wherever it is nested.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Document is the dynamic shape of a stored document. Callers decode it
// through the models package.
type Document = map[string]any

var (
	ErrNotFound           = errors.New("docstore: document not found")
	ErrPermissionDenied   = errors.New("docstore: permission denied")
	ErrFailedPrecondition = errors.New("docstore: failed precondition")
	ErrUnavailable        = errors.New("docstore: unavailable")
	ErrInvalidPath        = errors.New("docstore: invalid path")
)

// Snapshot is a document read back together with its location.
type Snapshot struct {
	Path string
	Data Document
}

// ID is the last segment of the document path.
func (s Snapshot) ID() string {
	_, id := splitDocPath(s.Path)
	return id
}

// OwnerID is the id of the document the snapshot's collection is nested
// under, or "" for root collections.
func (s Snapshot) OwnerID() string {
	collection, _ := splitDocPath(s.Path)
	segments := strings.Split(collection, "/")
	if len(segments) < 3 {
		return ""
	}
	return segments[len(segments)-2]
}

// Store is implemented by every document store adapter.
type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, path string) (Document, error)
	// Set merges data into the document, creating it when missing.
	Set(ctx context.Context, path string, data Document) error
	// Update overwrites the given fields of an existing document.
	Update(ctx context.Context, path string, fields Document) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// List returns every document directly inside the collection.
	List(ctx context.Context, collection string) ([]Snapshot, error)
	// QueryGroup returns every document of the collection group ordered by
	// orderBy, newest (largest) first.
	QueryGroup(ctx context.Context, group, orderBy string) ([]Snapshot, error)
	// Increment atomically adds delta to a numeric field; the result never
	// drops below zero.
	Increment(ctx context.Context, path, field string, delta int64) error
	// ArrayUnion appends the values not already present in the array field.
	ArrayUnion(ctx context.Context, path, field string, values ...any) error
	// ArrayRemove removes every occurrence of the values from the array field.
	ArrayRemove(ctx context.Context, path, field string, values ...any) error
}

// Collection and document names shared by the storage layer.
const (
	UsersCollection   = "users"
	StoriesCollection = "stories"
)

// UserPath is the profile document of uid.
func UserPath(uid string) string {
	return UsersCollection + "/" + uid
}

// UserStoriesPath is the stories sub-collection owned by uid.
func UserStoriesPath(uid string) string {
	return UserPath(uid) + "/" + StoriesCollection
}

// StoryPath is a story inside its author's sub-collection.
func StoryPath(authorID, storyID string) string {
	return UserStoriesPath(authorID) + "/" + storyID
}

// LegacyStoryPath is the deprecated flat location of a story.
func LegacyStoryPath(storyID string) string {
	return StoriesCollection + "/" + storyID
}

func splitDocPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func validDocPath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return nil
}

func validCollectionPath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func incremented(current any, delta int64) int64 {
	f, _ := toFloat(current)
	next := int64(f) + delta
	if next < 0 {
		return 0
	}
	return next
}

func sortByFieldDesc(snaps []Snapshot, field string) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, _ := toFloat(snaps[i].Data[field])
		b, _ := toFloat(snaps[j].Data[field])
		return a > b
	})
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneDocument(e)
		}
		return out
	}
	return v
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func asArray(v any) []any {
	switch t := cloneValue(v).(type) {
	case []any:
		return t
	}
	return nil
}

// sameValue compares array elements across adapters, where numbers may come
// back as float64 after a JSON round trip.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func unionValues(current []any, values []any) []any {
	out := current
	for _, v := range values {
		v = cloneValue(v)
		found := false
		for _, existing := range out {
			if sameValue(existing, v) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out
}

func removeValues(current []any, values []any) []any {
	out := make([]any, 0, len(current))
	for _, existing := range current {
		drop := false
		for _, v := range values {
			if sameValue(existing, v) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, existing)
		}
	}
	return out
}

func sortByPath(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Path < snaps[j].Path })
}

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per document under basePath, mirroring the
// document path: users/u1/stories/s1 -> <base>/users/u1/stories/s1.json.
// It is meant for local development (STORE_DRIVER=file).
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

func NewFileStore(basePath string) (*FileStore, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) file(path string) string {
	return filepath.Join(f.basePath, filepath.FromSlash(path)) + ".json"
}

func (f *FileStore) read(path string) (Document, error) {
	data, err := os.ReadFile(f.file(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func (f *FileStore) write(path string, doc Document) error {
	target := f.file(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}
	// Write to a temp file first so readers never see a half-written document
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return os.Rename(tmp, target)
}

// mutate applies fn to an existing document under the write lock.
func (f *FileStore) mutate(ctx context.Context, path string, fn func(Document)) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read(path)
	if err != nil {
		return err
	}
	fn(doc)
	return f.write(path, doc)
}

func (f *FileStore) Get(ctx context.Context, path string) (Document, error) {
	if err := validDocPath(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(path)
}

func (f *FileStore) Set(ctx context.Context, path string, data Document) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read(path)
	if errors.Is(err, ErrNotFound) {
		doc = make(Document, len(data))
	} else if err != nil {
		return err
	}
	for k, v := range data {
		doc[k] = cloneValue(v)
	}
	return f.write(path, doc)
}

func (f *FileStore) Update(ctx context.Context, path string, fields Document) error {
	return f.mutate(ctx, path, func(doc Document) {
		for k, v := range fields {
			doc[k] = cloneValue(v)
		}
	})
}

func (f *FileStore) Delete(ctx context.Context, path string) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.file(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

func (f *FileStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := validCollectionPath(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	dir := filepath.Join(f.basePath, filepath.FromSlash(collection))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading collection %s: %w", collection, err)
	}

	var out []Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := collection + "/" + strings.TrimSuffix(e.Name(), ".json")
		doc, err := f.read(path)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Path: path, Data: doc})
	}
	return out, nil
}

func (f *FileStore) QueryGroup(ctx context.Context, group, orderBy string) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Snapshot
	err := filepath.WalkDir(f.basePath, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		if filepath.Base(filepath.Dir(file)) != group {
			return nil
		}

		rel, err := filepath.Rel(f.basePath, file)
		if err != nil {
			return err
		}
		path := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if validDocPath(path) != nil {
			return nil
		}
		doc, err := f.read(path)
		if err != nil {
			return err
		}
		out = append(out, Snapshot{Path: path, Data: doc})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking the path: %w", err)
	}

	sortByPath(out)
	sortByFieldDesc(out, orderBy)
	return out, nil
}

func (f *FileStore) Increment(ctx context.Context, path, field string, delta int64) error {
	return f.mutate(ctx, path, func(doc Document) {
		doc[field] = incremented(doc[field], delta)
	})
}

func (f *FileStore) ArrayUnion(ctx context.Context, path, field string, values ...any) error {
	return f.mutate(ctx, path, func(doc Document) {
		doc[field] = unionValues(asArray(doc[field]), values)
	})
}

func (f *FileStore) ArrayRemove(ctx context.Context, path, field string, values ...any) error {
	return f.mutate(ctx, path, func(doc Document) {
		doc[field] = removeValues(asArray(doc[field]), values)
	})
}

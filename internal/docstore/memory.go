package docstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store. It backs STORE_DRIVER=memory and the tests,
// which use FailOn to simulate permission and index errors of a hosted store.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]Document
	faults map[string]error
	calls  map[string]int
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]Document),
		faults: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Operation names accepted by FailOn and Calls.
const (
	OpGet         = "get"
	OpSet         = "set"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpList        = "list"
	OpQueryGroup  = "group"
	OpIncrement   = "increment"
	OpArrayUnion  = "union"
	OpArrayRemove = "remove"
)

// FailOn makes op return err for path. An empty path matches every path.
// A nil err clears the fault.
func (m *Memory) FailOn(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + path
	if err == nil {
		delete(m.faults, key)
		return
	}
	m.faults[key] = err
}

// Calls reports how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// enter records the call and returns an injected fault, if any. Caller holds mu.
func (m *Memory) enter(op, path string) error {
	m.calls[op]++
	if err, ok := m.faults[op+":"+path]; ok {
		return err
	}
	if err, ok := m.faults[op+":"]; ok {
		return err
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	if err := validDocPath(path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGet, path); err != nil {
		return nil, err
	}
	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *Memory) Set(ctx context.Context, path string, data Document) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSet, path); err != nil {
		return err
	}
	doc, ok := m.docs[path]
	if !ok {
		doc = make(Document, len(data))
		m.docs[path] = doc
	}
	for k, v := range data {
		doc[k] = cloneValue(v)
	}
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields Document) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUpdate, path); err != nil {
		return err
	}
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		doc[k] = cloneValue(v)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDelete, path); err != nil {
		return err
	}
	delete(m.docs, path)
	return nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := validCollectionPath(collection); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpList, collection); err != nil {
		return nil, err
	}
	var out []Snapshot
	for path, doc := range m.docs {
		if parent, _ := splitDocPath(path); parent == collection {
			out = append(out, Snapshot{Path: path, Data: cloneDocument(doc)})
		}
	}
	sortByPath(out)
	return out, nil
}

func (m *Memory) QueryGroup(ctx context.Context, group, orderBy string) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpQueryGroup, group); err != nil {
		return nil, err
	}
	var out []Snapshot
	for path, doc := range m.docs {
		parent, _ := splitDocPath(path)
		if parent == group || strings.HasSuffix(parent, "/"+group) {
			out = append(out, Snapshot{Path: path, Data: cloneDocument(doc)})
		}
	}
	sortByPath(out)
	sortByFieldDesc(out, orderBy)
	return out, nil
}

func (m *Memory) Increment(ctx context.Context, path, field string, delta int64) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpIncrement, path); err != nil {
		return err
	}
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	doc[field] = incremented(doc[field], delta)
	return nil
}

func (m *Memory) ArrayUnion(ctx context.Context, path, field string, values ...any) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpArrayUnion, path); err != nil {
		return err
	}
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	doc[field] = unionValues(asArray(doc[field]), values)
	return nil
}

func (m *Memory) ArrayRemove(ctx context.Context, path, field string, values ...any) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpArrayRemove, path); err != nil {
		return err
	}
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	doc[field] = removeValues(asArray(doc[field]), values)
	return nil
}

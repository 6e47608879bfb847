package media

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type memoryObjects struct {
	puts map[string][]byte
}

func (m *memoryObjects) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[key] = body
	return "https://cdn.example/" + key, nil
}

func pngURI(n int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", n)))
}

func TestResolveCover(t *testing.T) {
	objects := &memoryObjects{}
	c := NewCovers(objects, zerolog.Nop())
	c.random = func() int { return 7 }
	ctx := context.Background()

	got, err := c.Resolve(ctx, "s1", "")
	if err != nil || got != "https://picsum.photos/800/400?random=7" {
		t.Errorf("Expected placeholder, got %q (%v)", got, err)
	}

	got, _ = c.Resolve(ctx, "s1", "https://img.example/a.jpg")
	if got != "https://img.example/a.jpg" {
		t.Errorf("Expected URL unchanged, got %q", got)
	}

	got, err = c.Resolve(ctx, "s1", pngURI(10))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !strings.HasPrefix(got, "https://cdn.example/covers/s1-") || !strings.HasSuffix(got, ".png") {
		t.Errorf("Unexpected uploaded URL %q", got)
	}
	if len(objects.puts) != 1 {
		t.Errorf("Expected one upload, got %d", len(objects.puts))
	}
}

func TestResolveCoverRejects(t *testing.T) {
	c := NewCovers(nil, zerolog.Nop())
	c.maxBytes = 8
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "s1", pngURI(9)); !errors.Is(err, ErrCoverTooLarge) {
		t.Errorf("Expected ErrCoverTooLarge, got %v", err)
	}
	if _, err := c.Resolve(ctx, "s1", "data:text/html,<b>x</b>"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType, got %v", err)
	}
	if _, err := c.Resolve(ctx, "s1", "data:image/png;base64"); !errors.Is(err, ErrInvalidDataURI) {
		t.Errorf("Expected ErrInvalidDataURI, got %v", err)
	}

	// Without an object store the data URI stays inline
	small := pngURI(4)
	if got, _ := c.Resolve(ctx, "s1", small); got != small {
		t.Errorf("Expected inline data URI, got %q", got)
	}
}

func TestParseDataURI(t *testing.T) {
	ct, data, err := ParseDataURI("data:,hello%20world")
	if err != nil || ct != "text/plain" || string(data) != "hello world" {
		t.Errorf("Unexpected parse result %q %q %v", ct, data, err)
	}

	ct, data, err = ParseDataURI("data:IMAGE/JPEG;base64," + base64.StdEncoding.EncodeToString([]byte("jpg")))
	if err != nil || ct != "image/jpeg" || string(data) != "jpg" {
		t.Errorf("Unexpected parse result %q %q %v", ct, data, err)
	}

	if _, _, err := ParseDataURI("data:image/png;base64,!!!"); !errors.Is(err, ErrInvalidDataURI) {
		t.Errorf("Expected ErrInvalidDataURI, got %v", err)
	}
}

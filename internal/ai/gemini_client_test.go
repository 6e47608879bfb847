package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeGemini serves generateContent with a canned body and records the last
// request.
type fakeGemini struct {
	status  int
	body    string
	lastReq geminiRequest
	lastURL string
}

func (f *fakeGemini) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastURL = r.URL.String()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &f.lastReq)
		w.Header().Set("Content-Type", "application/json")
		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, f.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func textBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, f *fakeGemini) *GeminiClient {
	srv := f.server(t)
	return NewGeminiClient("test-key", "", 5*time.Second, zerolog.Nop()).SetBaseURL(srv.URL)
}

func TestGenerateStoryEnhancement(t *testing.T) {
	f := &fakeGemini{body: textBody("  Polished text.  \n")}
	g := newTestClient(t, f)

	got, err := g.GenerateStoryEnhancement(context.Background(), "raw text", ActionPolish)
	if err != nil {
		t.Fatalf("GenerateStoryEnhancement failed: %v", err)
	}
	if got != "Polished text." {
		t.Errorf("Expected trimmed text, got %q", got)
	}
	if !strings.Contains(f.lastURL, "/gemini-2.5-flash:generateContent") || !strings.Contains(f.lastURL, "key=test-key") {
		t.Errorf("Unexpected request URL %s", f.lastURL)
	}
	prompt := f.lastReq.Contents[0].Parts[0].Text
	if !strings.HasPrefix(prompt, "You are a professional editor.") || !strings.HasSuffix(prompt, "Text: raw text") {
		t.Errorf("Unexpected prompt %q", prompt)
	}
	if len(f.lastReq.Tools) != 0 {
		t.Error("Enhancement must not enable search grounding")
	}
}

func TestGenerateStoryEnhancementEdgeCases(t *testing.T) {
	f := &fakeGemini{body: textBody("   ")}
	g := newTestClient(t, f)
	ctx := context.Background()

	if got, err := g.GenerateStoryEnhancement(ctx, "", ActionExpand); err != nil || got != "" {
		t.Errorf("Expected empty result for empty text, got %q (%v)", got, err)
	}
	if got, _ := g.GenerateStoryEnhancement(ctx, "keep me", ActionExpand); got != "keep me" {
		t.Errorf("Expected original text on empty response, got %q", got)
	}
	if _, err := g.GenerateStoryEnhancement(ctx, "x", Action("SHOUT")); err == nil {
		t.Error("Expected error for unknown action")
	}

	f.body = textBody(`"The Quiet Harbour"`)
	if got, _ := g.GenerateStoryEnhancement(ctx, "story", ActionTitle); got != "The Quiet Harbour" {
		t.Errorf("Expected unquoted title, got %q", got)
	}
}

func TestGenerateStoryEnhancementUnavailable(t *testing.T) {
	f := &fakeGemini{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
	}
	g := newTestClient(t, f)

	_, err := g.GenerateStoryEnhancement(context.Background(), "text", ActionSummarize)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestGenerateStoryEnhancementUnknownAction(t *testing.T) {
	f := &fakeGemini{body: textBody("unused")}
	g := newTestClient(t, f)

	for _, text := range []string{"text", ""} {
		if _, err := g.GenerateStoryEnhancement(context.Background(), text, Action("SHOUT")); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("Expected ErrUnknownAction for %q, got %v", text, err)
		}
	}
	if f.lastURL != "" {
		t.Errorf("Expected no request for an unknown action, got %s", f.lastURL)
	}
	if _, err := BuildActionPrompt("SHOUT", "text"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected BuildActionPrompt to wrap ErrUnknownAction, got %v", err)
	}
}

func TestSuggestTags(t *testing.T) {
	f := &fakeGemini{body: textBody("Love, Travel , ,Mystery,")}
	g := newTestClient(t, f)

	got := g.SuggestTags(context.Background(), "a story")
	want := []string{"Love", "Travel", "Mystery"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %v, got %v", want, got)
	}

	f.status = http.StatusInternalServerError
	f.body = `{}`
	if got := g.SuggestTags(context.Background(), "a story"); got == nil || len(got) != 0 {
		t.Errorf("Expected empty list on failure, got %v", got)
	}
}

func TestGetResearchContext(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{
				map[string]any{"text": "Lisbon was "},
				map[string]any{"text": "rebuilt after 1755."},
			}},
			"groundingMetadata": map[string]any{
				"groundingChunks": []any{
					map[string]any{"web": map[string]any{"uri": "https://a.example", "title": "A"}},
					map[string]any{"web": map[string]any{"uri": "https://b.example", "title": "B"}},
					map[string]any{"web": map[string]any{"uri": "https://a.example", "title": "A again"}},
					map[string]any{"retrievedContext": map[string]any{}},
				},
			},
		}},
	})
	f := &fakeGemini{body: string(body)}
	g := newTestClient(t, f)

	got := g.GetResearchContext(context.Background(), `the "great" earthquake`)
	if got.Text != "Lisbon was rebuilt after 1755." {
		t.Errorf("Unexpected text %q", got.Text)
	}
	if len(got.Sources) != 2 || got.Sources[0].Title != "A again" || got.Sources[1].URI != "https://b.example" {
		t.Errorf("Unexpected sources %+v", got.Sources)
	}
	if len(f.lastReq.Tools) != 1 || f.lastReq.Tools[0].GoogleSearch == nil {
		t.Error("Expected google search tool in request")
	}
	if !strings.Contains(f.lastReq.Contents[0].Parts[0].Text, `\"great\"`) {
		t.Error("Expected query quotes to be escaped")
	}
}

func TestGetResearchContextDefaults(t *testing.T) {
	f := &fakeGemini{body: textBody("")}
	g := newTestClient(t, f)

	if got := g.GetResearchContext(context.Background(), "q"); got.Text != "No information found." {
		t.Errorf("Expected default text, got %q", got.Text)
	}

	f.status = http.StatusBadGateway
	got := g.GetResearchContext(context.Background(), "q")
	if got.Text != "Failed to retrieve information." || got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("Unexpected failure response %+v", got)
	}
}

func TestDedupSources(t *testing.T) {
	got := dedupSources([]Source{
		{Title: "first", URI: "u1"},
		{Title: "other", URI: "u2"},
		{Title: "last", URI: "u1"},
	})
	want := []Source{{Title: "last", URI: "u1"}, {Title: "other", URI: "u2"}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d sources, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Source %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCleanText(t *testing.T) {
	in := "Hello<script>alert(1)</script> <iframe src=x>world\x07\r\nbye"
	if got := cleanText(in); got != "Hello world\nbye" {
		t.Errorf("Unexpected clean result %q", got)
	}
}

package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/bilgisen/anitory/internal/cache"
	"github.com/bilgisen/anitory/internal/models"
	"github.com/rs/zerolog"
)

type fakeSource struct {
	all      []models.Story
	byAuthor map[string][]models.Story
	calls    []string
}

func (f *fakeSource) GetStories(ctx context.Context, currentUserID string) []models.Story {
	f.calls = append(f.calls, "all:"+currentUserID)
	return f.all
}

func (f *fakeSource) GetStoriesByAuthor(ctx context.Context, authorID string) []models.Story {
	f.calls = append(f.calls, "author:"+authorID)
	return f.byAuthor[authorID]
}

func sampleStories() []models.Story {
	return []models.Story{
		{ID: "s1", Title: "Harbor Lights", Content: "Boats at dusk", Author: "Ada", AuthorID: "u1", Tags: []string{"Sea"}, IsFeatured: true},
		{ID: "s2", Title: "Desert Road", Content: "Heat and dust", Author: "Bo", AuthorID: "u2", Tags: []string{"travel"}},
		{ID: "s3", Title: "Night Market", Content: "Lanterns", Author: "Ada", AuthorID: "u1", Tags: []string{"food", "travel"}},
	}
}

func ids(stories []models.Story) string {
	out := make([]string, 0, len(stories))
	for _, s := range stories {
		out = append(out, s.ID)
	}
	return strings.Join(out, ",")
}

func TestFilterApply(t *testing.T) {
	stories := sampleStories()

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"empty filter keeps all", Filter{}, "s1,s2,s3"},
		{"query matches title case-insensitively", Filter{Query: "  harbor "}, "s1"},
		{"query matches tag", Filter{Query: "TRAV"}, "s2,s3"},
		{"query matches author", Filter{Query: "ada"}, "s1,s3"},
		{"featured only", Filter{Featured: true}, "s1"},
		{"author filter", Filter{AuthorID: "u2"}, "s2"},
		{"tag filter is exact", Filter{Tag: "Travel"}, "s2,s3"},
		{"combined", Filter{Query: "lantern", Tag: "food", AuthorID: "u1"}, "s3"},
		{"no match", Filter{Query: "volcano"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(tt.filter.Apply(stories)); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestProcessorSources(t *testing.T) {
	src := &fakeSource{
		all:      sampleStories(),
		byAuthor: map[string][]models.Story{"u1": {sampleStories()[0], sampleStories()[2]}},
	}
	p := NewProcessor(src)
	ctx := context.Background()

	if got := ids(p.Featured(ctx, "u9")); got != "s1" {
		t.Errorf("Expected featured s1, got %q", got)
	}
	if got := ids(p.Dashboard(ctx, "u1")); got != "s1,s3" {
		t.Errorf("Expected dashboard s1,s3, got %q", got)
	}
	if want := "all:u9,author:u1"; strings.Join(src.calls, ",") != want {
		t.Errorf("Expected calls %q, got %q", want, strings.Join(src.calls, ","))
	}
}

func TestExtractPage(t *testing.T) {
	p := NewParser()
	doc := `<html><head><title>A &amp; B</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><h1>Hello</h1><p>World &quot;here&quot;</p></body></html>`

	page := p.ExtractPage(doc)
	if page.Title != "A & B" {
		t.Errorf("Expected title %q, got %q", "A & B", page.Title)
	}
	if page.Text != `Hello World "here"` {
		t.Errorf("Unexpected text %q", page.Text)
	}

	p.maxChars = 12
	page = p.ExtractPage("<p>alpha beta gamma delta</p>")
	if page.Text != "alpha beta..." {
		t.Errorf("Expected truncated text, got %q", page.Text)
	}
}

func TestTruncateWordsKeepsRunes(t *testing.T) {
	s := strings.Repeat("物語", 10)
	for limit := 1; limit < len(s); limit++ {
		got := truncateWords(s, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("truncateWords(%d) produced invalid UTF-8 %q", limit, got)
		}
		if !strings.HasSuffix(got, "...") || len(got)-3 > limit {
			t.Errorf("truncateWords(%d) = %q", limit, got)
		}
	}
	if got := truncateWords("ab 物語", 5); got != "ab..." {
		t.Errorf("Expected cut at the space, got %q", got)
	}
}

func TestFetchPageCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<title>Trip</title><p>We left at dawn.</p>"))
	}))
	defer srv.Close()

	mock := cache.NewMockRedisClient()
	f := NewFetcher(mock, zerolog.Nop())
	f.allowPrivate = true
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		page, err := f.FetchPage(ctx, srv.URL+"/story")
		if err != nil {
			t.Fatalf("FetchPage failed: %v", err)
		}
		if page.Title != "Trip" || page.Text != "Trip We left at dawn." {
			t.Errorf("Unexpected page %+v", page)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one upstream request, got %d", hits.Load())
	}
	if keys := mock.Keys(pageKeyPrefix); len(keys) != 1 {
		t.Errorf("Expected one cached page, got %v", keys)
	}
}

func TestFetchPageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(nil, zerolog.Nop())
	f.allowPrivate = true
	f.client.SetRetryCount(0)
	ctx := context.Background()

	if _, err := f.FetchPage(ctx, "ftp://example.com/x"); !errors.Is(err, ErrUnsupportedURL) {
		t.Errorf("Expected ErrUnsupportedURL, got %v", err)
	}
	if _, err := f.FetchPage(ctx, srv.URL); err == nil {
		t.Error("Expected error for 404 response")
	}
}

func TestFetchPageRefusesLocalAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("metadata token"))
	}))
	defer srv.Close()
	port := srv.URL[strings.LastIndex(srv.URL, ":"):]

	f := NewFetcher(nil, zerolog.Nop())
	ctx := context.Background()

	urls := []string{
		srv.URL + "/latest/meta-data",
		"http://localhost" + port + "/latest/meta-data",
		"http://169.254.169.254/latest/meta-data",
		"http://10.0.0.8/",
		"http://[::1]" + port + "/",
		"http://0.0.0.0" + port + "/",
	}
	for _, u := range urls {
		if _, err := f.FetchPage(ctx, u); !errors.Is(err, ErrBlockedHost) {
			t.Errorf("FetchPage(%s) = %v, want ErrBlockedHost", u, err)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no request to reach the local server, got %d", hits.Load())
	}
}

func TestBlockedAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:127.0.0.1", true},
		{"0.0.0.0", true},
		{"93.184.216.34", false},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		if got := blockedAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("blockedAddr(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

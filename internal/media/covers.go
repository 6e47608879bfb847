// Package media turns editor cover images into stored URLs.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"github.com/bilgisen/anitory/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// MaxCoverBytes bounds a decoded cover image.
	MaxCoverBytes = 2 << 20

	coverPrefix = "covers/"
)

var (
	ErrInvalidDataURI  = errors.New("invalid data URI")
	ErrCoverTooLarge   = errors.New("The story content or image is too large. Please shorten the content or use a smaller image.")
	ErrUnsupportedType = errors.New("unsupported cover image type")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ObjectStore is where uploaded covers end up.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Covers resolves the cover image of a story being published.
type Covers struct {
	store    ObjectStore
	maxBytes int
	random   func() int
	log      zerolog.Logger
}

// NewCovers returns a resolver. A nil store keeps data URIs inline in the
// story document.
func NewCovers(store ObjectStore, log zerolog.Logger) *Covers {
	return &Covers{
		store:    store,
		maxBytes: MaxCoverBytes,
		random:   func() int { return rand.Intn(1000) },
		log:      log,
	}
}

// DefaultCoverURL is the placeholder used when a story has no cover.
func DefaultCoverURL(n int) string {
	return fmt.Sprintf("https://picsum.photos/800/400?random=%d", n)
}

// Resolve returns the cover to store: a placeholder for an empty cover, the
// uploaded URL for a data URI, and any other value unchanged.
func (c *Covers) Resolve(ctx context.Context, storyID, cover string) (string, error) {
	cover = strings.TrimSpace(cover)
	if cover == "" {
		return DefaultCoverURL(c.random()), nil
	}
	if !strings.HasPrefix(cover, "data:") {
		return cover, nil
	}

	contentType, data, err := ParseDataURI(cover)
	if err != nil {
		return "", err
	}
	if len(data) > c.maxBytes {
		return "", ErrCoverTooLarge
	}
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	if c.store == nil {
		return cover, nil
	}

	key := coverPrefix + storyID + "-" + utils.ShortHash(data, 16) + ext
	location, err := c.store.Put(ctx, key, contentType, data)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("story_id", storyID).Str("key", key).Int("bytes", len(data)).Msg("Uploaded cover image")
	return location, nil
}

// ParseDataURI decodes "data:<type>[;base64],<data>".
func ParseDataURI(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	isBase64 := false
	contentType := "text/plain"
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			contentType = strings.ToLower(strings.TrimSpace(part))
		case part == "base64":
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		return contentType, data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return contentType, []byte(decoded), nil
}

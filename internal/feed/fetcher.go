package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/bilgisen/anitory/internal/cache"
	"github.com/bilgisen/anitory/internal/utils"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	pageKeyPrefix = "page_"
	pageTTL       = 6 * time.Hour
	maxPageBytes  = 2 << 20
)

var (
	ErrUnsupportedURL = errors.New("only http and https story URLs can be fetched")
	ErrBlockedHost    = errors.New("story URL points to a private or local address")
)

// Fetcher downloads the page behind a story URL. Extracted pages are cached
// when a cache is configured.
type Fetcher struct {
	client *resty.Client
	parser *Parser
	cache  cache.RedisInterface
	log    zerolog.Logger

	// allowPrivate lets tests fetch from loopback servers.
	allowPrivate bool
}

func NewFetcher(c cache.RedisInterface, log zerolog.Logger) *Fetcher {
	f := &Fetcher{
		parser: NewParser(),
		cache:  c,
		log:    log,
	}

	// Every connection, redirects included, is checked after DNS resolution.
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   f.checkDial,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	f.client = resty.New().
		SetTransport(transport).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return err != nil && !errors.Is(err, ErrBlockedHost)
		}).
		SetResponseBodyLimit(maxPageBytes).
		SetHeader("User-Agent", "AnitoryBot/1.0 (+https://anitory.app)")
	return f
}

// checkDial refuses connections to loopback, private, link-local, multicast
// and unspecified addresses.
func (f *Fetcher) checkDial(network, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	if blockedAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	return nil
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}

func pageKey(rawURL string) string {
	return pageKeyPrefix + utils.ShortHash([]byte(rawURL), 24)
}

// FetchPage returns the readable text of rawURL.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrUnsupportedURL
	}
	rawURL = u.String()
	if addr, err := netip.ParseAddr(u.Hostname()); err == nil && !f.allowPrivate && blockedAddr(addr) {
		return nil, ErrBlockedHost
	}

	if page := f.cached(ctx, rawURL); page != nil {
		return page, nil
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml,text/plain").
		Get(rawURL)
	if err != nil {
		if errors.Is(err, ErrBlockedHost) {
			return nil, ErrBlockedHost
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode(), rawURL)
	}

	body := resp.Body()

	var page Page
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "text/plain") {
		page = Page{Text: truncateWords(strings.Join(strings.Fields(string(body)), " "), f.parser.maxChars)}
	} else {
		page = f.parser.ExtractPage(string(body))
	}

	f.store(ctx, rawURL, page)
	return &page, nil
}

func (f *Fetcher) cached(ctx context.Context, rawURL string) *Page {
	if f.cache == nil {
		return nil
	}
	data, err := f.cache.Get(ctx, pageKey(rawURL))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			f.log.Warn().Err(err).Str("url", rawURL).Msg("Page cache read failed")
		}
		return nil
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil
	}
	return &page
}

func (f *Fetcher) store(ctx context.Context, rawURL string, page Page) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, pageKey(rawURL), data, pageTTL); err != nil {
		f.log.Warn().Err(err).Str("url", rawURL).Msg("Page cache write failed")
	}
}

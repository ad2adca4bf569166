// Package scrape resolves public profile photos from the t.me preview pages
// without an authorized session.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public preview-page host.
const DefaultBaseURL = "https://t.me"

// photoClass marks the profile image element on a preview page.
const photoClass = "tgme_page_photo_image"

// maxBody caps how much of a page or image is read.
const maxBody = 4 << 20

// ErrNoPhoto means the preview page carries no public photo.
var ErrNoPhoto = errors.New("no public photo on preview page")

// Scraper fetches preview pages and their photo images.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Scraper. ratePerSec <= 0 disables rate limiting; a nil client
// falls back to http.DefaultClient.
func New(baseURL string, client *http.Client, ratePerSec float64) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Scraper{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Photo returns the image payload for handle's public photo.
func (s *Scraper) Photo(ctx context.Context, handle string) ([]byte, error) {
	pageURL := s.baseURL + "/" + url.PathEscape(strings.TrimPrefix(handle, "@"))
	page, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	src, err := photoSrc(page)
	if err != nil {
		return nil, err
	}
	imgURL, err := resolve(pageURL, src)
	if err != nil {
		return nil, err
	}
	img, err := s.get(ctx, imgURL)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, ErrNoPhoto
	}
	return img, nil
}

func (s *Scraper) get(ctx context.Context, u string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return body, nil
}

// photoSrc returns the src of the first <img> carrying the photo class.
func photoSrc(page []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("parse preview page: %w", err)
	}
	var src string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "img" && hasClass(n, photoClass) {
			src = attr(n, "src")
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(doc) || src == "" {
		return "", ErrNoPhoto
	}
	return src, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse photo src: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}

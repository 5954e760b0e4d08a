// Package crawler fetches web pages and turns them into clean documents
// ready for chunking. Discovery is sitemap-first: when a site publishes a
// sitemap the crawler fetches the listed URLs directly, otherwise it follows
// in-domain links from the starting page.
package crawler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"web-research-assistant/internal/logger"
	"web-research-assistant/models"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Config holds the parameters for one crawl job.
type Config struct {
	URL          string
	MaxPages     int
	AllowedPaths []string
	FollowLinks  bool
	Timeout      time.Duration
	SkipSitemap  bool // force link-following discovery
	MinPageWords int
	LinksPerPage int
	RequestDelay time.Duration
}

// Result is the outcome of a crawl: the documents fetched plus counters for
// reporting.
type Result struct {
	StartURL     string
	Documents    []models.Document
	PagesFound   int
	PagesCrawled int
	FromSitemap  bool
}

// Crawl fetches up to cfg.MaxPages documents starting from cfg.URL.
func Crawl(cfg Config) (*Result, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", models.ErrInvalidInput, cfg.URL, err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
		cfg.URL = parsed.String()
	}
	startURL, err := normalizeURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", models.ErrInvalidInput, cfg.URL, err)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MinPageWords <= 0 {
		cfg.MinPageWords = 10
	}
	if cfg.LinksPerPage <= 0 {
		cfg.LinksPerPage = 20
	}

	result := &Result{StartURL: startURL}

	if !cfg.SkipSitemap {
		urls, err := DiscoverSitemapURLs(startURL, cfg.MaxPages, cfg.Timeout)
		if err == nil && len(urls) > 0 {
			logger.Info("using sitemap discovery", "url", startURL, "pages", len(urls))
			result.FromSitemap = true
			result.PagesFound = len(urls)
			result.Documents = fetchPages(urls, cfg)
			result.PagesCrawled = len(result.Documents)
			if len(result.Documents) == 0 {
				return nil, fmt.Errorf("%w: sitemap listed %d pages but none yielded content", models.ErrFetch, len(urls))
			}
			return result, nil
		}
		logger.Debug("no usable sitemap, falling back to link crawl", "url", startURL)
	}

	docs, found, err := crawlLinks(startURL, cfg)
	if err != nil {
		return nil, err
	}
	result.Documents = docs
	result.PagesFound = found
	result.PagesCrawled = len(docs)
	return result, nil
}

// fetchPages visits a known URL list with a fresh collector, no link
// following.
func fetchPages(urls []string, cfg Config) []models.Document {
	sub := cfg
	sub.FollowLinks = false
	var (
		mu   sync.Mutex
		docs []models.Document
	)

	c := newCollector(cfg, hostOf(urls[0]))
	c.OnHTML("html", func(e *colly.HTMLElement) {
		doc, ok := documentFromHTML(e, cfg.MinPageWords)
		if !ok {
			return
		}
		mu.Lock()
		if len(docs) < cfg.MaxPages {
			docs = append(docs, doc)
		}
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		logger.Warn("page fetch failed", "url", r.Request.URL.String(),
			"status", r.StatusCode, "error", err)
	})

	for i, u := range urls {
		if i >= cfg.MaxPages {
			break
		}
		c.Visit(u)
	}
	c.Wait()
	return docs
}

// crawlLinks discovers pages by following in-domain links from the start URL.
func crawlLinks(startURL string, cfg Config) ([]models.Document, int, error) {
	var (
		mu    sync.Mutex
		docs  []models.Document
		found int
	)
	var startErr error
	queued := sync.Map{}

	c := newCollector(cfg, hostOf(startURL))

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		found++
		mu.Unlock()
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		doc, ok := documentFromHTML(e, cfg.MinPageWords)
		if ok {
			mu.Lock()
			if len(docs) < cfg.MaxPages {
				docs = append(docs, doc)
			}
			full := len(docs) >= cfg.MaxPages
			mu.Unlock()
			if full {
				return
			}
		}
		if !cfg.FollowLinks {
			return
		}

		links := 0
		e.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			if links >= cfg.LinksPerPage {
				return
			}
			href, exists := s.Attr("href")
			if !exists || skipHref(href) {
				return
			}
			abs := e.Request.AbsoluteURL(href)
			if abs == "" {
				return
			}
			normalized, err := normalizeURL(abs)
			if err != nil || !urlAllowed(normalized, cfg) {
				return
			}
			if _, dup := queued.LoadOrStore(normalized, true); dup {
				return
			}
			links++
			c.Visit(normalized)
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		reqURL, _ := normalizeURL(r.Request.URL.String())
		if reqURL != startURL {
			logger.Warn("page fetch failed", "url", r.Request.URL.String(),
				"status", r.StatusCode, "error", err)
			return
		}
		switch {
		case r.StatusCode == http.StatusForbidden:
			startErr = fmt.Errorf("%w: access forbidden (403), the site blocks crawlers", models.ErrFetch)
		case r.StatusCode == http.StatusTooManyRequests:
			startErr = fmt.Errorf("%w: rate limited (429), retry later", models.ErrFetch)
		case r.StatusCode >= 500:
			startErr = fmt.Errorf("%w: server error (%d)", models.ErrFetch, r.StatusCode)
		default:
			startErr = fmt.Errorf("%w: fetching %s: %v", models.ErrFetch, startURL, err)
		}
	})

	queued.Store(startURL, true)
	logger.Info("starting link crawl", "url", startURL, "max_pages", cfg.MaxPages)
	if err := c.Visit(startURL); err != nil {
		return nil, 0, fmt.Errorf("%w: starting crawl of %s: %v", models.ErrFetch, startURL, err)
	}
	c.Wait()

	if len(docs) == 0 {
		if startErr != nil {
			return nil, found, startErr
		}
		return nil, found, fmt.Errorf("%w: no page at %s had enough content to index", models.ErrFetch, startURL)
	}
	return docs, found, nil
}

// newCollector builds a collector locked to one host, with browser-like
// headers and response decoding. Each crawl gets a fresh collector so visit
// state never leaks between jobs.
func newCollector(cfg Config, host string) *colly.Collector {
	bare := strings.TrimPrefix(strings.ToLower(host), "www.")
	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(2),
		colly.AllowedDomains(bare, "www."+bare),
	)
	c.WithTransport(httpTransport)
	c.UserAgent = browserUserAgent

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c.SetRequestTimeout(timeout)

	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	})

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		if u, err := url.Parse(r.URL.String()); err == nil {
			r.Headers.Set("Referer", fmt.Sprintf("%s://%s/", u.Scheme, u.Host))
		}
	})

	// Brotli and charset decoding: Go's transport only handles gzip.
	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") &&
			!strings.Contains(contentType, "application/xhtml+xml") {
			return
		}
		var body io.Reader = bytes.NewReader(r.Body)
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(body)); err == nil {
				r.Body = decompressed
				body = bytes.NewReader(decompressed)
			}
		}
		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(body, contentType); err == nil {
				if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}
	})

	return c
}

// documentFromHTML extracts a document from a fetched page, rejecting pages
// below the word threshold.
func documentFromHTML(e *colly.HTMLElement, minWords int) (models.Document, bool) {
	pageURL, err := normalizeURL(e.Request.URL.String())
	if err != nil {
		return models.Document{}, false
	}

	title := strings.TrimSpace(e.DOM.Find("title").Text())
	text := extractMainContent(e.DOM)
	if len(strings.Fields(text)) < minWords {
		return models.Document{}, false
	}

	return models.Document{
		ID:        models.NewDocumentID(pageURL),
		URL:       pageURL,
		Title:     title,
		Text:      text,
		FetchedAt: time.Now(),
	}, true
}

// extractMainContent prefers semantic content containers over raw body text
// and strips navigation chrome.
func extractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads").Remove()

	selectors := []string{"main", "article", "[role='main']", ".main-content", ".content", "#content", ".post", ".entry", "body"}

	var content strings.Builder
	for _, sel := range selectors {
		found := false
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				found = true
			}
		})
		if found {
			break
		}
	}
	if content.Len() == 0 {
		content.WriteString(doc.Find("body").Text())
	}

	lines := strings.Split(strings.TrimSpace(content.String()), "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// normalizeURL canonicalizes a URL for duplicate detection: lowercase scheme
// and host, fragment dropped, trailing slash trimmed on non-root paths,
// default ports removed.
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	parsed.Fragment = ""

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if (parsed.Port() == "80" && parsed.Scheme == "http") ||
		(parsed.Port() == "443" && parsed.Scheme == "https") {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return ""
}

func skipHref(href string) bool {
	lower := strings.ToLower(href)
	return href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:")
}

// urlAllowed filters link candidates to indexable in-path HTML pages.
func urlAllowed(urlStr string, cfg Config) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	if len(cfg.AllowedPaths) > 0 {
		ok := false
		for _, p := range cfg.AllowedPaths {
			if strings.HasPrefix(parsed.Path, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	excluded := []string{
		"/wp-json/", "/api/", "/ajax/", "/feed/", "/rss/", "/atom/",
		"/wp-admin/", "/wp-includes/", "/search?", "/?s=",
		".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js", ".xml",
	}
	pathLower := strings.ToLower(parsed.Path)
	queryLower := strings.ToLower(parsed.RawQuery)
	for _, pattern := range excluded {
		if strings.Contains(pathLower, pattern) || strings.Contains(queryLower, pattern) {
			return false
		}
	}
	return true
}

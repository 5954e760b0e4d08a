package crawler

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxSitemapDepth = 3

type sitemapIndex struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

// DiscoverSitemapURLs fetches /sitemap.xml for the site of startURL and
// returns up to maxPages page URLs, recursing into sitemap index files.
// Returns an error when the site has no parsable sitemap.
func DiscoverSitemapURLs(startURL string, maxPages int, timeout time.Duration) ([]string, error) {
	parsed, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}
	sitemapURL := fmt.Sprintf("%s://%s/sitemap.xml", parsed.Scheme, parsed.Host)

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout, Transport: httpTransport}

	var urls []string
	if err := collectSitemap(client, sitemapURL, maxPages, maxSitemapDepth, &urls); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap at %s lists no pages", sitemapURL)
	}
	return urls, nil
}

func collectSitemap(client *http.Client, loc string, maxPages, depth int, urls *[]string) error {
	if depth <= 0 || len(*urls) >= maxPages {
		return nil
	}

	body, err := fetchSitemap(client, loc)
	if err != nil {
		return err
	}

	// A sitemap is either an index of further sitemaps or a URL set.
	var idx sitemapIndex
	if xml.Unmarshal(body, &idx) == nil && len(idx.Sitemaps) > 0 {
		for _, ref := range idx.Sitemaps {
			if len(*urls) >= maxPages {
				break
			}
			if err := collectSitemap(client, ref.Loc, maxPages, depth-1, urls); err != nil {
				continue // one broken sub-sitemap must not sink the rest
			}
		}
		return nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("parsing sitemap %s: %w", loc, err)
	}
	for _, u := range set.URLs {
		if len(*urls) >= maxPages {
			break
		}
		if normalized, err := normalizeURL(u.Loc); err == nil {
			*urls = append(*urls, normalized)
		}
	}
	return nil
}

func fetchSitemap(client *http.Client, loc string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap %s returned status %d", loc, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

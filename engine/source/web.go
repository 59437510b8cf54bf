package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/fn"
	"github.com/beaconrag/beacon/pkg/resilience"
)

// WebCrawlerConfig controls breadth-first web crawling.
type WebCrawlerConfig struct {
	UserAgent      string
	Concurrency    int
	RequestsPerSec float64
	MaxFileSize    int64
	RespectRobots  bool
}

// DefaultWebCrawlerConfig provides sensible defaults.
var DefaultWebCrawlerConfig = WebCrawlerConfig{
	UserAgent:      "BeaconBot/1.0",
	Concurrency:    4,
	RequestsPerSec: 2,
	MaxFileSize:    25 * 1024 * 1024,
	RespectRobots:  true,
}

// WebCrawler is a breadth-first, per-host rate-limited crawler that
// discovers linked pages and downloadable documents under a root URL.
type WebCrawler struct {
	cfg     WebCrawlerConfig
	client  *http.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
}

// NewWebCrawler creates a WebCrawler with the given config.
func NewWebCrawler(cfg WebCrawlerConfig) *WebCrawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultWebCrawlerConfig.Concurrency
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultWebCrawlerConfig.RequestsPerSec
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultWebCrawlerConfig.UserAgent
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultWebCrawlerConfig.MaxFileSize
	}
	return &WebCrawler{
		cfg:     cfg,
		client:  &http.Client{Timeout: 300 * time.Second},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec)+1),
	}
}

var _ Adapter = (*WebCrawler)(nil)

// Fetch crawls breadth-first from rootURL up to depth hops, respecting
// robots.txt when configured, and emits a Document per fetched page or file.
func (c *WebCrawler) Fetch(ctx context.Context, rootURL string, depth int) (<-chan Document, <-chan error) {
	docCh := make(chan Document, 16)
	errCh := make(chan error, 4)

	go func() {
		defer close(docCh)
		defer close(errCh)

		var disallow []string
		if c.cfg.RespectRobots {
			disallow = c.fetchRobotsDisallow(ctx, rootURL)
		}

		visited := sync.Map{}
		sem := make(chan struct{}, c.cfg.Concurrency)

		currentWave := []string{rootURL}
		for hop := 0; len(currentWave) > 0 && ctx.Err() == nil; hop++ {
			var wg sync.WaitGroup
			var mu sync.Mutex
			var nextWave []string

			for _, u := range currentWave {
				if _, loaded := visited.LoadOrStore(u, true); loaded {
					continue
				}
				if robotsDisallows(disallow, u) {
					continue
				}

				sem <- struct{}{}
				wg.Add(1)
				go func(pageURL string) {
					defer wg.Done()
					defer func() { <-sem }()

					doc, links, err := c.fetchOne(ctx, pageURL)
					if err != nil {
						select {
						case errCh <- domain.Wrap(domain.CodeSourceUnreachable, err, "fetching %s", pageURL):
						default:
						}
						return
					}
					if doc != nil {
						select {
						case docCh <- *doc:
						case <-ctx.Done():
							return
						}
					}
					if hop < depth {
						mu.Lock()
						nextWave = append(nextWave, links...)
						mu.Unlock()
					}
				}(u)
			}
			wg.Wait()
			currentWave = nextWave
		}
	}()

	return docCh, errCh
}

func (c *WebCrawler) fetchOne(ctx context.Context, pageURL string) (*Document, []string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	result := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]byte] {
		return fn.RetryStage(fn.DefaultRetry, func(ctx context.Context, u string) fn.Result[[]byte] {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return fn.Err[[]byte](err)
			}
			req.Header.Set("User-Agent", c.cfg.UserAgent)
			resp, err := c.client.Do(req)
			if err != nil {
				return fn.Err[[]byte](err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fn.Errf[[]byte]("status %d", resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxFileSize))
			if err != nil {
				return fn.Err[[]byte](err)
			}
			return fn.Ok(body)
		})(ctx, pageURL)
	})

	body, err := result.Unwrap()
	if err != nil {
		return nil, nil, err
	}

	mime := "text/html"
	if strings.HasSuffix(strings.ToLower(pageURL), ".pdf") {
		mime = "application/pdf"
	} else if strings.HasSuffix(strings.ToLower(pageURL), ".csv") {
		mime = "text/csv"
	}

	doc := &Document{DisplayName: pageURL, SourceURL: pageURL, MimeType: mime, Body: body}

	var links []string
	if mime == "text/html" {
		links = extractLinks(body, pageURL)
	}
	return doc, links, nil
}

// extractLinks parses an HTML document and returns same-host absolute links.
func extractLinks(body []byte, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []string
	gq.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		abs, err := base.Parse(href)
		if err != nil {
			return
		}
		if abs.Host != base.Host {
			return
		}
		abs.Fragment = ""
		links = append(links, abs.String())
	})
	return links
}

// CleanText extracts visible body text from an HTML document, dropping
// script/style/nav/header/footer chrome, using goquery rather than
// hand-rolled tag scanning.
func CleanText(body []byte) (string, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	gq.Find("script, style, nav, header, footer, noscript").Remove()
	text := gq.Find("body").Text()
	return strings.TrimSpace(collapseWhitespace(text)), nil
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func (c *WebCrawler) fetchRobotsDisallow(ctx context.Context, rootURL string) []string {
	base, err := url.Parse(rootURL)
	if err != nil {
		return nil
	}
	robotsURL := base.Scheme + "://" + base.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	return parseRobotsDisallow(string(body))
}

// parseRobotsDisallow extracts Disallow paths under a User-agent: * block.
func parseRobotsDisallow(robots string) []string {
	var disallow []string
	inWildcard := false
	for _, line := range strings.Split(robots, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			agent := strings.TrimSpace(line[len("user-agent:"):])
			inWildcard = agent == "*"
		case inWildcard && strings.HasPrefix(lower, "disallow:"):
			path := strings.TrimSpace(line[len("disallow:"):])
			if path != "" {
				disallow = append(disallow, path)
			}
		}
	}
	return disallow
}

func robotsDisallows(disallow []string, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, prefix := range disallow {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	return false
}

package ingest

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gobwas/glob"
	"github.com/gocolly/colly/v2"

	"promptman-backend/internal/convert"
)

// CrawlOptions configure one website crawl. Zero values mean "apply the
// default"; the caller is expected to have filled defaults and enforced
// bounds before the crawl starts.
type CrawlOptions struct {
	MaxDepth     int // 0 = start page only
	MaxPages     int // at least 1
	StayOnDomain bool
	Include      []string // whole-URL wildcard patterns
	Exclude      []string // whole-URL wildcard patterns, win over Include
	Keywords     []string // switches traversal to relevance-scored order
}

// PageError is a non-fatal per-page failure collected during a crawl.
type PageError struct {
	URL string
	Err string
}

// CrawlStats is the analytics side of a crawl outcome.
type CrawlStats struct {
	PagesVisited int
	Bytes        int64
	PageErrors   []PageError
}

// Crawler fetches websites through a colly collector. Breadth-first by
// default; supplying keywords switches to best-first ordering by
// keyword match strength. Include/exclude patterns gate which links
// join the frontier, with exclude taking priority.
type Crawler struct {
	crawlTimeout time.Duration
	pageTimeout  time.Duration
	logger       *slog.Logger
}

func NewCrawler(crawlTimeout, pageTimeout time.Duration, logger *slog.Logger) *Crawler {
	return &Crawler{crawlTimeout: crawlTimeout, pageTimeout: pageTimeout, logger: logger}
}

type page struct {
	url     string
	content string
}

type link struct {
	url    string
	anchor string
}

// Crawl visits startURL and linked pages according to opts and renders
// the visited pages as one document. Empty results are warnings, not
// failures; only engine-level problems (bad start URL, bad patterns,
// overall timeout) produce an error result.
func (c *Crawler) Crawl(ctx context.Context, startURL string, opts CrawlOptions) (convert.Result, CrawlStats) {
	var stats CrawlStats

	start, err := url.Parse(startURL)
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return convert.Errorf("Invalid Start URL",
			fmt.Sprintf("`%s` is not a crawlable http(s) URL.", startURL)), stats
	}

	filter, err := newURLFilter(opts.Include, opts.Exclude)
	if err != nil {
		return convert.Errorf("Invalid URL Pattern", err.Error()), stats
	}

	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}

	deadline := time.Now().Add(c.crawlTimeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	collector := colly.NewCollector()
	collector.SetRequestTimeout(c.pageTimeout)
	if opts.StayOnDomain {
		// both forms so hosts with an explicit port stay allowed
		collector.AllowedDomains = []string{start.Hostname(), start.Host}
	}

	// per-visit capture; visits run one at a time
	var (
		current      *page
		currentLinks []link
	)

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		current = &page{url: e.Request.URL.String(), content: extractPageText(e.DOM)}

		e.ForEach("a[href]", func(_ int, a *colly.HTMLElement) {
			href := a.Request.AbsoluteURL(a.Attr("href"))
			if href == "" {
				return
			}
			currentLinks = append(currentLinks, link{url: href, anchor: strings.TrimSpace(a.Text)})
		})
	})

	collector.OnResponse(func(_ *colly.Response) {
		stats.PagesVisited++
	})

	collector.OnError(func(r *colly.Response, visitErr error) {
		u := startURL
		if r != nil && r.Request != nil {
			u = r.Request.URL.String()
		}
		stats.PageErrors = append(stats.PageErrors, PageError{URL: u, Err: visitErr.Error()})
		c.logger.Warn("page fetch failed", slog.String("url", u), slog.String("error", visitErr.Error()))
	})

	frontier := newFrontier(opts.Keywords)
	frontier.push(start.String(), "", 0)
	visited := map[string]struct{}{start.String(): {}}

	var pages []page
	for frontier.len() > 0 && len(pages) < opts.MaxPages {
		if runCtx.Err() != nil {
			return convert.Errorf("Operation Timed Out",
				fmt.Sprintf("The crawl operation for `%s` timed out after %s.", startURL, c.crawlTimeout)), stats
		}

		item := frontier.pop()
		current, currentLinks = nil, nil

		if err := collector.Visit(item.url); err != nil {
			// already counted through OnError for transport failures;
			// anything else (filtered, revisit) is just skipped
			continue
		}

		if current != nil {
			if current.content != "" {
				stats.Bytes += int64(len(current.content))
			}
			pages = append(pages, *current)
		}

		if item.depth >= opts.MaxDepth {
			continue
		}
		for _, l := range currentLinks {
			if !crawlable(l.url, start, opts.StayOnDomain) {
				continue
			}
			if !filter.allow(l.url) {
				continue
			}
			if _, ok := visited[l.url]; ok {
				continue
			}
			visited[l.url] = struct{}{}
			frontier.push(l.url, l.anchor, item.depth+1)
		}
	}

	c.logger.Info("crawl finished",
		slog.String("url", startURL),
		slog.Int("pages_visited", stats.PagesVisited),
		slog.Int("pages_rendered", len(pages)),
		slog.Int("page_errors", len(stats.PageErrors)),
	)

	return renderPages(startURL, pages, stats), stats
}

func renderPages(startURL string, pages []page, stats CrawlStats) convert.Result {
	if stats.PagesVisited == 0 {
		return convert.Warningf("No Pages Crawled",
			fmt.Sprintf("No pages could be fetched from `%s`. The site may be unreachable or entirely filtered out.", startURL))
	}

	var fragments []page
	for _, p := range pages {
		if p.content != "" {
			fragments = append(fragments, p)
		}
	}
	if len(fragments) == 0 {
		return convert.Warningf("No Content Extracted",
			fmt.Sprintf("Pages were fetched from `%s` but no text content could be extracted.", startURL))
	}

	if len(fragments) == 1 {
		return convert.Result{Kind: convert.KindOK, Content: fragments[0].content}
	}

	var b strings.Builder
	for i, p := range fragments {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString("## Page: " + p.url + "\n\n")
		b.WriteString(p.content)
	}
	return convert.Result{Kind: convert.KindOK, Content: b.String()}
}

func crawlable(raw string, start *url.URL, stayOnDomain bool) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if stayOnDomain && u.Hostname() != start.Hostname() {
		return false
	}
	return true
}

// urlFilter applies whole-URL wildcard patterns; a URL matching any
// exclude pattern is dropped even when an include pattern matches it.
type urlFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func newURLFilter(include, exclude []string) (*urlFilter, error) {
	compile := func(patterns []string) ([]glob.Glob, error) {
		var out []glob.Glob
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			g, err := glob.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid URL pattern %q: %w", p, err)
			}
			out = append(out, g)
		}
		return out, nil
	}

	inc, err := compile(include)
	if err != nil {
		return nil, err
	}
	exc, err := compile(exclude)
	if err != nil {
		return nil, err
	}
	return &urlFilter{include: inc, exclude: exc}, nil
}

func (f *urlFilter) allow(u string) bool {
	for _, g := range f.exclude {
		if g.Match(u) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(u) {
			return true
		}
	}
	return false
}

// frontier is the visitation queue: FIFO without keywords, a max-heap
// on keyword match strength with them. Score changes order only, never
// the accept/reject decision.
type frontier struct {
	keywords []string
	fifo     []frontierItem
	heap     scoredHeap
	seq      int
}

type frontierItem struct {
	url   string
	depth int
	score int
	seq   int
}

func newFrontier(keywords []string) *frontier {
	var cleaned []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return &frontier{keywords: cleaned}
}

func (f *frontier) scored() bool { return len(f.keywords) > 0 }

func (f *frontier) push(u, anchor string, depth int) {
	item := frontierItem{url: u, depth: depth, seq: f.seq}
	f.seq++

	if !f.scored() {
		f.fifo = append(f.fifo, item)
		return
	}

	haystack := strings.ToLower(u + " " + anchor)
	for _, k := range f.keywords {
		item.score += strings.Count(haystack, k)
	}
	heap.Push(&f.heap, item)
}

func (f *frontier) pop() frontierItem {
	if !f.scored() {
		item := f.fifo[0]
		f.fifo = f.fifo[1:]
		return item
	}
	return heap.Pop(&f.heap).(frontierItem)
}

func (f *frontier) len() int {
	if !f.scored() {
		return len(f.fifo)
	}
	return f.heap.Len()
}

type scoredHeap []frontierItem

func (h scoredHeap) Len() int { return len(h) }
func (h scoredHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)   { *h = append(*h, x.(frontierItem)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// extractPageText renders one fetched document as a markdown fragment:
// the page title as a heading, then the visible body text with scripts
// and styles stripped.
func extractPageText(sel *goquery.Selection) string {
	sel.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(sel.Find("title").First().Text())
	body := cleanText(sel.Find("body").Text())

	var b strings.Builder
	if title != "" {
		b.WriteString("# " + title + "\n\n")
	}
	b.WriteString(body)
	return strings.TrimSpace(b.String())
}

var (
	whitespaceRegex = regexp.MustCompile(`[ \t]+`)
	newlineRegex    = regexp.MustCompile(`\n{3,}`)
)

// cleanText normalizes extracted page text: collapses runs of spaces,
// trims line edges and squashes newline stacks.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	text = whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

package ingest_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptman-backend/internal/convert"
	"promptman-backend/internal/ingest"
	"promptman-backend/internal/logger"
)

func newTestCrawler() *ingest.Crawler {
	return ingest.NewCrawler(30*time.Second, 5*time.Second, logger.NewDefault())
}

// site serves a small linked site: / links to /a and /b, /a links to /deep.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	page := func(title, body string, links ...string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			var b strings.Builder
			fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><p>%s</p>", title, body)
			for _, l := range links {
				fmt.Fprintf(&b, `<a href="%s">link to %s</a>`, l, l)
			}
			b.WriteString("</body></html>")
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(b.String()))
		}
	}

	mux.HandleFunc("/", page("Start", "start page content", "/a", "/b"))
	mux.HandleFunc("/a", page("Page A", "content of page a", "/deep"))
	mux.HandleFunc("/b", page("Page B", "content of page b"))
	mux.HandleFunc("/deep", page("Deep", "content of deep page"))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawl_DepthZeroVisitsOnlyStartPage(t *testing.T) {
	srv := newTestSite(t)

	res, stats := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxDepth:     0,
		MaxPages:     100,
		StayOnDomain: true,
	})

	assert.Equal(t, convert.KindOK, res.Kind)
	assert.Equal(t, 1, stats.PagesVisited)
	assert.Contains(t, res.Content, "start page content")
	assert.NotContains(t, res.Content, "content of page a")
	// single page output carries no page header
	assert.NotContains(t, res.Content, "## Page:")
}

func TestCrawl_MaxPagesBound(t *testing.T) {
	srv := newTestSite(t)

	res, stats := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxDepth:     5,
		MaxPages:     2,
		StayOnDomain: true,
	})

	assert.Equal(t, convert.KindOK, res.Kind)
	assert.Equal(t, 2, stats.PagesVisited)
	// multi-page output separates fragments with page headers
	assert.Contains(t, res.Content, "## Page: ")
}

func TestCrawl_BreadthFirstOrder(t *testing.T) {
	srv := newTestSite(t)

	res, _ := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxDepth:     5,
		MaxPages:     10,
		StayOnDomain: true,
	})

	require.Equal(t, convert.KindOK, res.Kind)
	a := strings.Index(res.Content, "content of page a")
	b := strings.Index(res.Content, "content of page b")
	deep := strings.Index(res.Content, "content of deep page")
	require.True(t, a >= 0 && b >= 0 && deep >= 0)
	// siblings of the start page come before the deeper page
	assert.Less(t, a, deep)
	assert.Less(t, b, deep)
}

func TestCrawl_KeywordsSwitchToBestFirst(t *testing.T) {
	srv := newTestSite(t)

	res, _ := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxDepth:     5,
		MaxPages:     10,
		StayOnDomain: true,
		Keywords:     []string{"b"},
	})

	require.Equal(t, convert.KindOK, res.Kind)
	a := strings.Index(res.Content, "content of page a")
	b := strings.Index(res.Content, "content of page b")
	require.True(t, a >= 0 && b >= 0)
	// /b scores higher for keyword "b" and is visited before /a
	assert.Less(t, b, a)
}

func TestCrawl_ExcludeWinsOverInclude(t *testing.T) {
	srv := newTestSite(t)

	res, stats := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxDepth:     5,
		MaxPages:     10,
		StayOnDomain: true,
		Include:      []string{"*"},
		Exclude:      []string{"*/a", "*/deep"},
	})

	require.Equal(t, convert.KindOK, res.Kind)
	assert.Equal(t, 2, stats.PagesVisited) // start + /b
	assert.NotContains(t, res.Content, "content of page a")
	assert.Contains(t, res.Content, "content of page b")
}

func TestCrawl_InvalidPatternIsFatal(t *testing.T) {
	srv := newTestSite(t)

	res, _ := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxPages: 1,
		Exclude:  []string{"[invalid"},
	})

	assert.Equal(t, convert.KindError, res.Kind)
	assert.Contains(t, res.FirstLine(), "Invalid URL Pattern")
}

func TestCrawl_UnreachableSiteIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listens anymore

	res, stats := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxPages:     5,
		StayOnDomain: true,
	})

	assert.Equal(t, convert.KindWarning, res.Kind)
	assert.Contains(t, res.FirstLine(), "No Pages Crawled")
	assert.Equal(t, 0, stats.PagesVisited)
	assert.NotEmpty(t, stats.PageErrors)
}

func TestCrawl_NoExtractableContentIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head></head><body><script>var x=1;</script></body></html>"))
	}))
	t.Cleanup(srv.Close)

	res, stats := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxPages:     1,
		StayOnDomain: true,
	})

	assert.Equal(t, convert.KindWarning, res.Kind)
	assert.Contains(t, res.FirstLine(), "No Content Extracted")
	assert.Equal(t, 1, stats.PagesVisited)
}

func TestCrawl_InvalidStartURLIsError(t *testing.T) {
	res, _ := newTestCrawler().Crawl(context.Background(), "ftp://example.com", ingest.CrawlOptions{MaxPages: 1})
	assert.Equal(t, convert.KindError, res.Kind)
	assert.Contains(t, res.FirstLine(), "Invalid Start URL")
}

func TestCrawl_StayOnDomainBlocksExternalLinks(t *testing.T) {
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><title>External</title><body>external content</body></html>"))
	}))
	t.Cleanup(external.Close)

	// same server, different hostname: localhost vs 127.0.0.1
	offsite := strings.Replace(external.URL, "127.0.0.1", "localhost", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><title>Hub</title><body>hub content<a href="%s">offsite</a></body></html>`, offsite)
	}))
	t.Cleanup(srv.Close)

	res, stats := newTestCrawler().Crawl(context.Background(), srv.URL+"/", ingest.CrawlOptions{
		MaxDepth:     3,
		MaxPages:     10,
		StayOnDomain: true,
	})

	require.Equal(t, convert.KindOK, res.Kind)
	assert.Equal(t, 1, stats.PagesVisited)
	assert.NotContains(t, res.Content, "external content")
}

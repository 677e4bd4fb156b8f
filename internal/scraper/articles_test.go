package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/downloader"
	"github.com/wikimirror/wikimirror/internal/renderer"
	"github.com/wikimirror/wikimirror/internal/retry"
	"github.com/wikimirror/wikimirror/internal/rewriter"
	"github.com/wikimirror/wikimirror/pkg/models"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// wireScraper builds a scraper whose rendering endpoint and api.php
// both point at the given server, skipping the probe.
func wireScraper(t *testing.T, serverURL string, writer archive.Writer) *Scraper {
	t.Helper()

	dl := downloader.New(downloader.Options{Speed: 1, Retry: fastRetry()})
	dl.SetRenderingEndpoints(serverURL+"/page/", serverURL+"/page/")

	meta := &models.WikiMetadata{
		BaseURL:       serverURL + "/",
		WebURL:        serverURL + "/",
		APIURL:        serverURL + "/api.php/",
		MainPage:      "Main_Page",
		SiteName:      "Testpedia",
		TextDirection: "ltr",
		LangISO2:      "en",
		Namespaces:    map[string]models.Namespace{"": {ID: 0, IsContent: true}},
	}
	caps := models.Capabilities{RestAPI: true, Coordinates: true}

	s := New(Options{
		Downloader: dl,
		Writer:     writer,
		Stores:     NewMemStores(),
		Speed:      1,
	})
	s.meta = meta
	s.caps = caps
	s.rend = renderer.New(meta, caps)
	s.rw = rewriter.New(rewriter.Options{Meta: meta})
	s.mainPage = meta.MainPage
	return s
}

func TestScrapeArticles_WritesRewrittenEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/page/"):
			fmt.Fprint(w, `{
				"lead": {"displaytitle": "London", "sections": [{"id": 0,
					"text": "<p>Capital. <img src=\"/images/thumb/a/ab/Thames.jpg/220px-Thames.jpg\"></p>"}]},
				"remaining": {"sections": []}
			}`)
		case strings.HasPrefix(r.URL.Path, "/api.php"):
			fmt.Fprint(w, `{"parse": {"modules": ["startup"], "modulestyles": ["skin"], "jsconfigvars": {"wgPageName": "London"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	writer := archive.NewZipWriter(filepath.Join(t.TempDir(), "out.zip"))
	s := wireScraper(t, server.URL, writer)

	ctx := context.Background()
	detail := models.ArticleDetail{Title: "London", PageID: 1}
	if err := s.stores.ArticleDetails.Set(ctx, "London", detail); err != nil {
		t.Fatal(err)
	}

	if err := s.scrapeArticles(ctx); err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if got := s.status.Articles.Successes(); got != 1 {
		t.Errorf("successes = %d, want 1", got)
	}
	if !writer.Has(archive.NamespaceArticle, "London") {
		t.Fatal("A/London missing from archive")
	}

	// The image dependency must be queued under its archive path with
	// the rewritten src pointing at it.
	task, ok, err := s.stores.FilesToDownload.Get(ctx, "Thames.jpg")
	if err != nil || !ok {
		t.Fatalf("file task missing: ok=%v err=%v", ok, err)
	}
	if task.Width != 220 {
		t.Errorf("width = %d, want 220", task.Width)
	}
	if task.Namespace != archive.NamespaceImage {
		t.Errorf("namespace = %q", task.Namespace)
	}

	// jsConfigVars taken from the article.
	s.mu.Lock()
	configVars := s.jsConfigVars
	s.mu.Unlock()
	if !strings.Contains(configVars, "wgPageName") {
		t.Errorf("jsConfigVars = %q", configVars)
	}
}

func TestScrapeArticles_404CountsFailureAndContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	writer := archive.NewZipWriter(filepath.Join(t.TempDir(), "out.zip"))
	s := wireScraper(t, server.URL, writer)

	ctx := context.Background()
	if err := s.stores.ArticleDetails.Set(ctx, "NeverExistingArticle", models.ArticleDetail{Title: "NeverExistingArticle"}); err != nil {
		t.Fatal(err)
	}

	if err := s.scrapeArticles(ctx); err != nil {
		t.Fatalf("scrape must not fail the run: %v", err)
	}
	if got := s.status.Articles.Failures(); got != 1 {
		t.Errorf("failures = %d, want 1", got)
	}
	if got := s.status.Articles.Successes(); got != 0 {
		t.Errorf("successes = %d, want 0", got)
	}
	if writer.Len() != 0 {
		t.Errorf("archive entries = %d, want 0", writer.Len())
	}
}

func TestDownloadFiles_SpillsToRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer server.Close()

	writer := archive.NewZipWriter(filepath.Join(t.TempDir(), "out.zip"))
	s := wireScraper(t, server.URL, writer)

	ctx := context.Background()
	tasks := []models.FileTask{
		{ArchivePath: "good.png", URL: server.URL + "/good.png", Namespace: archive.NamespaceImage},
		{ArchivePath: "bad.png", URL: server.URL + "/bad.png", Namespace: archive.NamespaceImage},
	}
	for _, task := range tasks {
		if err := s.stores.FilesToDownload.Set(ctx, task.ArchivePath, task); err != nil {
			t.Fatal(err)
		}
	}

	// Pass 1: the failure spills, the success is written and counted.
	if err := s.downloadFiles(ctx, s.stores.FilesToDownload, true); err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	if got := s.status.Files.Failures(); got != 0 {
		t.Errorf("failures after pass 1 = %d, want 0 (spilled, not failed)", got)
	}
	if n, _ := s.stores.FilesToRetry.Len(ctx); n != 1 {
		t.Fatalf("retry queue = %d, want 1", n)
	}
	if !writer.Has(archive.NamespaceImage, "good.png") {
		t.Error("good.png missing from archive")
	}

	// Pass 2: the retry fails terminally.
	if err := s.downloadFiles(ctx, s.stores.FilesToRetry, false); err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	if got := s.status.Files.Failures(); got != 1 {
		t.Errorf("failures after pass 2 = %d, want 1", got)
	}
	if got := s.status.Files.Successes(); got != 1 {
		t.Errorf("successes = %d, want 1", got)
	}
}

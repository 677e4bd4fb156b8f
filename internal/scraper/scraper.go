// Package scraper is the top-level driver: discover the article set,
// render and rewrite every article, drain the media queues and
// finalize the archive. Phases run strictly in order; each drains
// before the next begins.
package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/cache"
	"github.com/wikimirror/wikimirror/internal/downloader"
	"github.com/wikimirror/wikimirror/internal/kv"
	"github.com/wikimirror/wikimirror/internal/renderer"
	"github.com/wikimirror/wikimirror/internal/rewriter"
	"github.com/wikimirror/wikimirror/internal/wiki"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// Options wires the scraper's collaborators and run knobs.
type Options struct {
	Wiki       *wiki.Client
	Downloader *downloader.Downloader
	Writer     archive.Writer

	Stores        Stores
	ResponseCache cache.Cache

	Speed               int
	ArticleList         []string // explicit titles; empty means namespace walk
	MainPage            string   // overrides the wiki's main page when set
	CreatorName         string
	NoPictures          bool
	NoVideos            bool
	NoDetails           bool
	Minify              bool
	KeepEmptyParagraphs bool
	LocalRenderer       *downloader.LocalRenderer
}

// Stores are the four typed namespaces of the run's working state.
type Stores struct {
	ArticleDetails  *kv.Typed[models.ArticleDetail]
	FilesToDownload *kv.Typed[models.FileTask]
	FilesToRetry    *kv.Typed[models.FileTask]
	Redirects       *kv.Typed[models.Redirect]
}

// NewMemStores creates the in-process store set.
func NewMemStores() Stores {
	return Stores{
		ArticleDetails:  kv.NewTyped[models.ArticleDetail](kv.NewMemStore()),
		FilesToDownload: kv.NewTyped[models.FileTask](kv.NewMemStore()),
		FilesToRetry:    kv.NewTyped[models.FileTask](kv.NewMemStore()),
		Redirects:       kv.NewTyped[models.Redirect](kv.NewMemStore()),
	}
}

// Scraper owns the lifecycle of one run.
type Scraper struct {
	opts   Options
	stores Stores
	status *Status

	meta *models.WikiMetadata
	caps models.Capabilities
	rend *renderer.Renderer
	rw   *rewriter.Rewriter

	mainPage string
	runDate  string

	mu           sync.Mutex
	jsModules    map[string]struct{}
	cssModules   map[string]struct{}
	jsConfigVars string
}

// New creates a scraper.
func New(opts Options) *Scraper {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	return &Scraper{
		opts:       opts,
		stores:     opts.Stores,
		status:     &Status{},
		jsModules:  make(map[string]struct{}),
		cssModules: make(map[string]struct{}),
		runDate:    time.Now().Format("2006-01-02"),
	}
}

// Status exposes the run counters.
func (s *Scraper) Status() *Status {
	return s.status
}

// Run executes the phases. A returned error is fatal; per-article and
// per-file failures only move counters.
func (s *Scraper) Run(ctx context.Context) error {
	// Phase 1: metadata and capabilities.
	meta, err := s.opts.Wiki.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("loading wiki metadata: %w", err)
	}
	s.meta = meta

	caps, err := s.opts.Downloader.ProbeCapabilities(ctx, meta, s.opts.LocalRenderer)
	if err != nil {
		return fmt.Errorf("capability probe: %w", err)
	}
	caps.Coordinates = s.opts.Wiki.CoordinatesAvailable()
	if !caps.RestAPI && !caps.VisualEditor && !caps.Coordinates {
		return fmt.Errorf("no usable upstream capability")
	}
	s.caps = caps

	s.rend = renderer.New(meta, caps)
	s.rw = rewriter.New(rewriter.Options{
		Meta:                meta,
		NoPictures:          s.opts.NoPictures,
		NoVideos:            s.opts.NoVideos,
		NoDetails:           s.opts.NoDetails,
		Minify:              s.opts.Minify,
		KeepEmptyParagraphs: s.opts.KeepEmptyParagraphs,
	})

	s.mainPage = meta.MainPage
	if s.opts.MainPage != "" {
		s.mainPage = s.opts.MainPage
	}

	if ms, ok := s.opts.Writer.(archive.MetaSetter); ok {
		ms.SetMeta("Title", meta.SiteName)
		ms.SetMeta("Creator", s.opts.CreatorName)
		ms.SetMeta("Language", meta.LangISO3)
		ms.SetMeta("Date", s.runDate)
		ms.SetMeta("Source", meta.WebURL)
	}

	// Phase 2: enumeration plus redirect discovery.
	if err := s.enumerate(ctx); err != nil {
		return fmt.Errorf("enumerating articles: %w", err)
	}

	// Phase 3: the main page may be a redirect source (single hop).
	if err := s.resolveMainPage(ctx); err != nil {
		return err
	}

	// Phase 4: article scrape.
	if err := s.scrapeArticles(ctx); err != nil {
		return fmt.Errorf("article phase: %w", err)
	}

	// Phases 5 and 6: modules, styles, favicon.
	if err := s.fetchModules(ctx); err != nil {
		return fmt.Errorf("module phase: %w", err)
	}
	if err := s.fetchAssets(ctx); err != nil {
		return fmt.Errorf("asset phase: %w", err)
	}

	// Phases 7 and 8: media, then the retry drain. Pass 2 must not
	// start before pass 1 has fully drained.
	if err := s.downloadFiles(ctx, s.stores.FilesToDownload, true); err != nil {
		return fmt.Errorf("file phase: %w", err)
	}
	if err := s.downloadFiles(ctx, s.stores.FilesToRetry, false); err != nil {
		return fmt.Errorf("file retry phase: %w", err)
	}

	// Phase 9: finalize and clear.
	if err := s.opts.Writer.Finalize(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	s.clearStores(ctx)
	if s.opts.ResponseCache != nil {
		if err := s.opts.ResponseCache.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("Response cache cleanup failed")
		}
	}

	log.Info().
		Int64("articlesOk", s.status.Articles.Successes()).
		Int64("articlesFailed", s.status.Articles.Failures()).
		Int64("filesOk", s.status.Files.Successes()).
		Int64("filesFailed", s.status.Files.Failures()).
		Msg("All dumping(s) finished with success")

	return nil
}

// resolveMainPage rewrites the configured main page when a stored
// redirect names it as source. Only one hop is followed.
func (s *Scraper) resolveMainPage(ctx context.Context) error {
	redirect, ok, err := s.stores.Redirects.Get(ctx, s.mainPage)
	if err != nil {
		return fmt.Errorf("looking up main page redirect: %w", err)
	}
	if ok {
		log.Info().Str("from", s.mainPage).Str("to", redirect.To).Msg("Main page resolved through redirect")
		s.mainPage = redirect.To
	}
	return nil
}

func (s *Scraper) clearStores(ctx context.Context) {
	for name, store := range map[string]interface{ Clear(context.Context) error }{
		"articleDetail":   s.stores.ArticleDetails,
		"filesToDownload": s.stores.FilesToDownload,
		"filesToRetry":    s.stores.FilesToRetry,
		"redirects":       s.stores.Redirects,
	} {
		if err := store.Clear(ctx); err != nil {
			log.Warn().Err(err).Str("store", name).Msg("Store clear failed")
		}
	}
}

// addModules accumulates one article's module dependencies into the
// run-wide sets. The jsConfigVars script is taken from the first
// article reporting a non-empty value.
func (s *Scraper) addModules(js, css []string, configVars string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range js {
		s.jsModules[m] = struct{}{}
	}
	for _, m := range css {
		s.cssModules[m] = struct{}{}
	}
	if s.jsConfigVars == "" && configVars != "" {
		s.jsConfigVars = configVars
	}
}

func (s *Scraper) moduleLists() (js, css []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.jsModules {
		js = append(js, m)
	}
	for m := range s.cssModules {
		css = append(css, m)
	}
	sort.Strings(js)
	sort.Strings(css)
	return js, css
}

// isMirrored reports whether a title has an ArticleDetail in the run.
func (s *Scraper) isMirrored(ctx context.Context) func(string) bool {
	return func(title string) bool {
		ok, err := s.stores.ArticleDetails.Has(ctx, title)
		return err == nil && ok
	}
}

// redirectTarget resolves a title through the redirect store.
func (s *Scraper) redirectTarget(ctx context.Context) func(string) (string, bool) {
	return func(title string) (string, bool) {
		redirect, ok, err := s.stores.Redirects.Get(ctx, title)
		if err != nil || !ok {
			return "", false
		}
		return redirect.To, true
	}
}

// upsertFileTask applies the resolution-upgrade law to the download
// queue: an existing entry for the same archive path is replaced only
// when the new task carries a higher width or multiplier.
func upsertFileTask(ctx context.Context, store *kv.Typed[models.FileTask], task models.FileTask) error {
	existing, ok, err := store.Get(ctx, task.ArchivePath)
	if err != nil {
		return err
	}
	if ok {
		if task.Width > existing.Width {
			existing.URL = task.URL
			existing.Width = task.Width
		}
		if task.Mult > existing.Mult {
			existing.Mult = task.Mult
		}
		task = existing
	}
	return store.Set(ctx, task.ArchivePath, task)
}

// articleSourceURL is the upstream link shown in the footer.
func (s *Scraper) articleSourceURL(articleID string) string {
	return strings.TrimSuffix(s.meta.WebURL, "/") + "/wiki/" + articleID
}

package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/rewriter"
	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// moduleDeps is one article's JS/CSS dependency report from
// action=parse.
type moduleDeps struct {
	js           []string
	css          []string
	jsConfigVars string
}

type parseModulesResponse struct {
	Parse struct {
		Modules      []string       `json:"modules"`
		ModuleStyles []string       `json:"modulestyles"`
		JSConfigVars map[string]any `json:"jsconfigvars"`
	} `json:"parse"`
}

// scrapeArticles is phase 4: iterate the articleDetail store with
// speed workers, render, rewrite and write each article. Failures
// move the counter and are logged, never fatal.
func (s *Scraper) scrapeArticles(ctx context.Context) error {
	total, err := s.stores.ArticleDetails.Len(ctx)
	if err != nil {
		return err
	}
	bar := progressbar.Default(int64(total), "articles")

	err = s.stores.ArticleDetails.ForEach(ctx, s.opts.Speed, func(ctx context.Context, id string, detail models.ArticleDetail) error {
		if err := s.scrapeOne(ctx, id, &detail); err != nil {
			s.status.Articles.Fail()
			log.Warn().Err(err).Str("article", id).Msg("Article failed")
		} else {
			s.status.Articles.Success()
		}
		_ = bar.Add(1)
		logProgress("articles", s.status.Articles.Total(), int64(total))
		return nil
	})
	_ = bar.Finish()
	return err
}

// categoryNamespaceID is MediaWiki's category namespace.
const categoryNamespaceID = 14

func (s *Scraper) scrapeOne(ctx context.Context, id string, detail *models.ArticleDetail) error {
	isMain := id == s.mainPage

	// Category pages carry their sub-category listing; fetched here so
	// oversized categories can shard during rendering.
	if detail.NS == categoryNamespaceID && len(detail.SubCategories) == 0 {
		refs, err := s.opts.Wiki.SubCategories(ctx, strings.ReplaceAll(id, "_", " "), "")
		if err != nil {
			log.Warn().Err(err).Str("category", id).Msg("Sub-category fetch failed")
		} else {
			detail.SubCategories = refs
		}
	}

	raw, err := s.opts.Downloader.GetArticle(ctx, id, isMain)
	if err != nil {
		return err
	}

	rendered, err := s.rend.Render(detail, raw, isMain)
	if err != nil {
		return err
	}

	deps := s.fetchModuleDeps(ctx, id)
	s.addModules(deps.js, deps.css, deps.jsConfigVars)

	for _, fragment := range rendered {
		// Pagination shards become ArticleDetails of their own so
		// cross-links resolve against the store.
		if fragment.ID != id {
			if err := s.stores.ArticleDetails.Set(ctx, fragment.ID, *fragment.Detail); err != nil {
				return err
			}
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment.HTML))
		if err != nil {
			return err
		}

		tasks, err := s.rw.Rewrite(doc, rewriter.ArticleContext{
			ArticleID:      fragment.ID,
			IsMirrored:     s.isMirrored(ctx),
			RedirectTarget: s.redirectTarget(ctx),
		})
		if err != nil {
			return err
		}
		for _, task := range tasks {
			task.URL = s.opts.Downloader.SerializeURL(task.URL)
			if err := upsertFileTask(ctx, s.stores.FilesToDownload, task); err != nil {
				return err
			}
		}

		body, err := doc.Find("body").Html()
		if err != nil {
			return err
		}

		page := s.rw.Document(rewriter.DocumentData{
			ArticleID:     fragment.ID,
			DisplayTitle:  fragment.DisplayTitle,
			Body:          body,
			JSModules:     deps.js,
			CSSModules:    deps.css,
			HasConfigVars: deps.jsConfigVars != "",
			Coordinates:   detail.Coordinates,
			AllowSubpages: s.allowSubpages(fragment.ID),
			CreatorName:   s.opts.CreatorName,
			Date:          s.runDate,
			SourceURL:     s.articleSourceURL(id),
		})

		if err := s.opts.Writer.AddEntry(archive.Entry{
			Namespace: archive.NamespaceArticle,
			URL:       fragment.ID,
			MimeType:  "text/html",
			Title:     fragment.DisplayTitle,
			Data:      []byte(page),
		}); err != nil {
			return err
		}
	}
	return nil
}

// fetchModuleDeps asks action=parse for the article's module lists.
// A failure only costs the page its scripts, so it is logged and
// swallowed.
func (s *Scraper) fetchModuleDeps(ctx context.Context, id string) moduleDeps {
	query := url.Values{}
	query.Set("action", "parse")
	query.Set("format", "json")
	query.Set("prop", "modules|jsconfigvars|headhtml")
	query.Set("page", strings.ReplaceAll(id, "_", " "))

	var resp parseModulesResponse
	u := strings.TrimSuffix(s.meta.APIURL, "/") + "?" + query.Encode()
	if err := s.opts.Downloader.GetJSON(ctx, u, &resp); err != nil {
		log.Debug().Err(err).Str("article", id).Msg("Module dependency fetch failed")
		return moduleDeps{}
	}

	deps := moduleDeps{
		js:  sanitizeModuleNames(resp.Parse.Modules),
		css: sanitizeModuleNames(resp.Parse.ModuleStyles),
	}
	if len(resp.Parse.JSConfigVars) > 0 {
		deps.jsConfigVars = jsConfigVarsScript(resp.Parse.JSConfigVars)
	}
	return deps
}

func sanitizeModuleNames(modules []string) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if m == "" || strings.Contains(m, "/") {
			continue
		}
		out = append(out, m)
	}
	return out
}

// allowSubpages reports whether the article's namespace permits the
// breadcrumb, resolved from the title's namespace prefix.
func (s *Scraper) allowSubpages(articleID string) bool {
	prefix := ""
	if i := strings.Index(articleID, ":"); i >= 0 {
		prefix = articleID[:i]
	}
	ns, ok := s.meta.Namespaces[prefix]
	if !ok {
		return false
	}
	return ns.AllowedSubpages
}

// articlePathEncoded is used by asset fetching for the main page URL.
func (s *Scraper) articlePathEncoded(id string) string {
	return urlutil.EncodeArticleID(id)
}

package scraper

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// cssURLRe matches url(...) references inside a stylesheet.
var cssURLRe = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// fetchAssets is phase 6: download the main page once, pull every
// linked stylesheet, dereference the url(...) resources inside each,
// rewrite them to archive-local names and append all CSS into one
// style entry. The favicon becomes the cover image.
func (s *Scraper) fetchAssets(ctx context.Context) error {
	mainURL := strings.TrimSuffix(s.meta.WebURL, "/") + "/wiki/" + s.articlePathEncoded(s.mainPage)
	body, _, err := s.opts.Downloader.DownloadContent(ctx, mainURL)
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return err
	}

	var sheetURLs []string
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, link *goquery.Selection) {
		if href, ok := link.Attr("href"); ok && href != "" {
			sheetURLs = append(sheetURLs, urlutil.ResolveURL(mainURL, href))
		}
	})

	// Sheets are fetched and dereferenced with speed workers; results
	// keep their slot so the combined stylesheet stays in document
	// order.
	sheets := make([]string, len(sheetURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Speed)
	for i, sheetURL := range sheetURLs {
		g.Go(func() error {
			css, _, err := s.opts.Downloader.DownloadContent(gctx, sheetURL)
			if err != nil {
				log.Warn().Err(err).Str("url", sheetURL).Msg("Stylesheet fetch failed")
				return nil
			}
			sheets[i] = s.dereferenceCSS(gctx, string(css), sheetURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var combined strings.Builder
	for _, sheet := range sheets {
		if sheet == "" {
			continue
		}
		combined.WriteString(sheet)
		combined.WriteString("\n")
	}

	if err := s.opts.Writer.AddEntry(archive.Entry{
		Namespace: archive.NamespaceAsset,
		URL:       "s/style.css",
		MimeType:  "text/css",
		Data:      []byte(combined.String()),
	}); err != nil {
		return err
	}

	// Cover image for the landing entry.
	faviconURL := strings.TrimSuffix(s.meta.WebURL, "/") + "/favicon.ico"
	task := models.FileTask{
		ArchivePath: "favicon",
		URL:         s.opts.Downloader.SerializeURL(faviconURL),
		Namespace:   archive.NamespaceAsset,
	}
	if err := upsertFileTask(ctx, s.stores.FilesToDownload, task); err != nil {
		return err
	}

	log.Info().Int("stylesheets", len(sheetURLs)).Msg("Assets fetched")
	return nil
}

// dereferenceCSS rewrites every url(...) in a stylesheet to an
// archive-local filename and queues the referenced resource for
// download. Data URIs and fragment references pass through.
func (s *Scraper) dereferenceCSS(ctx context.Context, css, sheetURL string) string {
	return cssURLRe.ReplaceAllStringFunc(css, func(match string) string {
		ref := cssURLRe.FindStringSubmatch(match)[1]
		if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
			return match
		}

		abs := urlutil.ResolveURL(sheetURL, ref)
		info, err := urlutil.ParseMediaURL(abs)
		if err != nil {
			return match
		}
		name := "s/" + info.Base

		task := models.FileTask{
			ArchivePath: name,
			URL:         s.opts.Downloader.SerializeURL(abs),
			Namespace:   archive.NamespaceAsset,
		}
		if err := upsertFileTask(ctx, s.stores.FilesToDownload, task); err != nil {
			log.Warn().Err(err).Str("resource", abs).Msg("Queueing CSS resource failed")
			return match
		}
		// Stylesheets live under -/s/, so siblings resolve in place.
		return "url(" + info.Base + ")"
	})
}

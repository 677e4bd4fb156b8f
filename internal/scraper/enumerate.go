package scraper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// detailBatchSize is how many titles share one details query.
const detailBatchSize = 50

// enumerate fills the articleDetail store, either from the explicit
// article list or by walking every content namespace with the
// resumable generator cursor. Each stored batch feeds redirect
// discovery.
func (s *Scraper) enumerate(ctx context.Context) error {
	if len(s.opts.ArticleList) > 0 {
		return s.enumerateFromList(ctx)
	}
	return s.enumerateNamespaces(ctx)
}

func (s *Scraper) enumerateFromList(ctx context.Context) error {
	titles := append([]string(nil), s.opts.ArticleList...)

	for lo := 0; lo < len(titles); lo += detailBatchSize {
		hi := lo + detailBatchSize
		if hi > len(titles) {
			hi = len(titles)
		}
		details, err := s.opts.Wiki.ArticleDetailsByIDs(ctx, titles[lo:hi], true)
		if err != nil {
			return err
		}
		if err := s.storeBatch(ctx, details); err != nil {
			return err
		}
	}

	return s.ensureMainPage(ctx)
}

// ensureMainPage inserts the main page explicitly when enumeration did
// not pick it up, so the archive always gets its landing entry.
func (s *Scraper) ensureMainPage(ctx context.Context) error {
	if ok, _ := s.stores.ArticleDetails.Has(ctx, s.mainPage); ok {
		return nil
	}
	details, err := s.opts.Wiki.ArticleDetailsByIDs(ctx, []string{s.mainPage}, true)
	if err != nil {
		return err
	}
	return s.storeBatch(ctx, details)
}

func (s *Scraper) enumerateNamespaces(ctx context.Context) error {
	seen := make(map[int]bool)
	for _, ns := range s.meta.Namespaces {
		if !ns.IsContent || seen[ns.ID] {
			continue
		}
		seen[ns.ID] = true

		gapContinue := ""
		for {
			details, next, err := s.opts.Wiki.ArticleDetailsByNamespace(ctx, ns.ID, gapContinue)
			if err != nil {
				return fmt.Errorf("namespace %d at cursor %q: %w", ns.ID, gapContinue, err)
			}
			if err := s.storeBatch(ctx, details); err != nil {
				return err
			}
			if next == "" {
				break
			}
			gapContinue = next
		}
	}

	// The walk's generator filters may have skipped the landing entry.
	if err := s.ensureMainPage(ctx); err != nil {
		return err
	}

	total, _ := s.stores.ArticleDetails.Len(ctx)
	log.Info().Int("articles", total).Msg("Enumeration complete")
	return nil
}

// storeBatch inserts one batch of details and discovers the redirects
// pointing at them, bounded at speed*3 concurrent queries.
func (s *Scraper) storeBatch(ctx context.Context, details map[string]*models.ArticleDetail) error {
	titles := make([]string, 0, len(details))
	for title, detail := range details {
		if err := s.stores.ArticleDetails.Set(ctx, title, *detail); err != nil {
			return err
		}
		titles = append(titles, title)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Speed * 3)
	for _, title := range titles {
		g.Go(func() error {
			return s.discoverRedirects(gctx, title)
		})
	}
	return g.Wait()
}

// discoverRedirects stores every redirect whose target is the given
// in-scope article. Sources that are themselves mirrored articles are
// skipped.
func (s *Scraper) discoverRedirects(ctx context.Context, title string) error {
	refs, err := s.opts.Wiki.BacklinkRedirects(ctx, title)
	if err != nil {
		log.Warn().Err(err).Str("article", title).Msg("Redirect discovery failed")
		return nil
	}
	for _, ref := range refs {
		if mirrored, _ := s.stores.ArticleDetails.Has(ctx, ref.Title); mirrored {
			continue
		}
		redirect := models.Redirect{From: ref.Title, To: title}
		if err := s.stores.Redirects.Set(ctx, redirect.From, redirect); err != nil {
			return err
		}
	}
	return nil
}

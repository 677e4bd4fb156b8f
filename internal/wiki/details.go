package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// subCursorProps maps a continuation cursor name onto the prop it
// continues. When a follow-up response was requested through one of
// these cursors, only the continued props are merged; the others would
// arrive duplicated.
var subCursorProps = map[string]string{
	"cocontinue": "coordinates",
	"clcontinue": "categories",
	"picontinue": "thumbnail",
	"rdcontinue": "redirects",
	"rvcontinue": "revisions",
}

// detailProps assembles the prop list for a detail query.
func (c *Client) detailProps(includeThumbnail bool) url.Values {
	props := []string{"revisions", "categories", "redirects"}
	if c.CoordinatesAvailable() {
		props = append(props, "coordinates")
	}
	if includeThumbnail {
		props = append(props, "pageimages")
	}
	params := url.Values{}
	params.Set("prop", strings.Join(props, "|"))
	params.Set("rdlimit", "max")
	params.Set("cllimit", "max")
	if c.CoordinatesAvailable() {
		params.Set("colimit", "max")
	}
	return params
}

// ArticleDetailsByIDs fetches details for a batch of titles in one
// logical query, following the continuation cursor and every sub-query
// cursor until the batch is exhausted. Details accumulate across
// continuation pages via deep merge.
func (c *Client) ArticleDetailsByIDs(ctx context.Context, ids []string, includeThumbnail bool) (map[string]*models.ArticleDetail, error) {
	if len(ids) == 0 {
		return map[string]*models.ArticleDetail{}, nil
	}

	base := c.detailProps(includeThumbnail)
	base.Set("titles", strings.Join(ids, "|"))

	details := make(map[string]*models.ArticleDetail)
	cont := map[string]string{}
	var pendingProps map[string]bool // props continued by the request in flight

	for {
		params := url.Values{}
		for k, vs := range base {
			params[k] = vs
		}
		for k, v := range cont {
			params.Set(k, v)
		}

		resp, err := c.query(ctx, params)
		if err != nil {
			return nil, err
		}
		if resp.Query != nil {
			c.mergePages(details, resp.Query.Pages, pendingProps)
		}

		next := continuationParams(resp)
		if len(next) == 0 {
			return details, nil
		}

		pendingProps = make(map[string]bool)
		for cursor := range next {
			if prop, ok := subCursorProps[cursor]; ok {
				pendingProps[prop] = true
			}
		}
		if len(pendingProps) == 0 {
			pendingProps = nil // plain batch continuation: merge everything
		}
		cont = next
	}
}

// ArticleDetailsByNamespace walks one content namespace through
// generator=allpages. The outer generator cursor is handed back to the
// caller so enumeration is resumable; inner prop continuations are
// drained before returning.
func (c *Client) ArticleDetailsByNamespace(ctx context.Context, ns int, gapContinue string) (map[string]*models.ArticleDetail, string, error) {
	base := c.detailProps(false)
	base.Set("generator", "allpages")
	base.Set("gapnamespace", fmt.Sprintf("%d", ns))
	base.Set("gapfilterredir", "nonredirects")
	base.Set("gaplimit", "max")
	base.Set("rawcontinue", "true")
	if gapContinue != "" {
		base.Set("gapcontinue", gapContinue)
	}

	details := make(map[string]*models.ArticleDetail)
	nextGap := ""
	cont := map[string]string{}
	var pendingProps map[string]bool

	for {
		params := url.Values{}
		for k, vs := range base {
			params[k] = vs
		}
		for k, v := range cont {
			params.Set(k, v)
		}

		resp, err := c.query(ctx, params)
		if err != nil {
			return nil, "", err
		}
		if resp.Query != nil {
			c.mergePages(details, resp.Query.Pages, pendingProps)
		}

		next := continuationParams(resp)

		// The generator cursor belongs to the caller, not this drain.
		if gap, ok := next["gapcontinue"]; ok {
			nextGap = gap
			delete(next, "gapcontinue")
		}

		inner := map[string]string{}
		pendingProps = make(map[string]bool)
		for cursor, value := range next {
			if prop, ok := subCursorProps[cursor]; ok {
				inner[cursor] = value
				pendingProps[prop] = true
			}
		}
		if len(inner) == 0 {
			return details, nextGap, nil
		}
		cont = inner
	}
}

// continuationParams extracts the cursors to feed into the next
// request, handling both the modern continue block and the legacy
// query-continue tree. The modern block wins when both are present.
func continuationParams(resp *apiResponse) map[string]string {
	if len(resp.Continue) > 0 {
		out := make(map[string]string, len(resp.Continue))
		for k, v := range resp.Continue {
			out[k] = v
		}
		return out
	}
	if len(resp.QueryContinue) > 0 {
		out := map[string]string{}
		for _, cursors := range resp.QueryContinue {
			for k, v := range cursors {
				out[k] = v
			}
		}
		return out
	}
	return nil
}

// mergePages re-keys query.pages by normalized title, drops missing
// entries and deep-merges partial details. When onlyProps is non-nil,
// only those props are taken from the page (the rest would be
// re-emitted duplicates from a sub-query continuation).
func (c *Client) mergePages(details map[string]*models.ArticleDetail, pages map[string]pageJSON, onlyProps map[string]bool) {
	take := func(prop string) bool {
		return onlyProps == nil || onlyProps[prop]
	}

	for _, page := range pages {
		if page.Missing != nil {
			log.Debug().Str("title", page.Title).Msg("Dropping missing page")
			continue
		}
		title := c.normalizeTitle(page.Title)
		detail, ok := details[title]
		if !ok {
			detail = &models.ArticleDetail{
				Title:  title,
				PageID: page.PageID,
				NS:     page.NS,
			}
			details[title] = detail
		}

		if take("revisions") && len(detail.Revisions) == 0 {
			detail.Revisions = page.Revisions
		}
		if take("categories") {
			detail.Categories = append(detail.Categories, normalizeRefs(c, page.Categories)...)
		}
		if take("redirects") {
			detail.Redirects = append(detail.Redirects, normalizeRefs(c, page.Redirects)...)
		}
		if take("coordinates") && detail.Coordinates == nil && len(page.Coordinates) > 0 {
			coord := page.Coordinates[0]
			detail.Coordinates = &coord
		}
		if take("thumbnail") && detail.Thumbnail == nil {
			detail.Thumbnail = page.Thumbnail
		}
	}
}

func normalizeRefs(c *Client, refs []models.PageRef) []models.PageRef {
	out := make([]models.PageRef, len(refs))
	for i, ref := range refs {
		ref.Title = c.normalizeTitle(ref.Title)
		out[i] = ref
	}
	return out
}

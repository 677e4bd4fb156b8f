package wiki

import (
	"context"
	"net/url"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// SubCategories enumerates the sub-categories of a category title,
// recursively following the cmcontinue cursor.
func (c *Client) SubCategories(ctx context.Context, title, cmContinue string) ([]models.PageRef, error) {
	params := url.Values{}
	params.Set("list", "categorymembers")
	params.Set("cmtype", "subcat")
	params.Set("cmtitle", title)
	params.Set("cmlimit", "max")
	if cmContinue != "" {
		params.Set("cmcontinue", cmContinue)
	}

	resp, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}

	var members []models.PageRef
	if resp.Query != nil {
		members = normalizeRefs(c, resp.Query.CategoryMembers)
	}

	next := continuationParams(resp)
	if cursor, ok := next["cmcontinue"]; ok && cursor != "" {
		rest, err := c.SubCategories(ctx, title, cursor)
		if err != nil {
			return nil, err
		}
		members = append(members, rest...)
	}
	return members, nil
}

// BacklinkRedirects returns the redirects pointing at one article.
// One page per call; the caller decides which become stored redirect
// records.
func (c *Client) BacklinkRedirects(ctx context.Context, title string) ([]models.PageRef, error) {
	params := url.Values{}
	params.Set("prop", "redirects")
	params.Set("rdlimit", "max")
	params.Set("titles", title)

	resp, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}

	var redirects []models.PageRef
	if resp.Query != nil {
		for _, page := range resp.Query.Pages {
			if page.Missing != nil {
				continue
			}
			redirects = append(redirects, normalizeRefs(c, page.Redirects)...)
		}
	}
	return redirects, nil
}

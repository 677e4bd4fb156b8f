// Package renderer turns one article's raw upstream JSON into one or
// more HTML fragments. The upstream shape depends on which rendering
// path the capability probe selected.
package renderer

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// Renderer selects a rendering path per article and assembles the
// fragments.
type Renderer struct {
	meta *models.WikiMetadata
	caps models.Capabilities
}

// New creates a renderer bound to the run's metadata and probed
// capabilities.
func New(meta *models.WikiMetadata, caps models.Capabilities) *Renderer {
	return &Renderer{meta: meta, caps: caps}
}

// articleJSON covers the three upstream shapes: visual-editor,
// action=parse and REST mobile-sections.
type articleJSON struct {
	VisualEditor *struct {
		Content string `json:"content"`
	} `json:"visualeditor,omitempty"`
	Parse *struct {
		Text map[string]string `json:"text"`
	} `json:"parse,omitempty"`
	HTML *struct {
		Body string `json:"body"`
	} `json:"html,omitempty"`
	Lead *struct {
		DisplayTitle string        `json:"displaytitle"`
		Sections     []sectionJSON `json:"sections"`
	} `json:"lead,omitempty"`
	Remaining *struct {
		Sections []sectionJSON `json:"sections"`
	} `json:"remaining,omitempty"`
}

type sectionJSON struct {
	ID       int    `json:"id"`
	TocLevel int    `json:"toclevel"`
	Anchor   string `json:"anchor"`
	Line     string `json:"line"`
	Text     string `json:"text"`
}

// Render produces the article's fragments. Oversized categories come
// back as multiple shards; everything else yields exactly one record.
func (r *Renderer) Render(detail *models.ArticleDetail, raw json.RawMessage, isMainPage bool) ([]models.RenderedArticle, error) {
	var doc articleJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unexpected article shape for %q: %w", detail.Title, err)
	}

	var body string
	switch {
	case isMainPage || !r.caps.RestAPI:
		body = r.desktopBody(&doc)
	default:
		body = r.mobileBody(&doc)
	}
	if body == "" {
		return nil, fmt.Errorf("no renderable content for %q", detail.Title)
	}

	displayTitle := extractDisplayTitle(body, &doc, detail.Title)

	shards := PaginateCategory(detail)
	rendered := make([]models.RenderedArticle, 0, len(shards))
	for _, shard := range shards {
		html := body
		if len(shard.SubCategories) > 0 || len(shard.Pages) > 0 {
			html += r.categoryListing(shard)
		}
		rendered = append(rendered, models.RenderedArticle{
			ID:           shard.Title,
			DisplayTitle: displayTitle,
			HTML:         html,
			Detail:       shard,
		})
	}

	log.Debug().
		Str("article", detail.Title).
		Int("fragments", len(rendered)).
		Msg("Article rendered")

	return rendered, nil
}

// desktopBody picks the richest desktop payload available.
func (r *Renderer) desktopBody(doc *articleJSON) string {
	if doc.VisualEditor != nil && doc.VisualEditor.Content != "" {
		return doc.VisualEditor.Content
	}
	if doc.Parse != nil {
		if text, ok := doc.Parse.Text["*"]; ok && text != "" {
			return text
		}
	}
	if doc.HTML != nil {
		return doc.HTML.Body
	}
	return ""
}

// mobileBody assembles the lead section and the ordered remaining
// sections. Each section's placeholder anchor is either cleared (next
// section starts a new top-level block) or replaced by a nested
// subsection.
func (r *Renderer) mobileBody(doc *articleJSON) string {
	if doc.Lead == nil {
		return r.desktopBody(doc)
	}

	leadText := ""
	if len(doc.Lead.Sections) > 0 {
		leadText = doc.Lead.Sections[0].Text
	}
	body := renderTmpl(leadSectionTmpl, struct{ Text template.HTML }{template.HTML(leadText)})

	var sections []sectionJSON
	if doc.Remaining != nil {
		sections = doc.Remaining.Sections
	}

	for i, section := range sections {
		placeholder := placeholderAnchor(i)
		data := sectionData{
			Index:        section.ID,
			Next:         i + 1,
			TocLevel:     section.TocLevel,
			HeadingLevel: headingLevel(section.TocLevel),
			Anchor:       section.Anchor,
			Line:         template.HTML(section.Line),
			Text:         template.HTML(section.Text),
		}
		if section.TocLevel <= 1 {
			// Top-level: the previous block closes, a sibling opens.
			body = strings.Replace(body, placeholder, "", 1)
			body += renderTmpl(sectionTmpl, data)
		} else {
			body = strings.Replace(body, placeholder, renderTmpl(subSectionTmpl, data), 1)
		}
	}

	// The walk leaves one trailing placeholder behind.
	body = strings.Replace(body, placeholderAnchor(len(sections)), "", 1)
	return body
}

func placeholderAnchor(i int) string {
	return fmt.Sprintf("__SUB_LEVEL_SECTION_%d__", i)
}

// headingLevel maps a toclevel onto the h-element level used for its
// summary line.
func headingLevel(tocLevel int) int {
	level := tocLevel + 1
	if level < 2 {
		level = 2
	}
	if level > 6 {
		level = 6
	}
	return level
}

// extractDisplayTitle prefers the rendered document's <title>, falls
// back to the lead's displaytitle, then to the id with underscores
// restored to spaces.
func extractDisplayTitle(body string, doc *articleJSON, articleID string) string {
	if gq, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		if title := strings.TrimSpace(gq.Find("title").First().Text()); title != "" {
			return title
		}
	}
	if doc.Lead != nil && doc.Lead.DisplayTitle != "" {
		return doc.Lead.DisplayTitle
	}
	return strings.ReplaceAll(articleID, "_", " ")
}

// categoryListing renders the alphabetically grouped sub-category and
// sub-page lists plus the shard pager.
func (r *Renderer) categoryListing(detail *models.ArticleDetail) string {
	var sb strings.Builder

	if len(detail.SubCategories) > 0 {
		sb.WriteString(`<div id="mw-subcategories">`)
		for _, group := range GroupByFirstLetter(detail.SubCategories) {
			sb.WriteString(renderTmpl(categoryGroupTmpl, group))
		}
		sb.WriteString(`</div>`)
	}
	if len(detail.Pages) > 0 {
		sb.WriteString(`<div id="mw-pages">`)
		for _, group := range GroupByFirstLetter(detail.Pages) {
			sb.WriteString(renderTmpl(categoryGroupTmpl, group))
		}
		sb.WriteString(`</div>`)
	}
	if detail.PrevArticleID != "" || detail.NextArticleID != "" {
		sb.WriteString(renderTmpl(categoryPagerTmpl, categoryPagerData{
			Prev: detail.PrevArticleID,
			Next: detail.NextArticleID,
		}))
	}
	return sb.String()
}

package rewriter

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// DocumentData is everything the page template needs to wrap one
// rewritten body into a standalone archive entry.
type DocumentData struct {
	ArticleID    string
	DisplayTitle string
	Body         string

	JSModules     []string
	CSSModules    []string
	HasConfigVars bool

	Coordinates   *models.Coordinates
	AllowSubpages bool

	CreatorName string
	Date        string // YYYY-MM-DD
	SourceURL   string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html dir="{{.Direction}}">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
{{if .GeoPosition}}<meta name="geo.position" content="{{.GeoPosition}}">{{end}}
<link rel="stylesheet" href="{{.Prefix}}-/s/style.css">
{{range .CSSHrefs}}<link rel="stylesheet" href="{{.}}">
{{end}}</head>
<body class="mw-body mw-body-content mediawiki" style="background-color: white; margin: 0; border-width: 0px; padding: 0px;">
{{if .Breadcrumb}}<div class="subpages">{{.Breadcrumb}}</div>
{{end}}<div id="container"><div id="mw-content-text">{{.Body}}</div></div>
{{.Footer}}
{{range .JSSrcs}}<script src="{{.}}"></script>
{{end}}</body>
</html>
`))

type pageData struct {
	Direction   string
	Title       string
	GeoPosition string
	Prefix      string
	CSSHrefs    []string
	JSSrcs      []string
	Breadcrumb  template.HTML
	Body        template.HTML
	Footer      template.HTML
}

// Document wraps a rewritten body into the final HTML entry: module
// references, text direction, breadcrumb, footer and geo metadata.
func (r *Rewriter) Document(data DocumentData) string {
	prefix := urlutil.RelativePrefix(data.ArticleID)

	page := pageData{
		Direction: r.opts.Meta.TextDirection,
		Title:     data.DisplayTitle,
		Prefix:    prefix,
		Body:      template.HTML(data.Body),
	}

	if data.Coordinates != nil {
		page.GeoPosition = fmt.Sprintf("%s;%s",
			formatCoord(data.Coordinates.Lat), formatCoord(data.Coordinates.Lon))
	}

	for _, mod := range data.CSSModules {
		page.CSSHrefs = append(page.CSSHrefs, fmt.Sprintf("%s%s/m/%s.css", prefix, archive.NamespaceAsset, mod))
	}
	if data.HasConfigVars {
		page.JSSrcs = append(page.JSSrcs, prefix+archive.NamespaceAsset+"/j/jsConfigVars.js")
	}
	for _, mod := range data.JSModules {
		page.JSSrcs = append(page.JSSrcs, fmt.Sprintf("%s%s/j/%s.js", prefix, archive.NamespaceAsset, mod))
	}

	if data.AllowSubpages && strings.Contains(data.ArticleID, "/") {
		page.Breadcrumb = template.HTML(breadcrumb(data.ArticleID))
	}

	page.Footer = template.HTML(footer(data))

	var sb strings.Builder
	if err := pageTmpl.Execute(&sb, page); err != nil {
		panic(err)
	}

	out := sb.String()
	if r.opts.Minify {
		out = minifyHTML(out)
	}
	return out
}

// breadcrumb synthesizes the parent-page trail for a subpage id.
func breadcrumb(articleID string) string {
	segments := strings.Split(articleID, "/")
	depth := len(segments) - 1

	var sb strings.Builder
	sb.WriteString("&lt; ")
	for i := 0; i < depth; i++ {
		up := strings.Repeat("../", depth-i)
		if i > 0 {
			sb.WriteString(" / ")
		}
		fmt.Fprintf(&sb, `<a href="%s%s">%s</a>`, up, urlutil.EncodeArticleID(segments[i]), segments[i])
	}
	return sb.String()
}

// footer renders the creator / date / source line, fenced so indexers
// skip it.
func footer(data DocumentData) string {
	return fmt.Sprintf(
		`<!--htdig_noindex--><div id="footer"><p>%s</p><p>%s</p><p><a href="%s">%s</a></p></div><!--/htdig_noindex-->`,
		template.HTMLEscapeString(data.CreatorName),
		template.HTMLEscapeString(data.Date),
		data.SourceURL,
		template.HTMLEscapeString(data.SourceURL),
	)
}

var (
	interTagWhitespaceRe = regexp.MustCompile(`>\s+<`)
	commentRe            = regexp.MustCompile(`<!--[^>]*?-->`)
)

// minifyHTML applies the conservative option set: comments other than
// the htdig fences go, runs of inter-tag whitespace collapse. Nothing
// inside text nodes is touched beyond that.
func minifyHTML(html string) string {
	html = commentRe.ReplaceAllStringFunc(html, func(c string) string {
		if strings.Contains(c, "htdig_noindex") {
			return c
		}
		return ""
	})
	return interTagWhitespaceRe.ReplaceAllString(html, "> <")
}

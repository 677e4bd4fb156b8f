package rewriter

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// rewriteLinks is pass B over every <a> and <area>. DOM mutation is
// not safe across goroutines, so the walk is sequential; article-level
// concurrency comes from the scrape workers.
func (r *Rewriter) rewriteLinks(doc *goquery.Document, ctx ArticleContext) {
	for _, link := range snapshot(doc.Find("a, area")) {
		href, ok := link.Attr("href")
		if !ok || href == "" {
			link.Remove()
			continue
		}
		if strings.HasPrefix(href, "#") {
			continue
		}

		if lat, lon, ok := parseGeoURL(href); ok {
			link.SetAttr("href", fmt.Sprintf("geo:%s,%s", formatCoord(lat), formatCoord(lon)))
			continue
		}

		rel, hasRel := link.Attr("rel")
		if hasRel {
			switch {
			case strings.Contains(rel, "mw:WikiLink/Interwiki"):
				addClass(link, "external")
			case strings.Contains(rel, "mw:ExtLink") || strings.Contains(rel, "nofollow"):
				if strings.HasPrefix(href, "/") {
					link.SetAttr("href", strings.TrimSuffix(r.opts.Meta.WebURL, "/")+href)
				} else if strings.HasPrefix(href, "./") {
					unwrap(link)
				}
			case strings.Contains(rel, "mw:WikiLink") || strings.Contains(rel, "mw:referencedBy"):
				r.rewriteWikiLink(link, ctx)
			}
			continue
		}

		// MediaWiki-native HTML carries no rel; same decision applies
		// when the href looks like an article link.
		if _, _, ok := wikiLinkTarget(link, r.opts.Meta); ok {
			r.rewriteWikiLink(link, ctx)
		}
	}
}

// rewriteWikiLink applies the mirrored / redirect / unwrap decision.
func (r *Rewriter) rewriteWikiLink(link *goquery.Selection, ctx ArticleContext) {
	title, anchor, ok := wikiLinkTarget(link, r.opts.Meta)
	if !ok {
		unwrap(link)
		return
	}

	prefix := urlutil.RelativePrefix(ctx.ArticleID)
	if ctx.IsMirrored(title) {
		link.SetAttr("href", prefix+archive.NamespaceArticle+"/"+urlutil.EncodeArticleID(title)+anchor)
		return
	}
	if target, ok := ctx.RedirectTarget(title); ok && ctx.IsMirrored(target) {
		link.SetAttr("href", prefix+archive.NamespaceArticle+"/"+urlutil.EncodeArticleID(target)+anchor)
		return
	}
	unwrap(link)
}

// wikiLinkTarget extracts the article title and fragment a link points
// at. It returns ok=false for external links, other hosts and
// non-article server paths.
func wikiLinkTarget(link *goquery.Selection, meta *models.WikiMetadata) (string, string, bool) {
	href, ok := link.Attr("href")
	if !ok {
		return "", "", false
	}
	return linkTarget(href, meta)
}

func linkTarget(href string, meta *models.WikiMetadata) (string, string, bool) {
	if href == "" || strings.HasPrefix(href, "#") {
		return "", "", false
	}
	anchor := ""
	if i := strings.Index(href, "#"); i >= 0 {
		anchor = href[i:]
		href = href[:i]
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", "", false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}
	if u.Host != "" {
		base, err := url.Parse(meta.BaseURL)
		if err != nil || u.Host != base.Host {
			return "", "", false
		}
		href = u.Path
	}

	switch {
	case strings.HasPrefix(href, "../"):
		// Already archive-local; rewriting again must be a no-op.
		return "", "", false
	case strings.HasPrefix(href, "./"):
		href = href[2:]
	case strings.HasPrefix(href, "/wiki/"):
		href = href[len("/wiki/"):]
	case strings.HasPrefix(href, "/"):
		return "", "", false
	}
	if href == "" {
		return "", "", false
	}
	if dec, err := url.PathUnescape(href); err == nil {
		href = dec
	}
	return strings.ReplaceAll(href, " ", "_"), anchor, true
}

func addClass(s *goquery.Selection, class string) {
	current, _ := s.Attr("class")
	if classContains(current, class) {
		return
	}
	if current == "" {
		s.SetAttr("class", class)
		return
	}
	s.SetAttr("class", current+" "+class)
}

// Geo-hack recognition. Three URL shapes carry coordinates:
// geohack.php?params=..., Special:Map/<zoom>/<lat>/<lon>, and map
// services with mlat/mlon query parameters.
var specialMapRe = regexp.MustCompile(`Special:Map/\d+/(-?[0-9.]+)/(-?[0-9.]+)`)

func parseGeoURL(href string) (float64, float64, bool) {
	if strings.Contains(href, "geohack.php") {
		u, err := url.Parse(href)
		if err != nil {
			return 0, 0, false
		}
		return parseGeoHackParams(u.Query().Get("params"))
	}
	if m := specialMapRe.FindStringSubmatch(href); m != nil {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return lat, lon, true
		}
		return 0, 0, false
	}
	if strings.Contains(href, "mlat=") && strings.Contains(href, "mlon=") {
		u, err := url.Parse(href)
		if err != nil {
			return 0, 0, false
		}
		lat, err1 := strconv.ParseFloat(u.Query().Get("mlat"), 64)
		lon, err2 := strconv.ParseFloat(u.Query().Get("mlon"), 64)
		if err1 == nil && err2 == nil {
			return lat, lon, true
		}
	}
	return 0, 0, false
}

// dmsFactors convert degree, minute and second tokens into decimal
// degrees.
var dmsFactors = []float64{1, 60, 3600}

// parseGeoHackParams decodes the geohack params string. Two encodings
// exist: semicolon-separated decimal degrees ("48.85;2.29") and
// underscore-separated degree-minute-second tokens terminated by an
// N/S/E/W/O direction marker ("48_51_29_N_2_17_40_E").
func parseGeoHackParams(params string) (float64, float64, bool) {
	if params == "" {
		return 0, 0, false
	}

	if strings.Contains(params, ";") {
		parts := strings.SplitN(params, ";", 2)
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lonField := strings.TrimSpace(parts[1])
		// Trailing qualifiers like "_type:city" ride on the lon field.
		if i := strings.IndexAny(lonField, "_ "); i >= 0 {
			lonField = lonField[:i]
		}
		lon, err2 := strconv.ParseFloat(lonField, 64)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return lat, lon, true
	}

	var coords []float64
	value := 0.0
	idx := 0
	for _, token := range strings.Split(params, "_") {
		switch token {
		case "N", "S", "E", "W", "O":
			if token == "S" || token == "W" || token == "O" {
				value = -value
			}
			coords = append(coords, value)
			value, idx = 0, 0
		default:
			f, err := strconv.ParseFloat(token, 64)
			if err != nil || idx >= len(dmsFactors) {
				// Qualifiers after the coordinates end the parse.
				if len(coords) >= 2 {
					return coords[0], coords[1], true
				}
				return 0, 0, false
			}
			value += f / dmsFactors[idx]
			idx++
		}
		if len(coords) == 2 {
			break
		}
	}
	if len(coords) == 2 {
		return coords[0], coords[1], true
	}
	return 0, 0, false
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

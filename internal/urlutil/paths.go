// Package urlutil holds the URL and archive-path helpers shared by the
// rewriter, the downloader and the orchestrator.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// thumbWidthRe matches the "220px-" prefix of a MediaWiki thumb segment.
var thumbWidthRe = regexp.MustCompile(`^(\d+)px-`)

// ValidateURL checks that a string is an absolute http(s) URL.
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}
	return nil
}

// ResolveURL resolves a possibly-relative href against a base URL.
func ResolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}

// StripHTTP removes the scheme from a URL so that http and https
// variants of the same object share one blob-cache key.
func StripHTTP(urlStr string) string {
	s := strings.TrimPrefix(urlStr, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimPrefix(s, "//")
}

// EncodeArticleID percent-encodes an article id for use inside an
// archive-local href. Path separators are preserved so that subpages
// keep their directory structure.
func EncodeArticleID(id string) string {
	segments := strings.Split(id, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// DecodeArticleID is the inverse of EncodeArticleID. When x is itself
// an output of EncodeArticleID, EncodeArticleID(DecodeArticleID(x))
// returns x unchanged.
func DecodeArticleID(id string) string {
	segments := strings.Split(id, "/")
	for i, seg := range segments {
		if dec, err := url.PathUnescape(seg); err == nil {
			segments[i] = dec
		}
	}
	return strings.Join(segments, "/")
}

// RelativePrefix returns the "../" run that leads from the article's
// location inside its namespace directory back to the archive root.
// An id with no slash lives one level deep, each slash adds a level.
func RelativePrefix(articleID string) string {
	return strings.Repeat("../", strings.Count(articleID, "/")+1)
}

// MediaInfo is the result of decomposing a media URL: the filename the
// archive stores the object under, plus the thumb width when the URL
// addresses a sized rendition.
type MediaInfo struct {
	Base  string
	Width int
}

// ParseMediaURL derives the archive filename for a media URL.
// MediaWiki thumb URLs look like
// /w/images/thumb/a/ab/Foo.png/220px-Foo.png; the canonical name is the
// segment before the last and the width comes off the "px-" prefix.
// Plain upload URLs use their final path segment.
func ParseMediaURL(rawURL string) (MediaInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("unparseable media URL %q: %w", rawURL, err)
	}
	p := u.Path
	if p == "" {
		return MediaInfo{}, fmt.Errorf("media URL %q has no path", rawURL)
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	last := segments[len(segments)-1]
	lastDec, err := url.PathUnescape(last)
	if err != nil {
		lastDec = last
	}

	if i := indexOf(segments, "thumb"); i >= 0 && len(segments) >= i+4 {
		base := segments[len(segments)-2]
		if dec, err := url.PathUnescape(base); err == nil {
			base = dec
		}
		width := 0
		if m := thumbWidthRe.FindStringSubmatch(lastDec); m != nil {
			width, _ = strconv.Atoi(m[1])
		}
		return MediaInfo{Base: base, Width: width}, nil
	}
	if lastDec == "" {
		return MediaInfo{}, fmt.Errorf("media URL %q has an empty filename", rawURL)
	}
	return MediaInfo{Base: lastDec}, nil
}

func indexOf(segments []string, want string) int {
	for i, s := range segments {
		if s == want {
			return i
		}
	}
	return -1
}

// ScaleMultiplier parses the trailing srcset descriptor of a candidate
// ("2x", "1.5x") into an integer multiplier, rounding up. Zero means
// no descriptor.
func ScaleMultiplier(descriptor string) int {
	d := strings.TrimSpace(descriptor)
	if !strings.HasSuffix(d, "x") {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(d, "x"), 64)
	if err != nil {
		return 0
	}
	n := int(f)
	if float64(n) < f {
		n++
	}
	return n
}

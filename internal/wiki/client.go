// Package wiki is the typed read client for the remote MediaWiki
// query API: site metadata, article details with multi-cursor
// continuation, category membership and backlink redirects.
package wiki

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// ErrDatabase is raised for upstream error.code == "DB_ERROR"; it is
// fatal and stops enumeration.
var ErrDatabase = fmt.Errorf("upstream database error")

// JSONGetter issues one GET and decodes the JSON body into v. The
// downloader implements this; tests substitute an httptest-backed one.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Client provides typed read access to the remote wiki.
type Client struct {
	apiURL    string
	delimiter string // replaces spaces in titles, usually "_"
	getter    JSONGetter

	mu          sync.Mutex
	coordinates bool // prop=coordinates still accepted upstream
}

// New creates a client against the given api.php URL. The space
// delimiter is applied to every title the client returns.
func New(apiURL, delimiter string, getter JSONGetter) *Client {
	if delimiter == "" {
		delimiter = "_"
	}
	return &Client{
		apiURL:      strings.TrimSuffix(apiURL, "/") + "/",
		delimiter:   delimiter,
		getter:      getter,
		coordinates: true,
	}
}

// CoordinatesAvailable reports whether prop=coordinates is still part
// of detail queries. It flips off permanently when the upstream warns
// about the coordinates module.
func (c *Client) CoordinatesAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coordinates
}

func (c *Client) disableCoordinates() {
	c.mu.Lock()
	c.coordinates = false
	c.mu.Unlock()
}

// normalizeTitle replaces spaces with the configured delimiter.
func (c *Client) normalizeTitle(title string) string {
	return strings.ReplaceAll(title, " ", c.delimiter)
}

// queryURL builds an action=query URL from params.
func (c *Client) queryURL(params url.Values) string {
	params.Set("action", "query")
	params.Set("format", "json")
	return c.apiURL + "?" + params.Encode()
}

// query issues one API call and applies the shared error/warning
// policy: DB_ERROR is fatal, other errors are logged and the partial
// response is returned, warnings are surfaced and a coordinates
// warning flips the capability off.
func (c *Client) query(ctx context.Context, params url.Values) (*apiResponse, error) {
	u := c.queryURL(params)
	var resp apiResponse
	if err := c.getter.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("wiki query failed: %w", err)
	}

	for module, w := range resp.Warnings {
		log.Warn().Str("module", module).Str("warning", w.Text).Msg("Upstream warning")
		if module == "query" && strings.Contains(w.Text, "coordinates") {
			c.disableCoordinates()
			log.Warn().Msg("Coordinates capability disabled by upstream warning")
		}
	}

	if resp.Error != nil {
		if resp.Error.Code == "DB_ERROR" {
			return nil, fmt.Errorf("%w: %s", ErrDatabase, resp.Error.Info)
		}
		log.Error().Str("code", resp.Error.Code).Str("info", resp.Error.Info).Msg("Upstream error, keeping partial data")
	}

	return &resp, nil
}

// Metadata issues the siteinfo query and assembles the immutable run
// metadata. Every namespace name variant is registered; the main page
// title has its spaces replaced by the delimiter; all URLs end with a
// slash.
func (c *Client) Metadata(ctx context.Context) (*models.WikiMetadata, error) {
	params := url.Values{}
	params.Set("meta", "siteinfo")
	params.Set("siprop", "general|namespaces|namespacealiases|statistics")

	resp, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	if resp.Query == nil || resp.Query.General == nil {
		return nil, fmt.Errorf("siteinfo response missing query.general")
	}
	g := resp.Query.General

	base := strings.TrimSuffix(g.Server, "/") + "/"
	if !strings.Contains(base, "://") {
		base = "https:" + base
	}
	scriptPath := strings.Trim(g.ScriptPath, "/")
	apiBase := base
	if scriptPath != "" {
		apiBase = base + scriptPath + "/"
	}

	direction := "ltr"
	if g.RTL != nil {
		direction = "rtl"
	}
	lang3 := g.Lang3
	if lang3 == "" {
		lang3 = deriveISO3(g.Lang)
	}

	meta := &models.WikiMetadata{
		BaseURL:         base,
		APIURL:          apiBase + "api.php/",
		RestURL:         base + "api/rest_v1/",
		VisualEditorURL: apiBase + "api.php/",
		WebURL:          base,
		MainPage:        c.normalizeTitle(g.MainPage),
		SiteName:        g.SiteName,
		TextDirection:   direction,
		LangISO2:        g.Lang,
		LangISO3:        lang3,
		Namespaces:      make(map[string]models.Namespace),
	}

	for _, ns := range resp.Query.Namespaces {
		record := models.Namespace{
			ID:              ns.ID,
			Name:            c.normalizeTitle(ns.Name),
			Canonical:       c.normalizeTitle(ns.Canonical),
			IsContent:       ns.Content != nil,
			AllowedSubpages: ns.SubPages != nil,
		}
		registerNamespace(meta.Namespaces, ns.Name, record, c.delimiter)
		if ns.Canonical != "" {
			registerNamespace(meta.Namespaces, ns.Canonical, record, c.delimiter)
		}
	}
	for _, alias := range resp.Query.NamespaceAliases {
		for _, record := range meta.Namespaces {
			if record.ID == alias.ID {
				registerNamespace(meta.Namespaces, alias.Name, record, c.delimiter)
				break
			}
		}
	}

	log.Info().
		Str("site", meta.SiteName).
		Str("lang", meta.LangISO2).
		Str("mainPage", meta.MainPage).
		Int("namespaces", len(meta.Namespaces)).
		Msg("Wiki metadata loaded")

	return meta, nil
}

// registerNamespace stores the record under the name, its
// lowercased-first and uppercased-first variants.
func registerNamespace(m map[string]models.Namespace, name string, record models.Namespace, delimiter string) {
	name = strings.ReplaceAll(name, " ", delimiter)
	variants := []string{name}
	if name != "" {
		r := []rune(name)
		lower := string(append([]rune(strings.ToLower(string(r[0]))), r[1:]...))
		upper := string(append([]rune(strings.ToUpper(string(r[0]))), r[1:]...))
		variants = append(variants, lower, upper)
	}
	for _, v := range variants {
		m[v] = record
	}
}

// deriveISO3 maps common two-letter codes onto their three-letter
// form; unknown codes fall back to the two-letter code itself.
func deriveISO3(iso2 string) string {
	table := map[string]string{
		"en": "eng", "de": "deu", "fr": "fra", "es": "spa", "it": "ita",
		"pt": "por", "ru": "rus", "ja": "jpn", "zh": "zho", "ar": "ara",
		"nl": "nld", "pl": "pol", "sv": "swe", "tr": "tur", "fa": "fas",
		"he": "heb", "ko": "kor", "uk": "ukr", "cs": "ces", "hi": "hin",
	}
	if iso3, ok := table[iso2]; ok {
		return iso3
	}
	return iso2
}

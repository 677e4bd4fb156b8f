package models

// WikiMetadata describes the remote wiki as discovered by the siteinfo
// query. It is populated once at startup and never mutated afterwards.
// All URL fields carry a trailing slash.
type WikiMetadata struct {
	BaseURL         string
	APIURL          string
	RestURL         string
	VisualEditorURL string
	WebURL          string
	MainPage        string
	SiteName        string
	TextDirection   string // "ltr" or "rtl"
	LangISO2        string
	LangISO3        string // derived from LangISO2 when not explicit
	Namespaces      map[string]Namespace
}

// Namespace is one integer-tagged partition of wiki titles. Every name
// variant (canonical, localized, case-flipped first letter) maps to the
// same record in WikiMetadata.Namespaces.
type Namespace struct {
	ID              int
	Name            string // localized
	Canonical       string
	IsContent       bool
	AllowedSubpages bool
}

// Revision is one entry of prop=revisions; index 0 is canonical.
type Revision struct {
	RevID     int    `json:"revid"`
	ParentID  int    `json:"parentid,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Coordinates is a geo position attached to an article.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PageRef is a lightweight reference to another page, used for
// redirects, categories, sub-categories and sub-pages.
type PageRef struct {
	PageID int    `json:"pageid,omitempty"`
	NS     int    `json:"ns"`
	Title  string `json:"title"`
}

// Thumbnail is the page image reported by prop=pageimages.
type Thumbnail struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ArticleDetail is the unit of enumeration: one article to mirror.
// Large category articles are split into shards that reference their
// neighbours by id (never by pointer) via PrevArticleID/NextArticleID.
type ArticleDetail struct {
	Title         string       `json:"title"`
	PageID        int          `json:"pageid"`
	NS            int          `json:"ns"`
	Revisions     []Revision   `json:"revisions,omitempty"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
	Redirects     []PageRef    `json:"redirects,omitempty"`
	Categories    []PageRef    `json:"categories,omitempty"`
	SubCategories []PageRef    `json:"subCategories,omitempty"`
	Pages         []PageRef    `json:"pages,omitempty"`
	Thumbnail     *Thumbnail   `json:"thumbnail,omitempty"`

	PrevArticleID string `json:"prevArticleId,omitempty"`
	NextArticleID string `json:"nextArticleId,omitempty"`
}

// RevID returns the flattened canonical revision id, zero when unknown.
func (a *ArticleDetail) RevID() int {
	if len(a.Revisions) == 0 {
		return 0
	}
	return a.Revisions[0].RevID
}

// FileTask is one media file to fetch into the archive. ArchivePath is
// unique within a run; a re-enqueue for the same path only wins when it
// carries a higher Width or Mult (resolution upgrade).
type FileTask struct {
	ArchivePath string `json:"path"`
	URL         string `json:"url"`
	Namespace   string `json:"ns"` // usually "I"
	Width       int    `json:"width,omitempty"`
	Mult        int    `json:"mult,omitempty"` // srcset scale multiplier
}

// Redirect maps a non-mirrored source title onto its target article.
type Redirect struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Capabilities records which upstream rendering paths answered the
// startup probe. All three false aborts the run.
type Capabilities struct {
	RestAPI      bool
	VisualEditor bool
	Coordinates  bool
}

// RenderedArticle is one output fragment produced by the renderer. A
// plain article yields exactly one; an oversized category yields one
// shard per 200 sub-categories.
type RenderedArticle struct {
	ID           string
	DisplayTitle string
	HTML         string
	Detail       *ArticleDetail
}

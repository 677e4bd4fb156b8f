package wiki

import (
	"encoding/json"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// apiResponse is the envelope every action=query response shares.
// Servers return either the modern "continue" block or, under
// rawcontinue, the legacy "query-continue" tree; both are handled and
// "continue" wins when a response carries both.
type apiResponse struct {
	Error         *apiError                    `json:"error,omitempty"`
	Warnings      map[string]warning           `json:"warnings,omitempty"`
	Continue      map[string]string            `json:"continue,omitempty"`
	QueryContinue map[string]map[string]string `json:"query-continue,omitempty"`
	Query         *apiQuery                    `json:"query,omitempty"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type warning struct {
	Text string `json:"*"`
}

type apiQuery struct {
	General          *siteGeneral        `json:"general,omitempty"`
	Namespaces       map[string]nsJSON   `json:"namespaces,omitempty"`
	NamespaceAliases []nsAlias           `json:"namespacealiases,omitempty"`
	Pages            map[string]pageJSON `json:"pages,omitempty"`
	CategoryMembers  []models.PageRef    `json:"categorymembers,omitempty"`
}

type siteGeneral struct {
	MainPage    string           `json:"mainpage"`
	Base        string           `json:"base"`
	SiteName    string           `json:"sitename"`
	Lang        string           `json:"lang"`
	Lang3       string           `json:"lang3,omitempty"`
	RTL         *json.RawMessage `json:"rtl,omitempty"` // present (often "") when right-to-left
	Server      string           `json:"server"`
	ArticlePath string           `json:"articlepath"`
	ScriptPath  string           `json:"scriptpath"`
}

type nsJSON struct {
	ID        int              `json:"id"`
	Name      string           `json:"*"`
	Canonical string           `json:"canonical,omitempty"`
	Content   *json.RawMessage `json:"content,omitempty"`
	SubPages  *json.RawMessage `json:"subpages,omitempty"`
}

type nsAlias struct {
	ID   int    `json:"id"`
	Name string `json:"*"`
}

// pageJSON is one entry of query.pages, keyed upstream by pageId.
type pageJSON struct {
	PageID      int                  `json:"pageid"`
	NS          int                  `json:"ns"`
	Title       string               `json:"title"`
	Missing     *json.RawMessage     `json:"missing,omitempty"`
	Revisions   []models.Revision    `json:"revisions,omitempty"`
	Coordinates []models.Coordinates `json:"coordinates,omitempty"`
	Categories  []models.PageRef     `json:"categories,omitempty"`
	Redirects   []models.PageRef     `json:"redirects,omitempty"`
	Thumbnail   *models.Thumbnail    `json:"thumbnail,omitempty"`
}

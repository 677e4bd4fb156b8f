package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// httpGetter is the test JSONGetter: plain GET plus a JSON decode.
type httpGetter struct{}

func (httpGetter) GetJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"query": {
				"general": {
					"mainpage": "Main Page",
					"sitename": "Testpedia",
					"lang": "en",
					"server": "//test.example.org",
					"articlepath": "/wiki/$1",
					"scriptpath": "/w"
				},
				"namespaces": {
					"0":  {"id": 0, "*": "", "content": ""},
					"14": {"id": 14, "*": "Category", "canonical": "Category"},
					"100": {"id": 100, "*": "Portal", "canonical": "Portal", "subpages": ""}
				},
				"namespacealiases": [{"id": 14, "*": "CAT"}]
			}
		}`)
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	meta, err := c.Metadata(context.Background())
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}

	if meta.MainPage != "Main_Page" {
		t.Errorf("main page = %q", meta.MainPage)
	}
	if meta.SiteName != "Testpedia" {
		t.Errorf("site name = %q", meta.SiteName)
	}
	if meta.LangISO3 != "eng" {
		t.Errorf("iso3 = %q, want eng", meta.LangISO3)
	}
	if meta.TextDirection != "ltr" {
		t.Errorf("direction = %q", meta.TextDirection)
	}
	if meta.BaseURL != "https://test.example.org/" {
		t.Errorf("base url = %q", meta.BaseURL)
	}

	// Name variants all resolve to the same record.
	for _, name := range []string{"Category", "category", "CAT"} {
		ns, ok := meta.Namespaces[name]
		if !ok {
			t.Errorf("namespace variant %q not registered", name)
			continue
		}
		if ns.ID != 14 {
			t.Errorf("namespace %q id = %d, want 14", name, ns.ID)
		}
	}
	if !meta.Namespaces["Portal"].AllowedSubpages {
		t.Error("Portal should allow subpages")
	}
	if !meta.Namespaces[""].IsContent {
		t.Error("main namespace should be content")
	}
}

func TestArticleDetailsByIDs_ContinuationMergesOnlyContinuedProps(t *testing.T) {
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		switch call {
		case 1:
			fmt.Fprint(w, `{
				"continue": {"clcontinue": "42|Cats", "continue": "||"},
				"query": {"pages": {
					"42": {
						"pageid": 42, "ns": 0, "title": "London",
						"revisions": [{"revid": 1001}],
						"categories": [{"ns": 14, "title": "Category:Capitals"}]
					}
				}}
			}`)
		default:
			// The continuation page re-emits revisions; only the
			// continued categories may be merged.
			fmt.Fprint(w, `{
				"query": {"pages": {
					"42": {
						"pageid": 42, "ns": 0, "title": "London",
						"revisions": [{"revid": 9999}],
						"categories": [{"ns": 14, "title": "Category:Cities"}]
					}
				}}
			}`)
		}
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	details, err := c.ArticleDetailsByIDs(context.Background(), []string{"London"}, false)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if call != 2 {
		t.Fatalf("calls = %d, want 2", call)
	}

	d, ok := details["London"]
	if !ok {
		t.Fatal("missing London")
	}
	if d.RevID() != 1001 {
		t.Errorf("revid = %d, want 1001 (continuation must not overwrite)", d.RevID())
	}
	if len(d.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(d.Categories))
	}
	if d.Categories[1].Title != "Category:Cities" {
		t.Errorf("second category = %q", d.Categories[1].Title)
	}
}

func TestArticleDetailsByIDs_DropsMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"query": {"pages": {
				"-1": {"ns": 0, "title": "NeverExistingArticle", "missing": ""},
				"7": {"pageid": 7, "ns": 0, "title": "Real Page", "revisions": [{"revid": 5}]}
			}}
		}`)
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	details, err := c.ArticleDetailsByIDs(context.Background(), []string{"NeverExistingArticle", "Real Page"}, false)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("details = %d, want 1", len(details))
	}
	if _, ok := details["Real_Page"]; !ok {
		t.Error("missing Real_Page (title must be re-keyed with delimiter)")
	}
}

func TestArticleDetailsByNamespace_ReturnsOuterCursor(t *testing.T) {
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		switch call {
		case 1:
			// Legacy rawcontinue shape: outer generator cursor plus an
			// inner categories cursor.
			fmt.Fprint(w, `{
				"query-continue": {
					"allpages": {"gapcontinue": "M"},
					"categories": {"clcontinue": "1|X"}
				},
				"query": {"pages": {
					"1": {"pageid": 1, "ns": 0, "title": "Alpha", "revisions": [{"revid": 11}]}
				}}
			}`)
		default:
			fmt.Fprint(w, `{
				"query": {"pages": {
					"1": {"pageid": 1, "ns": 0, "title": "Alpha",
						"categories": [{"ns": 14, "title": "Category:Greek"}]}
				}}
			}`)
		}
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	details, next, err := c.ArticleDetailsByNamespace(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("by namespace: %v", err)
	}
	if call != 2 {
		t.Fatalf("calls = %d, want 2 (inner cursor must be drained)", call)
	}
	if next != "M" {
		t.Errorf("gapcontinue = %q, want M", next)
	}
	d := details["Alpha"]
	if d == nil {
		t.Fatal("missing Alpha")
	}
	if len(d.Categories) != 1 || d.Categories[0].Title != "Category:Greek" {
		t.Errorf("categories = %+v", d.Categories)
	}
	if d.RevID() != 11 {
		t.Errorf("revid = %d", d.RevID())
	}
}

func TestSubCategories_FollowsCursor(t *testing.T) {
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			fmt.Fprint(w, `{
				"continue": {"cmcontinue": "page|X", "continue": "-||"},
				"query": {"categorymembers": [{"ns": 14, "title": "Category:A"}]}
			}`)
			return
		}
		fmt.Fprint(w, `{"query": {"categorymembers": [{"ns": 14, "title": "Category:B"}]}}`)
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	members, err := c.SubCategories(context.Background(), "Category:Top", "")
	if err != nil {
		t.Fatalf("subcategories: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	if members[0].Title != "Category:A" || members[1].Title != "Category:B" {
		t.Errorf("members = %+v", members)
	}
}

func TestQuery_DBErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"code": "DB_ERROR", "info": "replica down"}}`)
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	_, err := c.ArticleDetailsByIDs(context.Background(), []string{"X"}, false)
	if !errors.Is(err, ErrDatabase) {
		t.Errorf("err = %v, want ErrDatabase", err)
	}
}

func TestQuery_CoordinatesWarningTogglesCapability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"warnings": {"query": {"*": "Unrecognized value for parameter prop: coordinates"}},
			"query": {"pages": {}}
		}`)
	}))
	defer server.Close()

	c := New(server.URL, "_", httpGetter{})
	if !c.CoordinatesAvailable() {
		t.Fatal("coordinates should start available")
	}
	if _, err := c.ArticleDetailsByIDs(context.Background(), []string{"X"}, false); err != nil {
		t.Fatalf("details: %v", err)
	}
	if c.CoordinatesAvailable() {
		t.Error("coordinates capability should be off after warning")
	}
}

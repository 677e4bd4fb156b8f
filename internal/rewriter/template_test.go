package rewriter

import (
	"strings"
	"testing"

	"github.com/wikimirror/wikimirror/pkg/models"
)

func TestDocument_FullPage(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	page := r.Document(DocumentData{
		ArticleID:     "London",
		DisplayTitle:  "London",
		Body:          "<p>body text</p>",
		JSModules:     []string{"startup", "mediawiki"},
		CSSModules:    []string{"skins.vector.styles"},
		HasConfigVars: true,
		Coordinates:   &models.Coordinates{Lat: 51.5, Lon: -0.12},
		CreatorName:   "wikimirror",
		Date:          "2026-08-05",
		SourceURL:     "https://test.example.org/wiki/London",
	})

	for _, want := range []string{
		`<title>London</title>`,
		`dir="ltr"`,
		`<meta name="geo.position" content="51.5;-0.12">`,
		`href="../-/s/style.css"`,
		`href="../-/m/skins.vector.styles.css"`,
		`src="../-/j/startup.js"`,
		`src="../-/j/jsConfigVars.js"`,
		`<!--htdig_noindex-->`,
		`<!--/htdig_noindex-->`,
		`2026-08-05`,
		"body text",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("missing %q in:\n%s", want, page)
		}
	}
}

func TestDocument_Breadcrumb(t *testing.T) {
	r := New(Options{Meta: testMeta()})

	withSub := r.Document(DocumentData{
		ArticleID:     "Portal:Arts/Intro",
		DisplayTitle:  "Intro",
		Body:          "<p>x</p>",
		AllowSubpages: true,
	})
	if !strings.Contains(withSub, `class="subpages"`) {
		t.Error("breadcrumb missing for subpage")
	}
	if !strings.Contains(withSub, `href="../Portal:Arts"`) {
		t.Errorf("parent link missing:\n%s", withSub)
	}

	noSub := r.Document(DocumentData{
		ArticleID:    "London",
		DisplayTitle: "London",
		Body:         "<p>x</p>",
	})
	if strings.Contains(noSub, `class="subpages"`) {
		t.Error("breadcrumb rendered for plain article")
	}
}

func TestDocument_Minify(t *testing.T) {
	r := New(Options{Meta: testMeta(), Minify: true})
	page := r.Document(DocumentData{
		ArticleID:    "London",
		DisplayTitle: "London",
		Body:         "<p>x</p>",
	})
	if !strings.Contains(page, "<!--htdig_noindex-->") {
		t.Error("htdig fence must survive minification")
	}
	if strings.Contains(page, ">\n<") {
		t.Error("inter-tag newlines survived minification")
	}
}

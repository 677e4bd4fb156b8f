package scraper

import (
	"context"
	"strings"
	"testing"

	"github.com/wikimirror/wikimirror/internal/downloader"
	"github.com/wikimirror/wikimirror/internal/kv"
	"github.com/wikimirror/wikimirror/pkg/models"
)

func TestPatchModuleSource_Startup(t *testing.T) {
	source := `var x=1;script=document.createElement('script');x.src=url;`
	patched := patchModuleSource("startup", source)

	if strings.Contains(patched, startupNeedle) {
		t.Error("loader injection survived the patch")
	}
	if !strings.Contains(patched, "fireStartUp") {
		t.Error("event listener missing")
	}
	// Applied exactly once: patching again changes nothing.
	if patchModuleSource("startup", patched) != patched {
		t.Error("patch is not idempotent")
	}
}

func TestPatchModuleSource_Mediawiki(t *testing.T) {
	patched := patchModuleSource("mediawiki", "mw.init();")
	if !strings.HasSuffix(patched, mediawikiSuffix) {
		t.Errorf("suffix missing: %q", patched)
	}
}

func TestPatchModuleSource_OtherModulesUntouched(t *testing.T) {
	source := `script=document.createElement('script');`
	if patchModuleSource("jquery", source) != source {
		t.Error("unrelated module was patched")
	}
}

func TestJSConfigVarsScript(t *testing.T) {
	script := jsConfigVarsScript(map[string]any{"wgPageName": "London"})
	if !strings.Contains(script, `"wgPageName":"London"`) {
		t.Errorf("script = %q", script)
	}
	if !strings.Contains(script, "mw.config.set") {
		t.Errorf("script = %q", script)
	}
}

func TestUpsertFileTask_ResolutionLaw(t *testing.T) {
	ctx := context.Background()
	store := kv.NewTyped[models.FileTask](kv.NewMemStore())

	insertions := []models.FileTask{
		{ArchivePath: "Foo.png", URL: "u220", Width: 220, Mult: 1},
		{ArchivePath: "Foo.png", URL: "u440", Width: 440, Mult: 1},
		{ArchivePath: "Foo.png", URL: "u110", Width: 110, Mult: 2},
	}
	for _, task := range insertions {
		if err := upsertFileTask(ctx, store, task); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	final, ok, err := store.Get(ctx, "Foo.png")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if final.Width != 440 {
		t.Errorf("width = %d, want 440", final.Width)
	}
	if final.Mult != 2 {
		t.Errorf("mult = %d, want 2", final.Mult)
	}
	if final.URL != "u440" {
		t.Errorf("url = %q, want the widest rendition's", final.URL)
	}
}

func testScraper(t *testing.T) *Scraper {
	t.Helper()
	return New(Options{
		Downloader: downloader.New(downloader.Options{Speed: 1}),
		Stores:     NewMemStores(),
		Speed:      1,
	})
}

func TestDereferenceCSS(t *testing.T) {
	ctx := context.Background()
	s := testScraper(t)

	css := `body{background:url("/w/skins/bg.png")}
.icon{background:url(data:image/png;base64,AAA)}
.logo{background:url('https://cdn.example.org/logo.svg')}`

	out := s.dereferenceCSS(ctx, css, "https://wiki.example.org/w/load.php")

	if !strings.Contains(out, "url(bg.png)") {
		t.Errorf("relative ref not localized:\n%s", out)
	}
	if !strings.Contains(out, "url(data:image/png;base64,AAA)") {
		t.Error("data URI was rewritten")
	}
	if !strings.Contains(out, "url(logo.svg)") {
		t.Errorf("absolute ref not localized:\n%s", out)
	}

	keys, err := s.stores.FilesToDownload.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := map[string]bool{"s/bg.png": true, "s/logo.svg": true}
	if len(keys) != len(want) {
		t.Fatalf("queued = %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected queue entry %q", k)
		}
	}
}

func TestResolveMainPage_SingleHop(t *testing.T) {
	ctx := context.Background()
	s := testScraper(t)
	s.mainPage = "Home"

	err := s.stores.Redirects.Set(ctx, "Home", models.Redirect{From: "Home", To: "Main_Page"})
	if err != nil {
		t.Fatal(err)
	}
	// A second hop exists but must not be followed.
	err = s.stores.Redirects.Set(ctx, "Main_Page", models.Redirect{From: "Main_Page", To: "Elsewhere"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.resolveMainPage(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.mainPage != "Main_Page" {
		t.Errorf("main page = %q, want Main_Page (single hop only)", s.mainPage)
	}
}

func TestAllowSubpages(t *testing.T) {
	s := testScraper(t)
	s.meta = &models.WikiMetadata{
		Namespaces: map[string]models.Namespace{
			"":       {ID: 0, IsContent: true},
			"Portal": {ID: 100, AllowedSubpages: true},
		},
	}

	if s.allowSubpages("London/History") {
		t.Error("main namespace must not allow subpages here")
	}
	if !s.allowSubpages("Portal:Arts/Intro") {
		t.Error("Portal namespace allows subpages")
	}
	if s.allowSubpages("Unknown:Thing/Sub") {
		t.Error("unknown prefix must not allow subpages")
	}
}

func TestCounterMonotonic(t *testing.T) {
	var status Status
	status.Articles.Success()
	status.Articles.Success()
	status.Articles.Fail()

	if status.Articles.Successes() != 2 || status.Articles.Failures() != 1 {
		t.Errorf("counters = %d/%d", status.Articles.Successes(), status.Articles.Failures())
	}
	if status.Articles.Total() != 3 {
		t.Errorf("total = %d", status.Articles.Total())
	}
}

package rewriter

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/wikimirror/wikimirror/pkg/models"
)

func testMeta() *models.WikiMetadata {
	return &models.WikiMetadata{
		BaseURL:       "https://test.example.org/",
		WebURL:        "https://test.example.org/",
		TextDirection: "ltr",
		SiteName:      "Testpedia",
	}
}

func testCtx(mirrored map[string]bool, redirects map[string]string) ArticleContext {
	return ArticleContext{
		ArticleID: "London",
		IsMirrored: func(title string) bool {
			return mirrored[title]
		},
		RedirectTarget: func(title string) (string, bool) {
			target, ok := redirects[title]
			return target, ok
		},
	}
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func render(t *testing.T, doc *goquery.Document) string {
	t.Helper()
	out, err := doc.Find("body").Html()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func TestImageRewrite(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><img src="//upload.test.example.org/thumb/a/ab/Foo.png/220px-Foo.png" srcset="//upload.test.example.org/thumb/a/ab/Foo.png/440px-Foo.png 2x" resource="./File:Foo.png"></p>`)

	tasks, err := r.Rewrite(doc, testCtx(nil, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	img := doc.Find("img")
	src, _ := img.Attr("src")
	if src != "../I/Foo.png" {
		t.Errorf("src = %q, want ../I/Foo.png", src)
	}
	if _, ok := img.Attr("srcset"); ok {
		t.Error("srcset survived")
	}
	if _, ok := img.Attr("resource"); ok {
		t.Error("resource survived")
	}

	// One archive path; resolution upgraded by the 2x candidate.
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1 (same base must deduplicate)", len(tasks))
	}
	task := tasks[0]
	if task.ArchivePath != "Foo.png" {
		t.Errorf("path = %q", task.ArchivePath)
	}
	// Rewritten src == prefix + NS + "/" + stored archive path.
	if src != "../"+task.Namespace+"/"+task.ArchivePath {
		t.Errorf("src %q does not address task %q", src, task.ArchivePath)
	}
	if task.Width != 440 || task.Mult != 2 {
		t.Errorf("width/mult = %d/%d, want 440/2", task.Width, task.Mult)
	}
}

func TestImageSpecialFilePathSkipped(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><img src="./Special:FilePath/foo"></p>`)

	tasks, err := r.Rewrite(doc, testCtx(nil, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tasks))
	}
	src, _ := doc.Find("img").Attr("src")
	if src != "./Special:FilePath/foo" {
		t.Errorf("src = %q, must stay untouched", src)
	}
}

func TestImageUnwrappedFromDeadLink(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a href="./Somewhere_Unknown"><img src="/images/a/ab/Pic.jpg"></a></p>`)

	_, err := r.Rewrite(doc, testCtx(map[string]bool{}, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find("a").Length() != 0 {
		t.Error("dead link around image survived")
	}
	if doc.Find("img").Length() != 1 {
		t.Error("image lost while unwrapping")
	}
}

func TestImageKeptInMirroredLink(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a rel="mw:WikiLink" href="./Paris"><img src="/images/a/ab/Pic.jpg"></a></p>`)

	_, err := r.Rewrite(doc, testCtx(map[string]bool{"Paris": true}, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	link := doc.Find("a")
	if link.Length() != 1 {
		t.Fatal("mirrored link around image removed")
	}
	href, _ := link.Attr("href")
	if href != "../A/Paris" {
		t.Errorf("href = %q, want ../A/Paris", href)
	}
}

func TestVideoSourceSelection(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<video height="20" poster="/images/thumb/a/ab/Clip.webm/320px-Clip.webm.jpg">
		<source src="/images/a/ab/Clip.hd.webm" data-file-width="1920" data-file-height="1080">
		<source src="/images/a/ab/Clip.sd.webm" data-file-width="640" data-file-height="360">
	</video>`)

	tasks, err := r.Rewrite(doc, testCtx(nil, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	video := doc.Find("video")
	if _, ok := video.Attr("controls"); !ok {
		t.Error("controls not forced")
	}
	if h, _ := video.Attr("height"); h != "40" {
		t.Errorf("height = %q, want raised to 40", h)
	}

	sources := video.Find("source")
	if sources.Length() != 1 {
		t.Fatalf("sources = %d, want 1 (lowest resolution)", sources.Length())
	}
	src, _ := sources.Attr("src")
	if src != "../I/Clip.sd.webm" {
		t.Errorf("kept source = %q, want the sd rendition", src)
	}

	paths := make(map[string]bool)
	for _, task := range tasks {
		paths[task.ArchivePath] = true
	}
	if !paths["Clip.sd.webm"] {
		t.Error("sd source not enqueued")
	}
	if paths["Clip.hd.webm"] {
		t.Error("discarded hd source enqueued")
	}
}

func TestVideoWithoutSourceOrPosterDeleted(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><video height="200"></video></p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find("video").Length() != 0 {
		t.Error("empty video survived")
	}
}

func TestGeoHackRewrite(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a href="https://tools.wmflabs.org/geohack/geohack.php?params=48_51_29_N_2_17_40_E">Eiffel</a></p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	href, _ := doc.Find("a").Attr("href")
	if !strings.HasPrefix(href, "geo:") {
		t.Fatalf("href = %q", href)
	}
	parts := strings.Split(strings.TrimPrefix(href, "geo:"), ",")
	lat, _ := strconv.ParseFloat(parts[0], 64)
	lon, _ := strconv.ParseFloat(parts[1], 64)
	if math.Abs(lat-48.858055) > 1e-5 {
		t.Errorf("lat = %v", lat)
	}
	if math.Abs(lon-2.294444) > 1e-5 {
		t.Errorf("lon = %v", lon)
	}
}

func TestGeoHackDecimalParams(t *testing.T) {
	lat, lon, ok := parseGeoHackParams("48.85;2.29")
	if !ok || math.Abs(lat-48.85) > 1e-9 || math.Abs(lon-2.29) > 1e-9 {
		t.Errorf("got %v,%v ok=%v", lat, lon, ok)
	}

	// West and south markers negate.
	lat, lon, ok = parseGeoHackParams("33_52_S_151_12_E")
	if !ok || lat >= 0 || lon <= 0 {
		t.Errorf("got %v,%v ok=%v", lat, lon, ok)
	}
}

func TestLinkToUnmirroredTitleUnwrapped(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a rel="mw:WikiLink" href="./Somewhere_Unknown">text</a></p>`)

	tasks, err := r.Rewrite(doc, testCtx(map[string]bool{}, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find("a").Length() != 0 {
		t.Error("link survived")
	}
	if !strings.Contains(render(t, doc), "text") {
		t.Error("link text lost")
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tasks))
	}
}

func TestLinkThroughRedirectRewritten(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a rel="mw:WikiLink" href="./Old_Name#History">text</a></p>`)

	_, err := r.Rewrite(doc, testCtx(
		map[string]bool{"New_Name": true},
		map[string]string{"Old_Name": "New_Name"},
	))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	href, _ := doc.Find("a").Attr("href")
	if href != "../A/New_Name#History" {
		t.Errorf("href = %q", href)
	}
}

func TestExternalLinkAbsolutized(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a rel="mw:ExtLink" href="/w/index.php?title=X">ext</a></p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	href, _ := doc.Find("a").Attr("href")
	if href != "https://test.example.org/w/index.php?title=X" {
		t.Errorf("href = %q", href)
	}
}

func TestInterwikiGetsExternalClass(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a rel="mw:WikiLink/Interwiki" href="https://fr.test.org/wiki/Paris">fr</a></p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	class, _ := doc.Find("a").Attr("class")
	if !classContains(class, "external") {
		t.Errorf("class = %q", class)
	}
}

func TestEmptyHrefRemoved(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><a href="">x</a><a href="#frag">frag</a></p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	links := doc.Find("a")
	if links.Length() != 1 {
		t.Fatalf("links = %d, want 1", links.Length())
	}
	href, _ := links.Attr("href")
	if href != "#frag" {
		t.Errorf("surviving href = %q", href)
	}
}

func TestAdjacentHeadingsRemoved(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<div><h3>First</h3><h3>Second</h3></div>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if n := doc.Find("h3").Length(); n != 0 {
		t.Errorf("headings left = %d, want 0", n)
	}
}

func TestHeadingWithContentKept(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<div><h2>Kept</h2><p>content</p></div>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find("h2").Length() != 1 {
		t.Error("heading with content removed")
	}
}

func TestHeadingInsideSummarySkipped(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<details><summary><h2>Title</h2></summary><div>body</div></details>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find("summary h2").Length() != 1 {
		t.Error("summary heading removed")
	}
}

func TestAttributeScrub(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p data-parsoid="{}" typeof="mw:Transclusion" about="#mwt1" data-mw="{}" class="keep mw-ref-thing">x</p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	p := doc.Find("p")
	for _, attr := range []string{"data-parsoid", "typeof", "about", "data-mw"} {
		if _, ok := p.Attr(attr); ok {
			t.Errorf("%s survived scrub", attr)
		}
	}
	class, _ := p.Attr("class")
	if class != "keep" {
		t.Errorf("class = %q, want keep", class)
	}
}

func TestRewriteIdempotent(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	input := `<p><a rel="mw:WikiLink" href="./Paris">Paris</a> <img src="/images/thumb/a/ab/Foo.png/220px-Foo.png"></p>`
	ctx := testCtx(map[string]bool{"Paris": true}, nil)

	doc := parse(t, input)
	if _, err := r.Rewrite(doc, ctx); err != nil {
		t.Fatalf("first rewrite: %v", err)
	}
	once := render(t, doc)

	doc2 := parse(t, once)
	if _, err := r.Rewrite(doc2, ctx); err != nil {
		t.Fatalf("second rewrite: %v", err)
	}
	twice := render(t, doc2)

	if once != twice {
		t.Errorf("rewrite not idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
}

func TestReferenceSpanBecomesSup(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<p><span rel="dc:references" id="ref1"><a href="#cite1">[1]</a></span><span rel="dc:references"></span></p>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	sup := doc.Find("sup")
	if sup.Length() != 1 {
		t.Fatalf("sups = %d, want 1 (empty one deleted)", sup.Length())
	}
	if id, _ := sup.Attr("id"); id != "ref1" {
		t.Errorf("id = %q", id)
	}
}

func TestGalleryCleanup(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<div class="gallery"><div class="gallerybox"><span>caption only</span></div></div>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find(".gallery").Length() != 0 {
		t.Error("media-less gallery survived")
	}
}

func TestFigureBecomesThumb(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<figure class="mw-halign-left"><img src="/images/a/ab/Pic.jpg" width="200"><figcaption>A caption</figcaption></figure>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	thumb := doc.Find("div.thumb")
	if thumb.Length() != 1 {
		t.Fatal("no thumb wrapper")
	}
	if class, _ := thumb.Attr("class"); !classContains(class, "tleft") {
		t.Errorf("class = %q", class)
	}
	inner := thumb.Find(".thumbinner")
	if style, _ := inner.Attr("style"); style != "width:202px" {
		t.Errorf("inner style = %q, want width:202px", style)
	}
	if caption := thumb.Find(".thumbcaption").Text(); caption != "A caption" {
		t.Errorf("caption = %q", caption)
	}
}

func TestFigureWithoutMediaDeleted(t *testing.T) {
	r := New(Options{Meta: testMeta()})
	doc := parse(t, `<figure><figcaption>orphan caption</figcaption></figure>`)

	if _, err := r.Rewrite(doc, testCtx(nil, nil)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if doc.Find("figure, div.thumb").Length() != 0 {
		t.Error("media-less figure survived")
	}
}

func TestNoPicturesRemovesImages(t *testing.T) {
	r := New(Options{Meta: testMeta(), NoPictures: true})
	doc := parse(t, `<p><img src="/images/a/ab/Pic.jpg"><img class="mwe-math-fallback-image-inline" src="/images/math/1.svg"></p>`)

	tasks, err := r.Rewrite(doc, testCtx(nil, nil))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	imgs := doc.Find("img")
	if imgs.Length() != 1 {
		t.Fatalf("imgs = %d, want only the math fallback", imgs.Length())
	}
	if len(tasks) != 1 {
		t.Errorf("tasks = %d, want 1 (math image still fetched)", len(tasks))
	}
}

func TestResolutionUpgradeLaw(t *testing.T) {
	sink := newMediaSink()
	sink.add(models.FileTask{ArchivePath: "Foo.png", Width: 220, Mult: 1})
	sink.add(models.FileTask{ArchivePath: "Foo.png", Width: 440, Mult: 2})
	sink.add(models.FileTask{ArchivePath: "Foo.png", Width: 110, Mult: 1})

	tasks := sink.list()
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	if tasks[0].Width != 440 || tasks[0].Mult != 2 {
		t.Errorf("width/mult = %d/%d, want 440/2", tasks[0].Width, tasks[0].Mult)
	}
}

// Package rewriter is the pure DOM transform: media treatment, link
// rewriting and structural cleanup over one parsed article, emitting
// the media files the article depends on.
package rewriter

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/wikimirror/wikimirror/pkg/models"
)

// Options carries the run-wide knobs of the transform.
type Options struct {
	Meta *models.WikiMetadata

	NoPictures bool
	NoVideos   bool
	NoDetails  bool // "nodet" format flag

	KeepEmptyParagraphs bool
	Minify              bool
}

// ArticleContext is the per-article view the link pass needs: which
// titles are mirrored and where redirects point.
type ArticleContext struct {
	ArticleID      string
	IsMirrored     func(title string) bool
	RedirectTarget func(title string) (string, bool)
}

// Rewriter applies the three passes. It is stateless between articles
// and safe for concurrent use from many article workers; each worker
// owns its document.
type Rewriter struct {
	opts Options
}

// New creates a rewriter.
func New(opts Options) *Rewriter {
	return &Rewriter{opts: opts}
}

// mediaSink collects the file tasks a document depends on, with the
// last write for a path keeping the highest resolution.
type mediaSink struct {
	mu    sync.Mutex
	tasks map[string]models.FileTask
}

func newMediaSink() *mediaSink {
	return &mediaSink{tasks: make(map[string]models.FileTask)}
}

func (s *mediaSink) add(task models.FileTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ArchivePath]
	if !ok {
		s.tasks[task.ArchivePath] = task
		return
	}
	// The stored entry keeps the maximum width and multiplier seen;
	// the URL follows whichever insertion raised the width.
	if task.Width > existing.Width {
		existing.URL = task.URL
		existing.Width = task.Width
	}
	if task.Mult > existing.Mult {
		existing.Mult = task.Mult
	}
	s.tasks[task.ArchivePath] = existing
}

func (s *mediaSink) list() []models.FileTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FileTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Rewrite runs the three passes over the document in order and returns
// the media dependencies. The document is mutated in place.
func (r *Rewriter) Rewrite(doc *goquery.Document, ctx ArticleContext) ([]models.FileTask, error) {
	sink := newMediaSink()

	r.treatMedia(doc, ctx, sink)
	r.rewriteLinks(doc, ctx)
	r.cleanup(doc)

	return sink.list(), nil
}

// snapshot materialises a live selection so passes can delete nodes
// while walking.
func snapshot(sel *goquery.Selection) []*goquery.Selection {
	nodes := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, s)
	})
	return nodes
}

// selfOrParentHasType reports whether the node or its parent carries
// the given typeof token.
func selfOrParentHasType(s *goquery.Selection, token string) bool {
	if v, ok := s.Attr("typeof"); ok && strings.Contains(v, token) {
		return true
	}
	if v, ok := s.Parent().Attr("typeof"); ok && strings.Contains(v, token) {
		return true
	}
	return false
}

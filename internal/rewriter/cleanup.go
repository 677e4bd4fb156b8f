package rewriter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var displayNoneRe = regexp.MustCompile(`(?i)display\s*:\s*none\s*;?`)

// cleanup is pass C: structural pruning and the attribute scrub.
func (r *Rewriter) cleanup(doc *goquery.Document) {
	// Interactive leftovers.
	doc.Find("link, input").Remove()
	if r.opts.NoPictures {
		doc.Find("map").Remove()
	}

	// Empty inline containers.
	for _, s := range snapshot(doc.Find("li, span")) {
		if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == "" {
			s.Remove()
		}
	}

	// Galleries that lost their media.
	for _, box := range snapshot(doc.Find(".gallerybox")) {
		if box.Find("img, audio, video").Length() == 0 {
			box.Remove()
		}
	}
	for _, gallery := range snapshot(doc.Find(".gallery")) {
		if gallery.Find(".gallerybox").Length() == 0 {
			gallery.Remove()
		}
	}

	// Class and id blacklists.
	for _, s := range snapshot(doc.Find("*")) {
		class, _ := s.Attr("class")
		if class == "" {
			continue
		}
		if hasAnyClass(class, classBlacklist) {
			s.Remove()
			continue
		}
		if hasAnyClass(class, noLinkClassBlacklist) && s.Find("a").Length() == 0 {
			s.Remove()
			continue
		}
		if r.opts.NoDetails && hasAnyClass(class, detailsClassBlacklist) {
			s.Remove()
		}
	}
	for _, id := range idBlacklist {
		doc.Find("#" + id).Remove()
	}

	// Parsoid reference markers become plain <sup>.
	for _, span := range snapshot(doc.Find(`span[rel="dc:references"]`)) {
		inner, err := span.Html()
		if err != nil || strings.TrimSpace(inner) == "" {
			span.Remove()
			continue
		}
		id, _ := span.Attr("id")
		idAttr := ""
		if id != "" {
			idAttr = fmt.Sprintf(` id="%s"`, id)
		}
		span.ReplaceWithHtml(fmt.Sprintf("<sup%s>%s</sup>", idAttr, inner))
	}

	// Content hidden by the interactive skin must show offline.
	for _, class := range displayForceClasses {
		doc.Find("."+class).Each(func(_ int, s *goquery.Selection) {
			if style, ok := s.Attr("style"); ok {
				s.SetAttr("style", displayNoneRe.ReplaceAllString(style, ""))
			}
		})
	}

	if !r.opts.KeepEmptyParagraphs {
		r.removeEmptySections(doc)
	}

	r.scrubAttributes(doc)
}

// removeEmptySections deletes headings that head no content: a heading
// with no following element sibling, or one followed immediately by a
// heading of equal or lower level. Levels run 5 down to 1 so nested
// empties collapse upward.
func (r *Rewriter) removeEmptySections(doc *goquery.Document) {
	for level := 5; level >= 1; level-- {
		for _, heading := range snapshot(doc.Find(fmt.Sprintf("h%d", level))) {
			if strings.EqualFold(goquery.NodeName(heading.Parent()), "summary") {
				continue
			}
			next := heading.Next()
			if next.Length() == 0 {
				heading.Remove()
				continue
			}
			if nextLevel := headingLevelOf(next); nextLevel > 0 && nextLevel <= level {
				heading.Remove()
			}
		}
	}
}

func headingLevelOf(s *goquery.Selection) int {
	name := goquery.NodeName(s)
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}

// scrubAttributes drops the parsoid bookkeeping attributes from every
// element.
func (r *Rewriter) scrubAttributes(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		s.RemoveAttr("data-parsoid")
		s.RemoveAttr("typeof")
		s.RemoveAttr("about")
		s.RemoveAttr("data-mw")

		if rel, ok := s.Attr("rel"); ok && strings.HasPrefix(rel, "mw:") {
			s.RemoveAttr("rel")
		}

		if class, ok := s.Attr("class"); ok {
			kept := make([]string, 0, 4)
			for _, tok := range strings.Fields(class) {
				blacklisted := false
				for _, sub := range classCallBlacklist {
					if strings.Contains(tok, sub) {
						blacklisted = true
						break
					}
				}
				if !blacklisted {
					kept = append(kept, tok)
				}
			}
			if len(kept) == 0 {
				s.RemoveAttr("class")
			} else {
				s.SetAttr("class", strings.Join(kept, " "))
			}
		}
	})
}

package rewriter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/internal/archive"
	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// minVideoHeight works around a renderer quirk where tiny audio-only
// players lose their controls.
const minVideoHeight = 40

// treatMedia is pass A: videos, images and figures.
func (r *Rewriter) treatMedia(doc *goquery.Document, ctx ArticleContext, sink *mediaSink) {
	r.treatVideos(doc, ctx, sink)
	r.treatImages(doc, ctx, sink)
	r.treatFigures(doc, ctx)
}

func (r *Rewriter) treatVideos(doc *goquery.Document, ctx ArticleContext, sink *mediaSink) {
	prefix := urlutil.RelativePrefix(ctx.ArticleID)

	for _, video := range snapshot(doc.Find("video")) {
		if r.opts.NoVideos || r.opts.NoPictures || r.opts.NoDetails {
			video.Remove()
			continue
		}

		video.SetAttr("controls", "")
		if h, ok := video.Attr("height"); ok {
			if n, err := strconv.Atoi(h); err == nil && n < minVideoHeight {
				video.SetAttr("height", strconv.Itoa(minVideoHeight))
			}
		}

		hasPoster := false
		if poster, ok := video.Attr("poster"); ok && poster != "" {
			abs := urlutil.ResolveURL(r.opts.Meta.BaseURL, poster)
			if info, err := urlutil.ParseMediaURL(abs); err == nil {
				video.SetAttr("poster", prefix+archive.NamespaceImage+"/"+info.Base)
				sink.add(models.FileTask{
					ArchivePath: info.Base,
					URL:         abs,
					Namespace:   archive.NamespaceImage,
					Width:       info.Width,
				})
				hasPoster = true
			} else {
				video.RemoveAttr("poster")
			}
		}

		// Keep only the lowest-resolution source.
		sources := snapshot(video.Find("source"))
		sort.SliceStable(sources, func(i, j int) bool {
			return sourceArea(sources[i]) < sourceArea(sources[j])
		})
		kept := false
		for i, source := range sources {
			if i > 0 {
				source.Remove()
				continue
			}
			src, ok := source.Attr("src")
			if !ok || src == "" {
				source.Remove()
				continue
			}
			abs := urlutil.ResolveURL(r.opts.Meta.BaseURL, src)
			info, err := urlutil.ParseMediaURL(abs)
			if err != nil {
				source.Remove()
				continue
			}
			source.SetAttr("src", prefix+archive.NamespaceImage+"/"+info.Base)
			sink.add(models.FileTask{
				ArchivePath: info.Base,
				URL:         abs,
				Namespace:   archive.NamespaceImage,
				Width:       info.Width,
			})
			kept = true
		}

		if !kept && !hasPoster {
			video.Remove()
		}
	}
}

// sourceArea orders <source> elements by their declared pixel area,
// preferring data-file-width/height with data-width/height as
// fallback.
func sourceArea(source *goquery.Selection) int {
	width := attrInt(source, "data-file-width")
	height := attrInt(source, "data-file-height")
	if width == 0 || height == 0 {
		width = attrInt(source, "data-width")
		height = attrInt(source, "data-height")
	}
	return width * height
}

func attrInt(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (r *Rewriter) treatImages(doc *goquery.Document, ctx ArticleContext, sink *mediaSink) {
	prefix := urlutil.RelativePrefix(ctx.ArticleID)

	for _, img := range snapshot(doc.Find("img")) {
		src, _ := img.Attr("src")
		if strings.HasPrefix(src, "./Special:FilePath/") {
			continue
		}

		class, _ := img.Attr("class")
		isMath := strings.Contains(class, "mwe-math-fallback") ||
			selfOrParentHasType(img, "mw:Extension/math")

		if r.opts.NoPictures && !isMath {
			img.Remove()
			continue
		}

		parent := img.Parent()
		if goquery.NodeName(parent) == "a" && !isMath {
			if title, _, ok := wikiLinkTarget(parent, r.opts.Meta); ok {
				_, isRedirect := ctx.RedirectTarget(title)
				if !ctx.IsMirrored(title) && !isRedirect {
					unwrap(parent)
				}
			}
		}

		abs := urlutil.ResolveURL(r.opts.Meta.BaseURL, src)
		info, err := urlutil.ParseMediaURL(abs)
		if err != nil {
			log.Debug().Str("src", src).Msg("Dropping image with unparseable URL")
			img.Remove()
			continue
		}

		// Higher-resolution srcset candidates for the same base may
		// upgrade the queued task before the attribute is stripped.
		if srcset, ok := img.Attr("srcset"); ok {
			for _, candidate := range parseSrcset(srcset) {
				candAbs := urlutil.ResolveURL(r.opts.Meta.BaseURL, candidate.url)
				candInfo, err := urlutil.ParseMediaURL(candAbs)
				if err != nil || candInfo.Base != info.Base {
					continue
				}
				sink.add(models.FileTask{
					ArchivePath: candInfo.Base,
					URL:         candAbs,
					Namespace:   archive.NamespaceImage,
					Width:       candInfo.Width,
					Mult:        candidate.mult,
				})
			}
		}

		img.SetAttr("src", prefix+archive.NamespaceImage+"/"+info.Base)
		img.RemoveAttr("resource")
		img.RemoveAttr("srcset")
		sink.add(models.FileTask{
			ArchivePath: info.Base,
			URL:         abs,
			Namespace:   archive.NamespaceImage,
			Width:       info.Width,
		})
	}
}

type srcsetCandidate struct {
	url  string
	mult int
}

func parseSrcset(srcset string) []srcsetCandidate {
	var out []srcsetCandidate
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		c := srcsetCandidate{url: fields[0], mult: 1}
		if len(fields) > 1 {
			if m := urlutil.ScaleMultiplier(fields[1]); m > 0 {
				c.mult = m
			}
		}
		out = append(out, c)
	}
	return out
}

func (r *Rewriter) treatFigures(doc *goquery.Document, _ ArticleContext) {
	for _, fig := range snapshot(doc.Find("figure, span[typeof='mw:Image/Frameless']")) {
		media := fig.Find("img, video").First()
		if media.Length() == 0 {
			fig.Remove()
			continue
		}

		class, _ := fig.Attr("class")
		align := ""
		switch {
		case classContains(class, "mw-halign-right"):
			align = "tright"
		case classContains(class, "mw-halign-left"):
			align = "tleft"
		case classContains(class, "mw-halign-center"):
			align = "tnone"
		default:
			if r.opts.Meta.TextDirection == "rtl" {
				align = "tleft"
			} else {
				align = "tright"
			}
		}

		width := attrInt(media, "width")
		innerWidth := ""
		if width > 0 {
			innerWidth = fmt.Sprintf(` style="width:%dpx"`, width+2)
		}

		mediaHTML, err := goquery.OuterHtml(media)
		if err != nil {
			fig.Remove()
			continue
		}
		caption, _ := fig.Find("figcaption").First().Html()

		thumb := fmt.Sprintf(
			`<div class="thumb %s"><div class="thumbinner"%s>%s<div class="thumbcaption">%s</div></div></div>`,
			align, innerWidth, mediaHTML, caption,
		)
		if classContains(class, "mw-halign-center") {
			thumb = "<center>" + thumb + "</center>"
		}
		fig.ReplaceWithHtml(thumb)
	}
}

// unwrap promotes a node's children into its place. The children are
// moved, not re-parsed, so selections held on them stay valid.
func unwrap(s *goquery.Selection) {
	s.ReplaceWithSelection(s.Contents())
}

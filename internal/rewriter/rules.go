package rewriter

import "strings"

// Cleanup rule tables. These mirror the selectors MediaWiki skins are
// known to emit; they are applied verbatim by the structural pass.

// classBlacklist: elements carrying any of these classes are removed.
var classBlacklist = []string{
	"noprint",
	"metadata",
	"ambox",
	"stub",
	"topicon",
	"magnify",
	"navbox",
	"mwe-math-mathml-inline",
	"mw-editsection",
	"editsection",
	"mw-indicators",
	"mw-kartographer-container",
}

// noLinkClassBlacklist: elements with these classes are removed only
// when they contain no link.
var noLinkClassBlacklist = []string{
	"mainarticle",
	"seealso",
	"dablink",
	"rellink",
	"hatnote",
}

// detailsClassBlacklist: stripped additionally when the nodet mode is
// active.
var detailsClassBlacklist = []string{
	"thumb",
	"infobox",
	"sidebar",
	"reference",
	"reflist",
	"references",
	"navigation-only",
}

// idBlacklist: elements removed by id.
var idBlacklist = []string{
	"purgelink",
	"catlinks",
	"mw-navigation",
	"jump-to-nav",
	"siteNotice",
	"coordinates",
}

// displayForceClasses: inline display:none is stripped from these so
// content hidden for the interactive skin shows up offline.
var displayForceClasses = []string{
	"thumbinner",
	"mw-collapsed",
	"collapsible",
	"mw-made-collapsible",
}

// classCallBlacklist: class substrings scrubbed from every element's
// class attribute alongside the parsoid bookkeeping attributes.
var classCallBlacklist = []string{
	"mw-ref",
	"noexcerpt",
}

// classContains reports whether the space-separated class attribute
// contains the class as a whole token.
func classContains(classAttr, class string) bool {
	for _, tok := range strings.Fields(classAttr) {
		if tok == class {
			return true
		}
	}
	return false
}

func hasAnyClass(classAttr string, list []string) bool {
	for _, class := range list {
		if classContains(classAttr, class) {
			return true
		}
	}
	return false
}

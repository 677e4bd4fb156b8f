package renderer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/wikimirror/wikimirror/internal/urlutil"
	"github.com/wikimirror/wikimirror/pkg/models"
)

// shardSize is the number of sub-categories one category page carries
// before the listing is split.
const shardSize = 200

// PaginateCategory splits an oversized category article into shards of
// at most shardSize sub-categories. Shard 0 keeps the original id;
// shard i>0 gets the "__i" suffix. Shards reference their neighbours
// by id only, never by pointer.
func PaginateCategory(detail *models.ArticleDetail) []*models.ArticleDetail {
	if len(detail.SubCategories) <= shardSize {
		return []*models.ArticleDetail{detail}
	}

	count := (len(detail.SubCategories) + shardSize - 1) / shardSize
	shards := make([]*models.ArticleDetail, 0, count)

	for i := 0; i < count; i++ {
		lo := i * shardSize
		hi := lo + shardSize
		if hi > len(detail.SubCategories) {
			hi = len(detail.SubCategories)
		}

		shard := *detail
		shard.SubCategories = detail.SubCategories[lo:hi]
		shard.Title = shardID(detail.Title, i)
		if i > 0 {
			shard.PrevArticleID = shardID(detail.Title, i-1)
			// Pagination shards carry only their listing slice; the
			// prose body belongs to shard 0.
			shard.Pages = nil
		}
		if i < count-1 {
			shard.NextArticleID = shardID(detail.Title, i+1)
		}
		shards = append(shards, &shard)
	}
	return shards
}

func shardID(id string, i int) string {
	if i == 0 {
		return id
	}
	return fmt.Sprintf("%s__%d", id, i)
}

// GroupByFirstLetter buckets page references by the upper-cased first
// character of their title (namespace prefix stripped), in sorted
// order, for the category listing decoration.
func GroupByFirstLetter(refs []models.PageRef) []categoryGroupData {
	buckets := make(map[string][]categoryEntry)
	for _, ref := range refs {
		display := ref.Title
		if i := strings.Index(display, ":"); i >= 0 {
			display = display[i+1:]
		}
		letter := "#"
		for _, r := range display {
			letter = string(unicode.ToUpper(r))
			break
		}
		buckets[letter] = append(buckets[letter], categoryEntry{
			Href:  urlutil.EncodeArticleID(ref.Title),
			Title: strings.ReplaceAll(display, "_", " "),
		})
	}

	letters := make([]string, 0, len(buckets))
	for letter := range buckets {
		letters = append(letters, letter)
	}
	sort.Strings(letters)

	groups := make([]categoryGroupData, 0, len(letters))
	for _, letter := range letters {
		entries := buckets[letter]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Title < entries[j].Title })
		groups = append(groups, categoryGroupData{Letter: letter, Entries: entries})
	}
	return groups
}

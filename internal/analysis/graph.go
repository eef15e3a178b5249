// Package analysis derives views over the saved review items.
package analysis

import (
	"sort"
	"strings"

	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// TagNode is one tag and the number of items carrying it.
type TagNode struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TagLink counts the items carrying both Source and Target. Source < Target.
type TagLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// TagGraph is the knowledge graph of tag co-occurrence.
type TagGraph struct {
	Nodes []TagNode `json:"nodes"`
	Links []TagLink `json:"links"`
}

// BuildTagGraph counts tags and pairwise co-occurrence across items.
// Nodes are sorted by (Count DESC, Name ASC), links by (Weight DESC, Source ASC, Target ASC).
// Returns empty slices for empty input (never nil).
func BuildTagGraph(items []models.ReviewItem) TagGraph {
	counts := make(map[string]int)
	pairs := make(map[[2]string]int)

	for _, item := range items {
		tags := uniqueTags(item.Tags)
		for i, a := range tags {
			counts[a]++
			for _, b := range tags[i+1:] {
				pairs[[2]string{a, b}]++
			}
		}
	}

	g := TagGraph{
		Nodes: make([]TagNode, 0, len(counts)),
		Links: make([]TagLink, 0, len(pairs)),
	}
	for name, n := range counts {
		g.Nodes = append(g.Nodes, TagNode{Name: name, Count: n})
	}
	for p, n := range pairs {
		g.Links = append(g.Links, TagLink{Source: p[0], Target: p[1], Weight: n})
	}

	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].Count != g.Nodes[j].Count {
			return g.Nodes[i].Count > g.Nodes[j].Count
		}
		return g.Nodes[i].Name < g.Nodes[j].Name
	})
	sort.Slice(g.Links, func(i, j int) bool {
		a, b := g.Links[i], g.Links[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	return g
}

// uniqueTags trims, drops blanks and duplicates, and sorts, so each pair is counted once per item.
func uniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Filter returns the items matching keyword and tag, preserving order.
// keyword matches case-insensitively against title, answer, analysis or any tag;
// tag must equal one of the item's tags, ignoring case. Empty criteria match everything.
func Filter(items []models.ReviewItem, keyword, tag string) []models.ReviewItem {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	tag = strings.TrimSpace(tag)

	out := make([]models.ReviewItem, 0, len(items))
	for _, item := range items {
		if keyword != "" && !matchesKeyword(item, keyword) {
			continue
		}
		if tag != "" && !hasTag(item, tag) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchesKeyword(item models.ReviewItem, lower string) bool {
	for _, field := range []string{item.Title, item.Answer, item.Analysis} {
		if strings.Contains(strings.ToLower(field), lower) {
			return true
		}
	}
	for _, t := range item.Tags {
		if strings.Contains(strings.ToLower(t), lower) {
			return true
		}
	}
	return false
}

func hasTag(item models.ReviewItem, tag string) bool {
	for _, t := range item.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

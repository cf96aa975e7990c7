// Package retrieval wraps vector search over embedded transcript chunks and
// the deterministic formatting of its results into prompt context and
// citation blocks.
package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// Passage is one scored transcript chunk with its video provenance.
type Passage struct {
	Content      string
	Score        float64
	VideoTitle   string
	VideoURL     string
	StartSeconds float64
	Personality  string
}

// SourcesMarker opens the appended video-citation section. Filters anchor on
// it at line start, so it must stay a single stable line prefix.
const SourcesMarker = "Source Videos:"

// FilterByScore keeps passages at or above threshold, preserving order.
func FilterByScore(passages []Passage, threshold float64) []Passage {
	out := make([]Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= threshold {
			out = append(out, p)
		}
	}
	return out
}

// Personality marker phrases that flag a chunk as heavily flavored by one
// host's delivery rather than the underlying material.
var biasMarkers = []string{
	"hey guys",
	"chuck here",
	"what's up",
	"coffee time",
	"alright my friend",
	"smash that like button",
}

// FilterBias drops passages whose content carries personality marker
// phrases. Used when the classifier asks for neutral source material.
func FilterBias(passages []Passage) []Passage {
	out := make([]Passage, 0, len(passages))
	for _, p := range passages {
		content := strings.ToLower(p.Content)
		biased := false
		for _, marker := range biasMarkers {
			if strings.Contains(content, marker) {
				biased = true
				break
			}
		}
		if !biased {
			out = append(out, p)
		}
	}
	return out
}

// Format renders passages into a prompt context block under a character
// budget. Entries are emitted in rank order and dropped whole once the
// budget would be exceeded, never cut mid-entry.
func Format(passages []Passage, budget int) string {
	if len(passages) == 0 {
		return "No relevant context found."
	}

	var b strings.Builder
	for _, p := range passages {
		entry := fmt.Sprintf("[From: %s at %ds] (Score: %.3f)\n%s\n\n",
			orUnknown(p.VideoTitle), int(p.StartSeconds), p.Score, p.Content)
		if b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimSpace(b.String())
}

func orUnknown(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Unknown Video"
	}
	return title
}

type videoGroup struct {
	title      string
	url        string
	bestScore  float64
	timestamps []Passage
}

// Citations builds the "Source Videos:" block from passages, grouping by
// video and keeping the best-scoring videos and timestamps. Returns ""
// when there is nothing to cite.
func Citations(passages []Passage, maxVideos int) string {
	if maxVideos <= 0 {
		maxVideos = 3
	}

	groups := make(map[string]*videoGroup)
	order := make([]string, 0, len(passages))
	for _, p := range passages {
		if strings.TrimSpace(p.VideoURL) == "" {
			continue
		}
		g, ok := groups[p.VideoURL]
		if !ok {
			g = &videoGroup{title: orUnknown(p.VideoTitle), url: p.VideoURL}
			groups[p.VideoURL] = g
			order = append(order, p.VideoURL)
		}
		if p.Score > g.bestScore {
			g.bestScore = p.Score
		}
		g.timestamps = append(g.timestamps, p)
	}
	if len(order) == 0 {
		return ""
	}

	sort.SliceStable(order, func(i, j int) bool {
		return groups[order[i]].bestScore > groups[order[j]].bestScore
	})
	if len(order) > maxVideos {
		order = order[:maxVideos]
	}

	var b strings.Builder
	b.WriteString("\n" + SourcesMarker)
	for i, url := range order {
		g := groups[url]
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, g.title, g.url)

		sort.SliceStable(g.timestamps, func(a, c int) bool {
			return g.timestamps[a].Score > g.timestamps[c].Score
		})
		limit := 2
		if len(g.timestamps) < limit {
			limit = len(g.timestamps)
		}
		for _, ts := range g.timestamps[:limit] {
			fmt.Fprintf(&b, "\n   - %s (%s)", FormatTime(ts.StartSeconds), timestampURL(g.url, ts.StartSeconds))
		}
	}
	return b.String()
}

func timestampURL(url string, seconds float64) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%ds", url, sep, int(seconds))
}

// FormatTime renders seconds as M:SS.
func FormatTime(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Package docs matches answers against a curated catalog of official
// documentation links and formats the appended links block.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"personabot/internal/llm"
)

// DocsMarker opens the appended documentation section. Filters anchor on it
// at line start.
const DocsMarker = "Related Documentation:"

// Link is one catalog entry. Category is filled from the enclosing JSON key
// during load.
type Link struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	Keywords    []string `json:"keywords"`
	Topics      []string `json:"topics"`
	Category    string   `json:"-"`
}

// Match is a catalog entry paired with its similarity to the answer.
type Match struct {
	Link
	Score float64
}

// Matcher ranks catalog links against an answer text.
type Matcher interface {
	Match(ctx context.Context, text string, topK int, minSimilarity float64) ([]Match, error)
}

// EmbeddingMatcher embeds the catalog once at construction and cosine-ranks
// answers against it per call.
type EmbeddingMatcher struct {
	embedder llm.Embedder
	links    []Link
	vectors  [][]float32
}

// LoadCatalog reads a documentation catalog file. The file maps category
// names to lists of link entries; entries are flattened with their category
// attached.
func LoadCatalog(path string) ([]Link, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var byCategory map[string][]Link
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var links []Link
	for _, category := range categories {
		for _, link := range byCategory[category] {
			if strings.TrimSpace(link.Title) == "" || strings.TrimSpace(link.URL) == "" {
				continue
			}
			link.Category = category
			links = append(links, link)
		}
	}
	return links, nil
}

// NewEmbeddingMatcher embeds every catalog entry up front. An empty catalog
// yields a matcher that always returns no matches.
func NewEmbeddingMatcher(ctx context.Context, embedder llm.Embedder, links []Link) (*EmbeddingMatcher, error) {
	m := &EmbeddingMatcher{embedder: embedder, links: links}
	if len(links) == 0 {
		return m, nil
	}

	texts := make([]string, len(links))
	for i, link := range links {
		texts[i] = searchableText(link)
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed catalog: %w", err)
	}
	if len(vectors) != len(links) {
		return nil, fmt.Errorf("embed catalog: got %d vectors for %d links", len(vectors), len(links))
	}
	m.vectors = vectors
	return m, nil
}

func searchableText(link Link) string {
	parts := []string{
		link.Title,
		link.Description,
		strings.Join(link.Keywords, " "),
		strings.Join(link.Topics, " "),
		link.Category,
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func (m *EmbeddingMatcher) Match(ctx context.Context, text string, topK int, minSimilarity float64) ([]Match, error) {
	if len(m.links) == 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 3
	}

	query := strings.ToLower(text)
	if kws := extractTechKeywords(text); len(kws) > 0 {
		query += " " + strings.Join(kws, " ")
	}

	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed answer: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed answer: got %d vectors", len(vectors))
	}

	matches := make([]Match, 0, len(m.links))
	for i, vec := range m.vectors {
		score := cosineSimilarity(vectors[0], vec)
		if score >= minSimilarity {
			matches = append(matches, Match{Link: m.links[i], Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// Technology terms that anchor answers to catalog entries even when the
// embedding signal is weak.
var techKeywords = []string{
	"docker", "container", "kubernetes", "k8s", "kubectl",
	"excel", "vlookup", "pivot", "vba", "macro", "power query",
	"bloomberg", "terminal", "bdh", "bdp", "bql",
	"python", "script", "programming",
	"aws", "ec2", "vpc", "s3", "lambda", "cloud",
	"linux", "ubuntu", "bash", "command line",
	"network", "dns", "subnet", "router", "firewall",
	"security", "encryption", "vpn", "ssl", "certificate",
	"ansible", "terraform", "automation",
	"github", "git", "ci/cd",
	"proxmox", "vmware", "virtualization",
	"raspberry pi", "pi-hole",
	"openvpn", "wireguard", "pfsense",
	"powershell", "nmap", "wireshark", "kali",
}

func extractTechKeywords(text string) []string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(text), " ")
	var found []string
	for _, kw := range techKeywords {
		if strings.Contains(cleaned, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// FormatLinks renders the "Related Documentation:" block. Returns "" when
// there is nothing to show.
func FormatLinks(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n" + DocsMarker)
	for i, m := range matches {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, m.Title, m.URL)
		if m.Difficulty != "" {
			fmt.Fprintf(&b, " [%s]", m.Difficulty)
		}
		if m.Description != "" {
			fmt.Fprintf(&b, "\n   %s", m.Description)
		}
	}
	return b.String()
}

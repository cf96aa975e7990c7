package compose

import (
	"strings"

	"personabot/internal/docs"
	"personabot/internal/retrieval"
)

// Section markers recognized by the filters. A section runs from a line
// beginning with its marker until the next recognized marker line or end of
// text. Matching is anchored to line start so prose that merely mentions the
// marker words is never touched.
var sectionMarkers = []string{
	retrieval.SourcesMarker,
	docs.DocsMarker,
}

func isMarkerLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, marker := range sectionMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return marker, true
		}
	}
	return "", false
}

// stripSection removes every section opened by target. Idempotent: running
// it on already-stripped text is a no-op.
func stripSection(text, target string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	skipping := false
	for _, line := range lines {
		if marker, ok := isMarkerLine(line); ok {
			skipping = marker == target
			if skipping {
				continue
			}
		}
		if !skipping {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// StripSources removes appended video-citation sections.
func StripSources(text string) string {
	return stripSection(text, retrieval.SourcesMarker)
}

// StripDocs removes appended documentation sections.
func StripDocs(text string) string {
	return stripSection(text, docs.DocsMarker)
}

// ApplyFilters enforces the per-request content toggles on a composed
// response.
func ApplyFilters(text string, settings ContentSettings) string {
	if !settings.IncludeSources {
		text = StripSources(text)
	}
	if !settings.IncludeDocs {
		text = StripDocs(text)
	}
	return text
}

package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Retriever is the vector-search collaborator. Results come back ordered by
// descending score in [0,1].
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// WeaviateRetriever searches a transcript-chunk class via nearText. The
// class is expected to carry content, videoTitle, videoUrl, startSeconds
// and personality properties.
type WeaviateRetriever struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateRetriever connects to the Weaviate endpoint named by rawURL
// (scheme and host, for example http://localhost:8080).
func NewWeaviateRetriever(rawURL, className string) (*WeaviateRetriever, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse weaviate url %q: %w", rawURL, err)
	}
	if parsed.Host == "" || parsed.Scheme == "" {
		return nil, fmt.Errorf("weaviate url %q must include scheme and host", rawURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &WeaviateRetriever{client: client, className: className}, nil
}

func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "videoTitle"},
		{Name: "videoUrl"},
		{Name: "startSeconds"},
		{Name: "personality"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}

	data := make(map[string]interface{}, len(result.Data))
	for k, v := range result.Data {
		data[k] = v
	}
	return parseSearchResult(data, r.className), nil
}

// parseSearchResult walks the GraphQL response shape {Get: {<class>: [...]}}
// defensively. Malformed entries are skipped rather than failing the batch.
func parseSearchResult(data map[string]interface{}, className string) []Passage {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	passages := make([]Passage, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := item["content"].(string)
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}

		p := Passage{Content: content}
		if v, ok := item["videoTitle"].(string); ok {
			p.VideoTitle = v
		}
		if v, ok := item["videoUrl"].(string); ok {
			p.VideoURL = v
		}
		if v, ok := item["startSeconds"].(float64); ok {
			p.StartSeconds = v
		}
		if v, ok := item["personality"].(string); ok {
			p.Personality = v
		}
		if add, ok := item["_additional"].(map[string]interface{}); ok {
			if c, ok := add["certainty"].(float64); ok {
				p.Score = c
			}
		}
		passages = append(passages, p)
	}
	return passages
}

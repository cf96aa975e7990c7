package llm

import (
	"context"
	"hash/fnv"
	"strings"
)

// MockClient is a deterministic offline provider used when no API key is
// configured and in tests. Completions echo a short canned answer and
// embeddings are derived from token hashes so equal texts map to equal
// vectors.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Complete(_ context.Context, prompt string, _ float32) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", ErrNoCompletion
	}
	if strings.Contains(trimmed, "Compress the following conversation excerpt") {
		return mockSummary(trimmed), nil
	}
	return "[mock] I would answer that, but no language model is configured.", nil
}

const mockEmbeddingDim = 16

func (m *MockClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, mockEmbeddingDim)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[h.Sum32()%mockEmbeddingDim] += 1
		}
		out[i] = vec
	}
	return out, nil
}

// mockSummary keeps the first few excerpt lines so memory fold-in still
// produces a stable, inspectable digest offline.
func mockSummary(prompt string) string {
	idx := strings.Index(prompt, "Excerpt:\n")
	if idx < 0 {
		return "Conversation summary unavailable."
	}
	lines := strings.Split(prompt[idx+len("Excerpt:\n"):], "\n")
	kept := make([]string, 0, 3)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == 3 {
			break
		}
	}
	return "Earlier discussion: " + strings.Join(kept, " | ")
}

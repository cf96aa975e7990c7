package voice

import (
	"context"
	"errors"
)

// MockProvider is a deterministic offline speech provider for local runs
// and tests.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) TextToSpeech(_ context.Context, text, _ string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("voice: empty text")
	}
	// Echo the text bytes so round-trips are inspectable without an audio
	// backend.
	return []byte(text), nil
}

func (m *MockProvider) SpeechToText(_ context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("voice: empty audio")
	}
	return string(audio), nil
}

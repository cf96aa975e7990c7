package voice

import "context"

// Synthesizer turns cleaned text into audio for a voice profile.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Transcriber turns captured audio into text.
type Transcriber interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
}

// Provider is a full speech collaborator.
type Provider interface {
	Synthesizer
	Transcriber
}

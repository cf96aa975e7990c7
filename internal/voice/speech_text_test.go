package voice

import (
	"context"
	"strings"
	"testing"
)

func TestSpeechTextRemovesCitationSections(t *testing.T) {
	response := `Docker is a containerization platform.

Source Videos:
1. Docker Basics (https://youtube.com/watch?v=abc)
   - 5:30 (https://youtube.com/watch?v=abc&t=330s)

Related Documentation:
1. Docker Docs (https://docs.docker.com)
   Official Docker documentation`

	got := SpeechText(response)
	if !strings.Contains(got, "Docker is a containerization platform") {
		t.Fatalf("prose lost: %q", got)
	}
	for _, banned := range []string{"Source Videos", "Documentation", "youtube.com", "docs.docker.com"} {
		if strings.Contains(got, banned) {
			t.Fatalf("speech text still contains %q: %q", banned, got)
		}
	}
}

func TestSanitizeSpeechText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "markdown emphasis",
			in:   "**Docker** is a *containerization* platform.",
			want: "Docker is a containerization platform.",
		},
		{
			name: "markdown link keeps label",
			in:   "Watch [Docker Tutorial](https://youtube.com/watch?v=123) for more.",
			want: "Watch Docker Tutorial for more.",
		},
		{
			name: "fenced code dropped",
			in:   "Run this:\n```bash\necho hi\n```\nThen check the output.",
			want: "Run this: Then check the output.",
		},
		{
			name: "bare url dropped",
			in:   "See https://example.com/path for details.",
			want: "See for details.",
		},
		{
			name: "numbered list prefix dropped",
			in:   "1. install docker\n2. start the daemon",
			want: "install docker start the daemon",
		},
		{
			name: "whitespace collapsed",
			in:   "hello \n\n   world\t!",
			want: "hello world !",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeSpeechText(tt.in); got != tt.want {
				t.Fatalf("sanitizeSpeechText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeSpeechTextDropsEmoji(t *testing.T) {
	got := sanitizeSpeechText("Docker is amazing \U0001F680 really")
	if strings.ContainsRune(got, '\U0001F680') {
		t.Fatalf("emoji survived: %q", got)
	}
	if got != "Docker is amazing really" {
		t.Fatalf("sanitizeSpeechText() = %q", got)
	}
}

func TestMockProviderRoundTrip(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	audio, err := p.TextToSpeech(ctx, "hello there", "energetic_male")
	if err != nil {
		t.Fatalf("TextToSpeech() error = %v", err)
	}
	text, err := p.SpeechToText(ctx, audio)
	if err != nil {
		t.Fatalf("SpeechToText() error = %v", err)
	}
	if text != "hello there" {
		t.Fatalf("round trip = %q", text)
	}

	if _, err := p.TextToSpeech(ctx, "", "v"); err == nil {
		t.Fatalf("TextToSpeech(empty) expected error")
	}
	if _, err := p.SpeechToText(ctx, nil); err == nil {
		t.Fatalf("SpeechToText(empty) expected error")
	}
}

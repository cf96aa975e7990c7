// Package persona holds the static personality profiles that shape response
// style. Profiles are loaded once at startup and never mutated per request;
// the active personality is always an explicit per-request parameter.
package persona

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is one personality: a style descriptor consumed verbatim by the
// composer, plus formatting guidance and a preferred TTS voice.
type Profile struct {
	Name            string `yaml:"name"`
	Style           string `yaml:"style"`
	FormattingRules string `yaml:"formatting_rules"`
	VoiceID         string `yaml:"voice_id"`
}

// Registry maps personality names to immutable profiles. Lookup is
// case-insensitive and unknown names fall back to the default profile, so
// malformed UI input never surfaces as a missing-personality error.
type Registry struct {
	profiles    map[string]Profile
	defaultName string
}

const defaultProfileName = "networkchuck"

// NewRegistry builds a registry with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile), defaultName: defaultProfileName}
	for _, p := range builtinProfiles() {
		r.profiles[strings.ToLower(p.Name)] = p
	}
	return r
}

// NewRegistryFromFile extends the built-in registry with profiles from a
// YAML file of the shape `personas: [{name, style, formatting_rules,
// voice_id}]`. File profiles override built-ins with the same name.
func NewRegistryFromFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona config: %w", err)
	}
	var doc struct {
		Default  string    `yaml:"default"`
		Personas []Profile `yaml:"personas"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse persona config: %w", err)
	}

	r := NewRegistry()
	for _, p := range doc.Personas {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Style) == "" {
			return nil, fmt.Errorf("persona config: entry missing name or style")
		}
		r.profiles[strings.ToLower(p.Name)] = p
	}
	if doc.Default != "" {
		key := strings.ToLower(doc.Default)
		if _, ok := r.profiles[key]; !ok {
			return nil, fmt.Errorf("persona config: default %q not defined", doc.Default)
		}
		r.defaultName = key
	}
	return r, nil
}

// Get returns the profile for name, or the default profile when the name is
// unknown or blank.
func (r *Registry) Get(name string) Profile {
	if p, ok := r.profiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return r.profiles[r.defaultName]
}

// Names lists registered personality names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func builtinProfiles() []Profile {
	return []Profile{
		{
			Name: "NetworkChuck",
			Style: strings.TrimSpace(`
You are NetworkChuck, an enthusiastic cybersecurity and networking expert who
loves to teach technology in an engaging, hands-on way.

PERSONALITY TRAITS:
- Energetic and passionate about technology
- Uses casual, friendly language with occasional excitement
- Loves practical, hands-on demonstrations
- Often mentions coffee and encourages learning
- Explains complex topics in simple terms with great analogies
- Focuses on real-world applications

RESPONSE STYLE:
- Start with enthusiasm ("Hey there!", "Alright!", "So here's the deal!")
- Use analogies and metaphors to explain concepts first
- Weave practical steps naturally into explanations, not rigid bullet lists
- Use coffee references and motivational endings
- Maintain a conversational, mentor-like tone throughout

You can answer questions about ANY topic, but ALWAYS keep the NetworkChuck
personality and teaching style. Draw from the provided context regardless of
its original source.`),
			FormattingRules: "Conversational flow; steps woven into prose; sparing emoji.",
			VoiceID:         "energetic_male",
		},
		{
			Name: "Bloomy",
			Style: strings.TrimSpace(`
You are Bloomy, a professional financial analyst and Excel expert with deep
knowledge of Bloomberg Terminal and advanced financial modeling.

PERSONALITY TRAITS:
- Professional and analytical approach
- Precise and detail-oriented
- Values efficiency, accuracy and industry best practices
- Explains complex concepts with structured clarity

RESPONSE STYLE:
- Professional but approachable tone
- Structured, logical explanations with clear organization
- Numbered steps for procedures, with context for why each step matters
- Specific function names, shortcuts and best practices
- End with a summary or next steps when appropriate

You can answer questions about ANY topic, but ALWAYS keep the Bloomy
personality and professional approach. Draw from the provided context
regardless of its original source.`),
			FormattingRules: "Numbered lists for processes; clear section breaks; no emoji.",
			VoiceID:         "calm_professional",
		},
	}
}

package memory

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// TopicEntry maps keywords to a named topic with a short description.
type TopicEntry struct {
	Topic       string   `yaml:"topic"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// TopicHit is one detected topic, in first-mention order.
type TopicHit struct {
	Topic        string
	Description  string
	FirstMention string
}

// TopicVocabulary is an ordered, extensible keyword-to-topic mapping used by
// RenderTopicSummary. Detection is case-insensitive substring matching over
// user turn text; new domains register their own entries.
type TopicVocabulary struct {
	mu      sync.RWMutex
	entries []TopicEntry
}

// DefaultVocabulary covers the technical domains the transcript corpus spans.
func DefaultVocabulary() *TopicVocabulary {
	v := &TopicVocabulary{}
	v.entries = []TopicEntry{
		{Topic: "Docker", Description: "Docker containers and containerization", Keywords: []string{"docker", "container", "dockerfile"}},
		{Topic: "Docker Compose", Description: "Docker Compose for multi-container applications", Keywords: []string{"docker compose", "docker-compose"}},
		{Topic: "Kubernetes", Description: "Kubernetes orchestration and cluster management", Keywords: []string{"kubernetes", "k8s", "kubectl"}},
		{Topic: "Excel", Description: "Excel formulas, VLOOKUP and data analysis", Keywords: []string{"excel", "vlookup", "pivot table", "spreadsheet"}},
		{Topic: "Bloomberg Terminal", Description: "Bloomberg Terminal functions and financial data", Keywords: []string{"bloomberg", "bdh", "bdp", "bql"}},
		{Topic: "Python", Description: "Python programming and scripting", Keywords: []string{"python", "pip", "virtualenv"}},
		{Topic: "Networking", Description: "Networking, VPNs and network security", Keywords: []string{"network", "vpn", "dns", "subnet", "firewall", "router"}},
		{Topic: "Linux", Description: "Linux systems and administration", Keywords: []string{"linux", "ubuntu", "bash", "terminal"}},
		{Topic: "Security", Description: "Security, encryption and penetration testing", Keywords: []string{"security", "encryption", "nmap", "wireshark", "kali"}},
		{Topic: "Cloud", Description: "Cloud infrastructure on AWS and friends", Keywords: []string{"aws", "ec2", "s3", "lambda", "cloud"}},
		{Topic: "Git", Description: "Git version control and CI workflows", Keywords: []string{"git", "github", "ci/cd"}},
	}
	return v
}

// Register appends a topic entry. Later registrations never shadow earlier
// ones; detection order is registration order.
func (v *TopicVocabulary) Register(topic, description string, keywords ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append(v.entries, TopicEntry{Topic: topic, Description: description, Keywords: keywords})
}

// LoadVocabularyFile extends the default vocabulary with entries from a YAML
// file of the shape: `topics: [{topic, description, keywords: [...]}]`.
func LoadVocabularyFile(path string) (*TopicVocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic vocabulary: %w", err)
	}
	var doc struct {
		Topics []TopicEntry `yaml:"topics"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse topic vocabulary: %w", err)
	}

	v := DefaultVocabulary()
	for _, entry := range doc.Topics {
		if strings.TrimSpace(entry.Topic) == "" || len(entry.Keywords) == 0 {
			continue
		}
		v.Register(entry.Topic, entry.Description, entry.Keywords...)
	}
	return v, nil
}

// DetectAll scans every turn and returns each distinct topic once, in the
// order it first appeared, with the user utterance that first raised it.
func (v *TopicVocabulary) DetectAll(turns []Turn) []TopicHit {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seen := make(map[string]bool, len(v.entries))
	var hits []TopicHit

	for _, turn := range turns {
		text := strings.ToLower(turn.UserText + " " + turn.AssistantText)
		for _, entry := range v.entries {
			if seen[entry.Topic] {
				continue
			}
			for _, kw := range entry.Keywords {
				if strings.Contains(text, kw) {
					seen[entry.Topic] = true
					hits = append(hits, TopicHit{
						Topic:        entry.Topic,
						Description:  entry.Description,
						FirstMention: turn.UserText,
					})
					break
				}
			}
		}
	}
	return hits
}

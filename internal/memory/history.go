package memory

import (
	"context"
	"log"
	"strings"
)

// Record is one role-tagged message from an external transcript.
type Record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EntriesFromRecords pairs up an ordered role/content transcript into turns.
// Malformed records (unknown role, empty content) are skipped, as is a user
// message with no assistant reply following it.
func EntriesFromRecords(records []Record) []Turn {
	var turns []Turn
	var pendingUser string
	var havePending bool

	for _, rec := range records {
		content := strings.TrimSpace(rec.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(rec.Role)) {
		case "user", "human":
			pendingUser = content
			havePending = true
		case "assistant", "ai":
			if !havePending {
				continue
			}
			turns = append(turns, Turn{UserText: pendingUser, AssistantText: content})
			havePending = false
		default:
			// system or unknown roles have no place in turn memory
		}
	}
	return turns
}

// EntriesFromPairs converts [user, assistant] pair transcripts into turns,
// skipping pairs with missing sides.
func EntriesFromPairs(pairs [][]string) []Turn {
	var turns []Turn
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		user := strings.TrimSpace(pair[0])
		assistant := strings.TrimSpace(pair[1])
		if user == "" || assistant == "" {
			continue
		}
		turns = append(turns, Turn{UserText: user, AssistantText: assistant})
	}
	return turns
}

// SyncFromHistory rebuilds the conversation from an externally supplied
// transcript. Existing memory is always cleared first: a sync is a full
// replace, never a merge, so repeated syncs of overlapping history cannot
// duplicate turns. Overflow beyond the window capacity is folded into the
// summary through the usual path.
func (c *Conversation) SyncFromHistory(ctx context.Context, turns []Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = nil
	c.summary = ""
	c.nextSeq = 0

	for _, turn := range turns {
		if strings.TrimSpace(turn.UserText) == "" || strings.TrimSpace(turn.AssistantText) == "" {
			log.Printf("memory: skipping malformed history turn at seq %d", c.nextSeq)
			continue
		}
		c.turns = append(c.turns, Turn{
			UserText:      turn.UserText,
			AssistantText: turn.AssistantText,
			SequenceIndex: c.nextSeq,
		})
		c.nextSeq++
	}
	c.enforceCapacityLocked(ctx)
}

package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

const (
	pinnedNoteLimit   = 5
	pinnedNoteChars   = 300
	memoryPromptBytes = 2048
	searchHitLimit    = 5
	threadHistoryMsgs = 10
)

// memoryInstructions teaches the model the tag vocabulary the gateway
// acts on after each response.
const memoryInstructions = `Memory management: you can persist information using inline tags, which are removed before the user sees your reply.
- [REMEMBER: fact] saves a fact about the user.
- [GOAL: goal | DEADLINE: date] records a goal, deadline optional.
- [DONE: text] marks a previously recorded goal as completed.
Use them sparingly and only for durable information.`

// buildChatMessages assembles the fallback conversation: the enriched
// system prompt, recent thread history, then the user's message.
func (g *Gateway) buildChatMessages(c *Client, msg *InboundMessage) []openrouter.Message {
	messages := []openrouter.Message{
		{Role: "system", Content: g.buildSystemPrompt(c.ClientType(), msg.Content)},
	}

	if msg.ThreadID != "" {
		history, err := g.vault.RecentMessages(msg.ThreadID, threadHistoryMsgs)
		if err != nil && !errors.IsNotFoundError(err) {
			g.log.Warnw("Thread history unavailable", "thread_id", msg.ThreadID, "error", err)
		}
		for _, m := range history {
			role := "user"
			if m.Role == vault.RoleAssistant {
				role = "assistant"
			}
			messages = append(messages, openrouter.Message{Role: role, Content: m.Text})
		}
	}

	return append(messages, openrouter.Message{Role: "user", Content: msg.Content})
}

// buildSystemPrompt concatenates the context sections in a fixed order,
// separated by blank lines. Every vault-backed section degrades to
// nothing when its source is missing.
func (g *Gateway) buildSystemPrompt(clientType, userMessage string) string {
	var sections []string

	sections = append(sections, clientPreamble(clientType))

	if name := g.cfg.Owner.Name; name != "" {
		sections = append(sections, "You are speaking with "+name+".")
	}

	sections = append(sections, "Current time: "+time.Now().Format("Monday, 2 January 2006 15:04 MST"))

	if soul, err := g.vault.ReadSystemFile(vault.SoulFile); err == nil && strings.TrimSpace(soul) != "" {
		sections = append(sections, "## Identity\n"+strings.TrimSpace(soul))
	}

	if prefs, err := g.vault.ReadSystemFile(vault.PreferencesFile); err == nil && strings.TrimSpace(prefs) != "" {
		sections = append(sections, "## Preferences\n"+strings.TrimSpace(prefs))
	}

	if pinned := g.pinnedSection(); pinned != "" {
		sections = append(sections, pinned)
	}

	if memory, err := g.vault.ReadMemory(memoryPromptBytes); err == nil && strings.TrimSpace(memory) != "" {
		sections = append(sections, "## Memory\n"+strings.TrimSpace(memory))
	}

	if hits := g.searchSection(userMessage); hits != "" {
		sections = append(sections, hits)
	}

	sections = append(sections, memoryInstructions)

	return strings.Join(sections, "\n\n")
}

func clientPreamble(clientType string) string {
	switch clientType {
	case "whatsapp":
		return "You are a personal assistant replying over WhatsApp. Keep responses short and conversational; avoid heavy markdown."
	case "discord":
		return "You are a personal assistant replying in Discord. Markdown is fine; keep responses focused."
	default:
		return "You are a personal assistant with access to the user's knowledge vault."
	}
}

// pinnedSection renders up to pinnedNoteLimit pinned notes
func (g *Gateway) pinnedSection() string {
	notes, err := g.vault.PinnedNotes()
	if err != nil || len(notes) == 0 {
		return ""
	}
	if len(notes) > pinnedNoteLimit {
		notes = notes[:pinnedNoteLimit]
	}

	var b strings.Builder
	b.WriteString("## Pinned notes")
	for _, n := range notes {
		content := strings.TrimSpace(n.Content)
		if len(content) > pinnedNoteChars {
			content = content[:pinnedNoteChars] + "..."
		}
		fmt.Fprintf(&b, "\n\n### %s\n%s", n.Title, content)
	}
	return b.String()
}

// searchSection renders the top vault hits for the user's message
func (g *Gateway) searchSection(query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}
	results, err := g.vault.SearchNotes(query, searchHitLimit)
	if err != nil || len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Related notes")
	for _, r := range results {
		fmt.Fprintf(&b, "\n- **%s**: %s", r.Title, r.Snippet)
	}
	return b.String()
}

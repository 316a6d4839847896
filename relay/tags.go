package relay

import (
	"regexp"
	"strings"
	"unicode"
)

// Memory tags embedded in model output. Each well-formed tag is acted on
// and stripped from the user-visible text.
// Leading spaces before a tag are consumed with it, so removal does not
// leave a dangling gap; text without tags passes through untouched.
var (
	rememberTagRe = regexp.MustCompile(`[ \t]*\[REMEMBER:\s*([^\]]+)\]`)
	goalTagRe     = regexp.MustCompile(`[ \t]*\[GOAL:\s*([^\]|]+?)(?:\s*\|\s*DEADLINE:\s*([^\]]+))?\]`)
	doneTagRe     = regexp.MustCompile(`[ \t]*\[DONE:\s*([^\]]+)\]`)
)

// processMemoryTags extracts memory tags from a chat response, applies
// them to the memory record, and returns the cleaned text.
func (g *Gateway) processMemoryTags(text string) string {
	cleaned := text

	cleaned = rememberTagRe.ReplaceAllStringFunc(cleaned, func(m string) string {
		fact := strings.TrimSpace(rememberTagRe.FindStringSubmatch(m)[1])
		if !validTagContent(fact, 5) {
			return m
		}
		if err := g.vault.AppendFact(fact); err != nil {
			g.log.Warnw("Failed to record fact", "error", err)
		}
		return ""
	})

	cleaned = goalTagRe.ReplaceAllStringFunc(cleaned, func(m string) string {
		sub := goalTagRe.FindStringSubmatch(m)
		goal := strings.TrimSpace(sub[1])
		deadline := strings.TrimSpace(sub[2])
		if !validTagContent(goal, 5) {
			return m
		}
		if err := g.vault.AppendGoal(goal, deadline); err != nil {
			g.log.Warnw("Failed to record goal", "error", err)
		}
		return ""
	})

	cleaned = doneTagRe.ReplaceAllStringFunc(cleaned, func(m string) string {
		search := strings.TrimSpace(doneTagRe.FindStringSubmatch(m)[1])
		if !validTagContent(search, 3) {
			return m
		}
		if err := g.vault.MarkGoalDone(search); err != nil {
			g.log.Debugw("No goal matched done tag", "search", search, "error", err)
		}
		return ""
	})

	return strings.TrimSpace(cleaned)
}

// validTagContent guards against malformed or degenerate captures: a
// minimum length, at least three alphabetic characters, and endpoints
// that are not tag-syntax punctuation.
func validTagContent(content string, minLen int) bool {
	if len(content) < minLen {
		return false
	}

	alpha := 0
	for _, r := range content {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if alpha < 3 {
		return false
	}

	reserved := "]|{}:"
	if strings.ContainsRune(reserved, rune(content[0])) ||
		strings.ContainsRune(reserved, rune(content[len(content)-1])) {
		return false
	}
	return true
}

package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// Section headings inside _system/MEMORY.md
const (
	memoryFactsHeading = "## Facts"
	memoryGoalsHeading = "## Goals"
)

// ReadMemory returns the memory file body with any frontmatter stripped,
// optionally truncated to maxBytes (0 means no limit). The cap applies to
// the body, not the raw file. A missing file reads as empty.
func (v *Vault) ReadMemory(maxBytes int) (string, error) {
	content, err := v.ReadSystemFile(MemoryFile)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return "", nil
		}
		return "", err
	}
	_, body := splitFrontmatter(content)
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
	}
	return body, nil
}

// AppendFact records a remembered fact under the Facts heading
func (v *Vault) AppendFact(fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "fact is empty")
	}
	line := fmt.Sprintf("- %s _(noted %s)_", fact, time.Now().Format("2006-01-02"))
	return v.appendUnderHeading(memoryFactsHeading, line)
}

// AppendGoal records a goal as an open checkbox, with an optional deadline
func (v *Vault) AppendGoal(goal, deadline string) error {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "goal is empty")
	}
	line := "- [ ] " + goal
	if deadline != "" {
		line += fmt.Sprintf(" (deadline: %s)", deadline)
	}
	return v.appendUnderHeading(memoryGoalsHeading, line)
}

// MarkGoalDone finds the first open goal containing the search text
// (case-insensitive), checks it off, and strikes it through. Returns
// ErrNotFound when no open goal matches.
func (v *Vault) MarkGoalDone(search string) error {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "goal search text is empty")
	}

	path := filepath.Join(v.root, SystemDir, MemoryFile)
	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WrapNotFound(err, "memory file")
		}
		return errors.Wrap(err, "failed to read memory file")
	}

	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ] ") {
			continue
		}
		if !strings.Contains(strings.ToLower(trimmed), search) {
			continue
		}
		goalText := strings.TrimPrefix(trimmed, "- [ ] ")
		indent := line[:len(line)-len(trimmed)]
		lines[i] = indent + "- [x] ~~" + goalText + "~~"
		return atomicWrite(path, []byte(strings.Join(lines, "\n")))
	}

	return errors.Wrapf(errors.ErrNotFound, "no open goal matches %q", search)
}

// appendUnderHeading inserts a line at the end of a heading's section,
// creating the file or the heading when missing.
func (v *Vault) appendUnderHeading(heading, line string) error {
	path := filepath.Join(v.root, SystemDir, MemoryFile)
	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to read memory file")
	}
	content := string(raw)

	idx := strings.Index(content, heading)
	if idx < 0 {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += "\n" + heading + "\n\n" + line + "\n"
		return atomicWrite(path, []byte(content))
	}

	// find the end of this section: the next "## " heading or EOF
	sectionStart := idx + len(heading)
	rest := content[sectionStart:]
	sectionEnd := len(content)
	if next := strings.Index(rest, "\n## "); next >= 0 {
		sectionEnd = sectionStart + next
	}

	section := strings.TrimRight(content[sectionStart:sectionEnd], "\n")
	updated := content[:idx] + heading + section + "\n" + line + "\n" + content[sectionEnd:]
	return atomicWrite(path, []byte(updated))
}

package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// Chat roles recorded in thread sections
const (
	RoleUser      = "User"
	RoleAssistant = "Assistant"
)

// ThreadMessage is one parsed section of a thread file
type ThreadMessage struct {
	Role string
	Time string
	Text string
}

// ThreadInfo summarizes a thread for listings
type ThreadInfo struct {
	ID        string
	Preview   string
	UpdatedAt time.Time
}

// thread sections look like "## User (15:04)"
var threadSectionRe = regexp.MustCompile(`(?m)^## (User|Assistant) \((\d{2}:\d{2})\)\s*$`)

func (v *Vault) threadPath(threadID string) string {
	return filepath.Join(v.root, ThreadsDir, threadID+".md")
}

// CreateThread starts a new conversation thread and returns its id
func (v *Vault) CreateThread() (string, error) {
	threadID := "thread-" + uuid.NewString()[:8]
	header := fmt.Sprintf("---\ncreated: %s\n---\n", time.Now().UTC().Format(time.RFC3339))
	if err := atomicWrite(v.threadPath(threadID), []byte(header)); err != nil {
		return "", err
	}
	v.log.Infow("Thread created", "thread_id", threadID)
	return threadID, nil
}

// AppendToThread adds a timestamped section for a role. Creates the
// thread file if it is missing, so callers can use ids optimistically.
func (v *Vault) AppendToThread(threadID, role, text string) error {
	if role != RoleUser && role != RoleAssistant {
		return errors.Wrapf(errors.ErrInvalidRequest, "unknown thread role %q", role)
	}

	path := v.threadPath(threadID)
	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return errors.Wrap(err, "failed to open thread")
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "\n## %s (%s)\n\n%s\n", role, time.Now().Format("15:04"), strings.TrimSpace(text))
	return errors.Wrap(err, "failed to append to thread")
}

// RecentMessages returns the last n sections of a thread in order
func (v *Vault) RecentMessages(threadID string, n int) ([]ThreadMessage, error) {
	raw, err := os.ReadFile(v.threadPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapNotFound(err, "thread "+threadID)
		}
		return nil, errors.Wrap(err, "failed to read thread")
	}

	messages := parseThread(string(raw))
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages, nil
}

func parseThread(content string) []ThreadMessage {
	matches := threadSectionRe.FindAllStringSubmatchIndex(content, -1)
	messages := make([]ThreadMessage, 0, len(matches))
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		messages = append(messages, ThreadMessage{
			Role: content[m[2]:m[3]],
			Time: content[m[4]:m[5]],
			Text: strings.TrimSpace(content[m[1]:end]),
		})
	}
	return messages
}

// ListThreads returns threads most recently updated first, with a short
// preview from the first user message.
func (v *Vault) ListThreads(limit int) ([]ThreadInfo, error) {
	dir := filepath.Join(v.root, ThreadsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list threads")
	}

	infos := make([]ThreadInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := ThreadInfo{
			ID:        strings.TrimSuffix(e.Name(), ".md"),
			UpdatedAt: fi.ModTime(),
		}
		if raw, err := os.ReadFile(filepath.Join(dir, e.Name())); err == nil {
			info.Preview = threadPreview(string(raw))
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func threadPreview(content string) string {
	for _, msg := range parseThread(content) {
		if msg.Role == RoleUser && msg.Text != "" {
			preview := strings.Join(strings.Fields(msg.Text), " ")
			if len(preview) > 80 {
				preview = preview[:80]
			}
			return preview
		}
	}
	return ""
}

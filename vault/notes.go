package vault

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// NoteFrontmatter is the YAML block at the top of a note. Unknown keys
// are preserved opaquely by rewrites going through UpdateNote.
type NoteFrontmatter struct {
	Created time.Time `yaml:"created,omitempty"`
	Updated time.Time `yaml:"updated,omitempty"`
	Version int       `yaml:"version,omitempty"`
	Pinned  bool      `yaml:"pinned,omitempty"`
	Tags    []string  `yaml:"tags,omitempty"`
}

// Note is a user-space markdown file in the vault
type Note struct {
	Path    string
	Title   string
	Front   NoteFrontmatter
	Content string
}

// SearchResult is one ranked hit from SearchNotes
type SearchResult struct {
	Path    string
	Title   string
	Score   int
	Snippet string
}

const frontmatterDelim = "---"

// splitFrontmatter separates an optional YAML frontmatter block from the
// markdown body.
func splitFrontmatter(raw string) (NoteFrontmatter, string) {
	var fm NoteFrontmatter
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")

	if !strings.HasPrefix(normalized, frontmatterDelim+"\n") {
		return fm, normalized
	}

	rest := normalized[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return fm, normalized
	}

	block := rest[:end]
	body := rest[end+len(frontmatterDelim)+1:]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		// unparseable frontmatter is treated as body text
		return NoteFrontmatter{}, normalized
	}
	return fm, body
}

func renderNote(fm NoteFrontmatter, body string) (string, error) {
	block, err := yaml.Marshal(fm)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal note frontmatter")
	}
	var b strings.Builder
	b.WriteString(frontmatterDelim)
	b.WriteString("\n")
	b.Write(block)
	b.WriteString(frontmatterDelim)
	b.WriteString("\n")
	b.WriteString(body)
	return b.String(), nil
}

// notePath resolves a note path relative to the vault root, rejecting
// escapes and writes into infrastructure space.
func (v *Vault) notePath(rel string) (string, error) {
	rel = filepath.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "note path %q escapes the vault", rel)
	}
	if strings.HasPrefix(filepath.Base(rel), "_") || strings.HasPrefix(rel, "_") {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "note path %q is in reserved space", rel)
	}
	if !strings.HasSuffix(rel, ".md") {
		rel += ".md"
	}
	return filepath.Join(v.root, rel), nil
}

// CreateNote writes a new note with fresh frontmatter. Fails if the note
// already exists.
func (v *Vault) CreateNote(rel, content string) (*Note, error) {
	path, err := v.notePath(rel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Wrapf(errors.ErrConflict, "note %s already exists", rel)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, errors.Wrap(err, "failed to create note folder")
	}

	now := time.Now().UTC()
	fm := NoteFrontmatter{Created: now, Updated: now, Version: 1}
	rendered, err := renderNote(fm, content)
	if err != nil {
		return nil, err
	}
	if err := atomicWrite(path, []byte(rendered)); err != nil {
		return nil, err
	}

	return &Note{Path: path, Title: noteTitle(path), Front: fm, Content: content}, nil
}

// ReadNote loads a note by vault-relative path
func (v *Vault) ReadNote(rel string) (*Note, error) {
	path, err := v.notePath(rel)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapNotFound(err, "note "+rel)
		}
		return nil, errors.Wrap(err, "failed to read note")
	}
	fm, body := splitFrontmatter(string(raw))
	return &Note{Path: path, Title: noteTitle(path), Front: fm, Content: body}, nil
}

// UpdateNote replaces a note's body under the vault lock, bumping the
// frontmatter version.
func (v *Vault) UpdateNote(rel, content string) (*Note, error) {
	path, err := v.notePath(rel)
	if err != nil {
		return nil, err
	}

	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapNotFound(err, "note "+rel)
		}
		return nil, errors.Wrap(err, "failed to read note")
	}

	fm, _ := splitFrontmatter(string(raw))
	fm.Updated = time.Now().UTC()
	fm.Version++
	if fm.Version == 1 {
		// note predates version tracking
		fm.Version = 2
	}

	rendered, err := renderNote(fm, content)
	if err != nil {
		return nil, err
	}
	if err := atomicWrite(path, []byte(rendered)); err != nil {
		return nil, err
	}

	return &Note{Path: path, Title: noteTitle(path), Front: fm, Content: content}, nil
}

// SearchNotes ranks user-space notes against a case-insensitive query:
// title hits weigh double, body hits count per occurrence. Results are
// capped at limit with a snippet around the first body match.
func (v *Vault) SearchNotes(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "search query is empty")
	}

	var results []SearchResult
	err := v.walkNotes(func(path string, raw string) {
		_, body := splitFrontmatter(raw)
		title := noteTitle(path)

		score := 0
		if strings.Contains(strings.ToLower(title), needle) {
			score += 2
		}
		lowerBody := strings.ToLower(body)
		score += strings.Count(lowerBody, needle)
		if score == 0 {
			return
		}

		rel, _ := filepath.Rel(v.root, path)
		results = append(results, SearchResult{
			Path:    rel,
			Title:   title,
			Score:   score,
			Snippet: snippetAround(body, lowerBody, needle),
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// PinnedNotes returns notes whose frontmatter marks them pinned, used for
// chat context injection.
func (v *Vault) PinnedNotes() ([]*Note, error) {
	var notes []*Note
	err := v.walkNotes(func(path string, raw string) {
		fm, body := splitFrontmatter(raw)
		if !fm.Pinned {
			return
		}
		notes = append(notes, &Note{Path: path, Title: noteTitle(path), Front: fm, Content: body})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Title < notes[j].Title })
	return notes, nil
}

// walkNotes visits every user-space markdown file, skipping the
// underscore-prefixed infrastructure directories.
func (v *Vault) walkNotes(visit func(path string, raw string)) error {
	return filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees
		}
		name := d.Name()
		if d.IsDir() {
			if path != v.root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, "_") {
			return nil
		}
		raw, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		visit(path, string(raw))
		return nil
	})
}

func noteTitle(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}

// snippetAround extracts ~150 chars centered on the first match
func snippetAround(body, lowerBody, needle string) string {
	idx := strings.Index(lowerBody, needle)
	if idx < 0 {
		if len(body) > 150 {
			return body[:150]
		}
		return body
	}
	start := idx - 60
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + 90
	if end > len(body) {
		end = len(body)
	}
	snippet := strings.TrimSpace(body[start:end])
	return strings.Join(strings.Fields(snippet), " ")
}

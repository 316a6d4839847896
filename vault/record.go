// Package vault implements the file-backed store the gateway treats as its
// source of truth: typed CRUD over text records, the priority job/task
// queues, per-path locks, and the thread/note/memory surfaces.
package vault

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// Record is the on-disk unit: a header block of "Key: value" lines,
// a single blank line, then a free-form body.
type Record struct {
	Header map[string]string
	Body   string
}

// Reserved header keys, written first and in this order for stable diffs.
var headerKeyOrder = []string{
	"jobId", "taskId", "type", "status", "priority", "securityProfile",
	"modelOverride", "thinkingLevel", "workerId", "threadId", "claimedBy",
	"claimedAt", "createdAt", "updatedAt", "version", "dependsOn",
	"targetHarnessType", "lastModifiedBy",
}

// ParseRecord decodes a text record. A header line without a colon makes
// the whole record corrupt; scans treat that as skippable.
func ParseRecord(content string) (*Record, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")

	header := make(map[string]string)
	body := ""

	lines := strings.Split(normalized, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			i++
			break
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			return nil, errors.Wrapf(errors.ErrCorruptRecord, "header line %d has no key", i+1)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, errors.Wrapf(errors.ErrCorruptRecord, "header line %d has empty key", i+1)
		}
		header[key] = value
	}

	if i < len(lines) {
		body = strings.Join(lines[i:], "\n")
	}

	if len(header) == 0 {
		return nil, errors.Wrap(errors.ErrCorruptRecord, "record has no header block")
	}

	return &Record{Header: header, Body: body}, nil
}

// Encode serializes the record: reserved keys in canonical order, then any
// remaining keys sorted, a blank line, and the body.
func (r *Record) Encode() string {
	var b strings.Builder

	written := make(map[string]bool, len(r.Header))
	for _, key := range headerKeyOrder {
		if value, ok := r.Header[key]; ok {
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
			written[key] = true
		}
	}

	extras := make([]string, 0)
	for key := range r.Header {
		if !written[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(r.Header[key])
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(r.Body)
	return b.String()
}

// Get returns a header value or the empty string
func (r *Record) Get(key string) string {
	return r.Header[key]
}

// Set stores a header value
func (r *Record) Set(key, value string) {
	r.Header[key] = value
}

// GetInt returns a header value parsed as int, or fallback
func (r *Record) GetInt(key string, fallback int) int {
	v, ok := r.Header[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// SetInt stores an int header value
func (r *Record) SetInt(key string, value int) {
	r.Header[key] = strconv.Itoa(value)
}

// GetTime returns a header value parsed as RFC3339, or the zero time
func (r *Record) GetTime(key string) time.Time {
	t, err := time.Parse(time.RFC3339, r.Header[key])
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetTime stores an RFC3339 header value
func (r *Record) SetTime(key string, t time.Time) {
	r.Header[key] = t.UTC().Format(time.RFC3339)
}

// GetList returns a comma-encoded header value as a slice
func (r *Record) GetList(key string) []string {
	raw := strings.TrimSpace(r.Header[key])
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SetList stores a slice as a comma-encoded header value
func (r *Record) SetList(key string, values []string) {
	r.Header[key] = strings.Join(values, ",")
}

// BumpVersion increments the record's version; a record without one gets 1
func (r *Record) BumpVersion() int {
	next := r.GetInt("version", 0) + 1
	r.SetInt("version", next)
	return next
}

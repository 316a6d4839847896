// Package fbmq implements a file-backed message queue: entries are plain
// files whose names sort by priority bucket then enqueue time, and every
// state transition is a link-or-fail move between directories so at most
// one consumer can win a claim.
package fbmq

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

const (
	// DirPending holds entries waiting for a consumer
	DirPending = "pending"
	// DirProcessing holds entries claimed by exactly one consumer
	DirProcessing = "processing"
	// DirDone holds acknowledged entries; outcome lives inside the record
	DirDone = "done"

	entryExt = ".md"

	filePermissions = 0o644
	dirPermissions  = 0o755
)

// Priority bucket thresholds. Buckets rank before enqueue time; within a
// bucket the queue is FIFO.
const (
	PriorityCritical = 90
	PriorityHigh     = 70
	PriorityNormal   = 30
)

// Entry is one queue element as seen by consumers.
type Entry struct {
	ID       string
	Priority int
	Payload  []byte
	// path is the claimed location under processing/; only the claimer
	// holds it, which is what makes Update and Ack single-writer.
	path string
}

// Path returns the claimed entry's on-disk location
func (e *Entry) Path() string { return e.path }

// Queue is a single named queue rooted at a directory. A Queue may also
// carry a staging area for entries that are not yet eligible to run.
type Queue struct {
	root      string
	stagedDir string
	log       *zap.SugaredLogger
}

// New opens (creating if needed) a queue rooted at dir. stagedDir may be
// empty for queues without a staging area.
func New(dir, stagedDir string, log *zap.SugaredLogger) (*Queue, error) {
	for _, sub := range []string{DirPending, DirProcessing, DirDone} {
		if err := os.MkdirAll(filepath.Join(dir, sub), dirPermissions); err != nil {
			return nil, errors.Wrapf(err, "failed to create queue dir %s", sub)
		}
	}
	if stagedDir != "" {
		if err := os.MkdirAll(stagedDir, dirPermissions); err != nil {
			return nil, errors.Wrap(err, "failed to create staging dir")
		}
	}
	return &Queue{root: dir, stagedDir: stagedDir, log: log}, nil
}

// Root returns the queue's base directory
func (q *Queue) Root() string { return q.root }

// bucketRank maps a numeric priority onto a lexically sortable bucket.
// Lower rank sorts first.
func bucketRank(priority int) string {
	switch {
	case priority >= PriorityCritical:
		return "b0"
	case priority >= PriorityHigh:
		return "b1"
	case priority >= PriorityNormal:
		return "b2"
	default:
		return "b3"
	}
}

// entryName builds the canonical filename. Zero-padded nanos keep the
// lexical order equal to enqueue order within a bucket.
func entryName(id string, priority int, at time.Time) string {
	return fmt.Sprintf("%s-%019d-%s%s", bucketRank(priority), at.UnixNano(), id, entryExt)
}

// idFromName recovers the entry id from a queue filename
func idFromName(name string) string {
	base := strings.TrimSuffix(name, entryExt)
	parts := strings.SplitN(base, "-", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

// Enqueue writes a new pending entry. The payload lands via a temp file
// and rename so watchers never observe a partial write.
func (q *Queue) Enqueue(id string, priority int, payload []byte) error {
	name := entryName(id, priority, time.Now())
	return q.writeEntry(filepath.Join(q.root, DirPending, name), payload)
}

// EnqueueStaged parks an entry in the staging area instead of pending.
func (q *Queue) EnqueueStaged(id string, priority int, payload []byte) error {
	if q.stagedDir == "" {
		return errors.New("queue has no staging area")
	}
	name := entryName(id, priority, time.Now())
	return q.writeEntry(filepath.Join(q.stagedDir, name), payload)
}

func (q *Queue) writeEntry(dest string, payload []byte) error {
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, payload, filePermissions); err != nil {
		return errors.Wrap(err, "failed to write queue entry")
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to publish queue entry")
	}
	return nil
}

// Dequeue claims the highest-priority, oldest pending entry accepted by
// filter (nil accepts everything). The claim is a link-or-fail move into
// processing/, so concurrent consumers race safely: the loser skips to
// the next candidate. Returns ErrNotFound when nothing matches.
func (q *Queue) Dequeue(filter func(id string, payload []byte) bool) (*Entry, error) {
	names, err := q.sortedNames(filepath.Join(q.root, DirPending))
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		src := filepath.Join(q.root, DirPending, name)
		payload, err := os.ReadFile(src)
		if err != nil {
			// claimed or removed between listing and read
			continue
		}

		id := idFromName(name)
		if id == "" {
			q.log.Warnw("Skipping queue entry with malformed name", "name", name)
			continue
		}
		if filter != nil && !filter(id, payload) {
			continue
		}

		dest := filepath.Join(q.root, DirProcessing, id+entryExt)
		if err := moveOrFail(src, dest); err != nil {
			if errors.Is(err, errors.ErrConflict) {
				continue // lost the race
			}
			return nil, err
		}

		return &Entry{ID: id, Priority: priorityFromName(name), Payload: payload, path: dest}, nil
	}

	return nil, errors.ErrNotFound
}

// priorityFromName recovers an indicative priority from the bucket rank.
// The authoritative value lives in the payload; this is only for logs.
func priorityFromName(name string) int {
	switch {
	case strings.HasPrefix(name, "b0-"):
		return PriorityCritical
	case strings.HasPrefix(name, "b1-"):
		return PriorityHigh
	case strings.HasPrefix(name, "b2-"):
		return PriorityNormal
	default:
		return 0
	}
}

// Update rewrites a claimed entry in place
func (q *Queue) Update(e *Entry, payload []byte) error {
	if e.path == "" {
		return errors.New("entry was not claimed from this queue")
	}
	e.Payload = payload
	return q.writeEntry(e.path, payload)
}

// Ack moves a claimed entry to done/. The record carries its own outcome;
// the queue only cares that the entry reached a terminal state.
func (q *Queue) Ack(e *Entry) error {
	if e.path == "" {
		return errors.New("entry was not claimed from this queue")
	}
	dest := filepath.Join(q.root, DirDone, e.ID+entryExt)
	if err := moveOrFail(e.path, dest); err != nil {
		return err
	}
	e.path = ""
	return nil
}

// StagedEntry describes one parked entry
type StagedEntry struct {
	Name    string
	ID      string
	Payload []byte
}

// ListStaged returns staged entries in queue order
func (q *Queue) ListStaged() ([]StagedEntry, error) {
	if q.stagedDir == "" {
		return nil, nil
	}
	names, err := q.sortedNames(q.stagedDir)
	if err != nil {
		return nil, err
	}
	out := make([]StagedEntry, 0, len(names))
	for _, name := range names {
		payload, err := os.ReadFile(filepath.Join(q.stagedDir, name))
		if err != nil {
			continue
		}
		out = append(out, StagedEntry{Name: name, ID: idFromName(name), Payload: payload})
	}
	return out, nil
}

// Promote moves a staged entry into pending, keeping its original name so
// queue position reflects the original enqueue time.
func (q *Queue) Promote(name string) error {
	if q.stagedDir == "" {
		return errors.New("queue has no staging area")
	}
	src := filepath.Join(q.stagedDir, name)
	dest := filepath.Join(q.root, DirPending, name)
	return moveOrFail(src, dest)
}

// UpdateStaged rewrites a staged entry in place
func (q *Queue) UpdateStaged(name string, payload []byte) error {
	if q.stagedDir == "" {
		return errors.New("queue has no staging area")
	}
	return q.writeEntry(filepath.Join(q.stagedDir, name), payload)
}

// Find locates an entry by id in pending, processing, or done, in that
// order. Returns the payload and the directory it was found in.
func (q *Queue) Find(id string) ([]byte, string, error) {
	// processing and done entries have deterministic names
	for _, sub := range []string{DirProcessing, DirDone} {
		payload, err := os.ReadFile(filepath.Join(q.root, sub, id+entryExt))
		if err == nil {
			return payload, sub, nil
		}
	}

	names, err := q.sortedNames(filepath.Join(q.root, DirPending))
	if err != nil {
		return nil, "", err
	}
	for _, name := range names {
		if idFromName(name) != id {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(q.root, DirPending, name))
		if err == nil {
			return payload, DirPending, nil
		}
	}

	if q.stagedDir != "" {
		staged, err := q.ListStaged()
		if err == nil {
			for _, s := range staged {
				if s.ID == id {
					return s.Payload, "staged", nil
				}
			}
		}
	}

	return nil, "", errors.ErrNotFound
}

// Counts reports pending and processing depths
func (q *Queue) Counts() (pending int, processing int) {
	if names, err := q.sortedNames(filepath.Join(q.root, DirPending)); err == nil {
		pending = len(names)
	}
	if names, err := q.sortedNames(filepath.Join(q.root, DirProcessing)); err == nil {
		processing = len(names)
	}
	return pending, processing
}

// ListPending returns pending payloads in queue order
func (q *Queue) ListPending() ([][]byte, error) {
	names, err := q.sortedNames(filepath.Join(q.root, DirPending))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(names))
	for _, name := range names {
		payload, err := os.ReadFile(filepath.Join(q.root, DirPending, name))
		if err != nil {
			continue
		}
		out = append(out, payload)
	}
	return out, nil
}

func (q *Queue) sortedNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read queue dir %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entryExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// moveOrFail moves src to dest, failing with ErrConflict if dest already
// exists. os.Rename would silently overwrite, so the move is a hard link
// followed by an unlink of the source.
func moveOrFail(src, dest string) error {
	if err := os.Link(src, dest); err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(errors.ErrConflict, "%s already exists", filepath.Base(dest))
		}
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrConflict, "%s already moved", filepath.Base(src))
		}
		return errors.Wrap(err, "failed to link queue entry")
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to unlink claimed queue entry")
	}
	return nil
}

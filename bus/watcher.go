package bus

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

// coalesceWindow batches rapid events on the same path into one. Editors
// and atomic rename writes commonly produce bursts.
const coalesceWindow = 100 * time.Millisecond

// Watcher follows the vault tree recursively and publishes classified
// events onto a Bus.
type Watcher struct {
	root    string
	bus     *Bus
	watcher *fsnotify.Watcher
	log     *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]*pendingEvent

	done chan struct{}
	wg   sync.WaitGroup
}

type pendingEvent struct {
	op    fsnotify.Op
	timer *time.Timer
}

// NewWatcher creates a watcher over the vault root. Start must be called
// to begin publishing.
func NewWatcher(root string, bus *Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	w := &Watcher{
		root:    root,
		bus:     bus,
		watcher: fw,
		log:     logger.Named("bus.watcher"),
		pending: make(map[string]*pendingEvent),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}

	return w, nil
}

// addRecursive watches a directory and every subdirectory
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if aerr := w.watcher.Add(path); aerr != nil {
			w.log.Warnw("Failed to watch directory", "dir", path, "error", aerr)
		}
		return nil
	})
}

// Start launches the watch loop
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
	w.log.Infow("Vault watcher started", "root", w.root)
}

// Stop shuts the watcher down and waits for the loop to exit
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".lock") {
		return
	}

	// new directories join the watch set immediately
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addRecursive(ev.Name)
			return
		}
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.coalesce(ev.Name, ev.Op)
}

// coalesce delays publication briefly, merging bursts on the same path.
// A Create absorbed into a burst keeps the Create classification.
func (w *Watcher) coalesce(path string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pe, ok := w.pending[path]; ok {
		pe.op |= op
		return
	}

	pe := &pendingEvent{op: op}
	pe.timer = time.AfterFunc(coalesceWindow, func() {
		w.mu.Lock()
		final := w.pending[path]
		delete(w.pending, path)
		w.mu.Unlock()
		if final != nil {
			w.classify(path, final.op)
		}
	})
	w.pending[path] = pe
}

// classify maps a vault path and op onto a typed event, reading queue
// records where the kind depends on the recorded status.
func (w *Watcher) classify(path string, op fsnotify.Op) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isCreate := op&fsnotify.Create != 0
	isRemove := op&(fsnotify.Remove|fsnotify.Rename) != 0

	switch {
	case strings.HasPrefix(rel, vault.JobQueueDir+"/"):
		w.classifyQueue(rel, path, vault.JobQueueDir, isCreate,
			KindJobCreated, KindJobClaimed, KindJobCompleted, KindJobFailed, "jobId")

	case strings.HasPrefix(rel, vault.TaskQueueDir+"/"):
		w.classifyQueue(rel, path, vault.TaskQueueDir, isCreate,
			KindTaskCreated, KindTaskClaimed, KindTaskCompleted, KindTaskFailed, "taskId")

	case strings.HasPrefix(rel, vault.StagedDir+"/"):
		if isCreate {
			w.publish(KindTaskCreated, rel, map[string]string{
				"taskId": queueEntryID(filepath.Base(rel)),
				"staged": "true",
			})
		}

	case strings.HasPrefix(rel, vault.PendingAppDir+"/"):
		if isCreate {
			w.publish(KindApprovalCreated, rel, nil)
		}

	case strings.HasPrefix(rel, vault.ResolvedDir+"/"):
		if isCreate {
			w.publish(KindApprovalResolved, rel, nil)
		}

	case strings.HasPrefix(rel, vault.ThreadsDir+"/"):
		w.publish(KindThreadUpdated, rel, map[string]string{
			"threadId": strings.TrimSuffix(filepath.Base(rel), ".md"),
		})

	case strings.HasPrefix(rel, vault.LiveDir+"/"):
		// live output churns constantly; consumers poll it directly

	case strings.HasPrefix(rel, vault.SystemDir+"/"):
		if !strings.HasPrefix(rel, vault.LocksDir+"/") && !strings.HasPrefix(rel, vault.JobLogDir+"/") {
			w.publish(KindSystemModified, rel, nil)
		}

	case strings.HasPrefix(rel, "_"):
		// other infrastructure paths are not surfaced

	case strings.HasSuffix(rel, ".md"):
		switch {
		case isRemove:
			w.publish(KindNoteDeleted, rel, nil)
		case isCreate:
			w.publish(KindNoteCreated, rel, nil)
		default:
			w.publish(KindNoteModified, rel, nil)
		}
	}
}

// classifyQueue handles the pending/processing/done subdirs of a queue
func (w *Watcher) classifyQueue(rel, path, queueDir string, isCreate bool,
	createdKind, claimedKind, completedKind, failedKind, idKey string) {

	if !isCreate {
		// removals inside a queue are the back half of a claim move
		return
	}

	sub := strings.TrimPrefix(rel, queueDir+"/")
	id := queueEntryID(filepath.Base(rel))
	data := map[string]string{idKey: id}

	switch {
	case strings.HasPrefix(sub, "pending/"):
		w.publish(createdKind, rel, data)
	case strings.HasPrefix(sub, "processing/"):
		w.publish(claimedKind, rel, data)
	case strings.HasPrefix(sub, "done/"):
		kind := completedKind
		if status := recordStatus(path); status != "" {
			data["status"] = status
			switch status {
			case vault.JobStatusFailed, vault.JobStatusCancelled, vault.JobStatusTimeout:
				kind = failedKind
			}
		}
		w.publish(kind, rel, data)
	}
}

// queueEntryID recovers the entry id from either filename shape:
// "bN-<nanos>-<id>.md" in pending, "<id>.md" elsewhere.
func queueEntryID(name string) string {
	base := strings.TrimSuffix(name, ".md")
	parts := strings.SplitN(base, "-", 3)
	if len(parts) == 3 && strings.HasPrefix(parts[0], "b") && len(parts[1]) == 19 {
		return parts[2]
	}
	return base
}

// recordStatus reads the status header of a queue record, best effort
func recordStatus(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	rec, err := vault.ParseRecord(string(content))
	if err != nil {
		return ""
	}
	return rec.Get("status")
}

func (w *Watcher) publish(kind, rel string, data map[string]string) {
	w.bus.Publish(Event{Kind: kind, Path: rel, Data: data})
}

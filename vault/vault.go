package vault

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
	"github.com/CalvinMagezi/agent-hq-sub000/vault/fbmq"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Canonical layout under the vault root. Underscore-prefixed directories
// are infrastructure; everything else is user note space.
const (
	QueueDir      = "_fbmq"
	JobQueueDir   = "_fbmq/jobs"
	TaskQueueDir  = "_fbmq/delegation"
	StagedDir     = "_fbmq/staged"
	LiveDir       = "_delegation/live"
	SignalsDir    = "_delegation/signals"
	HealthDir     = "_delegation/relay-health"
	ThreadsDir    = "_threads/active"
	ArchivedDir   = "_threads/archived"
	SystemDir     = "_system"
	LocksDir      = "_system/locks"
	ApprovalsDir  = "_approvals"
	PendingAppDir = "_approvals/pending"
	ResolvedDir   = "_approvals/resolved"
	UsageDir      = "_usage/daily"
	JobLogDir     = "_system/joblog"
)

// System file names under _system/
const (
	SoulFile        = "SOUL.md"
	PreferencesFile = "PREFERENCES.md"
	MemoryFile      = "MEMORY.md"
	HeartbeatFile   = "HEARTBEAT.md"
)

// Vault is the facade over the file-backed store. All mutation goes
// through here so version counters, claim bookkeeping, and dependency
// promotion stay consistent.
type Vault struct {
	root string
	log  *zap.SugaredLogger

	jobs  *fbmq.Queue
	tasks *fbmq.Queue

	locks *lockManager

	mu sync.Mutex
	// claimed entries, keyed by id; only the process that dequeued an
	// entry may update or ack it
	claimedJobs  map[string]*fbmq.Entry
	claimedTasks map[string]*fbmq.Entry
	// cumulative set of successfully completed task ids, used to decide
	// staged promotion
	completedTasks map[string]bool
}

// New opens a vault rooted at path. A missing root is a hard error; the
// daemon must never invent a vault in the wrong place. Infrastructure
// subdirectories are created as needed.
func New(path string) (*Vault, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vault root %s does not exist", path)
	}
	if !info.IsDir() {
		return nil, errors.Newf("vault root %s is not a directory", path)
	}

	v := &Vault{
		root:           path,
		log:            logger.Named("vault"),
		claimedJobs:    make(map[string]*fbmq.Entry),
		claimedTasks:   make(map[string]*fbmq.Entry),
		completedTasks: make(map[string]bool),
	}

	if err := v.ensureLayout(); err != nil {
		return nil, err
	}

	v.jobs, err = fbmq.New(filepath.Join(path, JobQueueDir), "", v.log)
	if err != nil {
		return nil, err
	}
	v.tasks, err = fbmq.New(filepath.Join(path, TaskQueueDir), filepath.Join(path, StagedDir), v.log)
	if err != nil {
		return nil, err
	}

	v.locks = newLockManager(filepath.Join(path, LocksDir), v.log)

	if err := v.recoverCompletedTasks(); err != nil {
		v.log.Warnw("Failed to recover completed task set", "error", err)
	}

	return v, nil
}

// Root returns the vault root path
func (v *Vault) Root() string { return v.root }

// ensureLayout creates the infrastructure subtree. User note space is
// left alone.
func (v *Vault) ensureLayout() error {
	dirs := []string{
		JobQueueDir, TaskQueueDir, StagedDir,
		LiveDir, SignalsDir, HealthDir,
		ThreadsDir, ArchivedDir, LocksDir,
		PendingAppDir, ResolvedDir, UsageDir, JobLogDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(v.root, d), dirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create vault dir %s", d)
		}
	}
	return nil
}

// recoverCompletedTasks rebuilds the promotion set from done/ after a
// restart, so staged tasks whose dependencies finished in a previous run
// still promote.
func (v *Vault) recoverCompletedTasks() error {
	doneDir := filepath.Join(v.tasks.Root(), fbmq.DirDone)
	entries, err := os.ReadDir(doneDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(doneDir, e.Name()))
		if err != nil {
			continue
		}
		rec, err := ParseRecord(string(content))
		if err != nil {
			v.log.Warnw("Skipping corrupt task record", "file", e.Name())
			continue
		}
		if rec.Get("status") == TaskStatusCompleted {
			v.completedTasks[rec.Get("taskId")] = true
		}
	}
	return nil
}

// ReadSystemFile returns the contents of a file under _system/
func (v *Vault) ReadSystemFile(name string) (string, error) {
	content, err := os.ReadFile(filepath.Join(v.root, SystemDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WrapNotFound(err, name)
		}
		return "", errors.Wrapf(err, "failed to read system file %s", name)
	}
	return string(content), nil
}

// WriteSystemFile replaces a file under _system/
func (v *Vault) WriteSystemFile(name, content string) error {
	path := filepath.Join(v.root, SystemDir, name)
	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()
	return atomicWrite(path, []byte(content))
}

// atomicWrite writes via a temp file and rename so watchers never see a
// partial file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to publish %s", path)
	}
	return nil
}

package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

const (
	// lockStaleAfter is the age past which a lock file is presumed
	// abandoned by a crashed holder and may be broken.
	lockStaleAfter = 30 * time.Second

	lockRetryInterval = 25 * time.Millisecond
	lockAcquireBudget = 5 * time.Second
)

// lockManager hands out advisory per-path locks backed by exclusive-create
// lock files under _system/locks/.
type lockManager struct {
	dir string
	log *zap.SugaredLogger
}

func newLockManager(dir string, log *zap.SugaredLogger) *lockManager {
	return &lockManager{dir: dir, log: log}
}

// lockPath maps an arbitrary vault path to a lock file name
func (lm *lockManager) lockPath(target string) string {
	sum := sha256.Sum256([]byte(target))
	return filepath.Join(lm.dir, hex.EncodeToString(sum[:8])+".lock")
}

// Acquire takes the lock for target, breaking stale locks. The returned
// function releases it. Fails with ErrLockHeld after the retry budget.
func (lm *lockManager) Acquire(target string) (func(), error) {
	lock := lm.lockPath(target)
	deadline := time.Now().Add(lockAcquireBudget)

	for {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return func() { os.Remove(lock) }, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "failed to create lock for %s", target)
		}

		if info, statErr := os.Stat(lock); statErr == nil {
			if time.Since(info.ModTime()) > lockStaleAfter {
				lm.log.Warnw("Breaking stale lock", "target", target, "age", time.Since(info.ModTime()).String())
				os.Remove(lock)
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, errors.Wrapf(errors.ErrLockHeld, "lock for %s", target)
		}
		time.Sleep(lockRetryInterval)
	}
}

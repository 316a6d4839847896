// Package embedtrigger keeps note embeddings fresh: it follows note
// change events and recomputes vectors for touched notes in batches.
package embedtrigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/bus"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

const (
	// batchDelay gathers a burst of note edits into one embedding call
	batchDelay = 2 * time.Second

	embedTimeout = 30 * time.Second

	// noteCap bounds how much of a note goes into the embedding input
	noteCap = 8 * 1024

	embeddingsDir = "_system/embeddings"
)

// Trigger watches note events and maintains per-note embedding sidecars
// under the vault's system space. Without an embedding model configured
// it stays inert.
type Trigger struct {
	v     *vault.Vault
	llm   *openrouter.Client
	model string
	log   *zap.SugaredLogger

	mu      sync.Mutex
	dirty   map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// New creates a trigger and subscribes it to note events on the bus
func New(v *vault.Vault, b *bus.Bus, llm *openrouter.Client, model string) *Trigger {
	t := &Trigger{
		v:     v,
		llm:   llm,
		model: model,
		log:   logger.Named("embedtrigger"),
		dirty: make(map[string]struct{}),
	}

	if model == "" || !llm.Configured() {
		t.log.Infow("Embedding trigger inactive; no model or credential configured")
		return t
	}

	b.Subscribe("embedtrigger", t.onEvent)
	return t
}

// Stop cancels any pending batch
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *Trigger) onEvent(ev bus.Event) {
	switch ev.Kind {
	case bus.KindNoteCreated, bus.KindNoteModified:
	case bus.KindNoteDeleted:
		t.removeSidecar(ev.Path)
		return
	default:
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.dirty[ev.Path] = struct{}{}
	if t.timer == nil {
		t.timer = time.AfterFunc(batchDelay, t.flush)
	}
}

func (t *Trigger) flush() {
	t.mu.Lock()
	paths := make([]string, 0, len(t.dirty))
	for p := range t.dirty {
		paths = append(paths, p)
	}
	t.dirty = make(map[string]struct{})
	t.timer = nil
	t.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	inputs := make([]string, 0, len(paths))
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		note, err := t.v.ReadNote(p)
		if err != nil {
			continue
		}
		content := note.Content
		if len(content) > noteCap {
			content = content[:noteCap]
		}
		inputs = append(inputs, note.Title+"\n\n"+content)
		kept = append(kept, p)
	}
	if len(inputs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
	defer cancel()

	vectors, err := t.llm.Embeddings(ctx, t.model, inputs)
	if err != nil {
		t.log.Warnw("Embedding batch failed", "count", len(inputs), "error", err)
		return
	}

	for i, p := range kept {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		if err := t.writeSidecar(p, vectors[i]); err != nil {
			t.log.Warnw("Failed to persist embedding", "note", p, "error", err)
		}
	}
	t.log.Infow("Embeddings refreshed", "count", len(kept))
}

type sidecar struct {
	Path      string    `json:"path"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updatedAt"`
	Vector    []float32 `json:"vector"`
}

func (t *Trigger) sidecarPath(notePath string) string {
	sum := sha256.Sum256([]byte(notePath))
	return filepath.Join(t.v.Root(), embeddingsDir, hex.EncodeToString(sum[:12])+".json")
}

func (t *Trigger) writeSidecar(notePath string, vector []float32) error {
	path := t.sidecarPath(notePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(sidecar{
		Path:      notePath,
		Model:     t.model,
		UpdatedAt: time.Now().UTC(),
		Vector:    vector,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (t *Trigger) removeSidecar(notePath string) {
	os.Remove(t.sidecarPath(notePath))
}

package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// DirWriter lays the archive out as plain files under a directory, one
// subdirectory per namespace. Used for the nozim format.
type DirWriter struct {
	root string

	mu        sync.Mutex
	seen      map[string]bool
	meta      map[string]string
	finalized bool
}

// NewDirWriter creates a writer targeting the given directory.
func NewDirWriter(root string) *DirWriter {
	return &DirWriter{
		root: root,
		seen: make(map[string]bool),
		meta: make(map[string]string),
	}
}

// SetMeta records one archive-level metadata value.
func (w *DirWriter) SetMeta(name, value string) {
	w.mu.Lock()
	w.meta[name] = value
	w.mu.Unlock()
}

// AddEntry writes one entry to disk. Duplicate keys are a no-op.
func (w *DirWriter) AddEntry(e Entry) error {
	if e.Namespace == "" || e.URL == "" {
		return fmt.Errorf("archive entry needs namespace and url, got %q/%q", e.Namespace, e.URL)
	}
	if strings.Contains(e.URL, "..") {
		return fmt.Errorf("archive url %q must not contain '..'", e.URL)
	}

	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return fmt.Errorf("archive already finalized")
	}
	key := e.Key()
	if w.seen[key] {
		w.mu.Unlock()
		return nil
	}
	w.seen[key] = true
	w.mu.Unlock()

	path := filepath.Join(w.root, e.Namespace, filepath.FromSlash(e.URL))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, e.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Finalize writes the metadata files and closes the writer.
func (w *DirWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return fmt.Errorf("archive already finalized")
	}
	w.finalized = true

	metaDir := filepath.Join(w.root, NamespaceMeta)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", metaDir, err)
	}
	for name, value := range w.meta {
		if err := os.WriteFile(filepath.Join(metaDir, name), []byte(value), 0o644); err != nil {
			return fmt.Errorf("writing metadata %s: %w", name, err)
		}
	}

	log.Info().Str("path", w.root).Int("entries", len(w.seen)).Msg("Archive directory finalized")
	return nil
}

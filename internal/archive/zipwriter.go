package archive

import (
	"archive/zip"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ZipWriter stores entries as <namespace>/<url> members of a zip file.
// Entries are buffered in memory and flushed on Finalize so that
// AddEntry can be called from many workers without ordering concerns.
type ZipWriter struct {
	path string

	mu        sync.Mutex
	entries   map[string]Entry
	finalized bool

	// Metadata written as M/ entries on finalize.
	Meta map[string]string
}

// NewZipWriter creates a writer targeting the given file path.
func NewZipWriter(path string) *ZipWriter {
	return &ZipWriter{
		path:    path,
		entries: make(map[string]Entry),
		Meta:    make(map[string]string),
	}
}

// SetMeta records one archive-level metadata value.
func (w *ZipWriter) SetMeta(name, value string) {
	w.mu.Lock()
	w.Meta[name] = value
	w.mu.Unlock()
}

// AddEntry buffers one entry. Re-adding an existing key is a no-op.
func (w *ZipWriter) AddEntry(e Entry) error {
	if e.Namespace == "" || e.URL == "" {
		return fmt.Errorf("archive entry needs namespace and url, got %q/%q", e.Namespace, e.URL)
	}
	if strings.Contains(e.URL, "..") {
		return fmt.Errorf("archive url %q must not contain '..'", e.URL)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return fmt.Errorf("archive already finalized")
	}
	key := e.Key()
	if _, dup := w.entries[key]; dup {
		return nil
	}
	w.entries[key] = e
	return nil
}

// Len returns the number of buffered entries.
func (w *ZipWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Has reports whether the key is already present.
func (w *ZipWriter) Has(namespace, url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[namespace+"/"+url]
	return ok
}

// Finalize writes the zip file, including M/ metadata entries and a
// per-MIME-type counter, and marks the writer closed.
func (w *ZipWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return fmt.Errorf("archive already finalized")
	}
	w.finalized = true

	counters := make(map[string]int)
	for _, e := range w.entries {
		counters[e.MimeType]++
	}
	var counterLines []string
	for mime, n := range counters {
		counterLines = append(counterLines, fmt.Sprintf("%s=%d", mime, n))
	}
	sort.Strings(counterLines)
	w.entries["M/Counter"] = Entry{
		Namespace: NamespaceMeta,
		URL:       "Counter",
		MimeType:  "text/plain",
		Data:      []byte(strings.Join(counterLines, ";")),
	}
	for name, value := range w.Meta {
		e := Entry{
			Namespace: NamespaceMeta,
			URL:       name,
			MimeType:  "text/plain",
			Data:      []byte(value),
		}
		w.entries[e.Key()] = e
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	keys := make([]string, 0, len(w.entries))
	for k := range w.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := w.entries[k]
		member, err := zw.Create(k)
		if err != nil {
			return fmt.Errorf("adding %s: %w", k, err)
		}
		if _, err := member.Write(e.Data); err != nil {
			return fmt.Errorf("writing %s: %w", k, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}

	log.Info().Str("path", w.path).Int("entries", len(keys)).Msg("Archive finalized")
	return nil
}

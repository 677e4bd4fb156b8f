package cache

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKey_Stable(t *testing.T) {
	k := Key("https://example.org/a.png")
	if len(k) != 20 {
		t.Errorf("key length = %d, want 20", len(k))
	}
	if k != Key("https://example.org/a.png") {
		t.Error("key is not deterministic")
	}
	if k == Key("https://example.org/b.png") {
		t.Error("distinct URLs collided")
	}
}

func TestDiskCache_SetGet(t *testing.T) {
	c, err := NewDiskCache(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	headers := http.Header{}
	headers.Set("Etag", `"abc"`)
	headers.Set("Content-Type", "image/png")

	if err := c.Set("https://example.org/a.png", []byte("png-bytes"), headers); err != nil {
		t.Fatalf("set: %v", err)
	}

	body, got, ok := c.Get("https://example.org/a.png")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(body) != "png-bytes" {
		t.Errorf("body = %q", body)
	}
	if got.Get("Etag") != `"abc"` {
		t.Errorf("etag = %q", got.Get("Etag"))
	}
}

func TestDiskCache_Miss(t *testing.T) {
	c, err := NewDiskCache(t.TempDir(), false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, _, ok := c.Get("https://example.org/missing.png"); ok {
		t.Error("unexpected hit")
	}
}

func TestDiskCache_CleanupDropsStaleEntries(t *testing.T) {
	dir := t.TempDir()

	// Simulate leftovers from a previous run.
	stale := filepath.Join(dir, "deadbeefdeadbeefdead")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatal(err)
	}

	c, err := NewDiskCache(dir, false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := c.Set("https://example.org/fresh.png", []byte("new"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale entry survived cleanup")
	}
	if _, _, ok := c.Get("https://example.org/fresh.png"); !ok {
		t.Error("fresh entry removed by cleanup")
	}
}

func TestDiskCache_SkipCleaning(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "cafebabecafebabecafe")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatal(err)
	}

	c, err := NewDiskCache(dir, true)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Error("entry removed despite skipCacheCleaning")
	}
}

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nishisan-dev/nbeam/beam"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk-source")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestOpenFile_BasicAccessors(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	scope := NewScope("test")

	c, err := OpenFile(path, 0, 10, 0, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Release()

	if c.Kind() != beam.KindDataFile {
		t.Errorf("expected KindDataFile, got %v", c.Kind())
	}
	if c.Length() != 10 {
		t.Errorf("expected Length 10, got %d", c.Length())
	}
	if c.RefCount() != 1 {
		t.Errorf("expected RefCount 1 for a freshly opened file, got %d", c.RefCount())
	}
}

func TestFileChunk_RetainMakesRefCountGreaterThanOne(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	c, err := OpenFile(path, 0, 10, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Release()

	c.Retain()
	defer c.Release()

	if c.RefCount() != 2 {
		t.Fatalf("expected RefCount 2 after Retain, got %d", c.RefCount())
	}
}

func TestFileChunk_Split(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	c, err := OpenFile(path, 0, 10, 100, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Release()

	head, tail, err := c.Split(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.Length() != 4 || tail.Length() != 6 {
		t.Fatalf("expected lengths 4/6, got %d/%d", head.Length(), tail.Length())
	}
	if head.Offset() != 100 || tail.Offset() != 104 {
		t.Fatalf("expected offsets 100/104, got %d/%d", head.Offset(), tail.Offset())
	}
	// Split shares the same handle, so RefCount reflects the file, not the window.
	if head.RefCount() != c.RefCount() {
		t.Error("expected split halves to share the parent's refcount")
	}
}

func TestFileChunk_CopyOutReadsWindow(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	c, err := OpenFile(path, 2, 4, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Release()

	copied, err := c.CopyOut(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(copied.(*HeapChunk).Bytes()); got != "2345" {
		t.Errorf("expected window %q, got %q", "2345", got)
	}
}

func TestFileChunk_DisableMmap(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	c, err := OpenFile(path, 0, 10, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Release()

	if c.MmapDisabled() {
		t.Fatal("expected mmap not disabled by default")
	}
	c.DisableMmap()
	if !c.MmapDisabled() {
		t.Fatal("expected MmapDisabled() true after DisableMmap()")
	}
}

func TestFileChunk_ReleaseClosesUnderlyingFile(t *testing.T) {
	path := writeTempFile(t, "0123456789")
	c, err := OpenFile(path, 0, 10, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Release()
	if !c.handle.closed {
		t.Fatal("expected the underlying file to be closed once the last reference releases")
	}
}

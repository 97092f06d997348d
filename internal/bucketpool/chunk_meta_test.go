// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import (
	"bytes"
	"testing"

	"github.com/nishisan-dev/nbeam/beam"
)

func TestNewEOS(t *testing.T) {
	c := NewEOS(42, nil)
	if c.Kind() != beam.KindMetaEOS {
		t.Errorf("expected KindMetaEOS, got %v", c.Kind())
	}
	if c.Length() != 0 {
		t.Errorf("expected Length 0, got %d", c.Length())
	}
	if c.Offset() != 42 {
		t.Errorf("expected Offset 42, got %d", c.Offset())
	}
	if !c.Kind().IsMetadata() {
		t.Error("expected EOS chunk to be classified as metadata")
	}
}

func TestNewFlush(t *testing.T) {
	c := NewFlush(7, nil)
	if c.Kind() != beam.KindMetaFlush {
		t.Errorf("expected KindMetaFlush, got %v", c.Kind())
	}
}

func TestNewError(t *testing.T) {
	c := NewError(503, []byte("upstream timeout"), 99, nil)
	if c.Kind() != beam.KindMetaError {
		t.Errorf("expected KindMetaError, got %v", c.Kind())
	}
	if c.StatusCode() != 503 {
		t.Errorf("expected StatusCode 503, got %d", c.StatusCode())
	}
	if !bytes.Equal(c.Diagnostic(), []byte("upstream timeout")) {
		t.Errorf("unexpected diagnostic %q", c.Diagnostic())
	}
}

func TestMetaChunks_AreNotSplittable(t *testing.T) {
	chunks := []beam.Chunk{NewEOS(0, nil), NewFlush(0, nil), NewError(500, nil, 0, nil)}
	for _, c := range chunks {
		if _, _, err := c.Split(1); err != beam.ErrBadSplit {
			t.Errorf("expected ErrBadSplit for %v, got %v", c.Kind(), err)
		}
	}
}

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/nishisan-dev/nbeam/beam"
)

// mmapHandle é o mapeamento compartilhado entre os MmapChunk derivados de
// um mesmo arquivo via Split. Nenhuma biblioteca do restante do pacote
// cobre mmap — é um caso de uso suficientemente estreito (janela
// read-only sobre um arquivo já aberto) que syscall.Mmap direto é mais
// simples que trazer uma dependência só para isso.
type mmapHandle struct {
	f    *os.File
	data []byte

	mu       sync.Mutex
	disabled bool
	unmapped bool
}

func (h *mmapHandle) unmap() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unmapped {
		return
	}
	h.unmapped = true
	syscall.Munmap(h.data)
	h.f.Close()
}

// MmapChunk é um chunk de dados apoiado por uma região mapeada em memória
// de um arquivo. Tratado como borrowable quando beam.Config.CopyFiles é
// false — uma vez emprestado, o consumidor lê direto do mapeamento sem
// cópia.
type MmapChunk struct {
	handle *mmapHandle
	start  int64
	length int64
	offset int64
	scope  beam.Scope
}

// OpenMmap mapeia path inteiro e retorna um MmapChunk cobrindo
// [start, start+length) dele, em scope.
func OpenMmap(path string, start, length, offset int64, scope beam.Scope) (*MmapChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bucketpool: opening %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bucketpool: statting %q: %w", path, err)
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bucketpool: mmap %q: %w", path, err)
	}
	return &MmapChunk{
		handle: &mmapHandle{f: f, data: data},
		start:  start,
		length: length,
		offset: offset,
		scope:  scope,
	}, nil
}

func (c *MmapChunk) Kind() beam.Kind   { return beam.KindDataMmap }
func (c *MmapChunk) Length() int64     { return c.length }
func (c *MmapChunk) Offset() int64     { return c.offset }
func (c *MmapChunk) RefCount() int32   { return 1 }
func (c *MmapChunk) Scope() beam.Scope { return c.scope }

// Bytes retorna a janela mapeada correspondente a este chunk.
func (c *MmapChunk) Bytes() []byte { return c.handle.data[c.start : c.start+c.length] }

func (c *MmapChunk) Rehome(s beam.Scope) { c.scope = s }

func (c *MmapChunk) DisableMmap() {
	c.handle.mu.Lock()
	c.handle.disabled = true
	c.handle.mu.Unlock()
}

func (c *MmapChunk) MmapDisabled() bool {
	c.handle.mu.Lock()
	defer c.handle.mu.Unlock()
	return c.handle.disabled
}

// Unmap libera o mapeamento e fecha o arquivo. Deve ser chamado pelo dono
// do escopo quando o último chunk derivado dele sai de uso; o beam em si
// nunca chama isso diretamente (confia no GC para os dados, ver
// beam.Beam.senderCleanup).
func (c *MmapChunk) Unmap() { c.handle.unmap() }

func (c *MmapChunk) Split(n int64) (beam.Chunk, beam.Chunk, error) {
	if n <= 0 || n >= c.length {
		return nil, nil, beam.ErrBadSplit
	}
	head := &MmapChunk{handle: c.handle, start: c.start, length: n, offset: c.offset, scope: c.scope}
	tail := &MmapChunk{handle: c.handle, start: c.start + n, length: c.length - n, offset: c.offset + n, scope: c.scope}
	return head, tail, nil
}

// CopyOut copia a janela mapeada para um HeapChunk independente.
func (c *MmapChunk) CopyOut(_ context.Context) (beam.Chunk, error) {
	dup := make([]byte, c.length)
	copy(dup, c.Bytes())
	return NewHeap(dup, c.offset, c.scope), nil
}

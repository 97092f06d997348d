// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nishisan-dev/nbeam/beam"
)

// fileHandle é o estado compartilhado entre todos os FileChunk que
// representam janelas de byte do mesmo arquivo aberto. refs conta
// quantos donos externos ao pipeline do beam ainda seguram uma referência
// a este arquivo (não quantos FileChunk derivados de Split existem) — é
// exatamente o sinal que beam.Chunk.RefCount() usa para decidir entre
// emprestar via proxy ou forçar cópia.
type fileHandle struct {
	f            *os.File
	path         string
	refs         int32
	mu           sync.Mutex
	mmapDisabled bool
	closed       bool
}

func (h *fileHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.f.Close()
}

// FileChunk é um chunk de dados que referencia uma janela [start, start+length)
// de um arquivo aberto, em vez de manter os bytes em memória. Só é
// empréstável via proxy quando seu fileHandle tem refcount 1 (ninguém mais
// usando o arquivo) e a beam não foi configurada para sempre copiar
// arquivos (beam.Config.CopyFiles).
type FileChunk struct {
	handle *fileHandle
	start  int64
	length int64
	offset int64
	scope  beam.Scope
}

// OpenFile abre path e retorna um FileChunk cobrindo [start, start+length)
// do arquivo, em scope. offset é a posição lógica do chunk no stream de
// origem (pode diferir de start quando o stream concatena múltiplos
// arquivos).
func OpenFile(path string, start, length, offset int64, scope beam.Scope) (*FileChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bucketpool: opening %q: %w", path, err)
	}
	return &FileChunk{
		handle: &fileHandle{f: f, path: path, refs: 1},
		start:  start,
		length: length,
		offset: offset,
		scope:  scope,
	}, nil
}

func (c *FileChunk) Kind() beam.Kind   { return beam.KindDataFile }
func (c *FileChunk) Length() int64     { return c.length }
func (c *FileChunk) Offset() int64     { return c.offset }
func (c *FileChunk) RefCount() int32   { return atomic.LoadInt32(&c.handle.refs) }
func (c *FileChunk) Scope() beam.Scope { return c.scope }

// Retain sinaliza que outro dono (fora do pipeline do beam) também está
// usando este arquivo, forçando futuras admissões a copiar em vez de
// emprestar.
func (c *FileChunk) Retain() { atomic.AddInt32(&c.handle.refs, 1) }

// Release derruba a retenção adicionada por Retain. Quando o contador
// chega a zero o arquivo subjacente é fechado.
func (c *FileChunk) Release() {
	if atomic.AddInt32(&c.handle.refs, -1) <= 0 {
		c.handle.close()
	}
}

// Rehome migra o chunk para um escopo diferente; o arquivo aberto em si
// não pertence a nenhum escopo específico.
func (c *FileChunk) Rehome(s beam.Scope) { c.scope = s }

// DisableMmap e MmapDisabled satisfazem beam.FileBacked.
func (c *FileChunk) DisableMmap() {
	c.handle.mu.Lock()
	c.handle.mmapDisabled = true
	c.handle.mu.Unlock()
}

func (c *FileChunk) MmapDisabled() bool {
	c.handle.mu.Lock()
	defer c.handle.mu.Unlock()
	return c.handle.mmapDisabled
}

// Split divide a janela em head/tail sobre o mesmo fileHandle — não altera
// o refcount de compartilhamento, já que ambos continuam sendo vistos pelo
// mesmo dono lógico do arquivo.
func (c *FileChunk) Split(n int64) (beam.Chunk, beam.Chunk, error) {
	if n <= 0 || n >= c.length {
		return nil, nil, beam.ErrBadSplit
	}
	head := &FileChunk{handle: c.handle, start: c.start, length: n, offset: c.offset, scope: c.scope}
	tail := &FileChunk{handle: c.handle, start: c.start + n, length: c.length - n, offset: c.offset + n, scope: c.scope}
	return head, tail, nil
}

// CopyOut lê a janela do arquivo para um HeapChunk independente,
// satisfazendo beam.Copier para o caminho de cópia obrigatória.
func (c *FileChunk) CopyOut(_ context.Context) (beam.Chunk, error) {
	buf := make([]byte, c.length)
	if _, err := c.handle.f.ReadAt(buf, c.start); err != nil {
		return nil, fmt.Errorf("bucketpool: reading %q: %w", c.handle.path, err)
	}
	return NewHeap(buf, c.offset, c.scope), nil
}

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import (
	"context"
	"sync/atomic"

	"github.com/nishisan-dev/nbeam/beam"
)

// HeapChunk é um chunk de dados residente em memória comum do processo
// Go — o caso simples do bucket: nada de mmap, nada de arquivo, só um
// slice de bytes e um escopo dono. Sempre empréstável (beam.borrowable
// trata KindDataHeap como sempre true).
type HeapChunk struct {
	data   []byte
	offset int64
	scope  beam.Scope
	refs   int32
}

// NewHeap cria um HeapChunk possuindo data (sem cópia) em scope, com
// offset marcando sua posição lógica dentro do stream de origem.
func NewHeap(data []byte, offset int64, scope beam.Scope) *HeapChunk {
	return &HeapChunk{data: data, offset: offset, scope: scope, refs: 1}
}

func (h *HeapChunk) Kind() beam.Kind   { return beam.KindDataHeap }
func (h *HeapChunk) Length() int64     { return int64(len(h.data)) }
func (h *HeapChunk) Offset() int64     { return h.offset }
func (h *HeapChunk) RefCount() int32   { return atomic.LoadInt32(&h.refs) }
func (h *HeapChunk) Scope() beam.Scope { return h.scope }

// Bytes expõe o payload para consumidores fora do beam (sinks, beamers).
func (h *HeapChunk) Bytes() []byte { return h.data }

// Rehome migra o chunk para um escopo diferente. Dados em heap não têm
// recurso de SO atrelado ao escopo, então isso é apenas contábil.
func (h *HeapChunk) Rehome(s beam.Scope) { h.scope = s }

// Split divide o chunk em n (0 < n < Length()) sem copiar o slice
// subjacente — head e tail compartilham o array de backing.
func (h *HeapChunk) Split(n int64) (beam.Chunk, beam.Chunk, error) {
	if n <= 0 || n >= int64(len(h.data)) {
		return nil, nil, beam.ErrBadSplit
	}
	head := &HeapChunk{data: h.data[:n], offset: h.offset, scope: h.scope, refs: 1}
	tail := &HeapChunk{data: h.data[n:], offset: h.offset + n, scope: h.scope, refs: 1}
	return head, tail, nil
}

// CopyOut satisfaz beam.Copier: produz um HeapChunk independente com seu
// próprio array de backing, para quando o receptor precisa de posse
// exclusiva em vez de compartilhar o slice do remetente.
func (h *HeapChunk) CopyOut(_ context.Context) (beam.Chunk, error) {
	dup := make([]byte, len(h.data))
	copy(dup, h.data)
	return &HeapChunk{data: dup, offset: h.offset, scope: h.scope, refs: 1}, nil
}

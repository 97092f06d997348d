// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import "context"

// fakeHeapChunk é um Chunk de dados residente em memória mínimo, usado
// pelos testes do pacote para exercitar Send/Receive sem depender de
// internal/bucketpool (que importa beam, e criaria um ciclo).
type fakeHeapChunk struct {
	data   []byte
	offset int64
	scope  Scope
	refs   int32
}

func newFakeHeap(data []byte, offset int64) *fakeHeapChunk {
	return &fakeHeapChunk{data: data, offset: offset, refs: 1}
}

func (c *fakeHeapChunk) Kind() Kind      { return KindDataHeap }
func (c *fakeHeapChunk) Length() int64   { return int64(len(c.data)) }
func (c *fakeHeapChunk) Offset() int64   { return c.offset }
func (c *fakeHeapChunk) RefCount() int32 { return c.refs }
func (c *fakeHeapChunk) Scope() Scope    { return c.scope }
func (c *fakeHeapChunk) Rehome(s Scope)  { c.scope = s }
func (c *fakeHeapChunk) Bytes() []byte   { return c.data }

func (c *fakeHeapChunk) Split(n int64) (Chunk, Chunk, error) {
	if n <= 0 || n >= int64(len(c.data)) {
		return nil, nil, ErrBadSplit
	}
	head := &fakeHeapChunk{data: c.data[:n], offset: c.offset, scope: c.scope, refs: 1}
	tail := &fakeHeapChunk{data: c.data[n:], offset: c.offset + n, scope: c.scope, refs: 1}
	return head, tail, nil
}

// fakeFileChunk simula um chunk de arquivo compartilhado: borrowable só
// quando RefCount() == 1 e CopyFiles está desligado.
type fakeFileChunk struct {
	length int64
	offset int64
	scope  Scope
	refs   int32
	mmap   bool // quando true, Kind() reporta KindDataMmap em vez de KindDataFile
}

func (c *fakeFileChunk) Kind() Kind {
	if c.mmap {
		return KindDataMmap
	}
	return KindDataFile
}
func (c *fakeFileChunk) Length() int64   { return c.length }
func (c *fakeFileChunk) Offset() int64   { return c.offset }
func (c *fakeFileChunk) RefCount() int32 { return c.refs }
func (c *fakeFileChunk) Scope() Scope    { return c.scope }
func (c *fakeFileChunk) Rehome(s Scope)  { c.scope = s }

func (c *fakeFileChunk) Split(n int64) (Chunk, Chunk, error) {
	if n <= 0 || n >= c.length {
		return nil, nil, ErrBadSplit
	}
	head := &fakeFileChunk{length: n, offset: c.offset, scope: c.scope, refs: c.refs, mmap: c.mmap}
	tail := &fakeFileChunk{length: c.length - n, offset: c.offset + n, scope: c.scope, refs: c.refs, mmap: c.mmap}
	return head, tail, nil
}

func (c *fakeFileChunk) DisableMmap()       {}
func (c *fakeFileChunk) MmapDisabled() bool { return false }

// CopyOut satisfaz Copier, para o caminho de cópia obrigatória.
func (c *fakeFileChunk) CopyOut(_ context.Context) (Chunk, error) {
	return &fakeHeapChunk{data: make([]byte, c.length), offset: c.offset, scope: c.scope, refs: 1}, nil
}

// fakeExternalChunk simula uma fonte externa de posse do remetente (um
// io.Reader, por exemplo): Split e CopyOut "leem" localmente a partir de
// data, nunca expondo bytes brutos ao chamador antes da materialização —
// espelha o par Split/CopyOut de internal/bucketpool.ExternalChunk.
type fakeExternalChunk struct {
	data   []byte
	offset int64
	scope  Scope
	length int64 // -1 para comprimento desconhecido
}

func newFakeExternal(data []byte, offset, length int64) *fakeExternalChunk {
	return &fakeExternalChunk{data: data, offset: offset, length: length}
}

func (c *fakeExternalChunk) Kind() Kind      { return KindDataExternal }
func (c *fakeExternalChunk) Length() int64   { return c.length }
func (c *fakeExternalChunk) Offset() int64   { return c.offset }
func (c *fakeExternalChunk) RefCount() int32 { return 1 }
func (c *fakeExternalChunk) Scope() Scope    { return c.scope }
func (c *fakeExternalChunk) Rehome(s Scope)  { c.scope = s }

func (c *fakeExternalChunk) Split(n int64) (Chunk, Chunk, error) {
	if n <= 0 || n >= int64(len(c.data)) {
		return nil, nil, ErrBadSplit
	}
	head := &fakeHeapChunk{data: c.data[:n], offset: c.offset, scope: c.scope, refs: 1}
	remaining := int64(-1)
	if c.length >= 0 {
		remaining = c.length - n
	}
	tail := &fakeExternalChunk{data: c.data[n:], offset: c.offset + n, scope: c.scope, length: remaining}
	return head, tail, nil
}

// CopyOut satisfaz Copier, materializando o restante de data como heap.
func (c *fakeExternalChunk) CopyOut(_ context.Context) (Chunk, error) {
	return &fakeHeapChunk{data: c.data, offset: c.offset, scope: c.scope, refs: 1}, nil
}

// fakeMeta é o esqueleto comum aos chunks de metadado de teste.
type fakeMeta struct {
	kind   Kind
	offset int64
	scope  Scope
	status int32
	diag   []byte
}

func (m *fakeMeta) Kind() Kind      { return m.kind }
func (m *fakeMeta) Length() int64   { return 0 }
func (m *fakeMeta) Offset() int64   { return m.offset }
func (m *fakeMeta) RefCount() int32 { return 1 }
func (m *fakeMeta) Scope() Scope    { return m.scope }
func (m *fakeMeta) Rehome(s Scope)  { m.scope = s }
func (m *fakeMeta) Split(int64) (Chunk, Chunk, error) {
	return nil, nil, ErrBadSplit
}
func (m *fakeMeta) StatusCode() int32  { return m.status }
func (m *fakeMeta) Diagnostic() []byte { return m.diag }

func newFakeEOS(offset int64) *fakeMeta {
	return &fakeMeta{kind: KindMetaEOS, offset: offset}
}

func newFakeError(statusCode int32, diag []byte, offset int64) *fakeMeta {
	return &fakeMeta{kind: KindMetaError, offset: offset, status: statusCode, diag: diag}
}

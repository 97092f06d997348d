// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import (
	"context"
	"fmt"
	"io"

	"github.com/nishisan-dev/nbeam/beam"
)

// ExternalChunk representa bytes que ainda não foram lidos de uma fonte
// que o beam não entende nativamente — um io.Reader entregue por um
// beamer registrado, por exemplo um descompressor lendo sob demanda.
// Nunca é empréstável: a beam sempre materializa (ou o beamer registrado
// traduz) antes de entregar ao receptor, já que a fonte pode não suportar
// releitura.
type ExternalChunk struct {
	r      io.Reader
	length int64 // -1 se desconhecido até a leitura
	offset int64
	scope  beam.Scope
}

// NewExternal envolve r como um chunk externo de comprimento length
// (-1 se desconhecido), em scope.
func NewExternal(r io.Reader, length, offset int64, scope beam.Scope) *ExternalChunk {
	return &ExternalChunk{r: r, length: length, offset: offset, scope: scope}
}

func (c *ExternalChunk) Kind() beam.Kind   { return beam.KindDataExternal }
func (c *ExternalChunk) Length() int64     { return c.length }
func (c *ExternalChunk) Offset() int64     { return c.offset }
func (c *ExternalChunk) RefCount() int32   { return 1 }
func (c *ExternalChunk) Scope() beam.Scope { return c.scope }

func (c *ExternalChunk) Rehome(s beam.Scope) { c.scope = s }

// Split lê n bytes do reader para formar o head materializado como
// HeapChunk; o tail continua como ExternalChunk sobre o mesmo reader,
// com o comprimento restante ajustado se conhecido.
func (c *ExternalChunk) Split(n int64) (beam.Chunk, beam.Chunk, error) {
	if n <= 0 {
		return nil, nil, beam.ErrBadSplit
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, nil, fmt.Errorf("bucketpool: splitting external chunk: %w", err)
	}
	remaining := int64(-1)
	if c.length >= 0 {
		remaining = c.length - n
	}
	head := NewHeap(buf, c.offset, c.scope)
	tail := &ExternalChunk{r: c.r, length: remaining, offset: c.offset + n, scope: c.scope}
	return head, tail, nil
}

// Materialize satisfaz beam.Materializer, drenando o reader inteiro.
func (c *ExternalChunk) Materialize(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(c.r)
		done <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.data, r.err
	}
}

// CopyOut satisfaz beam.Copier, entregando o conteúdo materializado como
// um HeapChunk independente.
func (c *ExternalChunk) CopyOut(ctx context.Context) (beam.Chunk, error) {
	data, err := c.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	return NewHeap(data, c.offset, c.scope), nil
}

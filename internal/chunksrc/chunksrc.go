// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package chunksrc adapta leitores comprimidos em um produtor de chunks
// que alimenta beam.Beam.Send: lê um bloco de bytes descomprimidos por
// vez, embrulha cada bloco como um bucketpool.HeapChunk e envia um
// EOSChunk ao fim do stream (ou um ErrorChunk se a leitura falhar).
package chunksrc

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/nbeam/beam"
	"github.com/nishisan-dev/nbeam/internal/bucketpool"
)

// CompressionMode espelha os valores de negociação de compressão do
// protocolo: gzip paralelo (pgzip) por padrão, zstd quando negociado.
type CompressionMode byte

const (
	CompressionGzip CompressionMode = 0x00
	CompressionZstd CompressionMode = 0x01
)

// defaultBlockSize é o tamanho de bloco lido do descompressor por chunk
// admitido — grande o bastante para amortizar o overhead de Send, pequeno
// o bastante para não estourar um beam com buffer modesto num só chunk.
const defaultBlockSize = 256 * 1024

// Source lê um stream comprimido e o envia para um beam.Beam como uma
// sequência de chunks de heap seguidos por um EOSChunk.
type Source struct {
	r         io.ReadCloser
	blockSize int
	scope     beam.Scope
	offset    int64
}

// Open abre um Source sobre r, descomprimindo de acordo com mode. O Source
// assume a posse de r: Close fecha tanto o descompressor quanto r.
func Open(r io.ReadCloser, mode CompressionMode, scope beam.Scope) (*Source, error) {
	var dec io.ReadCloser
	switch mode {
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("chunksrc: opening zstd stream: %w", err)
		}
		dec = zstdReadCloser{zr, r}
	case CompressionGzip:
		gr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("chunksrc: opening gzip stream: %w", err)
		}
		dec = gzipReadCloser{gr, r}
	default:
		return nil, fmt.Errorf("chunksrc: unknown compression mode %d", mode)
	}
	return &Source{r: dec, blockSize: defaultBlockSize, scope: scope}, nil
}

type zstdReadCloser struct {
	*zstd.Decoder
	under io.Closer
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.under.Close()
}

type gzipReadCloser struct {
	*pgzip.Reader
	under io.Closer
}

func (g gzipReadCloser) Close() error {
	if err := g.Reader.Close(); err != nil {
		return err
	}
	return g.under.Close()
}

// PumpInto lê blocos descomprimidos e os envia para b até EOF ou erro,
// terminando com um EOSChunk (ou um ErrorChunk, se a leitura falhar). Se
// um Send reportar StatusAborted, retorna nil sem enviar chunk terminal.
// Bloqueia conforme block em cada Send.
func (s *Source) PumpInto(b *beam.Beam, from beam.Endpoint, block bool) error {
	buf := make([]byte, s.blockSize)
	for {
		n, err := s.r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunk := bucketpool.NewHeap(data, s.offset, s.scope)
			s.offset += int64(n)
			if status, sendErr := b.Send(from, []beam.Chunk{chunk}, block); sendErr != nil || status == beam.StatusAborted {
				if sendErr != nil {
					return sendErr
				}
				return nil
			}
		}
		if err == io.EOF {
			_, sendErr := b.Send(from, []beam.Chunk{bucketpool.NewEOS(s.offset, s.scope)}, block)
			return sendErr
		}
		if err != nil {
			errChunk := bucketpool.NewError(1, []byte(err.Error()), s.offset, s.scope)
			_, _ = b.Send(from, []beam.Chunk{errChunk}, block)
			return err
		}
	}
}

// Close libera o descompressor e o reader subjacente.
func (s *Source) Close() error { return s.r.Close() }

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package bucketpool

import "github.com/nishisan-dev/nbeam/beam"

// metaChunk é o esqueleto comum aos três chunks de metadado: nenhum
// carrega payload, nenhum é divisível, e todos são tratados pelo beam como
// imediatamente "released" assim que chegam a hold (ver beam.deliverLocked).
type metaChunk struct {
	kind   beam.Kind
	offset int64
	scope  beam.Scope
}

func (m *metaChunk) Length() int64     { return 0 }
func (m *metaChunk) Offset() int64     { return m.offset }
func (m *metaChunk) RefCount() int32   { return 1 }
func (m *metaChunk) Scope() beam.Scope { return m.scope }
func (m *metaChunk) Rehome(s beam.Scope) {
	m.scope = s
}
func (m *metaChunk) Split(int64) (beam.Chunk, beam.Chunk, error) {
	return nil, nil, beam.ErrBadSplit
}

// EOSChunk marca o fim normal de um stream.
type EOSChunk struct{ metaChunk }

// NewEOS cria o marcador de fim de stream a ser enviado depois do último
// chunk de dados.
func NewEOS(offset int64, scope beam.Scope) *EOSChunk {
	return &EOSChunk{metaChunk{kind: beam.KindMetaEOS, offset: offset, scope: scope}}
}

func (e *EOSChunk) Kind() beam.Kind { return beam.KindMetaEOS }

// FlushChunk pede ao receptor para entregar (flush) tudo que já acumulou
// antes deste ponto, sem encerrar o stream — usado entre entradas de um
// backup multi-arquivo, por exemplo.
type FlushChunk struct{ metaChunk }

// NewFlush cria um marcador de flush.
func NewFlush(offset int64, scope beam.Scope) *FlushChunk {
	return &FlushChunk{metaChunk{kind: beam.KindMetaFlush, offset: offset, scope: scope}}
}

func (f *FlushChunk) Kind() beam.Kind { return beam.KindMetaFlush }

// ErrorChunk carrega um código de status e um diagnóstico opcional,
// encerrando o stream de forma anormal.
type ErrorChunk struct {
	metaChunk
	statusCode int32
	diagnostic []byte
}

// NewError cria um marcador de erro com statusCode e um diagnostic opcional.
func NewError(statusCode int32, diagnostic []byte, offset int64, scope beam.Scope) *ErrorChunk {
	return &ErrorChunk{
		metaChunk:  metaChunk{kind: beam.KindMetaError, offset: offset, scope: scope},
		statusCode: statusCode,
		diagnostic: diagnostic,
	}
}

func (e *ErrorChunk) Kind() beam.Kind    { return beam.KindMetaError }
func (e *ErrorChunk) StatusCode() int32  { return e.statusCode }
func (e *ErrorChunk) Diagnostic() []byte { return e.diagnostic }

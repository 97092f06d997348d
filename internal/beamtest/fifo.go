// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package beamtest reúne auxiliares de teste para exercitar um beam.Beam
// como um par produtor/consumidor real, sem depender de um servidor de rede
// completo.
package beamtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nishisan-dev/nbeam/beam"
)

// FIFOChecker observa uma sequência de chunks recebidos de um único beam e
// retorna um erro (e o registra em Failures) assim que um offset sai de
// ordem. Ao contrário de um
// detector de gaps (que tolera reordenação transitória entre streams
// paralelos), um beam garante ordem FIFO estrita dentro de uma mesma
// instância: qualquer quebra de ordem aqui é um defeito real, não um gap
// transiente.
type FIFOChecker struct {
	mu       sync.Mutex
	next     int64
	hasSeen  bool
	failures []string
}

// NewFIFOChecker cria um checker que espera o primeiro chunk observado em
// qualquer offset (a sequência começa a ser rastreada dali em diante).
func NewFIFOChecker() *FIFOChecker {
	return &FIFOChecker{}
}

// Observe registra um chunk de dados entregue com offset/length. Retorna um
// erro não-nil se o offset observado não continuar imediatamente o anterior.
func (f *FIFOChecker) Observe(offset, length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.hasSeen {
		f.next = offset + length
		f.hasSeen = true
		return nil
	}

	if offset != f.next {
		err := fmt.Errorf("beamtest: fifo violation: expected offset %d, got %d", f.next, offset)
		f.failures = append(f.failures, err.Error())
		return err
	}

	f.next += length
	return nil
}

// ObserveChunk é uma conveniência sobre Observe para um beam.Chunk de dados.
func (f *FIFOChecker) ObserveChunk(c beam.Chunk) error {
	return f.Observe(c.Offset(), c.Length())
}

// Failures retorna todas as violações de ordem acumuladas até agora.
func (f *FIFOChecker) Failures() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failures...)
}

// DrainAll consome b inteiramente a partir de caller, alimentando cada
// chunk de dados recebido a checker e liberando proxies imediatamente.
// Retorna o total de bytes de dados observados e o primeiro erro
// encontrado (de checker ou do próprio beam), se houver.
func DrainAll(b *beam.Beam, caller beam.Endpoint, checker *FIFOChecker) (int64, error) {
	ctx := context.Background()
	var total int64
	for {
		received, status, err := b.Receive(ctx, caller, true, 0)
		if err != nil {
			return total, err
		}
		for _, r := range received {
			if r.Chunk.Kind().IsMetadata() {
				if r.Proxy != nil {
					r.Proxy.Release()
				}
				continue
			}
			if checker != nil {
				if cerr := checker.ObserveChunk(r.Chunk); cerr != nil {
					return total, cerr
				}
			}
			total += r.Chunk.Length()
			if r.Proxy != nil {
				r.Proxy.Release()
			}
		}
		if status == beam.StatusEndOfFile {
			return total, nil
		}
		if status == beam.StatusAborted {
			return total, beam.ErrBeamClosed
		}
	}
}

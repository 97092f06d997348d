// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package pacer limita a taxa na qual um produtor admite chunks em um
// beam.Beam, para que um worker rápido não sobrecarregue um receptor lento
// além do que o operador configurou — independente do tamanho de buffer do
// beam em si.
package pacer

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/nbeam/beam"
)

// maxBurstSize é o burst máximo do limiter (256KB), alinhado ao mesmo
// valor usado no throttle de escrita do pipeline de agente.
const maxBurstSize = 256 * 1024

// Pacer envolve beam.Beam.Send com rate limiting baseado em token bucket
// sobre o comprimento (Length) dos chunks admitidos.
type Pacer struct {
	b       *beam.Beam
	from    beam.Endpoint
	limiter *rate.Limiter
	ctx     context.Context
}

// New cria um Pacer que limita os envios de from em b a bytesPerSec
// bytes/segundo. Se bytesPerSec <= 0, o pacer não limita — Send delega
// direto a b.Send.
func New(ctx context.Context, b *beam.Beam, from beam.Endpoint, bytesPerSec int64) *Pacer {
	if bytesPerSec <= 0 {
		return &Pacer{b: b, from: from, ctx: ctx}
	}
	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return &Pacer{
		b:       b,
		from:    from,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Send admite chunks em ordem, pausando antes de cada um para respeitar a
// taxa configurada. Chunks de comprimento desconhecido (fontes externas
// ainda não lidas) passam sem pacing — não há como medi-los antes do
// envio.
func (p *Pacer) Send(chunks []beam.Chunk, block bool) (beam.Status, error) {
	if p.limiter == nil {
		return p.b.Send(p.from, chunks, block)
	}

	for _, c := range chunks {
		n := int(c.Length())
		for n > 0 {
			step := n
			if step > p.limiter.Burst() {
				step = p.limiter.Burst()
			}
			if err := p.limiter.WaitN(p.ctx, step); err != nil {
				return beam.StatusAborted, err
			}
			n -= step
		}
	}
	return p.b.Send(p.from, chunks, block)
}

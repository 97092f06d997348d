// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Proxy é um handle do lado do receptor que empresta um chunk do lado do
// remetente. Exatamente um proxy é criado por chunk admitido que o beam
// decide emprestar em vez de copiar ou entregar diretamente (ver
// borrowable). Derrubar a última referência de um proxy libera o chunk
// subjacente de volta em direção ao remetente, que é a única goroutine
// autorizada a destruí-lo.
type Proxy struct {
	refcount int32 // atômico

	// pmu protege beam/entry/elem abaixo. É sempre o primeiro lock que um
	// método de proxy adquire, para que um beam em neutralização
	// concorrente e um proxy em destruição concorrente nunca entrem em
	// deadlock um com o outro.
	pmu   sync.Mutex
	beam  *Beam // nil assim que o beam foi desmontado
	entry *holdEntry
	elem  *list.Element // elemento deste proxy em beam.proxys

	seq uint64
}

// newProxy cria um proxy sobre entry com o próximo número de sequência e
// uma referência. Deve ser chamado com b.mu retido.
func (b *Beam) newProxy(entry *holdEntry) *Proxy {
	p := &Proxy{
		refcount: 1,
		beam:     b,
		entry:    entry,
		seq:      b.nextProxySeq,
	}
	b.nextProxySeq++
	p.elem = b.proxys.PushBack(p)
	entry.proxy = p
	return p
}

// Seq retorna o número de sequência monotonicamente crescente do proxy,
// atribuído no momento da criação.
func (p *Proxy) Seq() uint64 { return p.seq }

// Retain adiciona uma referência e retorna p, para chamadores que passam o
// proxy para múltiplos donos.
func (p *Proxy) Retain() *Proxy {
	atomic.AddInt32(&p.refcount, 1)
	return p
}

// Release derruba uma referência. Quando a última referência cai, o chunk
// subjacente é liberado de volta em direção ao remetente (movido de hold
// para purge, sujeito à regra de barreira de metadado em releaseProxy).
func (p *Proxy) Release() {
	if atomic.AddInt32(&p.refcount, -1) > 0 {
		return
	}
	p.pmu.Lock()
	b := p.beam
	entry := p.entry
	p.beam = nil
	p.entry = nil
	p.pmu.Unlock()

	if b == nil {
		// Já neutralizado pela desmontagem do beam: nada a liberar.
		return
	}
	b.releaseProxy(p, entry)
}

// Chunk retorna o chunk emprestado, ou (nil, StatusReset) se o beam já
// desmontou ou o chunk subjacente já foi liberado para purge.
func (p *Proxy) Chunk() (Chunk, Status) {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if p.beam == nil || p.entry == nil {
		return nil, StatusReset
	}
	return p.entry.chunk, StatusOK
}

// releaseProxy implementa o ciclo de vida de destruição de proxy do §4.5:
// remove o proxy do registro, marca sua entrada como released, e então
// varre hold a partir da frente enquanto alcançar metadado e entradas já
// released, movendo cada uma para purge.
//
// Uma cascata é usada em vez de uma varredura limitada a esta entrada:
// drena completamente qualquer sequência de proxies liberados fora de
// ordem assim que o chunk bloqueador à frente deles finalmente libera, em
// vez de deixá-los estacionados para sempre sem nenhum gatilho futuro.
// Este foi o único ponto em que o comportamento deste pacote ficava
// subespecificado pelos cenários contra os quais foi construído — ver
// DESIGN.md para a leitura escolhida.
func (b *Beam) releaseProxy(p *Proxy, entry *holdEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p.pmu.Lock()
	elem := p.elem
	p.elem = nil
	p.pmu.Unlock()
	if elem != nil {
		b.proxys.Remove(elem)
	}
	if entry == nil {
		// Defensivo: o invariante é "o entry de um proxy vivo está sempre
		// em hold até ser liberado". Se isso foi violado, loga e não faz
		// nada em vez de corromper as filas.
		b.logger.Warn("beam: proxy released with no hold entry", "id", b.id, "tag", b.tag)
		return
	}
	entry.released = true
	b.sweepHold()
	b.cond.Broadcast()
}

// sweepHold move a sequência contígua de entradas released/metadado na
// frente de hold para purge. Deve ser chamado com b.mu retido.
func (b *Beam) sweepHold() {
	for {
		front := b.hold.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*holdEntry)
		if !entry.isMeta && !entry.released {
			return
		}
		b.hold.Remove(front)
		b.purge.PushBack(entry.chunk)
	}
}

// neutralizeProxies limpa beam/entry em todo proxy pendente, para que
// leituras subsequentes reportem connection-reset e releases subsequentes
// virem no-op. Deve ser chamado com b.mu retido.
func (b *Beam) neutralizeProxies() {
	for e := b.proxys.Front(); e != nil; e = e.Next() {
		p := e.Value.(*Proxy)
		p.pmu.Lock()
		p.beam = nil
		p.entry = nil
		p.elem = nil
		p.pmu.Unlock()
	}
	b.proxys.Init()
}

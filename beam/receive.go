// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"context"
	"time"
)

// synthesizedEOS é o marcador de fim de stream que o próprio beam injeta
// quando Close é observado sem que o remetente jamais tenha admitido um
// eos explícito (§4.4 passo 5, §9 "nenhum eos implícito em close vazio" —
// implícito aqui significa "sintetizado no momento certo", não "nunca
// entregue"). Não carrega escopo próprio porque nunca é re-homed nem
// dividido.
type synthesizedEOS struct{}

func (synthesizedEOS) Kind() Kind      { return KindMetaEOS }
func (synthesizedEOS) Length() int64   { return 0 }
func (synthesizedEOS) Offset() int64   { return 0 }
func (synthesizedEOS) RefCount() int32 { return 1 }
func (synthesizedEOS) Scope() Scope    { return nil }
func (synthesizedEOS) Rehome(Scope)    {}
func (synthesizedEOS) Split(int64) (Chunk, Chunk, error) {
	return nil, nil, ErrBadSplit
}

// Received empareja um chunk entregue ao receptor com o proxy que
// eventualmente precisa ser liberado para libertá-lo, se houver. Proxy é
// nil para chunks de metadado e para chunks que o beam decidiu copiar
// diretamente — não há nada a liberar porque nada upstream está esperando
// por ele.
type Received struct {
	Chunk Chunk
	Proxy *Proxy
}

// Receive transfere chunks do beam para o endpoint receptor (§4.4). Os
// chunks são traduzidos na saída: chunks de dados empréstáveis viram um
// Proxy sobre uma entrada em hold, para que o remetente saiba quando o
// receptor terminou com eles; todo o resto (um arquivo compartilhado, um
// mmap forçado a cópia, uma fonte externa, ou metadado) é copiado ou
// entregue diretamente sem proxy.
//
// maxBytes limita quantos bytes de dados esta chamada entrega; 0 significa
// sem limite. Quando o limite cai no meio de um chunk, ele é dividido e o
// restante fica guardado para a próxima chamada. block seleciona se a
// chamada espera por mais dados quando nada está disponível
// imediatamente; StatusTimeout é retornado se cfg.Timeout vencer primeiro.
// Uma vez que pelo menos um chunk foi entregue, esta chamada nunca
// bloqueia mais — ela retorna o que já tem.
//
// Só o endpoint receptor pode chamar Receive; o primeiro chamador fixa a
// identidade de receptor do beam para o resto de sua vida.
func (b *Beam) Receive(ctx context.Context, caller Endpoint, block bool, maxBytes int64) ([]Received, Status, error) {
	if err := b.bindReceiver(caller); err != nil {
		return nil, StatusAborted, err
	}

	unlimited := maxBytes <= 0
	var out []Received
	var delivered int64

	for {
		b.mu.Lock()

		if b.aborted {
			b.mu.Unlock()
			if len(out) > 0 {
				return out, StatusOK, nil
			}
			return out, StatusAborted, nil
		}

		if len(b.recv) > 0 {
			c := b.recv[0]
			b.recv = b.recv[1:]
			rcvs, n, err := b.deliverLocked(ctx, c, maxBytes-delivered, unlimited)
			b.mu.Unlock()
			if err != nil {
				return out, StatusOK, err
			}
			out = append(out, rcvs...)
			delivered += n
			if !unlimited && delivered >= maxBytes {
				return out, StatusOK, nil
			}
			continue
		}

		if b.send.Len() > 0 {
			front := b.send.Front()
			se := front.Value.(*sendEntry)
			b.send.Remove(front)
			rcvs, n, err := b.deliverLocked(ctx, se.chunk, maxBytes-delivered, unlimited)
			b.cond.Broadcast()
			b.mu.Unlock()
			if err != nil {
				return out, StatusOK, err
			}
			out = append(out, rcvs...)
			delivered += n
			b.fireConsEvent()
			if !unlimited && delivered >= maxBytes {
				return out, StatusOK, nil
			}
			continue
		}

		if b.closed {
			if !b.closeSent {
				// O remetente fechou sem nunca admitir um eos explícito:
				// sintetiza um agora que o beam está vazio (§4.4 passo 5).
				b.closeSent = true
				b.mu.Unlock()
				out = append(out, Received{Chunk: synthesizedEOS{}})
				return out, StatusOK, nil
			}
			b.mu.Unlock()
			if len(out) > 0 {
				return out, StatusOK, nil
			}
			return out, StatusEndOfFile, nil
		}

		if len(out) > 0 {
			b.mu.Unlock()
			return out, StatusOK, nil
		}

		if !block {
			b.mu.Unlock()
			return out, StatusWouldBlock, nil
		}

		if !b.waitForDataLocked() {
			b.mu.Unlock()
			return out, StatusTimeout, nil
		}
		b.mu.Unlock()
	}
}

// bindReceiver fixa caller como o endpoint receptor do beam no primeiro
// uso e o valida em toda chamada subsequente.
func (b *Beam) bindReceiver(caller Endpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.to == nil {
		b.to = caller
		return nil
	}
	if caller != b.to {
		return ErrWrongEndpoint
	}
	return nil
}

// deliverLocked traduz um chunk de posse do remetente em um ou mais
// valores Received. budget é quantos bytes de dados esta chamada de
// Receive ainda pode aceitar; quando c é maior e divisível, o restante é
// devolvido a recv para a próxima chamada. Deve ser chamado com b.mu
// retido; o lock é solto apenas enquanto o registro de beamers é consultado.
func (b *Beam) deliverLocked(ctx context.Context, c Chunk, budget int64, unlimited bool) ([]Received, int64, error) {
	if c.Kind().IsMetadata() {
		if c.Kind() == KindMetaEOS {
			b.closeSent = true
		}
		entry := &holdEntry{chunk: c, isMeta: true, released: true}
		b.hold.PushBack(entry)
		b.sweepHold()
		return []Received{{Chunk: c}}, 0, nil
	}

	length := c.Length()
	// O ponto de corte usa deliverCost, não length bruto: com tx_mem_limits
	// ligado, um chunk de arquivo/mmap conta custo zero e nunca é dividido
	// pelo orçamento de leitura (§4.4 passo 4), mesmo que seu Length() bruto
	// exceda budget.
	if !unlimited && budget > 0 && deliverCost(c, b.cfg.TxMemLimits) > budget {
		head, tail, err := c.Split(budget)
		if err == nil {
			b.recv = append([]Chunk{tail}, b.recv...)
			c = head
			length = head.Length()
		}
	}

	if borrowable(c, b.cfg.CopyFiles) {
		entry := &holdEntry{chunk: c}
		b.hold.PushBack(entry)
		p := b.newProxy(entry)
		b.receivedBytes += positive(length)
		return []Received{{Chunk: c, Proxy: p}}, positive(length), nil
	}

	if cp, ok := c.(Copier); ok {
		copied, err := cp.CopyOut(ctx)
		if err != nil {
			return nil, 0, err
		}
		b.purge.PushBack(c)
		b.receivedBytes += positive(length)
		return []Received{{Chunk: copied}}, positive(length), nil
	}

	// Tipo que nem a beam nem o chamador original sabem tratar: dá uma
	// chance ao registro de beamers antes de desistir.
	dest := b.scope
	b.mu.Unlock()
	translated, err := runBeamers(ctx, b, dest, c)
	b.mu.Lock()
	if err != nil {
		return nil, 0, err
	}
	if len(translated) > 0 {
		b.purge.PushBack(c)
		b.receivedBytes += positive(length)
		out := make([]Received, len(translated))
		for i, tc := range translated {
			out[i] = Received{Chunk: tc}
		}
		return out, positive(length), nil
	}
	return nil, 0, ErrNotMaterializable
}

func positive(n int64) int64 {
	if n > 0 {
		return n
	}
	return 0
}

// waitForDataLocked bloqueia até send ter algo, o beam ser fechado ou
// abortado, ou cfg.Timeout vencer. Deve ser chamado com b.mu retido;
// liberado e readquirido internamente enquanto espera.
func (b *Beam) waitForDataLocked() bool {
	if b.cfg.Timeout <= 0 {
		for b.send.Len() == 0 && !b.closed && !b.aborted {
			b.cond.Wait()
		}
		return true
	}
	deadline := time.Now().Add(b.cfg.Timeout)
	for b.send.Len() == 0 && !b.closed && !b.aborted {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		waitWithTimeout(b.cond, remaining)
	}
	return true
}

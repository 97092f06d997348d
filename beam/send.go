// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"container/list"
	"context"
	"math"
	"time"
)

// Send admite chunks no beam em ordem, aplicando backpressure contra o
// tamanho de buffer configurado (§4.3). Só o endpoint remetente pode
// chamar isso.
//
// Chunks de metadado são sempre admitidos independente de espaço (não
// custam nada contra o buffer). Chunks de dados de comprimento zero são
// silenciosamente descartados. Um chunk de dados que não cabe inteiro é
// dividido contra o espaço que resta, com o restante reenfileirado para a
// próxima iteração; um chunk que não pode ser dividido fica retido até
// que espaço suficiente seja liberado.
//
// block seleciona o comportamento quando o buffer está cheio e nada mais
// cabe: false retorna StatusWouldBlock imediatamente (o que já foi
// admitido nesta chamada permanece admitido); true espera, respeitando
// cfg.Timeout se definido, retornando StatusTimeout no vencimento.
func (b *Beam) Send(caller Endpoint, chunks []Chunk, block bool) (Status, error) {
	if caller != b.from {
		return StatusAborted, ErrWrongEndpoint
	}

	b.mu.Lock()
	b.drainPurgeLocked()

	if b.aborted {
		b.moveToHoldLocked(chunks)
		b.mu.Unlock()
		return StatusAborted, nil
	}
	if b.closed {
		// Envio tardio depois de Close: absorvido silenciosamente (§4.2
		// passo 3). Os chunks nunca chegam ao receptor, mas ainda
		// precisam de um lar para serem destruídos na limpeza do
		// remetente — não há nada upstream que vá liberá-los de outra
		// forma.
		b.moveToHoldLocked(chunks)
		b.mu.Unlock()
		return StatusOK, nil
	}

	pending := list.New()
	for _, c := range chunks {
		pending.PushBack(c)
	}

	wasEmptyBefore := b.emptyLocked()
	admittedAny := false

	for pending.Len() > 0 {
		front := pending.Front()
		c := front.Value.(Chunk)

		if c.Kind().IsMetadata() {
			pending.Remove(front)
			b.admitLocked(c)
			admittedAny = true
			continue
		}

		if c.Kind() == KindDataExternal && c.Length() < 0 {
			// Comprimento desconhecido: não há como dividir contra
			// space_left sem saber o tamanho, então força a leitura
			// completa agora, na goroutine do remetente (§4.3). O
			// resultado volta à fila e segue pela classificação normal de
			// um chunk de heap.
			pending.Remove(front)
			materialized, err := b.materializeExternalLocked(c)
			if err != nil {
				b.mu.Unlock()
				if admittedAny {
					b.afterAdmit(wasEmptyBefore)
				}
				return StatusOK, err
			}
			pending.PushFront(materialized)
			continue
		}

		if c.Length() == 0 {
			pending.Remove(front)
			continue
		}

		cost := memCost(c)
		spaceLeft := b.spaceLeftLocked()
		if cost <= 0 || cost <= spaceLeft {
			pending.Remove(front)
			if c.Kind() == KindDataExternal {
				// Cabe inteiro: lê e converte para heap agora, na
				// goroutine do remetente, em vez de admitir a fonte
				// externa crua (§4.3) — o beam nunca deixa o receptor
				// tocar o io.Reader de posse do remetente (§1(a), §3).
				materialized, err := b.materializeExternalLocked(c)
				if err != nil {
					b.mu.Unlock()
					if admittedAny {
						b.afterAdmit(wasEmptyBefore)
					}
					return StatusOK, err
				}
				c = materialized
			}
			b.admitLocked(c)
			admittedAny = true
			continue
		}

		if spaceLeft > 0 {
			head, tail, err := c.Split(spaceLeft)
			if err == nil {
				pending.Remove(front)
				b.admitLocked(head)
				admittedAny = true
				pending.PushFront(tail)
				continue
			}
		}

		if !block {
			b.mu.Unlock()
			if admittedAny {
				b.afterAdmit(wasEmptyBefore)
			}
			return StatusWouldBlock, nil
		}

		b.mu.Unlock()
		b.fireSendBlocked()
		b.mu.Lock()
		// Redrena purge e reavalia estado terminal: o tempo passou entre o
		// unlock e o relock, e o receptor ou um escopo dono pode ter
		// desmontado o beam enquanto chamávamos o callback.
		b.drainPurgeLocked()
		if b.aborted {
			b.mu.Unlock()
			if admittedAny {
				b.afterAdmit(wasEmptyBefore)
			}
			return StatusAborted, nil
		}
		if !b.waitForSpaceLocked(cost) {
			timedOut := !b.aborted && !b.closed
			b.mu.Unlock()
			if admittedAny {
				b.afterAdmit(wasEmptyBefore)
			}
			if timedOut {
				return StatusTimeout, nil
			}
			return StatusAborted, nil
		}
	}

	b.mu.Unlock()
	if admittedAny {
		b.afterAdmit(wasEmptyBefore)
	}
	return StatusOK, nil
}

// moveToHoldLocked estaciona chunks recém-chegados direto em hold, já
// marcados como released (nenhum proxy jamais vai apontar para eles, já
// que nunca chegam a ser entregues ao receptor). Usado pelos ramos de
// envio tardio depois de abort/close (§4.2 passos 2-3): o chunk nunca
// viaja por send, mas ainda precisa ser varrido para purge e destruído na
// limpeza do remetente, em vez de simplesmente desaparecer. Deve ser
// chamado com b.mu retido.
func (b *Beam) moveToHoldLocked(chunks []Chunk) {
	for _, c := range chunks {
		b.hold.PushBack(&holdEntry{chunk: c, isMeta: c.Kind().IsMetadata(), released: true})
	}
	if len(chunks) > 0 {
		b.sweepHold()
	}
}

// materializeExternalLocked converte um chunk data/external em um chunk de
// heap materializado, lendo seus bytes na própria goroutine do remetente
// (§1(a), §3, §4.3): o beam nunca deixa bytes de uma fonte externa serem
// lidos pela goroutine do receptor. Espelha o mesmo padrão que
// deliverLocked usa no lado receptor para seu fallback Copier. Deve ser
// chamado com b.mu retido.
func (b *Beam) materializeExternalLocked(c Chunk) (Chunk, error) {
	cp, ok := c.(Copier)
	if !ok {
		return nil, ErrNotMaterializable
	}
	return cp.CopyOut(context.Background())
}

// admitLocked empurra c para send, classificando se é elegível a
// empréstimo via proxy e atualizando os contadores de bytes/buffer. Deve
// ser chamado com b.mu retido.
func (b *Beam) admitLocked(c Chunk) {
	entry := &sendEntry{
		chunk:      c,
		borrowable: !c.Kind().IsMetadata() && borrowable(c, b.cfg.CopyFiles),
	}
	b.send.PushBack(entry)
	if c.Kind().IsData() {
		if l := c.Length(); l > 0 {
			b.sentBytes += l
		}
	}
	b.buffersSent++
	b.cond.Broadcast()
}

// afterAdmit dispara a notificação was-empty se o beam transicionou de
// vazio para não-vazio durante a chamada que acabou de terminar. Deve ser
// chamado sem b.mu retido.
func (b *Beam) afterAdmit(wasEmptyBefore bool) {
	if wasEmptyBefore {
		b.fireWasEmpty()
	}
}

// spaceLeftLocked retorna quantos bytes de custo de memória ainda cabem
// antes do buffer ficar cheio. Deve ser chamado com b.mu retido.
func (b *Beam) spaceLeftLocked() int64 {
	if b.cfg.MaxBufSize == unbounded {
		return math.MaxInt64
	}
	return b.cfg.MaxBufSize - b.memUsedLocked()
}

// waitForSpaceLocked bloqueia até spaceLeftLocked() >= needed, o beam ser
// abortado ou fechado, ou cfg.Timeout vencer. Retorna false em timeout ou
// estado terminal, true quando espaço fica disponível. Deve ser chamado
// com b.mu retido; é liberado e readquirido internamente enquanto espera.
func (b *Beam) waitForSpaceLocked(needed int64) bool {
	if b.cfg.Timeout <= 0 {
		for b.spaceLeftLocked() < needed {
			if b.aborted || b.closed {
				return false
			}
			b.cond.Wait()
		}
		return true
	}
	deadline := time.Now().Add(b.cfg.Timeout)
	for b.spaceLeftLocked() < needed {
		if b.aborted || b.closed {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		waitWithTimeout(b.cond, remaining)
	}
	return true
}

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"context"
	"sync"
)

// SetConsIOCallback registra o hook de reporte de consumo do remetente:
// invocado com o número de bytes que o receptor consumiu desde o último
// reporte (ver ReportConsumption). Sempre invocado sem o mutex do beam.
func (b *Beam) SetConsIOCallback(fn func(beam *Beam, len int64)) {
	b.cb.mu.Lock()
	defer b.cb.mu.Unlock()
	b.cb.consIO = fn
}

// SetConsEventCallback registra o hook invocado pelo caminho de receive
// sempre que novos buckets acabaram de ser entregues ao receptor.
func (b *Beam) SetConsEventCallback(fn func(beam *Beam)) {
	b.cb.mu.Lock()
	defer b.cb.mu.Unlock()
	b.cb.consEvent = fn
}

// SetWasEmptyCallback registra o hook invocado quando o beam transiciona
// de vazio para não-vazio, para que um produtor pausado possa se
// reagendar.
func (b *Beam) SetWasEmptyCallback(fn func(beam *Beam)) {
	b.cb.mu.Lock()
	defer b.cb.mu.Unlock()
	b.cb.wasEmpty = fn
}

// SetSendBlockedCallback registra o hook invocado pouco antes do remetente
// bloquear esperando espaço no buffer.
func (b *Beam) SetSendBlockedCallback(fn func(beam *Beam)) {
	b.cb.mu.Lock()
	defer b.cb.mu.Unlock()
	b.cb.sendBlocked = fn
}

func (b *Beam) fireConsIO(length int64) {
	b.cb.mu.Lock()
	fn := b.cb.consIO
	b.cb.mu.Unlock()
	if fn != nil {
		fn(b, length)
	}
}

func (b *Beam) fireConsEvent() {
	b.cb.mu.Lock()
	fn := b.cb.consEvent
	b.cb.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

func (b *Beam) fireWasEmpty() {
	b.cb.mu.Lock()
	fn := b.cb.wasEmpty
	b.cb.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

func (b *Beam) fireSendBlocked() {
	b.cb.mu.Lock()
	fn := b.cb.sendBlocked
	b.cb.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

// clearConsCallbacks derruba os hooks de consumo. Chamado em abort do
// remetente: não há mais produtor vivo para notificar.
func (b *Beam) clearConsCallbacks() {
	b.cb.mu.Lock()
	b.cb.consIO = nil
	b.cb.consEvent = nil
	b.cb.mu.Unlock()
}

// disableCleanupCallbacks derruba todos os hooks. Chamado antes da limpeza
// do remetente disparada por desmontagem de escopo, para que destruir o
// escopo nunca reentre em código do usuário através de um callback do
// beam.
func (b *Beam) disableCleanupCallbacks() {
	b.cb.mu.Lock()
	b.cb.consIO = nil
	b.cb.consEvent = nil
	b.cb.wasEmpty = nil
	b.cb.sendBlocked = nil
	b.cb.mu.Unlock()
}

// Beamer traduz um chunk que o beam não consegue classificar nativamente
// em zero ou mais chunks de posse do receptor. Implementações não devem
// bloquear o chamador com o lock do beam retido — elas rodam com o mutex
// do beam já liberado.
type Beamer func(ctx context.Context, b *Beam, dest Scope, sender Chunk) ([]Chunk, error)

var (
	beamerMu       sync.Mutex
	beamerRegistry []Beamer
)

// RegisterBeamer adiciona uma função tradutora ao registro global de
// beamers consultado por Receive para chunks que não consegue traduzir
// nativamente. Este é o ponto de extensão do pacote; não existe uma
// tabela por-beam, apenas este hook.
func RegisterBeamer(fn Beamer) {
	beamerMu.Lock()
	defer beamerMu.Unlock()
	beamerRegistry = append(beamerRegistry, fn)
}

func runBeamers(ctx context.Context, b *Beam, dest Scope, sender Chunk) ([]Chunk, error) {
	beamerMu.Lock()
	registry := make([]Beamer, len(beamerRegistry))
	copy(registry, beamerRegistry)
	beamerMu.Unlock()

	for _, fn := range registry {
		chunks, err := fn(ctx, b, dest, sender)
		if err != nil {
			return nil, err
		}
		if chunks != nil {
			return chunks, nil
		}
	}
	return nil, nil
}

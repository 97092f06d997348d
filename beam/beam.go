// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package beam implementa um conduto de fluxo de bytes entre goroutines:
// uma fila de buffer limitado, single-producer/single-consumer, de chunks
// de dados e metadado com backpressure, empréstimo de memória do remetente
// via proxy, e semântica cooperativa de close/abort.
//
// Um Beam é criado por um endpoint remetente e consumido por exatamente um
// endpoint receptor. Send, Destroy e Receive validam a identidade do
// chamador contra o papel exigido; Close e Abort usam a identidade só para
// escolher entre a semântica do remetente e a do receptor, e os setters de
// configuração não recebem identidade alguma. O beam nunca invoca um
// callback registrado com seu mutex interno retido — quem registrou pode
// reentrar na API pública do beam a partir do callback com segurança.
package beam

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// unbounded é o valor sentinela de max_buf_size que significa "nunca
// aplicar backpressure".
const unbounded int64 = 0

// holdEntry envolve um chunk estacionado na fila hold. Entradas de
// metadado já nascem "released" (nada nunca as empresta); entradas de
// dados são liberadas quando seu proxy é destruído.
type holdEntry struct {
	chunk    Chunk
	isMeta   bool
	released bool
	proxy    *Proxy
}

// sendEntry envolve um chunk na fila send, lembrando se a admissão o
// re-homed como referência empréstável (heap, ou arquivo/mmap elegível a
// proxy) ou se ficou como chunk de cópia obrigatória, destinado a entrega
// direta no momento do receive.
type sendEntry struct {
	chunk      Chunk
	borrowable bool
}

// Callbacks agrupa os registros de hook opcionais do beam. Todo hook é
// invocado estritamente depois que o mutex do beam foi liberado.
type Callbacks struct {
	mu          sync.Mutex
	consIO      func(beam *Beam, len int64)
	consEvent   func(beam *Beam)
	wasEmpty    func(beam *Beam)
	sendBlocked func(beam *Beam)
}

// Config contém os parâmetros com os quais um beam é criado ou
// reconfigurado. Ver internal/config para o wrapper carregável via YAML
// usado por cmd/nbeam-bench.
type Config struct {
	MaxBufSize  int64
	Timeout     time.Duration
	CopyFiles   bool
	TxMemLimits bool // modo de contabilidade do passo de overflow-trim
}

// Beam é o conduto entre goroutines descrito no doc do pacote. O valor
// zero não é utilizável; construa com NewBeam.
type Beam struct {
	id  string
	tag string

	from Endpoint // identidade do endpoint remetente
	to   Endpoint // identidade do endpoint receptor (opaca, só comparada para abort/close)

	scope Scope

	mu   sync.Mutex
	cond *sync.Cond

	cfg Config

	send   *list.List // de *sendEntry
	hold   *list.List // de *holdEntry
	purge  *list.List // de Chunk, destruível pela goroutine do remetente
	recv   []Chunk    // overflow exclusivo do receptor, tocado só pela sua goroutine
	proxys *list.List // de *Proxy, proxies vivos pendentes

	nextProxySeq uint64

	sentBytes         int64
	receivedBytes     int64
	consBytesReported int64
	buffersSent       uint64

	closed    bool
	aborted   bool
	closeSent bool

	cb Callbacks

	unregisterCleanup func()

	logger *slog.Logger
}

// Endpoint é uma identidade opaca que distingue o remetente do receptor de
// um beam. Qualquer valor comparável serve (um ponteiro, uma string, um
// iota); o beam só o compara com ==.
type Endpoint interface{}

// LifecycleScope é o escopo dono do remetente. O beam registra nele um
// hook de pré-limpeza, de modo que quando o escopo for desmontado a
// limpeza do remetente rode automaticamente mesmo que ele nunca chame
// Destroy explicitamente.
type LifecycleScope interface {
	// RegisterPreCleanup registra fn para rodar quando o escopo for
	// desmontado, e retorna uma função que cancela o registro.
	RegisterPreCleanup(fn func()) (unregister func())
}

// NewBeam cria um beam com o endpoint remetente from, identificado por
// (id, tag) para logging, limitado a maxBufSize bytes (0 = ilimitado) com
// o timeout padrão informado para chamadas bloqueantes. Registra um hook
// de pré-limpeza em scope para que a limpeza do remetente rode
// automaticamente na desmontagem do escopo, mesmo que ele nunca chame
// Destroy.
func NewBeam(from Endpoint, scope LifecycleScope, id, tag string, maxBufSize int64, timeout time.Duration, logger *slog.Logger) *Beam {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	b := &Beam{
		id:     id,
		tag:    tag,
		from:   from,
		send:   list.New(),
		hold:   list.New(),
		purge:  list.New(),
		proxys: list.New(),
		cfg: Config{
			MaxBufSize: maxBufSize,
			Timeout:    timeout,
		},
		logger: logger,
	}
	b.cond = sync.NewCond(&b.mu)
	if scope != nil {
		b.unregisterCleanup = scope.RegisterPreCleanup(func() {
			b.disableCleanupCallbacks()
			b.senderCleanup()
		})
		if s, ok := scope.(Scope); ok {
			b.scope = s
		}
	}
	return b
}

// ID retorna o identificador do beam, para logging.
func (b *Beam) ID() string { return b.id }

// Tag retorna a tag do beam, para logging.
func (b *Beam) Tag() string { return b.tag }

// SetBufferSize reconfigura o limiar de backpressure do lado remetente. 0
// significa ilimitado. Protegido por lock, idempotente, chamável a
// qualquer momento.
func (b *Beam) SetBufferSize(n int64) {
	b.mu.Lock()
	b.cfg.MaxBufSize = n
	b.cond.Broadcast()
	b.mu.Unlock()
}

// SetTimeout reconfigura a duração padrão de espera com prazo.
func (b *Beam) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.cfg.Timeout = d
	b.mu.Unlock()
}

// SetCopyFiles alterna se chunks de arquivo/mmap são sempre copiados em
// vez de emprestados via proxy.
func (b *Beam) SetCopyFiles(v bool) {
	b.mu.Lock()
	b.cfg.CopyFiles = v
	b.mu.Unlock()
}

// SetTxMemLimits alterna o modo de contabilidade usado pelo passo de
// overflow-trim: true conta bucket_mem_used (arquivo/mmap custam 0), false
// conta o Length bruto.
func (b *Beam) SetTxMemLimits(v bool) {
	b.mu.Lock()
	b.cfg.TxMemLimits = v
	b.mu.Unlock()
}

// discardWriter é um io.Writer usado para montar um logger padrão no-op
// quando o chamador não fornece um.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

// Stats é um snapshot protegido por lock dos contadores e flags de
// contabilidade de um beam, agregando os acessores individuais abaixo.
type Stats struct {
	SentBytes         int64
	ReceivedBytes     int64
	ConsBytesReported int64
	BuffersSent       uint64
	BufferedLen       int64
	MemUsed           int64
	Empty             bool
	Closed            bool
	Aborted           bool
}

// Stats retorna um snapshot dos contadores e flags do beam.
func (b *Beam) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		SentBytes:         b.sentBytes,
		ReceivedBytes:     b.receivedBytes,
		ConsBytesReported: b.consBytesReported,
		BuffersSent:       b.buffersSent,
		BufferedLen:       b.bufferedLocked(),
		MemUsed:           b.memUsedLocked(),
		Empty:             b.emptyLocked(),
		Closed:            b.closed,
		Aborted:           b.aborted,
	}
}

// BufferedDataLen retorna a soma de Length() sobre os chunks de
// comprimento determinado atualmente enfileirados em send.
func (b *Beam) BufferedDataLen() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferedLocked()
}

// MemUsed retorna a soma de bucket_mem_used sobre send: chunks de
// arquivo/mmap contribuem 0, todo o resto contribui seu comprimento.
func (b *Beam) MemUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memUsedLocked()
}

// Empty reporta se não há chunks em send nem no overflow do receptor.
func (b *Beam) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emptyLocked()
}

// IsClosed reporta se Close já foi observado neste beam.
func (b *Beam) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// IsAborted reporta se Abort já foi observado neste beam.
func (b *Beam) IsAborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// bufferedLocked soma Length() sobre todo chunk de comprimento determinado
// em send (§4.6 buffered_data_len) — ao contrário de memCost, não isenta
// arquivo/mmap: essa métrica reflete bytes totais em trânsito, não custo de
// memória do processo.
func (b *Beam) bufferedLocked() int64 {
	var total int64
	for e := b.send.Front(); e != nil; e = e.Next() {
		se := e.Value.(*sendEntry)
		if l := se.chunk.Length(); l > 0 {
			total += l
		}
	}
	return total
}

func (b *Beam) memUsedLocked() int64 {
	var total int64
	for e := b.send.Front(); e != nil; e = e.Next() {
		se := e.Value.(*sendEntry)
		total += memCost(se.chunk)
	}
	return total
}

func (b *Beam) emptyLocked() bool {
	return b.send.Len() == 0 && len(b.recv) == 0
}

// ReportConsumption computa os bytes recebidos desde o último reporte e,
// se um callback de consumo estiver registrado, o invoca fora do lock
// antes de avançar o contador.
func (b *Beam) ReportConsumption() {
	b.reportConsumption()
}

func (b *Beam) reportConsumption() {
	b.mu.Lock()
	length := b.receivedBytes - b.consBytesReported
	b.cb.mu.Lock()
	fn := b.cb.consIO
	b.cb.mu.Unlock()
	b.mu.Unlock()

	if length <= 0 || fn == nil {
		if length > 0 {
			b.mu.Lock()
			b.consBytesReported += length
			b.mu.Unlock()
		}
		return
	}

	fn(b, length)

	b.mu.Lock()
	b.consBytesReported += length
	b.mu.Unlock()
}

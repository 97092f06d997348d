// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package sched mantém um registro de beams ativos e roda verificações de
// saúde periódicas sobre eles via cron, na mesma forma que o agente original
// agendava jobs de backup: um *cron.Cron interno, uma entrada por tarefa, e
// um resultado guardado sob mutex para consulta externa.
package sched

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/nbeam/beam"
)

// HealthCheck é executado periodicamente contra um beam registrado. Deve
// retornar rapidamente — é chamado a partir da goroutine do cron.
type HealthCheck func(b *beam.Beam) error

// BeamEntry descreve um beam registrado e a verificação agendada sobre ele.
type BeamEntry struct {
	Name     string
	Schedule string // expressão cron, por ex. "@every 30s"
	Beam     *beam.Beam
	Check    HealthCheck
}

// EntryResult é o resultado mais recente da verificação de uma entrada.
type EntryResult struct {
	Name  string
	Ran   time.Time
	Err   error
	Stats beam.Stats
}

type registeredJob struct {
	entry  BeamEntry
	mu     sync.Mutex
	result *EntryResult
	active int32
	id     cron.EntryID
}

// Scheduler roda verificações de saúde periódicas sobre um conjunto de
// beams registrados, usando um *cron.Cron compartilhado.
type Scheduler struct {
	logger *slog.Logger
	cron   *cron.Cron

	mu   sync.Mutex
	jobs map[string]*registeredJob
}

// New cria um Scheduler ocioso; chame Start para começar a rodar as
// entradas registradas.
func New(logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "sched")
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Scheduler{
		logger: logger,
		cron:   c,
		jobs:   make(map[string]*registeredJob),
	}
}

// Register agenda entry.Check para rodar em entry.Schedule contra entry.Beam.
// Retorna erro se o nome já estiver em uso ou a expressão cron for inválida.
func (s *Scheduler) Register(entry BeamEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[entry.Name]; exists {
		return fmt.Errorf("sched: entry %q already registered", entry.Name)
	}

	job := &registeredJob{entry: entry}
	id, err := s.cron.AddFunc(entry.Schedule, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("sched: invalid schedule for %q: %w", entry.Name, err)
	}
	job.id = id
	s.jobs[entry.Name] = job
	return nil
}

// Unregister remove a entrada name, impedindo execuções futuras. Uma
// execução já em andamento continua até o fim.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[name]; ok {
		s.cron.Remove(job.id)
		delete(s.jobs, name)
	}
}

// Start inicia o cron interno.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop para o cron e aguarda as execuções em andamento terminarem.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) run(job *registeredJob) {
	if !atomic.CompareAndSwapInt32(&job.active, 0, 1) {
		s.logger.Debug("skipping overlapping health check", "entry", job.entry.Name)
		return
	}
	defer atomic.StoreInt32(&job.active, 0)

	err := job.entry.Check(job.entry.Beam)
	result := &EntryResult{
		Name:  job.entry.Name,
		Ran:   time.Now(),
		Err:   err,
		Stats: job.entry.Beam.Stats(),
	}

	job.mu.Lock()
	job.result = result
	job.mu.Unlock()

	if err != nil {
		s.logger.Warn("beam health check failed", "entry", job.entry.Name, "error", err)
	} else {
		s.logger.Debug("beam health check ok", "entry", job.entry.Name)
	}
}

// Result returns the most recent health check result for name, or false if
// name is unknown or has not run yet.
func (s *Scheduler) Result(name string) (EntryResult, bool) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return EntryResult{}, false
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.result == nil {
		return EntryResult{}, false
	}
	return *job.result, true
}

// Entries lists the names of all registered entries.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

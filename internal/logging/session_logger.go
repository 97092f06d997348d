// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler é um slog.Handler que despacha cada registro para dois handlers.
// Usado pelo BeamLogger para gravar simultaneamente no handler global e no
// arquivo de log dedicado do beam.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Verifica Enabled() de cada handler individualmente antes de despachar.
	// Isso garante que registros DEBUG não são enviados ao handler primário
	// quando este aceita apenas INFO (ou superior).
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// Erros de escrita no arquivo do beam não devem impedir o log global.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewBeamLogger cria um logger que grava tanto no logger base (global) quanto
// em um arquivo dedicado ao beam identificado por tag/id. O arquivo é criado em:
//
//	{beamLogDir}/{tag}/{id}.log
//
// Retorna o logger enriquecido, um io.Closer para fechar o arquivo dedicado e o
// path do arquivo criado (relativo se beamLogDir for relativo). O Closer DEVE ser chamado (defer) quando o
// beam for destruído.
//
// Se beamLogDir for vazio, retorna o logger base sem modificações (no-op).
func NewBeamLogger(baseLogger *slog.Logger, beamLogDir, tag, id string) (*slog.Logger, io.Closer, string, error) {
	if beamLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(beamLogDir, tag)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating beam log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, id+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening beam log file %s: %w", logPath, err)
	}

	// Arquivo do beam sempre usa JSON com nível DEBUG para captura máxima.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	// Fan-out: despacha para o handler do logger base + handler do arquivo.
	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveBeamLog remove o arquivo de log de um beam destruído com sucesso.
// É no-op se beamLogDir for vazio ou o arquivo não existir.
func RemoveBeamLog(beamLogDir, tag, id string) {
	if beamLogDir == "" {
		return
	}
	logPath := filepath.Join(beamLogDir, tag, id+".log")
	os.Remove(logPath)
}

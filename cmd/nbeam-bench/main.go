// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command nbeam-bench exercita um beam.Beam ponta a ponta: um worker de
// produção lê um arquivo — em blocos com pacing via internal/pacer, ou,
// com -gzip, descomprimido através de internal/chunksrc (sem pacing) — e
// um goroutine de consumo drena pelo lado receptor verificando ordem FIFO
// com internal/beamtest. internal/memwatch e internal/sched supervisionam
// o beam quando habilitados no arquivo de configuração.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nishisan-dev/nbeam/beam"
	"github.com/nishisan-dev/nbeam/internal/beamtest"
	"github.com/nishisan-dev/nbeam/internal/bucketpool"
	"github.com/nishisan-dev/nbeam/internal/chunksrc"
	"github.com/nishisan-dev/nbeam/internal/config"
	"github.com/nishisan-dev/nbeam/internal/logging"
	"github.com/nishisan-dev/nbeam/internal/memwatch"
	"github.com/nishisan-dev/nbeam/internal/pacer"
	"github.com/nishisan-dev/nbeam/internal/sched"
)

type senderEndpoint struct{ name string }
type receiverEndpoint struct{ name string }

func main() {
	configPath := flag.String("config", "", "path to a beam config YAML (optional)")
	sourcePath := flag.String("source", "", "file to stream through the beam")
	compressed := flag.Bool("gzip", false, "treat -source as gzip-compressed")
	bufSize := flag.String("buf-size", "4mb", "beam buffer size")
	bytesPerSec := flag.String("rate", "0", "pacing rate; 0 disables pacing")
	flag.Parse()

	logger, closer := logging.NewLogger("info", "text", "")
	defer closer.Close()

	if *sourcePath == "" {
		fmt.Fprintln(os.Stderr, "usage: nbeam-bench -source <file> [-config <yaml>] [-gzip] [-buf-size 4mb] [-rate 0]")
		os.Exit(2)
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *sourcePath, *compressed, *bufSize, *bytesPerSec, cfg); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, sourcePath string, compressed bool, bufSizeStr, bytesPerSecStr string, cfg *config.Config) error {
	bufSize, err := config.ParseByteSize(bufSizeStr)
	if err != nil {
		return fmt.Errorf("parsing buf-size: %w", err)
	}
	bytesPerSec, err := config.ParseByteSize(bytesPerSecStr)
	if err != nil {
		return fmt.Errorf("parsing rate: %w", err)
	}

	scope := bucketpool.NewScope("nbeam-bench")
	defer scope.Close()

	sender := senderEndpoint{name: "bench-sender"}
	receiver := receiverEndpoint{name: "bench-receiver"}

	b := beam.NewBeam(sender, scope, "bench-1", "bench", bufSize, 30*time.Second, logger)
	b.SetConsEventCallback(func(*beam.Beam) {
		logger.Debug("receiver consumed a chunk")
	})

	if cfg != nil && cfg.Memwatch.Enabled {
		w := memwatch.NewWatcher(logger, memwatch.Thresholds{High: cfg.Memwatch.HighPercent, Low: cfg.Memwatch.LowPercent}, cfg.Memwatch.NormalSizeRaw, cfg.Memwatch.ShrunkSizeRaw)
		w.Register(b)
		w.Start(cfg.Memwatch.PollIntervalRaw)
		defer w.Stop()
	}

	var schd *sched.Scheduler
	if cfg != nil && cfg.Sched.Enabled {
		schd = sched.New(logger)
		if err := schd.Register(sched.BeamEntry{
			Name:     "bench",
			Schedule: cfg.Sched.Schedule,
			Beam:     b,
			Check: func(bm *beam.Beam) error {
				if bm.IsAborted() {
					return fmt.Errorf("beam aborted")
				}
				return nil
			},
		}); err != nil {
			return fmt.Errorf("registering health check: %w", err)
		}
		schd.Start()
		defer schd.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- produce(ctx, b, sender, scope, sourcePath, compressed, bytesPerSec)
	}()

	var consumed int64
	go func() {
		checker := beamtest.NewFIFOChecker()
		n, err := beamtest.DrainAll(b, receiver, checker)
		consumed = n
		errCh <- err
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	logger.Info("beam drained", "bytes_consumed", consumed, "stats", b.Stats())
	return firstErr
}

func produce(ctx context.Context, b *beam.Beam, from beam.Endpoint, scope beam.Scope, sourcePath string, compressed bool, bytesPerSec int64) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	p := pacer.New(ctx, b, from, bytesPerSec)

	if !compressed {
		return streamPlain(ctx, b, from, p, scope, f)
	}

	src, err := chunksrc.Open(f, chunksrc.CompressionGzip, scope)
	if err != nil {
		return fmt.Errorf("opening compressed source: %w", err)
	}
	defer src.Close()
	if err := src.PumpInto(b, from, true); err != nil {
		return err
	}
	// PumpInto admite o eos mas não fecha o beam sozinho (§9: quem quer
	// eos explícito ainda precisa fechar explicitamente) — sem isso o
	// receptor nunca veria StatusEndOfFile.
	b.Close(from)
	return nil
}

func streamPlain(ctx context.Context, b *beam.Beam, from beam.Endpoint, p *pacer.Pacer, scope beam.Scope, f *os.File) error {
	const blockSize = 256 * 1024
	buf := make([]byte, blockSize)
	var offset int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunk := bucketpool.NewHeap(data, offset, scope)
			offset += int64(n)
			if _, sendErr := p.Send([]beam.Chunk{chunk}, true); sendErr != nil {
				return sendErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if _, sendErr := b.Send(from, []beam.Chunk{bucketpool.NewEOS(offset, scope)}, true); sendErr != nil {
					return sendErr
				}
				b.Close(from)
				return nil
			}
			return err
		}
	}
}

// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config representa a configuração completa de um processo que hospeda um
// ou mais beams: a definição de cada beam, o pacing de envio, o watcher de
// memória, o agendador de health checks e o sink de destino.
type Config struct {
	Beams    []BeamEntry    `yaml:"beams"`
	Memwatch MemwatchConfig `yaml:"memwatch"`
	Sched    SchedConfig    `yaml:"sched"`
	S3Sink   S3SinkConfig   `yaml:"s3_sink"`
	Logging  LoggingInfo    `yaml:"logging"`
}

// BeamEntry descreve um beam nomeado e sua configuração de buffer/pacing.
type BeamEntry struct {
	Name        string `yaml:"name"`
	MaxBufSize  string `yaml:"max_buf_size"`  // ex: "8mb"; "0" ou vazio = ilimitado
	Timeout     string `yaml:"timeout"`       // ex: "30s"; "0" ou vazio = sem timeout
	CopyFiles   bool   `yaml:"copy_files"`    // força cópia ao invés de emprestar chunks de arquivo/mmap
	BytesPerSec string `yaml:"bytes_per_sec"` // ex: "10mb"; "0" ou vazio = sem pacing

	MaxBufSizeRaw  int64         `yaml:"-"`
	TimeoutRaw     time.Duration `yaml:"-"`
	BytesPerSecRaw int64         `yaml:"-"`
}

// MemwatchConfig configura o watcher de pressão de memória que encolhe os
// buffers de beam registrados quando o uso do host passa de HighPercent.
type MemwatchConfig struct {
	Enabled      bool    `yaml:"enabled"`
	HighPercent  float64 `yaml:"high_percent"` // default: 85.0
	LowPercent   float64 `yaml:"low_percent"`  // default: 70.0
	PollInterval string  `yaml:"poll_interval"`
	NormalSize   string  `yaml:"normal_size"` // ex: "8mb"
	ShrunkSize   string  `yaml:"shrunk_size"` // ex: "1mb"

	PollIntervalRaw time.Duration `yaml:"-"`
	NormalSizeRaw   int64         `yaml:"-"`
	ShrunkSizeRaw   int64         `yaml:"-"`
}

// SchedConfig configura o agendador de health checks periódicos sobre os
// beams registrados.
type SchedConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // expressão cron, ex: "@every 30s"
}

// S3SinkConfig configura o destino S3 para onde um beam é drenado.
type S3SinkConfig struct {
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
	Region    string `yaml:"region"`
}

// LoggingInfo contém configurações de logging.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load lê e valida o arquivo YAML de configuração em path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Beams) == 0 {
		return fmt.Errorf("beams must have at least one entry")
	}
	seen := make(map[string]bool, len(c.Beams))
	for i := range c.Beams {
		b := &c.Beams[i]
		if b.Name == "" {
			return fmt.Errorf("beams[%d].name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("beams[%d].name %q is duplicated", i, b.Name)
		}
		seen[b.Name] = true

		if b.MaxBufSize == "" || b.MaxBufSize == "0" {
			b.MaxBufSizeRaw = 0
		} else {
			parsed, err := ParseByteSize(b.MaxBufSize)
			if err != nil {
				return fmt.Errorf("beams[%d].max_buf_size: %w", i, err)
			}
			b.MaxBufSizeRaw = parsed
		}

		if b.Timeout != "" {
			d, err := time.ParseDuration(b.Timeout)
			if err != nil {
				return fmt.Errorf("beams[%d].timeout: %w", i, err)
			}
			b.TimeoutRaw = d
		}

		if b.BytesPerSec == "" || b.BytesPerSec == "0" {
			b.BytesPerSecRaw = 0
		} else {
			parsed, err := ParseByteSize(b.BytesPerSec)
			if err != nil {
				return fmt.Errorf("beams[%d].bytes_per_sec: %w", i, err)
			}
			b.BytesPerSecRaw = parsed
		}
	}

	if c.Memwatch.Enabled {
		if c.Memwatch.HighPercent <= 0 {
			c.Memwatch.HighPercent = 85.0
		}
		if c.Memwatch.LowPercent <= 0 {
			c.Memwatch.LowPercent = 70.0
		}
		if c.Memwatch.LowPercent >= c.Memwatch.HighPercent {
			return fmt.Errorf("memwatch.low_percent must be less than high_percent")
		}
		if c.Memwatch.PollInterval == "" {
			c.Memwatch.PollIntervalRaw = 10 * time.Second
		} else {
			d, err := time.ParseDuration(c.Memwatch.PollInterval)
			if err != nil {
				return fmt.Errorf("memwatch.poll_interval: %w", err)
			}
			c.Memwatch.PollIntervalRaw = d
		}
		if c.Memwatch.NormalSize == "" {
			return fmt.Errorf("memwatch.normal_size is required when memwatch is enabled")
		}
		normal, err := ParseByteSize(c.Memwatch.NormalSize)
		if err != nil {
			return fmt.Errorf("memwatch.normal_size: %w", err)
		}
		c.Memwatch.NormalSizeRaw = normal
		if c.Memwatch.ShrunkSize == "" {
			return fmt.Errorf("memwatch.shrunk_size is required when memwatch is enabled")
		}
		shrunk, err := ParseByteSize(c.Memwatch.ShrunkSize)
		if err != nil {
			return fmt.Errorf("memwatch.shrunk_size: %w", err)
		}
		c.Memwatch.ShrunkSizeRaw = shrunk
	}

	if c.Sched.Enabled && c.Sched.Schedule == "" {
		c.Sched.Schedule = "@every 30s"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

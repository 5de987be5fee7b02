package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelcore/internal/backend"
	"modelcore/internal/dispatcher"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// Defaults for unset fields.
const (
	DefaultAddr               = ":8080"
	DefaultLogLevel           = "info"
	DefaultMemoryCeilingMB    = 8192
	DefaultEmergencyThreshold = 0.9
	DefaultMonitorIntervalMs  = 10_000
	DefaultPressureBatch      = 2
	DefaultReadyTimeoutMs     = 60_000
	DefaultQueueCapacity      = 256
	DefaultAcceleratorSlots   = 1
	DefaultIdleWaitMs         = 10
	DefaultMaxBodyBytes       = 32 << 20
)

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MemoryCeilingMB == 0 {
		c.MemoryCeilingMB = DefaultMemoryCeilingMB
	}
	if c.EmergencyThreshold == 0 {
		c.EmergencyThreshold = DefaultEmergencyThreshold
	}
	if c.MonitorIntervalMs == 0 {
		c.MonitorIntervalMs = DefaultMonitorIntervalMs
	}
	if c.PressureBatch == 0 {
		c.PressureBatch = DefaultPressureBatch
	}
	if c.ReadyTimeoutMs == 0 {
		c.ReadyTimeoutMs = DefaultReadyTimeoutMs
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.AcceleratorSlots == 0 {
		c.AcceleratorSlots = DefaultAcceleratorSlots
	}
	if c.IdleWaitMs == 0 {
		c.IdleWaitMs = DefaultIdleWaitMs
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(c.BatchablePatterns) == 0 {
		c.BatchablePatterns = append([]string(nil), dispatcher.DefaultBatchablePatterns...)
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MemoryCeilingMB <= 0:
		return fmt.Errorf("memory_ceiling_mb must be > 0, got %d", c.MemoryCeilingMB)
	case c.EmergencyThreshold <= 0 || c.EmergencyThreshold > 1:
		return fmt.Errorf("emergency_threshold must be in (0,1], got %v", c.EmergencyThreshold)
	case c.MonitorIntervalMs < 0, c.ReadyTimeoutMs < 0, c.IdleWaitMs < 0:
		return errors.New("intervals and timeouts must not be negative")
	case c.PressureBatch < 0:
		return fmt.Errorf("pressure_batch must not be negative, got %d", c.PressureBatch)
	case c.Workers < 0, c.QueueCapacity < 0, c.AcceleratorSlots < 0, c.GeneralSlots < 0:
		return errors.New("workers, queue_capacity and slot counts must not be negative")
	case c.MaxBodyBytes < 0:
		return fmt.Errorf("max_body_bytes must not be negative, got %d", c.MaxBodyBytes)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for _, pr := range []struct {
		name       string
		start, end int
	}{
		{"llama", c.Llama.PortStart, c.Llama.PortEnd},
		{"whisper", c.Whisper.PortStart, c.Whisper.PortEnd},
		{"sidecar", c.Sidecar.PortStart, c.Sidecar.PortEnd},
	} {
		if pr.start < 0 || pr.end < 0 || (pr.start > 0 && pr.end > 0 && pr.end < pr.start) {
			return fmt.Errorf("%s port range %d-%d is invalid", pr.name, pr.start, pr.end)
		}
	}
	seen := map[string]bool{}
	for i, m := range c.Models {
		n, err := m.Normalize()
		if err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		if seen[n.ID] {
			return fmt.Errorf("models[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// CeilingBytes converts the configured ceiling.
func (c Config) CeilingBytes() int64 { return c.MemoryCeilingMB << 20 }

// RegistryConfig maps the registry section. Launchers, publisher, progress
// and logger are wired by the caller.
func (c Config) RegistryConfig() registry.Config {
	return registry.Config{
		CeilingBytes:       c.CeilingBytes(),
		EmergencyThreshold: c.EmergencyThreshold,
		MonitorInterval:    time.Duration(c.MonitorIntervalMs) * time.Millisecond,
		PressureBatch:      c.PressureBatch,
		ReadyTimeout:       time.Duration(c.ReadyTimeoutMs) * time.Millisecond,
	}
}

// DispatcherConfig maps the scheduling section.
func (c Config) DispatcherConfig() dispatcher.Config {
	return dispatcher.Config{
		Workers:           c.Workers,
		QueueCapacity:     c.QueueCapacity,
		AcceleratorSlots:  c.AcceleratorSlots,
		GeneralSlots:      c.GeneralSlots,
		IdleWait:          time.Duration(c.IdleWaitMs) * time.Millisecond,
		BatchablePatterns: c.BatchablePatterns,
	}
}

// BackendConfig maps the backend sections.
func (c Config) BackendConfig() backend.Config {
	return backend.Config{
		Llama: backend.LlamaServerConfig{
			Bin:       c.Llama.Bin,
			Host:      c.Llama.Host,
			PortStart: c.Llama.PortStart,
			PortEnd:   c.Llama.PortEnd,
			CtxSize:   c.Llama.CtxSize,
			GPULayers: c.Llama.GPULayers,
			Threads:   c.Llama.Threads,
			ExtraArgs: c.Llama.ExtraArgs,
		},
		Whisper: backend.WhisperConfig{
			Bin:       c.Whisper.Bin,
			Host:      c.Whisper.Host,
			PortStart: c.Whisper.PortStart,
			PortEnd:   c.Whisper.PortEnd,
			Threads:   c.Whisper.Threads,
			ExtraArgs: c.Whisper.ExtraArgs,
		},
		TextEmbedding: backend.SidecarConfig{
			Command:   c.Sidecar.TextEmbeddingCommand,
			Env:       c.Sidecar.Env,
			PortStart: c.Sidecar.PortStart,
			PortEnd:   c.Sidecar.PortEnd,
		},
		ImageEmbedding: backend.SidecarConfig{
			Command:   c.Sidecar.ImageEmbeddingCommand,
			Env:       c.Sidecar.Env,
			PortStart: c.Sidecar.PortStart,
			PortEnd:   c.Sidecar.PortEnd,
		},
		InProcess: c.Llama.InProcess,
		InProcessConfig: backend.InProcessConfig{
			CtxSize:   c.Llama.CtxSize,
			GPULayers: c.Llama.GPULayers,
			Threads:   c.Llama.Threads,
		},
	}
}

// Descriptors returns configured models, for building a catalog.
func (c Config) Descriptors() []types.ModelDescriptor {
	return append([]types.ModelDescriptor(nil), c.Models...)
}

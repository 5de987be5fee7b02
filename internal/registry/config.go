package registry

import (
	"time"

	"github.com/rs/zerolog"

	"modelcore/internal/progress"
	"modelcore/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMonitorInterval    = 10 * time.Second
	defaultEmergencyThreshold = 0.9
	defaultPressureBatch      = 2
	defaultReadyTimeout       = 60 * time.Second
	defaultCloseTimeout       = 10 * time.Second
)

// Config encapsulates all tunables for Registry construction.
type Config struct {
	// CeilingBytes is the hard limit on aggregate resident memory.
	CeilingBytes int64
	// EmergencyThreshold is the fraction of the ceiling above which the
	// monitor evicts proactively. Must be in (0,1].
	EmergencyThreshold float64
	MonitorInterval    time.Duration
	// PressureBatch caps evictions per monitor tick.
	PressureBatch int
	// ReadyTimeout bounds how long a backend may take to become healthy.
	ReadyTimeout time.Duration
	// CloseTimeout bounds backend teardown during Close.
	CloseTimeout time.Duration

	Launchers map[types.Category]Launcher
	// Estimate overrides the accountant's estimate (tests).
	Estimate  func(types.ModelDescriptor) int64
	Publisher EventPublisher
	Progress  progress.Sink
	Logger    *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.EmergencyThreshold <= 0 || c.EmergencyThreshold > 1 {
		c.EmergencyThreshold = defaultEmergencyThreshold
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = defaultMonitorInterval
	}
	if c.PressureBatch <= 0 {
		c.PressureBatch = defaultPressureBatch
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Progress == nil {
		c.Progress = progress.Nop{}
	}
	return c
}

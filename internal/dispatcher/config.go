package dispatcher

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBatchablePatterns are id substrings of model families whose requests
// are grouped into one queued unit by ExecuteBatch.
var DefaultBatchablePatterns = []string{"embed", "llama", "mistral", "qwen", "gemma", "phi"}

const (
	defaultQueueCapacity    = 256
	defaultAcceleratorSlots = 1
	defaultIdleWait         = 10 * time.Millisecond
)

// Config tunes the worker pool, queue bounds and class budgets.
type Config struct {
	// Workers is the size of the worker pool. Defaults to GOMAXPROCS.
	Workers int
	// QueueCapacity bounds each priority queue.
	QueueCapacity int
	// AcceleratorSlots caps concurrent accelerator-bound executions.
	AcceleratorSlots int
	// GeneralSlots caps concurrent general-purpose executions. Defaults to
	// GOMAXPROCS.
	GeneralSlots int
	// IdleWait is how long a worker sleeps when every queue is empty.
	IdleWait time.Duration
	// BatchablePatterns overrides DefaultBatchablePatterns.
	BatchablePatterns []string
	Logger            *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.AcceleratorSlots <= 0 {
		c.AcceleratorSlots = defaultAcceleratorSlots
	}
	if c.GeneralSlots <= 0 {
		c.GeneralSlots = runtime.GOMAXPROCS(0)
	}
	if c.IdleWait <= 0 {
		c.IdleWait = defaultIdleWait
	}
	if len(c.BatchablePatterns) == 0 {
		c.BatchablePatterns = DefaultBatchablePatterns
	}
	return c
}

package progress

import (
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const barTotal = 1000

// Terminal renders one progress bar per model on a terminal.
type Terminal struct {
	p    *mpb.Progress
	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

// NewTerminal writes bars to out (typically os.Stderr).
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		p: mpb.New(
			mpb.WithOutput(out),
			mpb.WithWidth(40),
			mpb.WithRefreshRate(180*time.Millisecond),
		),
		bars: map[string]*mpb.Bar{},
	}
}

func (t *Terminal) Report(modelID string, fraction float64) {
	fraction = Clamp(fraction)
	t.mu.Lock()
	bar, ok := t.bars[modelID]
	if !ok {
		bar = t.p.New(barTotal,
			mpb.BarStyle().Rbound("|"),
			mpb.PrependDecorators(decor.Name(modelID, decor.WCSyncSpaceR)),
			mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
		)
		t.bars[modelID] = bar
	}
	t.mu.Unlock()
	bar.SetCurrent(int64(fraction * barTotal))
	if fraction >= 1 {
		bar.SetTotal(barTotal, true)
	}
}

// Abort drops the bar of a failed load.
func (t *Terminal) Abort(modelID string) {
	t.mu.Lock()
	bar := t.bars[modelID]
	delete(t.bars, modelID)
	t.mu.Unlock()
	if bar != nil {
		bar.Abort(true)
	}
}

// Wait blocks until all bars have finished rendering.
func (t *Terminal) Wait() { t.p.Wait() }

package dispatcher

import "sync"

// slot is a single-assignment result cell. The first of fulfill or cancel
// wins; later calls are no-ops.
type slot struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newSlot() *slot { return &slot{done: make(chan struct{})} }

// set stores the outcome and reports whether this call assigned it. onWin,
// if non-nil, runs before waiters are released.
func (s *slot) set(v any, err error, onWin func()) bool {
	won := false
	s.once.Do(func() {
		s.val, s.err = v, err
		won = true
		if onWin != nil {
			onWin()
		}
		close(s.done)
	})
	return won
}

func (s *slot) settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// result must only be read after done is closed.
func (s *slot) result() (any, error) { return s.val, s.err }
